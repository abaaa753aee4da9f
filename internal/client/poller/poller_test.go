package poller

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"chesssync/internal/client/api"
	"chesssync/internal/rules"
	"chesssync/internal/server/core"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeServer plays the server role in memory with the real rules engine
type fakeServer struct {
	engine rules.Engine

	mu       sync.Mutex
	fen      string
	history  []string
	version  int64
	token    string
	fetches  int
	fetchErr error
	waits    chan struct{}
}

func newFakeServer() *fakeServer {
	return &fakeServer{engine: rules.NewChessEngine(), fen: rules.StartingFEN, history: []string{}}
}

func (f *fakeServer) stateLocked() core.StateResponse {
	a, _ := f.engine.Analyze(f.fen, f.history)
	return core.StateResponse{
		FEN:         f.fen,
		Turn:        a.Turn,
		Status:      core.StatusFromFlags(a.IsCheck, a.IsCheckmate, a.IsStalemate, a.IsDraw).String(),
		IsCheck:     a.IsCheck,
		IsCheckmate: a.IsCheckmate,
		IsStalemate: a.IsStalemate,
		IsDraw:      a.IsDraw,
		History:     append([]string{}, f.history...),
		Version:     f.version,
	}
}

func (f *fakeServer) GetState(ctx context.Context) (*core.StateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	st := f.stateLocked()
	return &st, nil
}

func (f *fakeServer) WaitState(ctx context.Context, version int64) (*core.StateResponse, error) {
	f.mu.Lock()
	if f.version != version {
		st := f.stateLocked()
		f.mu.Unlock()
		return &st, nil
	}
	waits := f.waits
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-waits:
		return f.GetState(ctx)
	}
}

// play applies a move as another client would
func (f *fakeServer) play(t *testing.T, from, to string) {
	t.Helper()
	_, err := f.SubmitMove(context.Background(), core.MoveRequest{From: from, To: to})
	require.NoError(t, err)
}

func (f *fakeServer) SubmitMove(ctx context.Context, req core.MoveRequest) (*core.MoveResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.Version != nil && *req.Version != f.version {
		return nil, &api.Error{Status: http.StatusConflict, Code: core.ErrStaleState, Message: "game state changed, refresh and retry"}
	}
	applied, err := f.engine.Apply(f.fen, f.history, rules.MoveInput{From: req.From, To: req.To, Promotion: req.Promotion})
	if err != nil {
		return nil, &api.Error{Status: http.StatusBadRequest, Code: core.ErrInvalidMove, Message: "invalid move", Details: err.Error()}
	}
	f.fen = applied.FEN
	f.history = append(f.history, applied.SAN)
	f.version++
	if f.waits != nil {
		close(f.waits)
		f.waits = make(chan struct{})
	}
	return &core.MoveResponse{
		StateResponse: f.stateLocked(),
		Move:          &core.MoveInfo{From: applied.From, To: applied.To, SAN: applied.SAN},
	}, nil
}

func (f *fakeServer) AdminMove(ctx context.Context, req core.AdminMoveRequest) (*core.MoveResponse, error) {
	f.mu.Lock()
	if f.token != "admin" {
		f.mu.Unlock()
		return nil, &api.Error{Status: http.StatusUnauthorized, Code: core.ErrUnauthorized, Message: "invalid or expired token"}
	}
	if req.Reset {
		defer f.mu.Unlock()
		f.fen, f.history = rules.StartingFEN, []string{}
		f.version++
		st := f.stateLocked()
		return &core.MoveResponse{StateResponse: st}, nil
	}
	f.mu.Unlock()
	return f.SubmitMove(ctx, core.MoveRequest{From: req.From, To: req.To, Promotion: req.Promotion, Version: req.Version})
}

func (f *fakeServer) SetToken(token string) {
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()
}

func TestRefreshAdoptsServerState(t *testing.T) {
	srv := newFakeServer()
	srv.play(t, "e2", "e4")

	var changes int
	p := New(srv, Config{OnChange: func(View) { changes++ }})
	require.NoError(t, p.Refresh(context.Background()))

	v := p.View()
	assert.True(t, v.Synced)
	assert.Equal(t, "black", v.Turn)
	assert.Equal(t, []string{"e4"}, v.History)
	assert.Equal(t, int64(1), v.Version)
	assert.Equal(t, 1, changes)

	// Nothing new on the server
	require.NoError(t, p.Refresh(context.Background()))
	assert.Equal(t, 1, changes)
}

func TestRefreshClearsSelectionWhenPositionChanges(t *testing.T) {
	srv := newFakeServer()
	p := New(srv, Config{})
	require.NoError(t, p.Refresh(context.Background()))

	v, err := p.Select("g1")
	require.NoError(t, err)
	assert.Equal(t, "g1", v.Selected)
	assert.Equal(t, []string{"f3", "h3"}, v.Targets)

	// Opponent in another tab
	srv.play(t, "e2", "e4")
	require.NoError(t, p.Refresh(context.Background()))

	v = p.View()
	assert.Empty(t, v.Selected)
	assert.Empty(t, v.Targets)
	assert.Equal(t, []string{"e4"}, v.History)
}

func TestRefreshTakesLaggingHistory(t *testing.T) {
	srv := newFakeServer()
	srv.play(t, "e2", "e4")
	p := New(srv, Config{})
	require.NoError(t, p.Refresh(context.Background()))

	_, err := p.Select("e7")
	require.NoError(t, err)

	// Same position, history content differs
	srv.mu.Lock()
	srv.history = []string{"e4 "}
	srv.version = 2
	srv.mu.Unlock()
	require.NoError(t, p.Refresh(context.Background()))

	v := p.View()
	assert.Equal(t, []string{"e4 "}, v.History)
	assert.Equal(t, int64(2), v.Version)
	assert.Equal(t, "e7", v.Selected, "selection survives when the position is unchanged")
}

func TestRefreshErrorKeepsView(t *testing.T) {
	srv := newFakeServer()
	p := New(srv, Config{})
	require.NoError(t, p.Refresh(context.Background()))
	before := p.View()

	srv.mu.Lock()
	srv.fetchErr = errors.New("connection refused")
	srv.mu.Unlock()

	assert.Error(t, p.Refresh(context.Background()))
	if diff := cmp.Diff(before, p.View()); diff != "" {
		t.Errorf("view changed on failed fetch (-before +after):\n%s", diff)
	}
}

func TestSelect(t *testing.T) {
	p := New(newFakeServer(), Config{})

	v, err := p.Select("e2")
	require.NoError(t, err)
	assert.Equal(t, []string{"e3", "e4"}, v.Targets)

	// Toggle off
	v, err = p.Select("e2")
	require.NoError(t, err)
	assert.Empty(t, v.Selected)

	_, err = p.Select("e5")
	assert.ErrorIs(t, err, ErrNoLegalMoves)
	assert.Empty(t, p.View().Selected)

	_, err = p.Select("z9")
	assert.ErrorIs(t, err, rules.ErrInvalidSquare)
}

func TestAttemptMoveAdoptsResponse(t *testing.T) {
	srv := newFakeServer()
	p := New(srv, Config{})
	require.NoError(t, p.Refresh(context.Background()))
	_, err := p.Select("e2")
	require.NoError(t, err)

	v, err := p.AttemptMove(context.Background(), "e2", "e4", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"e4"}, v.History)
	assert.Equal(t, "black", v.Turn)
	require.NotNil(t, v.LastMove)
	assert.Equal(t, "e4", v.LastMove.SAN)
	assert.Empty(t, v.Selected)
	assert.Empty(t, v.Err)
}

func TestAttemptMoveRejectedLeavesBoard(t *testing.T) {
	srv := newFakeServer()
	p := New(srv, Config{})
	require.NoError(t, p.Refresh(context.Background()))
	before := p.View()

	v, err := p.AttemptMove(context.Background(), "e2", "e5", "")
	require.Error(t, err)
	assert.Contains(t, v.Err, "invalid move")
	assert.Equal(t, before.FEN, v.FEN)
	assert.Equal(t, before.History, v.History)
	assert.Equal(t, before.Version, v.Version)
}

func TestAttemptMoveAgainstStaleView(t *testing.T) {
	srv := newFakeServer()
	p := New(srv, Config{})
	require.NoError(t, p.Refresh(context.Background()))

	// Another client moves first
	srv.play(t, "d2", "d4")

	v, err := p.AttemptMove(context.Background(), "e2", "e4", "")
	assert.ErrorIs(t, err, api.ErrStale)
	assert.Equal(t, rules.StartingFEN, v.FEN)

	srv.mu.Lock()
	assert.Equal(t, []string{"d4"}, srv.history)
	srv.mu.Unlock()

	// The next poll catches up
	require.NoError(t, p.Refresh(context.Background()))
	assert.Equal(t, []string{"d4"}, p.View().History)
}

func TestAdminModeAndReset(t *testing.T) {
	srv := newFakeServer()
	p := New(srv, Config{})

	_, err := p.Reset(context.Background())
	assert.ErrorIs(t, err, ErrNotAdmin)

	srv.SetToken("admin")
	p.SetAdmin(true)

	v, err := p.AttemptMove(context.Background(), "e2", "e4", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"e4"}, v.History)

	v, err = p.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rules.StartingFEN, v.FEN)
	assert.Empty(t, v.History)
	assert.Nil(t, v.LastMove)
}

func TestUnauthorizedDropsAdmin(t *testing.T) {
	srv := newFakeServer()
	srv.SetToken("expired")
	p := New(srv, Config{Admin: true})

	_, err := p.Reset(context.Background())
	assert.ErrorIs(t, err, api.ErrUnauthorized)
	assert.False(t, p.Admin())

	srv.mu.Lock()
	assert.Empty(t, srv.token)
	srv.mu.Unlock()
}

func TestRunPollsUntilCancelled(t *testing.T) {
	srv := newFakeServer()
	changed := make(chan View, 16)
	p := New(srv, Config{Interval: 10 * time.Millisecond, OnChange: func(v View) { changed <- v }})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// Initial fetch
	select {
	case v := <-changed:
		assert.True(t, v.Synced)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial fetch")
	}

	srv.play(t, "e2", "e4")
	select {
	case v := <-changed:
		assert.Equal(t, []string{"e4"}, v.History)
	case <-time.After(2 * time.Second):
		t.Fatal("move not picked up by polling")
	}

	cancel()
	require.NoError(t, <-done)

	srv.mu.Lock()
	assert.GreaterOrEqual(t, srv.fetches, 2)
	srv.mu.Unlock()
}

func TestRunLongPoll(t *testing.T) {
	srv := newFakeServer()
	srv.waits = make(chan struct{})
	changed := make(chan View, 16)
	p := New(srv, Config{LongPoll: true, Interval: time.Hour, OnChange: func(v View) { changed <- v }})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	<-changed
	srv.play(t, "e2", "e4")

	select {
	case v := <-changed:
		assert.Equal(t, int64(1), v.Version)
	case <-time.After(2 * time.Second):
		t.Fatal("long poll did not wake")
	}

	cancel()
	require.NoError(t, <-done)
}
