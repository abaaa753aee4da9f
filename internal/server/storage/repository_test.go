package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chesssync/internal/rules"
)

// repositoryContract exercises the compare-and-swap behavior every backend
// must share.
func repositoryContract(t *testing.T, repo Repository) {
	ctx := context.Background()

	_, err := repo.Load(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	first := Record{FEN: "fen-1", History: []string{"e4"}}
	saved, err := repo.Save(ctx, first, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.Version)
	assert.False(t, saved.UpdatedAt.IsZero())

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.Version)
	assert.True(t, loaded.SameGame(first))

	// A second writer that also read "nothing stored" loses
	_, err = repo.Save(ctx, Record{FEN: "other"}, 0)
	assert.ErrorIs(t, err, ErrVersionConflict)

	second := Record{FEN: "fen-2", History: []string{"e4", "e5"}}
	saved, err = repo.Save(ctx, second, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Version)

	_, err = repo.Save(ctx, Record{FEN: "stale"}, 1)
	assert.ErrorIs(t, err, ErrVersionConflict)

	loaded, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.True(t, loaded.SameGame(second), "conflicting writes must not change the record")

	// Empty history round-trips as an empty slice
	saved, err = repo.Save(ctx, Record{FEN: rules.StartingFEN}, 2)
	require.NoError(t, err)
	loaded, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.NotNil(t, loaded.History)
	assert.Empty(t, loaded.History)
	assert.Equal(t, saved.Version, loaded.Version)

	require.NoError(t, repo.Ping(ctx))
}

// concurrentSaveContract races writers on the same version; exactly one
// may win.
func concurrentSaveContract(t *testing.T, repo Repository) {
	ctx := context.Background()
	_, err := repo.Save(ctx, InitialRecord(), 0)
	require.NoError(t, err)

	const writers = 8
	var (
		wg        sync.WaitGroup
		wins      atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Save(ctx, Record{FEN: "writer", History: []string{uuid.NewString()}}, 1)
			switch {
			case err == nil:
				wins.Add(1)
			case assert.ErrorIs(t, err, ErrVersionConflict):
				conflicts.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(writers-1), conflicts.Load())

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.Version)
}

func sessionContract(t *testing.T, repo SessionRepository) {
	ctx := context.Background()
	now := time.Now().UTC()

	live := Session{ID: uuid.NewString(), CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, repo.CreateSession(ctx, live))

	got, err := repo.GetSession(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, live.ID, got.ID)
	assert.WithinDuration(t, live.ExpiresAt, got.ExpiresAt, time.Second)

	_, err = repo.GetSession(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.DeleteSession(ctx, live.ID))
	_, err = repo.GetSession(ctx, live.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	t.Run("repository", func(t *testing.T) { repositoryContract(t, NewMemoryStore()) })
	t.Run("concurrent save", func(t *testing.T) { concurrentSaveContract(t, NewMemoryStore()) })
	t.Run("sessions", func(t *testing.T) { sessionContract(t, NewMemoryStore()) })
}

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	rec := Record{FEN: "x", History: []string{"e4"}}
	_, err := m.Save(ctx, rec, 0)
	require.NoError(t, err)
	rec.History[0] = "mutated"

	loaded, err := m.Load(ctx)
	require.NoError(t, err)
	loaded.History[0] = "also mutated"

	again, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"e4"}, again.History)
}

func TestMemoryStoreExpiresSessions(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	now := time.Now()
	m.now = func() time.Time { return now }

	require.NoError(t, m.CreateSession(ctx, Session{ID: "old", ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, m.CreateSession(ctx, Session{ID: "new", ExpiresAt: now.Add(time.Hour)}))

	_, err := m.GetSession(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := m.DeleteExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = m.GetSession(ctx, "new")
	assert.NoError(t, err)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "chess.db"), true, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.InitDB())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	t.Run("repository", func(t *testing.T) { repositoryContract(t, newTestStore(t)) })
	t.Run("concurrent save", func(t *testing.T) { concurrentSaveContract(t, newTestStore(t)) })
	t.Run("sessions", func(t *testing.T) { sessionContract(t, newTestStore(t)) })
}

func TestSQLiteRecordSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chess.db")

	s, err := NewStore(path, false, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.InitDB())
	_, err = s.Save(ctx, Record{FEN: "persisted", History: []string{"d4"}}, 0)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewStore(path, false, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "persisted", loaded.FEN)
	assert.Equal(t, []string{"d4"}, loaded.History)
	assert.Equal(t, int64(1), loaded.Version)
}

func TestSQLiteExpiredSessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.CreateSession(ctx, Session{ID: "expired", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}))
	require.NoError(t, s.CreateSession(ctx, Session{ID: "live", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))

	_, err := s.GetSession(ctx, "expired")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := s.DeleteExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetSession(ctx, "live")
	assert.NoError(t, err)
}

func TestSQLiteMoveLog(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chess.db")

	s, err := NewStore(path, true, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.InitDB())

	for i, san := range []string{"e4", "e5", "Nf3"} {
		require.NoError(t, s.RecordMove(MoveRecord{
			MoveID:       uuid.NewString(),
			Version:      int64(i + 1),
			Ply:          i + 1,
			SAN:          san,
			FENAfterMove: "fen",
			Actor:        ActorVisitor,
			MoveTimeUTC:  time.Now().UTC(),
		}))
	}
	// Close drains the writer queue
	require.NoError(t, s.Close())
	assert.True(t, s.IsHealthy())

	s, err = NewStore(path, true, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	moves, err := s.QueryMoves(ctx, 0)
	require.NoError(t, err)
	require.Len(t, moves, 3)
	assert.Equal(t, "e4", moves[0].SAN)
	assert.Equal(t, "Nf3", moves[2].SAN)

	moves, err = s.QueryMoves(ctx, 2)
	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.Equal(t, "e5", moves[0].SAN)
}

func TestSQLiteDeleteDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chess.db")
	s, err := NewStore(path, false, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.InitDB())

	require.NoError(t, s.DeleteDB())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

// Redis tests need a disposable server, e.g. CHESS_TEST_REDIS_URL=redis://localhost:6379/15
func newTestRedis(t *testing.T) *RedisStore {
	t.Helper()
	url := os.Getenv("CHESS_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CHESS_TEST_REDIS_URL not set")
	}

	ctx := context.Background()
	prefix := "chess-test:" + uuid.NewString() + ":"
	r, err := NewRedisStore(ctx, url, "", prefix+"game", prefix)
	require.NoError(t, err)
	t.Cleanup(func() {
		r.rdb.Del(ctx, r.key)
		r.Close()
	})
	return r
}

func TestRedisStore(t *testing.T) {
	t.Run("repository", func(t *testing.T) { repositoryContract(t, newTestRedis(t)) })
	t.Run("concurrent save", func(t *testing.T) { concurrentSaveContract(t, newTestRedis(t)) })
	t.Run("sessions", func(t *testing.T) { sessionContract(t, newTestRedis(t)) })
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "", "", "k", "p")
	assert.Error(t, err)

	_, err = NewRedisStore(context.Background(), "http://localhost:6379", "", "k", "p")
	assert.Error(t, err)
}
