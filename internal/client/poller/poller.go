// Package poller keeps a local view of the shared game in step with the
// server. Clients poll on an interval, reconcile by comparing positions, and
// never show a move before the server has accepted it.
package poller

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"chesssync/internal/client/api"
	"chesssync/internal/rules"
	"chesssync/internal/server/core"
)

const DefaultInterval = 2500 * time.Millisecond

var (
	ErrNotAdmin     = errors.New("admin login required")
	ErrNoLegalMoves = errors.New("no legal moves from square")
)

// Client is the part of api.Client the poller needs
type Client interface {
	GetState(ctx context.Context) (*core.StateResponse, error)
	WaitState(ctx context.Context, version int64) (*core.StateResponse, error)
	SubmitMove(ctx context.Context, req core.MoveRequest) (*core.MoveResponse, error)
	AdminMove(ctx context.Context, req core.AdminMoveRequest) (*core.MoveResponse, error)
	SetToken(token string)
}

// View is the client's copy of the game. It carries no authority.
type View struct {
	FEN         string
	Turn        string
	Status      string
	IsCheck     bool
	IsCheckmate bool
	IsStalemate bool
	IsDraw      bool
	History     []string
	Version     int64

	Selected string   // Selected square, empty when none
	Targets  []string // Legal destinations of Selected, display only

	LastMove *core.MoveInfo
	Err      string // Message of the last failed action
	Synced   bool   // At least one state fetch succeeded
}

func (v View) clone() View {
	v.History = slices.Clone(v.History)
	v.Targets = slices.Clone(v.Targets)
	if v.LastMove != nil {
		m := *v.LastMove
		v.LastMove = &m
	}
	return v
}

type Config struct {
	Interval time.Duration // Defaults to DefaultInterval
	LongPoll bool          // Hold requests open on the server instead of ticking
	Admin    bool          // Route moves through the admin endpoint
	Engine   rules.Engine  // Defaults to the chess library engine
	Logger   *zap.Logger
	OnChange func(View) // Called outside the lock after every view change
}

type Poller struct {
	client   Client
	engine   rules.Engine
	interval time.Duration
	longPoll bool
	onChange func(View)
	logger   *zap.Logger

	mu    sync.Mutex
	view  View
	admin bool
}

func New(client Client, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Engine == nil {
		cfg.Engine = rules.NewChessEngine()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Poller{
		client:   client,
		engine:   cfg.Engine,
		interval: cfg.Interval,
		longPoll: cfg.LongPoll,
		onChange: cfg.OnChange,
		logger:   cfg.Logger.With(zap.String("component", "poller")),
		admin:    cfg.Admin,
		view: View{
			FEN:    rules.StartingFEN,
			Turn:   "white",
			Status: core.StatusActive.String(),
		},
	}
}

// View returns a copy of the current view
func (p *Poller) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view.clone()
}

func (p *Poller) Admin() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.admin
}

func (p *Poller) SetAdmin(admin bool) {
	p.mu.Lock()
	p.admin = admin
	p.mu.Unlock()
}

// Run fetches immediately and then every interval until ctx is cancelled.
// Failed fetches are logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context) error {
	if p.longPoll {
		return p.runLongPoll(ctx)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
			p.logger.Debug("state fetch failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Poller) runLongPoll(ctx context.Context) error {
	if err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
		p.logger.Debug("state fetch failed", zap.Error(err))
	}

	for ctx.Err() == nil {
		p.mu.Lock()
		version := p.view.Version
		p.mu.Unlock()

		st, err := p.client.WaitState(ctx, version)
		if err == nil {
			p.reconcile(st)
			continue
		}
		if ctx.Err() != nil {
			break
		}
		p.logger.Debug("wait for change failed", zap.Error(err))

		// Back off to the poll interval while the server is unreachable
		select {
		case <-ctx.Done():
		case <-time.After(p.interval):
		}
	}
	return nil
}

// Refresh fetches the server state once and reconciles the view with it
func (p *Poller) Refresh(ctx context.Context) error {
	st, err := p.client.GetState(ctx)
	if err != nil {
		return fmt.Errorf("fetch state: %w", err)
	}
	p.reconcile(st)
	return nil
}

// reconcile replaces the view wholesale when the position changed and
// clears the selection. With an unchanged position only a differing
// history is taken over.
func (p *Poller) reconcile(st *core.StateResponse) {
	p.mu.Lock()
	changed := !p.view.Synced
	switch {
	case st.FEN != p.view.FEN:
		p.adopt(st)
		p.view.Selected, p.view.Targets = "", nil
		changed = true
	case !slices.Equal(st.History, p.view.History):
		p.view.History = slices.Clone(st.History)
		p.view.Version = st.Version
		changed = true
	case st.Version != p.view.Version:
		p.view.Version = st.Version
	}
	p.view.Synced = true
	view := p.view.clone()
	p.mu.Unlock()

	if changed {
		p.notify(view)
	}
}

// adopt copies server state into the view. Caller holds mu.
func (p *Poller) adopt(st *core.StateResponse) {
	p.view.FEN = st.FEN
	p.view.Turn = st.Turn
	p.view.Status = st.Status
	p.view.IsCheck = st.IsCheck
	p.view.IsCheckmate = st.IsCheckmate
	p.view.IsStalemate = st.IsStalemate
	p.view.IsDraw = st.IsDraw
	p.view.History = slices.Clone(st.History)
	p.view.Version = st.Version
}

// Select marks square and computes its legal destinations from the local
// position. Selecting the selected square again clears the selection.
func (p *Poller) Select(square string) (View, error) {
	if !rules.ValidSquare(square) {
		return p.View(), fmt.Errorf("%w: %q", rules.ErrInvalidSquare, square)
	}

	p.mu.Lock()
	if p.view.Selected == square {
		p.view.Selected, p.view.Targets = "", nil
		view := p.view.clone()
		p.mu.Unlock()
		p.notify(view)
		return view, nil
	}
	fen := p.view.FEN
	p.mu.Unlock()

	moves, err := p.engine.LegalMoves(fen, square)
	if err != nil {
		return p.View(), err
	}

	p.mu.Lock()
	if p.view.FEN != fen {
		// A poll replaced the position meanwhile
		view := p.view.clone()
		p.mu.Unlock()
		return view, nil
	}
	if len(moves) == 0 {
		p.view.Selected, p.view.Targets = "", nil
	} else {
		p.view.Selected, p.view.Targets = square, rules.Destinations(moves)
	}
	view := p.view.clone()
	p.mu.Unlock()

	p.notify(view)
	if len(moves) == 0 {
		return view, fmt.Errorf("%w %s", ErrNoLegalMoves, square)
	}
	return view, nil
}

// AttemptMove submits from-to and adopts the server's answer. The local view
// is untouched until the server responds and stays as it was on rejection.
func (p *Poller) AttemptMove(ctx context.Context, from, to, promotion string) (View, error) {
	p.mu.Lock()
	version := p.view.Version
	synced, admin := p.view.Synced, p.admin
	p.mu.Unlock()

	var guard *int64
	if synced {
		guard = &version
	}

	var (
		resp *core.MoveResponse
		err  error
	)
	if admin {
		resp, err = p.client.AdminMove(ctx, core.AdminMoveRequest{From: from, To: to, Promotion: promotion, Version: guard})
	} else {
		resp, err = p.client.SubmitMove(ctx, core.MoveRequest{From: from, To: to, Promotion: promotion, Version: guard})
	}
	return p.finish(resp, err)
}

// Reset starts a new game. Admin only.
func (p *Poller) Reset(ctx context.Context) (View, error) {
	if !p.Admin() {
		return p.View(), ErrNotAdmin
	}
	resp, err := p.client.AdminMove(ctx, core.AdminMoveRequest{Reset: true})
	return p.finish(resp, err)
}

func (p *Poller) finish(resp *core.MoveResponse, err error) (View, error) {
	p.mu.Lock()
	if err != nil {
		p.view.Err = err.Error()
		if errors.Is(err, api.ErrUnauthorized) && p.admin {
			p.admin = false
			p.client.SetToken("")
		}
	} else {
		if resp.Version >= p.view.Version {
			p.adopt(&resp.StateResponse)
			p.view.Synced = true
		}
		p.view.LastMove = resp.Move
		p.view.Selected, p.view.Targets = "", nil
		p.view.Err = ""
	}
	view := p.view.clone()
	p.mu.Unlock()

	p.notify(view)
	return view, err
}

func (p *Poller) notify(v View) {
	if p.onChange != nil {
		p.onChange(v)
	}
}
