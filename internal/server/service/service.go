// Package service owns every read and write of the shared game record. Moves
// are validated by the rules engine against the stored position, never a
// client-supplied one.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chesssync/internal/rules"
	"chesssync/internal/server/core"
	"chesssync/internal/server/storage"
)

var (
	ErrInvalidMove    = errors.New("invalid move")
	ErrMissingSquares = errors.New("from and to are required")
	ErrGameOver       = errors.New("game is over")
	ErrStaleState     = errors.New("stale state")
	ErrEngine         = errors.New("rules engine failure")
)

// State is the game as reported to clients. Status and the flags are derived
// from the position on every call and never stored.
type State struct {
	FEN         string
	Turn        string
	Status      core.Status
	IsCheck     bool
	IsCheckmate bool
	IsStalemate bool
	IsDraw      bool
	History     []string
	Version     int64
}

type MoveInfo struct {
	From string
	To   string
	SAN  string
}

type MoveResult struct {
	State
	Move *MoveInfo // nil after a reset
}

// MoveInput is a proposed move. When Version is set the move is only
// considered against that record version.
type MoveInput struct {
	From      string
	To        string
	Promotion string
	Version   *int64
}

// AdminMoveInput is a MoveInput that may instead reset the game
type AdminMoveInput struct {
	MoveInput
	Reset bool
}

type Config struct {
	MoveLog     storage.MoveLog // Optional
	WaitTimeout time.Duration
}

type Service struct {
	store       *storage.GameStore
	engine      rules.Engine
	moveLog     storage.MoveLog
	waiter      *WaitRegistry
	waitTimeout time.Duration
	logger      *zap.Logger

	// Serializes read-apply-write within this process; the store's version
	// check covers other processes.
	mu sync.Mutex
}

func New(store *storage.GameStore, engine rules.Engine, cfg Config, logger *zap.Logger) *Service {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = WaitTimeout
	}
	return &Service{
		store:       store,
		engine:      engine,
		moveLog:     cfg.MoveLog,
		waiter:      NewWaitRegistry(),
		waitTimeout: cfg.WaitTimeout,
		logger:      logger.With(zap.String("component", "service")),
	}
}

// GetState reports the current game. Store failures fall back to the
// initial position; only an engine failure is returned.
func (s *Service) GetState(ctx context.Context) (State, error) {
	return s.describe(s.store.Read(ctx))
}

// WaitForChange blocks until the record version differs from version, the
// wait timeout passes, or ctx ends, then reports the current game.
func (s *Service) WaitForChange(ctx context.Context, version int64) (State, error) {
	changed, cancel := s.waiter.Register(version)
	defer cancel()

	rec := s.store.Read(ctx)
	if rec.Version != version {
		return s.describe(rec)
	}

	timer := time.NewTimer(s.waitTimeout)
	defer timer.Stop()

	select {
	case <-changed:
	case <-timer.C:
	case <-ctx.Done():
		return State{}, ctx.Err()
	}

	return s.describe(s.store.Read(ctx))
}

// SubmitMove applies a visitor move
func (s *Service) SubmitMove(ctx context.Context, in MoveInput) (MoveResult, error) {
	return s.submit(ctx, in, storage.ActorVisitor)
}

// SubmitAdminMove applies an admin move, or resets the game when Reset is
// set. The caller has already authenticated the admin.
func (s *Service) SubmitAdminMove(ctx context.Context, in AdminMoveInput) (MoveResult, error) {
	if in.Reset {
		state, err := s.Reset(ctx, in.Version)
		if err != nil {
			return MoveResult{}, err
		}
		return MoveResult{State: state}, nil
	}
	if in.From == "" || in.To == "" {
		return MoveResult{}, ErrMissingSquares
	}
	return s.submit(ctx, in.MoveInput, storage.ActorAdmin)
}

// Reset returns the game to the starting position with no history
func (s *Service) Reset(ctx context.Context, version *int64) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(ctx, version)
	if err != nil {
		return State{}, err
	}

	saved, err := s.store.Reset(ctx, rec.Version)
	if err != nil {
		return State{}, s.writeError(err)
	}
	s.waiter.Notify(saved.Version)

	s.logger.Info("game reset", zap.Int64("version", saved.Version), zap.Int("previous_plies", len(rec.History)))
	return s.describe(saved)
}

func (s *Service) submit(ctx context.Context, in MoveInput, actor string) (MoveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(ctx, in.Version)
	if err != nil {
		return MoveResult{}, err
	}

	current, err := s.describe(rec)
	if err != nil {
		return MoveResult{}, err
	}
	if current.Status.Terminal() {
		return MoveResult{}, fmt.Errorf("%w: %s", ErrGameOver, current.Status)
	}

	applied, err := s.engine.Apply(rec.FEN, rec.History, rules.MoveInput{
		From:      in.From,
		To:        in.To,
		Promotion: in.Promotion,
	})
	switch {
	case errors.Is(err, rules.ErrIllegalMove), errors.Is(err, rules.ErrInvalidSquare):
		return MoveResult{}, fmt.Errorf("%w: %w", ErrInvalidMove, err)
	case err != nil:
		return MoveResult{}, fmt.Errorf("%w: %w", ErrEngine, err)
	}

	next := storage.Record{
		FEN:     applied.FEN,
		History: append(slices.Clone(rec.History), applied.SAN),
	}
	saved, err := s.store.Write(ctx, next, rec.Version)
	if err != nil {
		return MoveResult{}, s.writeError(err)
	}
	s.waiter.Notify(saved.Version)
	s.recordMove(saved, applied, actor)

	s.logger.Debug("move accepted",
		zap.String("actor", actor),
		zap.String("san", applied.SAN),
		zap.Int64("version", saved.Version))

	return MoveResult{
		State: newState(saved, applied.Analysis),
		Move:  &MoveInfo{From: applied.From, To: applied.To, SAN: applied.SAN},
	}, nil
}

// load reads the record strictly and checks the client's version
func (s *Service) load(ctx context.Context, version *int64) (storage.Record, error) {
	rec, err := s.store.Load(ctx)
	if err != nil {
		return storage.Record{}, err
	}
	if version != nil && *version != rec.Version {
		return storage.Record{}, fmt.Errorf("%w: client has version %d, current is %d", ErrStaleState, *version, rec.Version)
	}
	return rec, nil
}

func (s *Service) writeError(err error) error {
	if errors.Is(err, storage.ErrVersionConflict) {
		return fmt.Errorf("%w: record changed by another writer", ErrStaleState)
	}
	return err
}

func (s *Service) recordMove(rec storage.Record, applied rules.Applied, actor string) {
	if s.moveLog == nil {
		return
	}
	err := s.moveLog.RecordMove(storage.MoveRecord{
		MoveID:       uuid.NewString(),
		Version:      rec.Version,
		Ply:          len(rec.History),
		SAN:          applied.SAN,
		FENAfterMove: applied.FEN,
		Actor:        actor,
		MoveTimeUTC:  rec.UpdatedAt,
	})
	if err != nil {
		s.logger.Warn("move log write dropped", zap.Error(err))
	}
}

func (s *Service) describe(rec storage.Record) (State, error) {
	a, err := s.engine.Analyze(rec.FEN, rec.History)
	if err != nil {
		return State{}, fmt.Errorf("%w: %w", ErrEngine, err)
	}
	return newState(rec, a), nil
}

func newState(rec storage.Record, a rules.Analysis) State {
	history := rec.History
	if history == nil {
		history = []string{}
	}
	return State{
		FEN:         rec.FEN,
		Turn:        a.Turn,
		Status:      core.StatusFromFlags(a.IsCheck, a.IsCheckmate, a.IsStalemate, a.IsDraw),
		IsCheck:     a.IsCheck,
		IsCheckmate: a.IsCheckmate,
		IsStalemate: a.IsStalemate,
		IsDraw:      a.IsDraw,
		History:     history,
		Version:     rec.Version,
	}
}

// Board renders the current position as text
func (s *Service) Board(ctx context.Context) (string, string, error) {
	rec := s.store.Read(ctx)
	board, err := rules.ASCII(rec.FEN)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrEngine, err)
	}
	return rec.FEN, board, nil
}

// StorageHealth reports the backing store status
func (s *Service) StorageHealth(ctx context.Context) string {
	return s.store.Health(ctx)
}

// Shutdown releases long-polling clients
func (s *Service) Shutdown() {
	s.waiter.Shutdown()
}
