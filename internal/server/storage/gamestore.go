package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrPersistence means a write could not be made durable after retries, or
// a strict read could not reach the backing store.
var ErrPersistence = errors.New("persistence failed")

// Health values reported by GameStore.Health
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
	HealthMemory   = "memory"
)

// RetryPolicy controls how failed writes are retried. Each retry waits
// twice as long as the previous one, capped at MaxBackoff. ReadTimeout
// bounds best-effort reads; zero means no bound.
type RetryPolicy struct {
	Attempts    int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	ReadTimeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:    3,
		Backoff:     100 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
		ReadTimeout: 2 * time.Second,
	}
}

// GameStore is the authoritative game record on top of a Repository.
type GameStore struct {
	repo   Repository
	policy RetryPolicy
	logger *zap.Logger
}

func NewGameStore(repo Repository, policy RetryPolicy, logger *zap.Logger) *GameStore {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	return &GameStore{
		repo:   repo,
		policy: policy,
		logger: logger.With(zap.String("component", "gamestore")),
	}
}

// Read returns the stored record, or the initial record when nothing is
// stored or the store cannot be reached. It never fails.
func (g *GameStore) Read(ctx context.Context) Record {
	if g.policy.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.policy.ReadTimeout)
		defer cancel()
	}
	rec, err := g.Load(ctx)
	if err != nil {
		g.logger.Warn("game record read failed, serving initial position", zap.Error(err))
		return InitialRecord()
	}
	return rec
}

// Load returns the stored record, or the initial record at version 0 when
// nothing is stored. Store failures are returned wrapped in ErrPersistence.
func (g *GameStore) Load(ctx context.Context) (Record, error) {
	rec, err := g.repo.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return InitialRecord(), nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return rec, nil
}

// Write stores rec over expectedVersion, retrying transient failures.
// ErrVersionConflict is returned as is and never retried.
func (g *GameStore) Write(ctx context.Context, rec Record, expectedVersion int64) (Record, error) {
	backoff := g.policy.Backoff

	for attempt := 1; ; attempt++ {
		saved, err := g.repo.Save(ctx, rec, expectedVersion)
		if err == nil {
			return saved, nil
		}

		if errors.Is(err, ErrVersionConflict) {
			// An earlier attempt may have landed before its error was reported
			if attempt > 1 {
				if cur, lerr := g.repo.Load(ctx); lerr == nil && cur.Version == expectedVersion+1 && cur.SameGame(rec) {
					return cur, nil
				}
			}
			return Record{}, err
		}

		if attempt >= g.policy.Attempts {
			g.logger.Error("game record write failed",
				zap.Int("attempts", attempt),
				zap.Int64("expected_version", expectedVersion),
				zap.Error(err))
			return Record{}, fmt.Errorf("%w after %d attempts: %w", ErrPersistence, attempt, err)
		}

		g.logger.Warn("game record write failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Record{}, fmt.Errorf("%w: %w", ErrPersistence, ctx.Err())
		case <-timer.C:
		}

		backoff *= 2
		if g.policy.MaxBackoff > 0 && backoff > g.policy.MaxBackoff {
			backoff = g.policy.MaxBackoff
		}
	}
}

// Reset stores the initial position over expectedVersion
func (g *GameStore) Reset(ctx context.Context, expectedVersion int64) (Record, error) {
	return g.Write(ctx, InitialRecord(), expectedVersion)
}

// Health reports HealthMemory for the in-process store, otherwise whether
// the backing store answers and has not degraded.
func (g *GameStore) Health(ctx context.Context) string {
	if _, ok := g.repo.(*MemoryStore); ok {
		return HealthMemory
	}
	if err := g.repo.Ping(ctx); err != nil {
		return HealthDegraded
	}
	if h, ok := g.repo.(interface{ IsHealthy() bool }); ok && !h.IsHealthy() {
		return HealthDegraded
	}
	return HealthOK
}

func (g *GameStore) Close() error {
	return g.repo.Close()
}
