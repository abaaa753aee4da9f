package storage

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps the game record and sessions in process memory. It is
// used when no backing store is configured; nothing survives a restart.
type MemoryStore struct {
	mu       sync.Mutex
	record   *Record
	sessions map[string]Session
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		now:      time.Now,
	}
}

func (m *MemoryStore) Load(ctx context.Context) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.record == nil {
		return Record{}, ErrNotFound
	}
	return cloneRecord(*m.record), nil
}

func (m *MemoryStore) Save(ctx context.Context, rec Record, expectedVersion int64) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var current int64
	if m.record != nil {
		current = m.record.Version
	}
	if current != expectedVersion {
		return Record{}, ErrVersionConflict
	}

	saved := cloneRecord(rec)
	saved.Version = expectedVersion + 1
	saved.UpdatedAt = m.now().UTC()
	m.record = &saved

	return cloneRecord(saved), nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) CreateSession(ctx context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || !m.now().Before(s.ExpiresAt) {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var n int64
	for id, s := range m.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func cloneRecord(r Record) Record {
	r.History = slices.Clone(r.History)
	if r.History == nil {
		r.History = []string{}
	}
	return r
}
