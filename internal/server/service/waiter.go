package service

import (
	"sync"
	"time"
)

const (
	// WaitTimeout is the maximum time a client can wait for notifications
	WaitTimeout = 25 * time.Second
)

// WaitRegistry tracks long-polling clients waiting for the game record to
// move past the version they last saw.
type WaitRegistry struct {
	mu      sync.Mutex
	waiters map[*waitRequest]struct{}
	closed  bool
}

type waitRequest struct {
	version int64 // Last version the client saw
	notify  chan struct{}
	once    sync.Once
}

func (r *waitRequest) wake() {
	r.once.Do(func() { close(r.notify) })
}

func NewWaitRegistry() *WaitRegistry {
	return &WaitRegistry{
		waiters: make(map[*waitRequest]struct{}),
	}
}

// Register returns a channel closed once a version other than version is
// published, or the registry shuts down. cancel must be called when the
// caller stops waiting.
func (w *WaitRegistry) Register(version int64) (<-chan struct{}, func()) {
	req := &waitRequest{
		version: version,
		notify:  make(chan struct{}),
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		req.wake()
		return req.notify, func() {}
	}
	w.waiters[req] = struct{}{}
	w.mu.Unlock()

	cancel := func() {
		w.mu.Lock()
		delete(w.waiters, req)
		w.mu.Unlock()
	}
	return req.notify, cancel
}

// Notify wakes every waiter whose version differs from version
func (w *WaitRegistry) Notify(version int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for req := range w.waiters {
		if req.version != version {
			req.wake()
			delete(w.waiters, req)
		}
	}
}

// Len returns the number of registered waiters
func (w *WaitRegistry) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.waiters)
}

// Shutdown wakes all waiters; later registrations return immediately
func (w *WaitRegistry) Shutdown() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	for req := range w.waiters {
		req.wake()
	}
	w.waiters = make(map[*waitRequest]struct{})
}
