package commands

import (
	"context"
	"io"
	"sync"

	"chesssync/internal/client/api"
	"chesssync/internal/client/poller"
)

// Session is the REPL's state shared by all commands
type Session struct {
	Client  *api.Client
	Poller  *poller.Poller
	Out     io.Writer
	Verbose bool

	// ReadPassword reads a secret without echo
	ReadPassword func(prompt string) (string, error)

	mu          sync.Mutex
	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

// Watching reports whether background polling is running
func (s *Session) Watching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watchCancel != nil
}

// StartWatch runs the poller in the background until StopWatch
func (s *Session) StartWatch(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchCancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.watchCancel, s.watchDone = cancel, done
	go func() {
		defer close(done)
		_ = s.Poller.Run(ctx)
	}()
	return true
}

// StopWatch stops background polling and waits for it to exit
func (s *Session) StopWatch() bool {
	s.mu.Lock()
	cancel, done := s.watchCancel, s.watchDone
	s.watchCancel, s.watchDone = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	<-done
	return true
}
