// Package admin authenticates the privileged player. A login creates a
// server-held session and returns a signed token naming it; a token is only
// accepted while its signature, expiry and session all check out.
package admin

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lixenwraith/auth"
	"go.uber.org/zap"

	"chesssync/internal/server/storage"
)

const (
	DefaultTokenTTL        = 24 * time.Hour
	DefaultCleanupInterval = 10 * time.Minute

	scopeClaim = "scope"
	adminScope = "chess-admin"
)

var (
	ErrNotConfigured   = errors.New("admin password not configured")
	ErrInvalidPassword = errors.New("invalid password")
	ErrInvalidToken    = errors.New("invalid token")
)

// Grant is the result of a successful login
type Grant struct {
	Token     string
	SessionID string
	ExpiresAt time.Time
}

type Authenticator struct {
	passwordHash string
	secret       []byte
	ttl          time.Duration
	sessions     storage.SessionRepository
	logger       *zap.Logger
}

// New hashes password once at startup. Any non-empty password is accepted.
// An empty password leaves admin login disabled; Login then reports
// ErrNotConfigured.
func New(password string, secret []byte, ttl time.Duration, sessions storage.SessionRepository, logger *zap.Logger) (*Authenticator, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("token secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	a := &Authenticator{
		secret:   secret,
		ttl:      ttl,
		sessions: sessions,
		logger:   logger.With(zap.String("component", "admin")),
	}

	if password != "" {
		hash, err := auth.HashPassword(a.passwordKey(password))
		if err != nil {
			return nil, fmt.Errorf("failed to hash admin password: %w", err)
		}
		a.passwordHash = hash
	}

	return a, nil
}

// Configured reports whether an admin password is set
func (a *Authenticator) Configured() bool {
	return a.passwordHash != ""
}

// passwordKey maps a password of any length to the fixed length input the
// argon2 hasher requires
func (a *Authenticator) passwordKey(password string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(password))
	return hex.EncodeToString(mac.Sum(nil))
}

// Login checks password and opens a session
func (a *Authenticator) Login(ctx context.Context, password string) (Grant, error) {
	if !a.Configured() {
		return Grant{}, ErrNotConfigured
	}
	if err := auth.VerifyPassword(a.passwordKey(password), a.passwordHash); err != nil {
		a.logger.Info("admin login rejected")
		return Grant{}, ErrInvalidPassword
	}

	now := time.Now().UTC()
	session := storage.Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(a.ttl),
	}
	if err := a.sessions.CreateSession(ctx, session); err != nil {
		return Grant{}, fmt.Errorf("%w: %w", storage.ErrPersistence, err)
	}

	token, err := auth.GenerateHS256Token(a.secret, session.ID, map[string]any{scopeClaim: adminScope}, a.ttl)
	if err != nil {
		a.sessions.DeleteSession(ctx, session.ID)
		return Grant{}, fmt.Errorf("failed to sign token: %w", err)
	}

	a.logger.Info("admin session opened", zap.String("session_id", session.ID), zap.Time("expires_at", session.ExpiresAt))
	return Grant{Token: token, SessionID: session.ID, ExpiresAt: session.ExpiresAt}, nil
}

// Verify returns the live session token names
func (a *Authenticator) Verify(ctx context.Context, token string) (storage.Session, error) {
	if token == "" {
		return storage.Session{}, ErrInvalidToken
	}

	sessionID, claims, err := auth.ValidateHS256Token(a.secret, token)
	if err != nil {
		return storage.Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if scope, _ := claims[scopeClaim].(string); scope != adminScope {
		return storage.Session{}, fmt.Errorf("%w: wrong scope", ErrInvalidToken)
	}

	session, err := a.sessions.GetSession(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Session{}, fmt.Errorf("%w: session revoked or expired", ErrInvalidToken)
	}
	if err != nil {
		return storage.Session{}, fmt.Errorf("%w: %w", storage.ErrPersistence, err)
	}
	return session, nil
}

// Logout revokes the session behind token
func (a *Authenticator) Logout(ctx context.Context, token string) error {
	session, err := a.Verify(ctx, token)
	if err != nil {
		return err
	}
	if err := a.sessions.DeleteSession(ctx, session.ID); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrPersistence, err)
	}
	a.logger.Info("admin session closed", zap.String("session_id", session.ID))
	return nil
}

// RunCleanup purges expired sessions every interval until ctx is done
func (a *Authenticator) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.cleanupExpired(ctx)
		}
	}
}

func (a *Authenticator) cleanupExpired(ctx context.Context) {
	deleted, err := a.sessions.DeleteExpiredSessions(ctx)
	if err != nil {
		a.logger.Warn("cleanup: failed to delete expired sessions", zap.Error(err))
		return
	}
	if deleted > 0 {
		a.logger.Info("cleanup: deleted expired sessions", zap.Int64("count", deleted))
	}
}
