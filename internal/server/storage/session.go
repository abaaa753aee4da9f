package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateSession inserts an admin session
func (s *Store) CreateSession(ctx context.Context, record Session) error {
	query := `INSERT INTO admin_sessions (session_id, created_at, expires_at) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, record.ID, record.CreatedAt.UTC(), record.ExpiresAt.UTC()); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession retrieves a live session by ID
func (s *Store) GetSession(ctx context.Context, sessionID string) (Session, error) {
	var session Session
	query := `SELECT session_id, created_at, expires_at FROM admin_sessions WHERE session_id = ? AND expires_at > ?`

	err := s.db.QueryRowContext(ctx, query, sessionID, time.Now().UTC()).Scan(
		&session.ID, &session.CreatedAt, &session.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// DeleteSession removes a session
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	query := `DELETE FROM admin_sessions WHERE session_id = ?`
	_, err := s.db.ExecContext(ctx, query, sessionID)
	return err
}

// DeleteExpiredSessions removes expired sessions
func (s *Store) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	query := `DELETE FROM admin_sessions WHERE expires_at <= ?`
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
