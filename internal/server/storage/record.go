package storage

import (
	"context"
	"errors"
	"slices"
	"time"

	"chesssync/internal/rules"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
)

// Record is the single shared game: the current position and the SAN moves
// that produced it. Both fields are always written together.
type Record struct {
	FEN       string    `json:"fen"`
	History   []string  `json:"history"`
	Version   int64     `json:"version"` // 0 means never written
	UpdatedAt time.Time `json:"updatedAt"`
}

// InitialRecord returns the standard starting position with no moves
func InitialRecord() Record {
	return Record{
		FEN:     rules.StartingFEN,
		History: []string{},
	}
}

// SameGame reports whether r and o hold the same position and history
func (r Record) SameGame(o Record) bool {
	return r.FEN == o.FEN && slices.Equal(r.History, o.History)
}

// Repository persists the game record with compare-and-swap writes.
type Repository interface {
	// Load returns the stored record or ErrNotFound
	Load(ctx context.Context) (Record, error)
	// Save stores rec only if the stored version equals expectedVersion (0
	// when nothing is stored) and returns it with the next version.
	// Otherwise it returns ErrVersionConflict.
	Save(ctx context.Context, rec Record, expectedVersion int64) (Record, error)
	Ping(ctx context.Context) error
	Close() error
}

// Session is a server-held admin login. Tokens are only honored while their
// session exists and has not expired.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type SessionRepository interface {
	CreateSession(ctx context.Context, s Session) error
	// GetSession returns ErrNotFound for unknown or expired sessions
	GetSession(ctx context.Context, id string) (Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// Actors recorded in the move log
const (
	ActorVisitor = "visitor"
	ActorAdmin   = "admin"
)

// MoveRecord is one accepted ply in the move log
type MoveRecord struct {
	MoveID       string    `db:"move_id"`
	Version      int64     `db:"version"` // Record version after the move
	Ply          int       `db:"ply"`
	SAN          string    `db:"san"`
	FENAfterMove string    `db:"fen_after_move"`
	Actor        string    `db:"actor"`
	MoveTimeUTC  time.Time `db:"move_time_utc"`
}

// MoveLog receives accepted moves. RecordMove must not block on I/O.
type MoveLog interface {
	RecordMove(record MoveRecord) error
}
