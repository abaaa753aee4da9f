package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
)

// Load reads the game record row
func (s *Store) Load(ctx context.Context) (Record, error) {
	var (
		rec     Record
		history string
	)
	query := `SELECT fen, history, version, updated_at FROM game_record WHERE id = 1`

	err := s.db.QueryRowContext(ctx, query).Scan(&rec.FEN, &history, &rec.Version, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to load game record: %w", err)
	}

	if err := json.Unmarshal([]byte(history), &rec.History); err != nil {
		return Record{}, fmt.Errorf("corrupt history column: %w", err)
	}
	if rec.History == nil {
		rec.History = []string{}
	}
	return rec, nil
}

// Save writes rec as one row update guarded by the stored version
func (s *Store) Save(ctx context.Context, rec Record, expectedVersion int64) (Record, error) {
	saved := cloneRecord(rec)
	saved.Version = expectedVersion + 1
	saved.UpdatedAt = time.Now().UTC()

	history, err := json.Marshal(saved.History)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode history: %w", err)
	}

	var result sql.Result
	if expectedVersion == 0 {
		query := `INSERT INTO game_record (id, fen, history, version, updated_at)
			VALUES (1, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`
		result, err = s.db.ExecContext(ctx, query, saved.FEN, string(history), saved.Version, saved.UpdatedAt)
	} else {
		query := `UPDATE game_record SET fen = ?, history = ?, version = ?, updated_at = ?
			WHERE id = 1 AND version = ?`
		result, err = s.db.ExecContext(ctx, query, saved.FEN, string(history), saved.Version, saved.UpdatedAt, expectedVersion)
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to save game record: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return Record{}, fmt.Errorf("failed to save game record: %w", err)
	}
	if n == 0 {
		return Record{}, ErrVersionConflict
	}
	return saved, nil
}

// RecordMove asynchronously appends to the move log
func (s *Store) RecordMove(record MoveRecord) error {
	if !s.healthStatus.Load() {
		return nil // Dropped while degraded
	}

	select {
	case s.writeChan <- func(tx *sql.Tx) error {
		query := `INSERT INTO moves (
			move_id, version, ply, san, fen_after_move, actor, move_time_utc
		) VALUES (?, ?, ?, ?, ?, ?, ?)`

		_, err := tx.Exec(query,
			record.MoveID, record.Version, record.Ply, record.SAN,
			record.FENAfterMove, record.Actor, record.MoveTimeUTC,
		)
		return err
	}:
		return nil
	default:
		s.logger.Warn("storage write queue full, dropping move record", zap.Int64("version", record.Version))
		return nil
	}
}

// QueryMoves returns the newest limit entries of the move log, oldest first.
// limit <= 0 returns everything.
func (s *Store) QueryMoves(ctx context.Context, limit int) ([]MoveRecord, error) {
	query := `SELECT move_id, version, ply, san, fen_after_move, actor, move_time_utc
		FROM moves ORDER BY version DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var moves []MoveRecord
	for rows.Next() {
		var m MoveRecord
		if err := rows.Scan(
			&m.MoveID, &m.Version, &m.Ply, &m.SAN,
			&m.FENAfterMove, &m.Actor, &m.MoveTimeUTC,
		); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		moves = append(moves, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	slices.Reverse(moves)
	return moves, nil
}
