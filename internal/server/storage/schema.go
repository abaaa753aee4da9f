package storage

// Schema defines the SQLite database structure. game_record holds at most
// one row; history is a JSON array of SAN moves.
const Schema = `
CREATE TABLE IF NOT EXISTS game_record (
	id INTEGER PRIMARY KEY CHECK(id = 1),
	fen TEXT NOT NULL,
	history TEXT NOT NULL DEFAULT '[]',
	version INTEGER NOT NULL CHECK(version > 0),
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS admin_sessions (
	session_id TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_admin_sessions_expires_at ON admin_sessions(expires_at);

CREATE TABLE IF NOT EXISTS moves (
	move_id TEXT PRIMARY KEY,
	version INTEGER NOT NULL,
	ply INTEGER NOT NULL,
	san TEXT NOT NULL,
	fen_after_move TEXT NOT NULL,
	actor TEXT NOT NULL CHECK(actor IN ('visitor', 'admin')),
	move_time_utc DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_moves_version ON moves(version);
`
