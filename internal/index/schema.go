// Package index provides SQLite-backed storage of enriched comments with
// frame and thread grouping and optional FTS5 full-text search.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// schemaVersion is stored in PRAGMA user_version. The index only holds
// derived data, so an older file is dropped and rebuilt by the next sync.
const schemaVersion = 2

const dropSchemaSQL = `
DROP TABLE IF EXISTS comments_fts;
DROP TABLE IF EXISTS comments;
DROP TABLE IF EXISTS batches;
`

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS batches (
	name        TEXT PRIMARY KEY,
	checksum    TEXT NOT NULL DEFAULT '',
	run_id      TEXT NOT NULL DEFAULT '',
	comments    INTEGER NOT NULL DEFAULT 0,
	enriched_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS comments (
	batch            TEXT NOT NULL,
	id               TEXT NOT NULL,
	position         INTEGER NOT NULL,
	message          TEXT NOT NULL DEFAULT '',
	user_handle      TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL DEFAULT '',
	thread_id        TEXT NOT NULL,
	is_reply         INTEGER NOT NULL DEFAULT 0,
	frame_name       TEXT NOT NULL DEFAULT '',
	frame_id         TEXT,
	resolved_node_id TEXT,
	payload          TEXT NOT NULL,
	PRIMARY KEY (batch, position)
);

CREATE INDEX IF NOT EXISTS idx_comments_id ON comments(batch, id);
CREATE INDEX IF NOT EXISTS idx_comments_thread ON comments(thread_id);
CREATE INDEX IF NOT EXISTS idx_comments_frame ON comments(frame_id);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	if _, err := conn.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: set schema version: %w", err)
	}
	return &DB{conn: conn}, nil
}

// migrate drops the tables of an index written by an older schema.
func migrate(conn *sql.DB) error {
	var version int
	if err := conn.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("index: read schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}
	if _, err := conn.Exec(dropSchemaSQL); err != nil {
		return fmt.Errorf("index: drop schema v%d: %w", version, err)
	}
	return nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
