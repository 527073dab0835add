// Package recordstore persists the sandbox backend's repositories, records
// and sessions in SQLite.
package recordstore

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	token      TEXT PRIMARY KEY,
	username   TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS repositories (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	repo_code  TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS records (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	repo_id      INTEGER NOT NULL REFERENCES repositories(id),
	kind         TEXT NOT NULL,
	ref_id       TEXT NOT NULL DEFAULT '',
	parent_id    INTEGER REFERENCES records(id),
	position     INTEGER NOT NULL DEFAULT 0,
	lock_version INTEGER NOT NULL DEFAULT 0,
	body         TEXT NOT NULL DEFAULT '{}',
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_records_ref_id ON records(repo_id, kind, ref_id);
CREATE INDEX IF NOT EXISTS idx_records_parent ON records(parent_id);
`

// DB wraps a sql.DB with record operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("recordstore: open db: %w", err)
	}
	// One writer keeps AUTOINCREMENT ids and lock versions consistent.
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("recordstore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("recordstore: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
