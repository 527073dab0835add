package recordstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/bc2as/internal/apperr"
)

const recordColumns = `id, repo_id, kind, ref_id, parent_id, position, lock_version, body, updated_at`

// CreateSession stores a new session token for username.
func (db *DB) CreateSession(username string) (string, error) {
	token := uuid.NewString()
	if _, err := db.conn.Exec(`INSERT INTO sessions (token, username) VALUES (?, ?)`, token, username); err != nil {
		return "", fmt.Errorf("recordstore: create session: %w", err)
	}
	return token, nil
}

// SessionUser returns the user owning token, or apperr.ErrUnauthorized.
func (db *DB) SessionUser(token string) (string, error) {
	var user string
	err := db.conn.QueryRow(`SELECT username FROM sessions WHERE token = ?`, token).Scan(&user)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.ErrUnauthorized
	}
	if err != nil {
		return "", fmt.Errorf("recordstore: session: %w", err)
	}
	return user, nil
}

// Repositories lists every repository ordered by id.
func (db *DB) Repositories() ([]Repository, error) {
	rows, err := db.conn.Query(`SELECT id, repo_code, name FROM repositories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("recordstore: repositories: %w", err)
	}
	defer rows.Close()

	var out []Repository
	for rows.Next() {
		var r Repository
		if err := rows.Scan(&r.ID, &r.RepoCode, &r.Name); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Repository returns the repository with id, or apperr.ErrNotFound.
func (db *DB) Repository(id int64) (*Repository, error) {
	r := Repository{ID: id}
	err := db.conn.QueryRow(`SELECT repo_code, name FROM repositories WHERE id = ?`, id).Scan(&r.RepoCode, &r.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("recordstore: repository: %w", err)
	}
	return &r, nil
}

// CreateRepository inserts a repository. A duplicate code is apperr.ErrConflict.
func (db *DB) CreateRepository(code, name string) (*Repository, error) {
	res, err := db.conn.Exec(`INSERT INTO repositories (repo_code, name) VALUES (?, ?)`, code, name)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("recordstore: repository %q: %w", code, apperr.ErrConflict)
		}
		return nil, fmt.Errorf("recordstore: create repository: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("recordstore: create repository: %w", err)
	}
	return &Repository{ID: id, RepoCode: code, Name: name}, nil
}

// InsertRecord stores a new top-level record and fills in its id. Archival
// objects without a ref_id get a generated one.
func (db *DB) InsertRecord(rec *Record) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("recordstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := insertRecord(tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

// InsertChildren stores children under parent, appended after any existing
// children, within one transaction.
func (db *DB) InsertChildren(parent *Record, children []*Record) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("recordstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var next int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(position) + 1, 0) FROM records WHERE parent_id = ?`, parent.ID).Scan(&next); err != nil {
		return fmt.Errorf("recordstore: next position: %w", err)
	}
	for _, c := range children {
		c.RepoID = parent.RepoID
		c.ParentID = parent.ID
		c.Position = next
		next++
		if err := insertRecord(tx, c); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertRecord(tx *sql.Tx, rec *Record) error {
	if rec.Kind == KindArchivalObject && rec.RefID == "" {
		rec.RefID = "aspace_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	rec.LockVersion = 0
	rec.UpdatedAt = time.Now().UTC()

	var parent any
	if rec.ParentID != 0 {
		parent = rec.ParentID
	}
	res, err := tx.Exec(`
		INSERT INTO records (repo_id, kind, ref_id, parent_id, position, lock_version, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.RepoID, string(rec.Kind), rec.RefID, parent, rec.Position, rec.LockVersion, string(rec.Body), rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("recordstore: insert record: %w", err)
	}
	rec.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("recordstore: insert record: %w", err)
	}
	return nil
}

// GetRecord returns the record, or apperr.ErrNotFound.
func (db *DB) GetRecord(repoID int64, kind Kind, id int64) (*Record, error) {
	row := db.conn.QueryRow(`SELECT `+recordColumns+` FROM records WHERE id = ? AND repo_id = ? AND kind = ?`,
		id, repoID, string(kind))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("recordstore: get record: %w", err)
	}
	return rec, nil
}

// UpdateRecord replaces the body and ref_id of an existing record when its
// lock version still matches rec.LockVersion, then bumps the version.
// A stale version is apperr.ErrConflict.
func (db *DB) UpdateRecord(rec *Record) error {
	now := time.Now().UTC()
	res, err := db.conn.Exec(`
		UPDATE records SET
			body         = ?,
			ref_id       = ?,
			lock_version = lock_version + 1,
			updated_at   = ?
		WHERE id = ? AND repo_id = ? AND kind = ? AND lock_version = ?
	`, string(rec.Body), rec.RefID, now, rec.ID, rec.RepoID, string(rec.Kind), rec.LockVersion)
	if err != nil {
		return fmt.Errorf("recordstore: update record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("recordstore: update record: %w", err)
	}
	if n == 0 {
		if _, err := db.GetRecord(rec.RepoID, rec.Kind, rec.ID); err != nil {
			return err
		}
		return fmt.Errorf("recordstore: record %s: %w", rec.URI(), apperr.ErrConflict)
	}
	rec.LockVersion++
	rec.UpdatedAt = now
	return nil
}

// FindByRefID returns the records of kind in repoID carrying refID.
func (db *DB) FindByRefID(repoID int64, kind Kind, refID string) ([]Record, error) {
	rows, err := db.conn.Query(`SELECT `+recordColumns+` FROM records WHERE repo_id = ? AND kind = ? AND ref_id = ? ORDER BY id`,
		repoID, string(kind), refID)
	if err != nil {
		return nil, fmt.Errorf("recordstore: find by ref_id: %w", err)
	}
	return collectRecords(rows)
}

// Children returns the direct children of parentID in position order.
func (db *DB) Children(parentID int64) ([]Record, error) {
	rows, err := db.conn.Query(`SELECT `+recordColumns+` FROM records WHERE parent_id = ? ORDER BY position`, parentID)
	if err != nil {
		return nil, fmt.Errorf("recordstore: children: %w", err)
	}
	return collectRecords(rows)
}

// Count returns the number of stored records of kind.
func (db *DB) Count(kind Kind) (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM records WHERE kind = ?`, string(kind)).Scan(&n); err != nil {
		return 0, fmt.Errorf("recordstore: count: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var (
		rec    Record
		kind   string
		parent sql.NullInt64
		body   string
	)
	if err := s.Scan(&rec.ID, &rec.RepoID, &kind, &rec.RefID, &parent, &rec.Position, &rec.LockVersion, &body, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Kind = Kind(kind)
	rec.ParentID = parent.Int64
	rec.Body = []byte(body)
	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
