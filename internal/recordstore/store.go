package recordstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the URI segment naming a record type.
type Kind string

const (
	KindResource       Kind = "resources"
	KindArchivalObject Kind = "archival_objects"
)

// JSONModelType returns the jsonmodel_type records of this kind carry.
func (k Kind) JSONModelType() string {
	switch k {
	case KindResource:
		return "resource"
	case KindArchivalObject:
		return "archival_object"
	default:
		return ""
	}
}

// Repository represents a row in the repositories table.
type Repository struct {
	ID       int64
	RepoCode string
	Name     string
}

// URI returns the repository's API path.
func (r Repository) URI() string {
	return fmt.Sprintf("/repositories/%d", r.ID)
}

// Record represents a row in the records table. Body holds the record JSON
// as posted by the client.
type Record struct {
	ID          int64
	RepoID      int64
	Kind        Kind
	RefID       string
	ParentID    int64 // 0 for top-level records
	Position    int
	LockVersion int
	Body        json.RawMessage
	UpdatedAt   time.Time
}

// URI returns the record's API path.
func (r Record) URI() string {
	return fmt.Sprintf("/repositories/%d/%s/%d", r.RepoID, r.Kind, r.ID)
}

// Store defines the persistence operations of the sandbox backend.
// Consumers depend on this interface rather than *DB.
type Store interface {
	CreateSession(username string) (string, error)
	SessionUser(token string) (string, error)
	Repositories() ([]Repository, error)
	Repository(id int64) (*Repository, error)
	CreateRepository(code, name string) (*Repository, error)
	InsertRecord(rec *Record) error
	GetRecord(repoID int64, kind Kind, id int64) (*Record, error)
	UpdateRecord(rec *Record) error
	FindByRefID(repoID int64, kind Kind, refID string) ([]Record, error)
	InsertChildren(parent *Record, children []*Record) error
	Children(parentID int64) ([]Record, error)
	Count(kind Kind) (int, error)
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
