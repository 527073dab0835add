// Package sandbox implements a local stand-in for the ArchivesSpace backend
// API, covering the endpoints bc2as uses. Records persist in SQLite so runs
// can be repeated against the same state.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/bc2as/internal/apperr"
	"github.com/starford/bc2as/internal/recordstore"
)

// Credentials is the single account the sandbox accepts.
type Credentials struct {
	Username string
	Password string
}

// CreateResult mirrors the backend's create/update response.
type CreateResult struct {
	Status      string   `json:"status"`
	ID          int64    `json:"id"`
	URI         string   `json:"uri"`
	LockVersion int      `json:"lock_version"`
	Warnings    []string `json:"warnings"`
}

// ChildrenResult answers a children post.
type ChildrenResult struct {
	Status   string   `json:"status"`
	ID       int64    `json:"id"`
	URI      string   `json:"uri"`
	Children []string `json:"children"`
}

// RepositoryItem is one entry of the repository list.
type RepositoryItem struct {
	JSONModelType string `json:"jsonmodel_type"`
	URI           string `json:"uri"`
	RepoCode      string `json:"repo_code"`
	Name          string `json:"name"`
}

type refJSON struct {
	Ref string `json:"ref"`
}

func (r refJSON) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.Ref, validation.Required))
}

type repositoryInput struct {
	JSONModelType string `json:"jsonmodel_type"`
	RepoCode      string `json:"repo_code"`
	Name          string `json:"name"`
}

func (in repositoryInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.JSONModelType, validation.In("repository")),
		validation.Field(&in.RepoCode, validation.Required),
	)
}

type recordInput struct {
	JSONModelType string          `json:"jsonmodel_type"`
	Title         string          `json:"title"`
	Level         string          `json:"level"`
	RefID         string          `json:"ref_id"`
	ID0           string          `json:"id_0"`
	LockVersion   *int            `json:"lock_version"`
	Resource      *refJSON        `json:"resource"`
	Dates         []dateInput     `json:"dates"`
	Extents       json.RawMessage `json:"extents"`
}

type dateInput struct {
	Begin string `json:"begin"`
	End   string `json:"end"`
}

func (d dateInput) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Begin, validation.Required, validation.Date("2006-01-02")),
		validation.Field(&d.End, validation.Date("2006-01-02")),
	)
}

func (in recordInput) validateFor(kind recordstore.Kind) error {
	rules := []*validation.FieldRules{
		validation.Field(&in.JSONModelType, validation.In(kind.JSONModelType())),
		validation.Field(&in.Title, validation.Required),
		validation.Field(&in.Level, validation.Required),
		validation.Field(&in.Dates),
	}
	switch kind {
	case recordstore.KindResource:
		rules = append(rules, validation.Field(&in.ID0, validation.Required))
	case recordstore.KindArchivalObject:
		rules = append(rules, validation.Field(&in.Resource, validation.Required))
	}
	return validation.ValidateStruct(&in, rules...)
}

// Service implements the sandbox backend operations on a record store.
type Service struct {
	db    recordstore.Store
	creds Credentials
}

// NewService creates a sandbox service.
func NewService(db recordstore.Store, creds Credentials) *Service {
	return &Service{db: db, creds: creds}
}

// Login checks the credentials and returns a new session token.
func (s *Service) Login(_ context.Context, username, password string) (string, error) {
	if username != s.creds.Username || password != s.creds.Password {
		return "", apperr.ErrUnauthorized
	}
	return s.db.CreateSession(username)
}

// Authorize resolves a session token to its user.
func (s *Service) Authorize(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", apperr.ErrUnauthorized
	}
	return s.db.SessionUser(token)
}

// Repositories lists every repository.
func (s *Service) Repositories(_ context.Context) ([]RepositoryItem, error) {
	repos, err := s.db.Repositories()
	if err != nil {
		return nil, err
	}
	items := make([]RepositoryItem, len(repos))
	for i, r := range repos {
		items[i] = RepositoryItem{JSONModelType: "repository", URI: r.URI(), RepoCode: r.RepoCode, Name: r.Name}
	}
	return items, nil
}

// Repository returns one repository.
func (s *Service) Repository(_ context.Context, id int64) (*RepositoryItem, error) {
	r, err := s.db.Repository(id)
	if err != nil {
		return nil, err
	}
	return &RepositoryItem{JSONModelType: "repository", URI: r.URI(), RepoCode: r.RepoCode, Name: r.Name}, nil
}

// CreateRepository creates a repository from its JSON body.
func (s *Service) CreateRepository(_ context.Context, body []byte) (*CreateResult, error) {
	var in repositoryInput
	if err := decodeInput(body, &in); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, invalid(err)
	}
	name := in.Name
	if name == "" {
		name = in.RepoCode
	}
	r, err := s.db.CreateRepository(in.RepoCode, name)
	if err != nil {
		return nil, err
	}
	return &CreateResult{Status: "Created", ID: r.ID, URI: r.URI(), Warnings: []string{}}, nil
}

// CreateRecord creates a top-level resource or archival object in repoID.
func (s *Service) CreateRecord(ctx context.Context, repoID int64, kind recordstore.Kind, body []byte) (*CreateResult, error) {
	if _, err := s.db.Repository(repoID); err != nil {
		return nil, err
	}
	in, err := s.checkRecord(ctx, repoID, kind, body)
	if err != nil {
		return nil, err
	}
	rec := &recordstore.Record{RepoID: repoID, Kind: kind, RefID: in.RefID, Body: body}
	if err := s.db.InsertRecord(rec); err != nil {
		return nil, err
	}
	return &CreateResult{Status: "Created", ID: rec.ID, URI: rec.URI(), LockVersion: rec.LockVersion, Warnings: []string{}}, nil
}

// GetRecord returns the stored record JSON with its server-managed fields.
func (s *Service) GetRecord(_ context.Context, repoID int64, kind recordstore.Kind, id int64) (map[string]any, error) {
	rec, err := s.db.GetRecord(repoID, kind, id)
	if err != nil {
		return nil, err
	}
	return present(rec)
}

// UpdateRecord replaces a record. The body must carry the current lock_version.
func (s *Service) UpdateRecord(ctx context.Context, repoID int64, kind recordstore.Kind, id int64, body []byte) (*CreateResult, error) {
	rec, err := s.db.GetRecord(repoID, kind, id)
	if err != nil {
		return nil, err
	}
	in, err := s.checkRecord(ctx, repoID, kind, body)
	if err != nil {
		return nil, err
	}
	if in.LockVersion == nil {
		return nil, invalid(errors.New("lock_version: cannot be blank"))
	}
	rec.LockVersion = *in.LockVersion
	rec.Body = body
	if kind == recordstore.KindArchivalObject && in.RefID != "" {
		rec.RefID = in.RefID
	}
	if err := s.db.UpdateRecord(rec); err != nil {
		return nil, err
	}
	return &CreateResult{Status: "Updated", ID: rec.ID, URI: rec.URI(), LockVersion: rec.LockVersion, Warnings: []string{}}, nil
}

// FindArchivalObjects resolves ref_ids to archival object references.
func (s *Service) FindArchivalObjects(_ context.Context, repoID int64, refIDs []string) ([]refJSON, error) {
	if _, err := s.db.Repository(repoID); err != nil {
		return nil, err
	}
	out := []refJSON{}
	for _, refID := range refIDs {
		recs, err := s.db.FindByRefID(repoID, recordstore.KindArchivalObject, refID)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			out = append(out, refJSON{Ref: r.URI()})
		}
	}
	return out, nil
}

// AddChildren appends the archival objects of an archival_record_children
// body under the parent archival object.
func (s *Service) AddChildren(ctx context.Context, repoID, parentID int64, body []byte) (*ChildrenResult, error) {
	parent, err := s.db.GetRecord(repoID, recordstore.KindArchivalObject, parentID)
	if err != nil {
		return nil, err
	}
	var envelope struct {
		JSONModelType string            `json:"jsonmodel_type"`
		Children      []json.RawMessage `json:"children"`
	}
	if err := decodeInput(body, &envelope); err != nil {
		return nil, err
	}
	if envelope.JSONModelType != "archival_record_children" {
		return nil, invalid(fmt.Errorf("jsonmodel_type: must be archival_record_children, got %q", envelope.JSONModelType))
	}
	if len(envelope.Children) == 0 {
		return nil, invalid(errors.New("children: cannot be blank"))
	}

	children := make([]*recordstore.Record, len(envelope.Children))
	for i, raw := range envelope.Children {
		in, err := s.checkRecord(ctx, repoID, recordstore.KindArchivalObject, raw)
		if err != nil {
			return nil, fmt.Errorf("child %d: %w", i, err)
		}
		children[i] = &recordstore.Record{Kind: recordstore.KindArchivalObject, RefID: in.RefID, Body: raw}
	}
	if err := s.db.InsertChildren(parent, children); err != nil {
		return nil, err
	}

	uris := make([]string, len(children))
	for i, c := range children {
		uris[i] = c.URI()
	}
	return &ChildrenResult{Status: "Created", ID: parent.ID, URI: parent.URI(), Children: uris}, nil
}

// checkRecord decodes and validates a record body. An archival object's
// resource must resolve to a resource in the same repository.
func (s *Service) checkRecord(_ context.Context, repoID int64, kind recordstore.Kind, body []byte) (*recordInput, error) {
	var in recordInput
	if err := decodeInput(body, &in); err != nil {
		return nil, err
	}
	if err := in.validateFor(kind); err != nil {
		return nil, invalid(err)
	}
	if kind == recordstore.KindArchivalObject {
		var resID int64
		want := fmt.Sprintf("/repositories/%d/resources/%%d", repoID)
		if _, err := fmt.Sscanf(in.Resource.Ref, want, &resID); err != nil {
			return nil, invalid(fmt.Errorf("resource: %q is not a resource of this repository", in.Resource.Ref))
		}
		if _, err := s.db.GetRecord(repoID, recordstore.KindResource, resID); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return nil, invalid(fmt.Errorf("resource: %s does not exist", in.Resource.Ref))
			}
			return nil, err
		}
	}
	return &in, nil
}

func present(rec *recordstore.Record) (map[string]any, error) {
	out := map[string]any{}
	if err := json.Unmarshal(rec.Body, &out); err != nil {
		return nil, fmt.Errorf("sandbox: stored record %s: %w", rec.URI(), err)
	}
	out["jsonmodel_type"] = rec.Kind.JSONModelType()
	out["uri"] = rec.URI()
	out["lock_version"] = rec.LockVersion
	out["repository"] = refJSON{Ref: fmt.Sprintf("/repositories/%d", rec.RepoID)}
	if rec.Kind == recordstore.KindArchivalObject {
		out["ref_id"] = rec.RefID
	}
	if rec.ParentID != 0 {
		out["parent"] = refJSON{Ref: fmt.Sprintf("/repositories/%d/%s/%d", rec.RepoID, rec.Kind, rec.ParentID)}
		out["position"] = rec.Position
	}
	return out, nil
}

func decodeInput(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return invalid(fmt.Errorf("malformed JSON: %w", err))
	}
	return nil
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", apperr.ErrInvalidRecord, err)
}
