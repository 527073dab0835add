package archivesspace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/bc2as/internal/apperr"
)

// Repository is an entry of GET /repositories.
type Repository struct {
	URI      string `json:"uri"`
	RepoCode string `json:"repo_code"`
	Name     string `json:"name"`
}

// Ref is a JSON reference to another record.
type Ref struct {
	Ref string `json:"ref"`
}

// Validate requires a non-empty reference.
func (r Ref) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Ref, validation.Required),
	)
}

// ArchivalObject is the subset of an archival_object record bc2as reads.
// Raw keeps the full record so updates can round-trip unknown fields.
type ArchivalObject struct {
	URI         string `json:"uri"`
	RefID       string `json:"ref_id"`
	Title       string `json:"title"`
	LockVersion int    `json:"lock_version"`
	Resource    *Ref   `json:"resource,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// ResourceRef returns the linked resource URI, or "" when the link is missing.
func (o *ArchivalObject) ResourceRef() string {
	if o.Resource == nil {
		return ""
	}
	return o.Resource.Ref
}

// CreateResult is the backend's answer to a create or update.
type CreateResult struct {
	Status      string   `json:"status"`
	ID          int      `json:"id"`
	URI         string   `json:"uri"`
	LockVersion int      `json:"lock_version"`
	Warnings    []string `json:"warnings,omitempty"`
}

type findByIDResponse struct {
	ArchivalObjects []Ref `json:"archival_objects"`
}

// Repositories lists every repository.
func (c *Client) Repositories(ctx context.Context) ([]Repository, error) {
	var out []Repository
	if err := c.Get(ctx, "/repositories", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateRepository creates a repository and returns its URI.
func (c *Client) CreateRepository(ctx context.Context, d RepositoryDraft) (string, error) {
	if err := d.Validate(); err != nil {
		return "", fmt.Errorf("archivesspace: repository draft: %w", err)
	}
	return c.create(ctx, "/repositories", d)
}

// FindArchivalObject looks up an archival object by ref_id within repoURI.
// It returns nil without error when no object matches.
func (c *Client) FindArchivalObject(ctx context.Context, repoURI, refID string) (*ArchivalObject, error) {
	q := url.Values{"ref_id[]": {refID}}
	var found findByIDResponse
	if err := c.Get(ctx, repoURI+"/find_by_id/archival_objects?"+q.Encode(), &found); err != nil {
		return nil, err
	}
	if len(found.ArchivalObjects) == 0 {
		return nil, nil
	}
	return c.ArchivalObject(ctx, found.ArchivalObjects[0].Ref)
}

// ArchivalObject reads the archival object at uri.
func (c *Client) ArchivalObject(ctx context.Context, uri string) (*ArchivalObject, error) {
	var raw json.RawMessage
	if err := c.Get(ctx, uri, &raw); err != nil {
		return nil, err
	}
	obj := &ArchivalObject{Raw: raw}
	if err := json.Unmarshal(raw, obj); err != nil {
		return nil, fmt.Errorf("archivesspace: decode %s: %w", uri, err)
	}
	if obj.URI == "" {
		obj.URI = uri
	}
	return obj, nil
}

// RecordExists reports whether GET uri succeeds. A 404 is reported as false;
// other failures are returned.
func (c *Client) RecordExists(ctx context.Context, uri string) (bool, error) {
	err := c.Get(ctx, uri, nil)
	switch {
	case err == nil:
		return true, nil
	case apperr.IsRemoteNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// CreateResource creates a resource in repoURI and returns its URI.
func (c *Client) CreateResource(ctx context.Context, repoURI string, d ResourceDraft) (string, error) {
	if err := d.Validate(); err != nil {
		return "", fmt.Errorf("archivesspace: resource draft: %w", err)
	}
	return c.create(ctx, repoURI+"/resources", d)
}

// CreateArchivalObject creates a top-level archival object in repoURI and
// returns its URI.
func (c *Client) CreateArchivalObject(ctx context.Context, repoURI string, d ParentObjectDraft) (string, error) {
	if err := d.Validate(); err != nil {
		return "", fmt.Errorf("archivesspace: archival object draft: %w", err)
	}
	return c.create(ctx, repoURI+"/archival_objects", d)
}

// LinkResource points obj at resourceURI and saves it. The full record is
// posted back so fields bc2as does not model are preserved.
func (c *Client) LinkResource(ctx context.Context, obj *ArchivalObject, resourceURI string) error {
	record := map[string]any{}
	if len(obj.Raw) > 0 {
		if err := json.Unmarshal(obj.Raw, &record); err != nil {
			return fmt.Errorf("archivesspace: decode %s: %w", obj.URI, err)
		}
	}
	record["resource"] = Ref{Ref: resourceURI}
	record["lock_version"] = obj.LockVersion

	var res CreateResult
	if err := c.Post(ctx, obj.URI, record, &res); err != nil {
		return err
	}
	obj.Resource = &Ref{Ref: resourceURI}
	obj.LockVersion = res.LockVersion
	return nil
}

// CreateChildren adds the drafts as children of the archival object at
// parentURI and returns the raw backend result.
func (c *Client) CreateChildren(ctx context.Context, parentURI string, children ...ChildObjectDraft) (json.RawMessage, error) {
	for i := range children {
		if err := children[i].Validate(); err != nil {
			return nil, fmt.Errorf("archivesspace: child draft %d: %w", i, err)
		}
	}
	body := childrenEnvelope{JSONModelType: "archival_record_children", Children: children}
	var out json.RawMessage
	if err := c.Post(ctx, parentURI+"/children", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) create(ctx context.Context, path string, draft any) (string, error) {
	var res CreateResult
	if err := c.Post(ctx, path, draft, &res); err != nil {
		return "", err
	}
	if res.URI == "" {
		return "", fmt.Errorf("archivesspace: create %s: response carried no uri", path)
	}
	return res.URI, nil
}
