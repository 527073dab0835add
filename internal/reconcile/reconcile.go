// Package reconcile maps a local repository/project/dataset tree onto the
// remote record hierarchy: one repository per repository directory, one
// resource plus parent archival object per project, one child archival
// object per dataset.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/bc2as/internal/archivesspace"
	"github.com/starford/bc2as/internal/models"
	"github.com/starford/bc2as/internal/prompt"
	"github.com/starford/bc2as/internal/storage"
)

// ErrRepositoryRefused is returned when a repository is missing and the
// operator declined to create it.
var ErrRepositoryRefused = errors.New("repository creation refused")

// Backend is the subset of the remote API the reconciler drives.
type Backend interface {
	Repositories(ctx context.Context) ([]archivesspace.Repository, error)
	CreateRepository(ctx context.Context, d archivesspace.RepositoryDraft) (string, error)
	FindArchivalObject(ctx context.Context, repoURI, refID string) (*archivesspace.ArchivalObject, error)
	RecordExists(ctx context.Context, uri string) (bool, error)
	CreateResource(ctx context.Context, repoURI string, d archivesspace.ResourceDraft) (string, error)
	CreateArchivalObject(ctx context.Context, repoURI string, d archivesspace.ParentObjectDraft) (string, error)
	LinkResource(ctx context.Context, obj *archivesspace.ArchivalObject, resourceURI string) error
	CreateChildren(ctx context.Context, parentURI string, children ...archivesspace.ChildObjectDraft) (json.RawMessage, error)
}

var _ Backend = (*archivesspace.Client)(nil)

// Deriver computes dataset facts. *derive.Engine implements it.
type Deriver interface {
	Derive(ctx context.Context, datasetDir string) (*models.DatasetFacts, error)
}

// ProjectState classifies a project's parent archival object before
// reconciliation.
type ProjectState string

const (
	StateNotFound        ProjectState = "not_found"
	StateWithoutResource ProjectState = "found_without_resource"
	StateWithResource    ProjectState = "found_with_resource"
)

// Project is a reconciled project: its parent archival object and the
// resource it belongs to.
type Project struct {
	Name        string
	RefID       string
	ParentURI   string
	ResourceURI string
	State       ProjectState
}

// Reconciler drives one run against a backend.
type Reconciler struct {
	backend   Backend
	deriver   Deriver
	store     storage.Provider
	confirm   prompt.Confirmer
	logger    *slog.Logger
	createdBy string
	exclude   []string
	now       func() time.Time

	// Reconciled URIs keyed by local directory, reused by SyncDatasetPath.
	repos    map[string]string
	projects map[string]*Project
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithCreatedBy records the operator name on every child record.
func WithCreatedBy(name string) Option {
	return func(r *Reconciler) { r.createdBy = name }
}

// WithExclude sets directory names never treated as projects or datasets.
func WithExclude(names []string) Option {
	return func(r *Reconciler) { r.exclude = names }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New creates a Reconciler. confirm answers the repository creation question.
func New(backend Backend, deriver Deriver, store storage.Provider, confirm prompt.Confirmer, opts ...Option) *Reconciler {
	r := &Reconciler{
		backend:  backend,
		deriver:  deriver,
		store:    store,
		confirm:  confirm,
		logger:   slog.Default(),
		exclude:  storage.DefaultExclude,
		now:      time.Now,
		repos:    map[string]string{},
		projects: map[string]*Project{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RefID returns the parent archival object ref_id for a project directory.
func RefID(projectName string) string {
	return strings.ReplaceAll(projectName, " ", "_")
}

// EnsureRepository returns the URI of the repository with code, creating it
// after confirmation when missing.
func (r *Reconciler) EnsureRepository(ctx context.Context, code string) (uri string, created bool, err error) {
	repos, err := r.backend.Repositories(ctx)
	if err != nil {
		return "", false, fmt.Errorf("reconcile: list repositories: %w", err)
	}
	for _, repo := range repos {
		if repo.RepoCode == code {
			r.logger.Info("found repository", slog.String("repo_code", code), slog.String("uri", repo.URI))
			return repo.URI, false, nil
		}
	}

	ok, err := r.confirm.Confirm(ctx, fmt.Sprintf("Repository %s does not exist. Create it?", code))
	if err != nil {
		return "", false, fmt.Errorf("reconcile: confirm repository %q: %w", code, err)
	}
	if !ok {
		return "", false, fmt.Errorf("reconcile: %s: %w", code, ErrRepositoryRefused)
	}
	uri, err = r.backend.CreateRepository(ctx, archivesspace.NewRepositoryDraft(code))
	if err != nil {
		return "", false, fmt.Errorf("reconcile: create repository %q: %w", code, err)
	}
	r.logger.Info("created repository", slog.String("repo_code", code), slog.String("uri", uri))
	return uri, true, nil
}

// EnsureProject makes sure the project has a parent archival object linked
// to an existing resource. Existing records are reused; nothing is written
// for a project already found with its resource.
func (r *Reconciler) EnsureProject(ctx context.Context, repoURI, name string) (*Project, error) {
	p := &Project{Name: name, RefID: RefID(name)}
	log := r.logger.With(slog.String("project", name), slog.String("ref_id", p.RefID))

	obj, err := r.backend.FindArchivalObject(ctx, repoURI, p.RefID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: find project %q: %w", name, err)
	}

	p.State, err = r.classify(ctx, obj)
	if err != nil {
		return nil, fmt.Errorf("reconcile: project %q: %w", name, err)
	}

	switch p.State {
	case StateWithResource:
		p.ParentURI, p.ResourceURI = obj.URI, obj.ResourceRef()
		log.Info("reusing parent archival object", slog.String("uri", p.ParentURI))
		return p, nil

	case StateWithoutResource:
		p.ResourceURI, err = r.createResource(ctx, repoURI, p)
		if err != nil {
			return nil, err
		}
		if err := r.backend.LinkResource(ctx, obj, p.ResourceURI); err != nil {
			return nil, fmt.Errorf("reconcile: link project %q to resource: %w", name, err)
		}
		p.ParentURI = obj.URI
		log.Info("relinked parent archival object",
			slog.String("uri", p.ParentURI),
			slog.String("resource", p.ResourceURI))
		return p, nil

	default:
		p.ResourceURI, err = r.createResource(ctx, repoURI, p)
		if err != nil {
			return nil, err
		}
		p.ParentURI, err = r.backend.CreateArchivalObject(ctx, repoURI,
			archivesspace.NewParentObjectDraft(name, p.RefID, p.ResourceURI))
		if err != nil {
			return nil, fmt.Errorf("reconcile: create parent for %q: %w", name, err)
		}
		log.Info("created parent archival object",
			slog.String("uri", p.ParentURI),
			slog.String("resource", p.ResourceURI))
		return p, nil
	}
}

// classify treats a resource link whose target is gone like a missing link.
func (r *Reconciler) classify(ctx context.Context, obj *archivesspace.ArchivalObject) (ProjectState, error) {
	if obj == nil {
		return StateNotFound, nil
	}
	ref := obj.ResourceRef()
	if ref == "" {
		return StateWithoutResource, nil
	}
	ok, err := r.backend.RecordExists(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("check resource %s: %w", ref, err)
	}
	if !ok {
		r.logger.Warn("parent archival object links a missing resource",
			slog.String("uri", obj.URI),
			slog.String("resource", ref))
		return StateWithoutResource, nil
	}
	return StateWithResource, nil
}

func (r *Reconciler) createResource(ctx context.Context, repoURI string, p *Project) (string, error) {
	uri, err := r.backend.CreateResource(ctx, repoURI, archivesspace.NewResourceDraft(p.Name, p.RefID, r.now()))
	if err != nil {
		return "", fmt.Errorf("reconcile: create resource for %q: %w", p.Name, err)
	}
	r.logger.Info("created resource", slog.String("project", p.Name), slog.String("uri", uri))
	return uri, nil
}
