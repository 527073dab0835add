package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/starford/bc2as/internal/apperr"
	"github.com/starford/bc2as/internal/archivesspace"
	"github.com/starford/bc2as/internal/derive"
)

// Outcome is the result of syncing one dataset.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Summary counts what a run did.
type Summary struct {
	RepositoriesCreated int `json:"repositories_created"`
	RepositoriesReused  int `json:"repositories_reused"`
	ResourcesCreated    int `json:"resources_created"`
	ParentsCreated      int `json:"parents_created"`
	ParentsRelinked     int `json:"parents_relinked"`
	ParentsReused       int `json:"parents_reused"`
	DatasetsCreated     int `json:"datasets_created"`
	DatasetsSkipped     int `json:"datasets_skipped"`
	DatasetsFailed      int `json:"datasets_failed"`
}

// Add accumulates o into s.
func (s *Summary) Add(o Summary) {
	s.RepositoriesCreated += o.RepositoriesCreated
	s.RepositoriesReused += o.RepositoriesReused
	s.ResourcesCreated += o.ResourcesCreated
	s.ParentsCreated += o.ParentsCreated
	s.ParentsRelinked += o.ParentsRelinked
	s.ParentsReused += o.ParentsReused
	s.DatasetsCreated += o.DatasetsCreated
	s.DatasetsSkipped += o.DatasetsSkipped
	s.DatasetsFailed += o.DatasetsFailed
}

func (s *Summary) countProject(p *Project) {
	switch p.State {
	case StateNotFound:
		s.ResourcesCreated++
		s.ParentsCreated++
	case StateWithoutResource:
		s.ResourcesCreated++
		s.ParentsRelinked++
	case StateWithResource:
		s.ParentsReused++
	}
}

func (s *Summary) countDataset(o Outcome) {
	switch o {
	case OutcomeCreated:
		s.DatasetsCreated++
	case OutcomeSkipped:
		s.DatasetsSkipped++
	case OutcomeFailed:
		s.DatasetsFailed++
	}
}

// LogValue renders the summary as structured log attributes.
func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("repositories_created", s.RepositoriesCreated),
		slog.Int("repositories_reused", s.RepositoriesReused),
		slog.Int("resources_created", s.ResourcesCreated),
		slog.Int("parents_created", s.ParentsCreated),
		slog.Int("parents_relinked", s.ParentsRelinked),
		slog.Int("parents_reused", s.ParentsReused),
		slog.Int("datasets_created", s.DatasetsCreated),
		slog.Int("datasets_skipped", s.DatasetsSkipped),
		slog.Int("datasets_failed", s.DatasetsFailed),
	)
}

// SyncDataset derives the facts for datasetDir and creates one child record
// under the project's parent. Per-dataset failures are logged and reported as
// OutcomeFailed; only failures that must stop the run are returned, including
// a rejected or expired session.
func (r *Reconciler) SyncDataset(ctx context.Context, p *Project, datasetDir string) (Outcome, error) {
	log := r.logger.With(slog.String("dataset", datasetDir))

	facts, err := r.deriver.Derive(ctx, datasetDir)
	switch {
	case err == nil:
	case errors.Is(err, derive.ErrSkip):
		return OutcomeSkipped, nil
	case isDatasetFailure(err):
		log.Error("cannot derive dataset metadata", slog.String("error", err.Error()))
		return OutcomeFailed, nil
	default:
		return "", fmt.Errorf("reconcile: dataset %s: %w", datasetDir, err)
	}

	log.Info("using reference ID", slog.String("identifier", facts.Identifier))
	child := archivesspace.NewChildObjectDraft(facts, p.ResourceURI, r.createdBy, r.now())
	result, err := r.backend.CreateChildren(ctx, p.ParentURI, child)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if apperr.IsSessionLost(err) {
			return "", fmt.Errorf("reconcile: dataset %s: session lost: %w", datasetDir, err)
		}
		log.Error("create child record failed", slog.String("error", err.Error()))
		return OutcomeFailed, nil
	}
	log.Info("processed dataset",
		slog.String("identifier", facts.Identifier),
		slog.String("parent", p.ParentURI),
		slog.String("result", string(result)))
	return OutcomeCreated, nil
}

func isDatasetFailure(err error) bool {
	var mte *apperr.MalformedTimestampError
	return errors.Is(err, apperr.ErrNotFound) ||
		errors.Is(err, apperr.ErrNoTimestamps) ||
		errors.As(err, &mte)
}

// SyncProject reconciles one project directory and syncs its datasets.
func (r *Reconciler) SyncProject(ctx context.Context, repoURI, projectDir string) (Summary, error) {
	var sum Summary
	name := path.Base(projectDir)
	r.logger.Info("processing project folder", slog.String("project", projectDir))

	p, err := r.EnsureProject(ctx, repoURI, name)
	if err != nil {
		return sum, err
	}
	r.projects[projectDir] = p
	sum.countProject(p)

	datasets, err := r.store.Subdirectories(projectDir, r.exclude)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			return sum, fmt.Errorf("reconcile: list datasets of %s: %w", projectDir, err)
		}
		r.logger.Warn("project folder vanished", slog.String("project", projectDir))
	}
	for _, ds := range datasets {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		outcome, err := r.SyncDataset(ctx, p, path.Join(projectDir, ds))
		if err != nil {
			return sum, err
		}
		sum.countDataset(outcome)
	}
	return sum, nil
}

// SyncRepository reconciles the repository named by the base of repoDir and
// every project below it.
func (r *Reconciler) SyncRepository(ctx context.Context, repoDir string) (Summary, error) {
	var sum Summary
	code := path.Base(repoDir)

	projects, err := r.store.Subdirectories(repoDir, r.exclude)
	if err != nil {
		return sum, fmt.Errorf("reconcile: list projects of %s: %w", repoDir, err)
	}

	repoURI, created, err := r.EnsureRepository(ctx, code)
	if err != nil {
		return sum, err
	}
	r.repos[repoDir] = repoURI
	if created {
		sum.RepositoriesCreated++
	} else {
		sum.RepositoriesReused++
	}

	for _, project := range projects {
		ps, err := r.SyncProject(ctx, repoURI, path.Join(repoDir, project))
		sum.Add(ps)
		if err != nil {
			return sum, err
		}
	}
	return sum, nil
}

// SyncRoot syncs every repository directory directly under the store root.
func (r *Reconciler) SyncRoot(ctx context.Context) (Summary, error) {
	var sum Summary
	repos, err := r.store.Subdirectories("", r.exclude)
	if err != nil {
		return sum, fmt.Errorf("reconcile: list repositories: %w", err)
	}
	for _, repo := range repos {
		rs, err := r.SyncRepository(ctx, repo)
		sum.Add(rs)
		if err != nil {
			return sum, err
		}
	}
	return sum, nil
}

// SyncDatasetPath syncs the dataset at repo/project/dataset path datasetDir,
// reconciling its repository and project the first time they are seen.
func (r *Reconciler) SyncDatasetPath(ctx context.Context, datasetDir string) (Outcome, error) {
	projectDir := path.Dir(datasetDir)
	repoDir := path.Dir(projectDir)

	p, ok := r.projects[projectDir]
	if !ok {
		repoURI, ok := r.repos[repoDir]
		if !ok {
			uri, _, err := r.EnsureRepository(ctx, path.Base(repoDir))
			if err != nil {
				return "", err
			}
			repoURI = uri
			r.repos[repoDir] = uri
		}
		var err error
		p, err = r.EnsureProject(ctx, repoURI, path.Base(projectDir))
		if err != nil {
			return "", err
		}
		r.projects[projectDir] = p
	}
	return r.SyncDataset(ctx, p, datasetDir)
}
