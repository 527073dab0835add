// Package watch follows a triage tree and hands newly written dataset
// directories to a callback once their reports have settled.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/bc2as/internal/checksum"
	"github.com/starford/bc2as/internal/report"
	"github.com/starford/bc2as/internal/storage"
)

// datasetDepth is the number of path segments in repo/project/dataset.
const datasetDepth = 3

// DefaultSettle is the quiet period after the last event in a dataset.
const DefaultSettle = 2 * time.Second

// DatasetFunc processes one dataset directory, given as a slash-separated
// path relative to the store root. A returned error stops the watcher.
type DatasetFunc func(ctx context.Context, datasetDir string) error

// Watcher tracks repository directories below a store root.
type Watcher struct {
	store   storage.Provider
	repos   []string
	exclude []string
	settle  time.Duration
	logger  *slog.Logger

	pending map[string]struct{}
	seen    map[string]string // dataset -> report digest when processed
}

// New creates a Watcher over the given repository directories (relative to
// store). Datasets already present should be passed to Seed so they are not
// processed twice.
func New(store storage.Provider, repos, exclude []string, settle time.Duration, logger *slog.Logger) *Watcher {
	if settle <= 0 {
		settle = DefaultSettle
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		store:   store,
		repos:   repos,
		exclude: exclude,
		settle:  settle,
		logger:  logger,
		pending: map[string]struct{}{},
		seen:    map[string]string{},
	}
}

// Seed marks datasets as already processed.
func (w *Watcher) Seed(datasets ...string) {
	for _, ds := range datasets {
		digest, err := w.digest(ds)
		if err != nil {
			w.logger.Warn("watch: seed digest failed", slog.String("dataset", ds), slog.String("error", err.Error()))
		}
		w.seen[ds] = digest
	}
}

// Run watches until ctx is cancelled or fn fails. A dataset is handed to fn
// once siegfried.csv and csv_reports/formats.csv exist and no event has
// touched it for the settle period.
func (w *Watcher) Run(ctx context.Context, fn DatasetFunc) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	for _, repo := range w.repos {
		if err := w.addDirs(fw, repo); err != nil {
			return err
		}
	}
	w.logger.Info("watch: started", slog.String("root", w.store.Root()), slog.Any("repositories", w.repos))

	// settleTimer debounces bursts of writes into a dataset.
	var settleTimer *time.Timer
	var settleCh <-chan time.Time
	schedule := func() {
		if settleTimer == nil {
			settleTimer = time.NewTimer(w.settle)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(w.settle)
		}
	}
	defer func() {
		if settleTimer != nil {
			settleTimer.Stop()
		}
	}()
	if len(w.pending) > 0 {
		schedule()
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch: stopped")
			return nil

		case <-settleCh:
			if err := w.flush(ctx, fn); err != nil {
				return err
			}

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			rel, ok := w.relative(ev.Name)
			if !ok {
				continue
			}
			if ev.Op&fsnotify.Create != 0 && w.isDir(rel) {
				if err := w.addDirs(fw, rel); err != nil {
					w.logger.Warn("watch: add new dir failed", slog.String("path", rel), slog.String("error", err.Error()))
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if parts := strings.Split(rel, "/"); len(parts) >= datasetDepth {
					w.pending[path.Join(parts[:datasetDepth]...)] = struct{}{}
				}
			}
			if len(w.pending) > 0 {
				schedule()
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch: error", slog.String("error", watchErr.Error()))
		}
	}
}

// flush processes every pending dataset whose reports are complete.
func (w *Watcher) flush(ctx context.Context, fn DatasetFunc) error {
	batch := make([]string, 0, len(w.pending))
	for ds := range w.pending {
		batch = append(batch, ds)
	}
	sort.Strings(batch)

	for _, ds := range batch {
		delete(w.pending, ds)
		log := w.logger.With(slog.String("dataset", ds))

		ready, err := w.ready(ds)
		if err != nil {
			log.Warn("watch: stat failed", slog.String("error", err.Error()))
			continue
		}
		if !ready {
			log.Debug("watch: waiting for reports")
			continue
		}
		digest, err := w.digest(ds)
		if err != nil {
			log.Warn("watch: digest failed", slog.String("error", err.Error()))
			continue
		}
		if prev, done := w.seen[ds]; done {
			if prev != digest {
				log.Warn("watch: reports changed after dataset was synced; not resending")
				w.seen[ds] = digest
			}
			continue
		}

		log.Info("watch: new dataset")
		if err := fn(ctx, ds); err != nil {
			return err
		}
		w.seen[ds] = digest
	}
	return nil
}

// requiredReports must all exist before a dataset is sent. Brunnhilde writes
// the format summary after the identification report, sometimes much later.
var requiredReports = []string{report.SiegfriedFile, report.FormatSummaryFile}

func (w *Watcher) ready(ds string) (bool, error) {
	for _, name := range requiredReports {
		ok, err := w.store.Exists(path.Join(ds, name))
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (w *Watcher) digest(ds string) (string, error) {
	return checksum.Files(w.store,
		path.Join(ds, report.SiegfriedFile),
		path.Join(ds, report.FormatSummaryFile),
		path.Join(ds, report.DFXMLFile))
}

// relative maps an event path to a slash path under a watched repository,
// dropping hidden and excluded names.
func (w *Watcher) relative(abs string) (string, bool) {
	rel, err := filepath.Rel(w.store.Root(), abs)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	parts := strings.Split(rel, "/")
	if !slices.Contains(w.repos, parts[0]) {
		return "", false
	}
	for _, p := range parts {
		if strings.HasPrefix(p, ".") || slices.Contains(w.exclude, p) {
			return "", false
		}
	}
	return rel, true
}

func (w *Watcher) isDir(rel string) bool {
	info, err := os.Stat(filepath.Join(w.store.Root(), filepath.FromSlash(rel)))
	return err == nil && info.IsDir()
}

// addDirs watches rel and every directory below it, queueing any dataset
// directory that already exists there.
func (w *Watcher) addDirs(fw *fsnotify.Watcher, rel string) error {
	root := filepath.Join(w.store.Root(), filepath.FromSlash(rel))
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		r, ok := w.relative(p)
		if !ok {
			return filepath.SkipDir
		}
		if err := fw.Add(p); err != nil {
			return err
		}
		if strings.Count(r, "/") == datasetDepth-1 {
			if _, done := w.seen[r]; !done {
				w.pending[r] = struct{}{}
			}
		}
		return nil
	})
}
