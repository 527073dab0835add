// Package internal wires configuration, the operator's terminal and the
// backend into the sync, watch and sandbox commands.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/bc2as/internal/archivesspace"
	"github.com/starford/bc2as/internal/derive"
	"github.com/starford/bc2as/internal/prompt"
	"github.com/starford/bc2as/internal/reconcile"
	"github.com/starford/bc2as/internal/recordstore"
	"github.com/starford/bc2as/internal/sandbox"
	"github.com/starford/bc2as/internal/storage"
	"github.com/starford/bc2as/internal/watch"
)

var (
	// ErrStructureRejected is returned when the operator rejects the
	// directory summary.
	ErrStructureRejected = errors.New("directory structure rejected")
	// ErrAuthentication is returned when login failed and the operator
	// declined to retry.
	ErrAuthentication = errors.New("authentication failed")
)

// Run performs one sync of the configured directory.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	ctx, stop := interruptible(ctx)
	defer stop()

	s, err := app.prepare(ctx)
	if err != nil {
		return err
	}
	_, err = s.sync(ctx)
	return err
}

// Watch performs an initial sync, then syncs dataset directories as they
// appear until interrupted.
func Watch(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)

	syncCtx, stop := interruptible(ctx)
	s, err := app.prepare(syncCtx)
	if err == nil {
		_, err = s.sync(syncCtx)
	}
	stop()
	if err != nil {
		return err
	}

	w := watch.New(s.store, s.repoDirs, app.config.Scan.Exclude, app.config.Watch.Settle, s.logger)
	w.Seed(s.tree.Paths()...)

	g, gCtx := errgroup.WithContext(ctx)
	watchCtx, cancel := context.WithCancel(gCtx)

	g.Go(func() error {
		defer cancel()
		return w.Run(watchCtx, func(ctx context.Context, ds string) error {
			outcome, err := s.rec.SyncDatasetPath(ctx, ds)
			if err != nil {
				return err
			}
			s.logger.Info("dataset synced", slog.String("dataset", ds), slog.String("outcome", string(outcome)))
			return nil
		})
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			s.logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			cancel()
		case <-watchCtx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.Error("watch stopped", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Serve runs the sandbox backend until interrupted.
func Serve(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(cfg.App, app.logOut)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.Sandbox.HTTP.Address()),
		slog.String("sqlite_path", cfg.Sandbox.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, err := recordstore.Open(cfg.Sandbox.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init record store: %w", err)
	}
	defer db.Close()

	svc := sandbox.NewService(db, sandbox.Credentials{
		Username: cfg.Sandbox.Username,
		Password: cfg.Sandbox.Password,
	})

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Mount("/", sandbox.NewRouter(svc))

	httpServer := &http.Server{
		Addr:              cfg.Sandbox.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting sandbox backend", slog.String("address", cfg.Sandbox.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Sandbox stopped")
	return nil
}

// session is a connected run over one local tree.
type session struct {
	logger   *slog.Logger
	store    storage.Provider
	repoDirs []string
	root     bool
	tree     *reconcile.Tree
	rec      *reconcile.Reconciler
}

// prepare checks the tree with the operator, logs in and builds the
// reconciler. Nothing is written to the backend yet.
func (app *application) prepare(ctx context.Context) (*session, error) {
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(cfg.App, app.logOut)
	slog.SetDefault(logger)

	store, repoDirs, err := openTree(app.dir, app.root, cfg.Scan.Exclude)
	if err != nil {
		return nil, err
	}
	tree, err := reconcile.Survey(store, repoDirs, cfg.Scan.Exclude)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", app.dir, err)
	}

	console := prompt.NewConsole(app.in, app.out)
	console.Println("Directory structure:")
	tree.Render(app.out)
	if !app.yes {
		ok, err := console.Confirm(ctx, "Is this directory structure correct?")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrStructureRejected
		}
	}

	client, creds, err := connect(ctx, console, cfg.Backend, logger)
	if err != nil {
		return nil, err
	}

	fallback, err := prompt.ForPolicy(cfg.Prompt.Fallback, console)
	if err != nil {
		return nil, err
	}
	var createRepo prompt.Confirmer = console
	if app.yes {
		createRepo = prompt.Always(true)
	}

	engine := derive.NewEngine(store, fallback, logger)
	rec := reconcile.New(client, engine, store, createRepo,
		reconcile.WithLogger(logger),
		reconcile.WithCreatedBy(creds.CreatedBy),
		reconcile.WithExclude(cfg.Scan.Exclude))

	return &session{
		logger:   logger,
		store:    store,
		repoDirs: repoDirs,
		root:     app.root,
		tree:     tree,
		rec:      rec,
	}, nil
}

func (s *session) sync(ctx context.Context) (reconcile.Summary, error) {
	var (
		total reconcile.Summary
		err   error
	)
	if s.root {
		total, err = s.rec.SyncRoot(ctx)
	} else {
		for _, dir := range s.repoDirs {
			var sum reconcile.Summary
			sum, err = s.rec.SyncRepository(ctx, dir)
			total.Add(sum)
			if err != nil {
				break
			}
		}
	}
	if err != nil {
		s.logger.Error("sync aborted", slog.Any("summary", total), slog.String("error", err.Error()))
		return total, err
	}
	s.logger.Info("sync finished", slog.Any("summary", total))
	return total, nil
}

// openTree roots storage so that every dataset is repo/project/dataset.
// A repository directory is served from its parent.
func openTree(dir string, root bool, exclude []string) (storage.Provider, []string, error) {
	if dir == "" {
		return nil, nil, fmt.Errorf("a directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, nil, fmt.Errorf("%s is not a directory", dir)
	}

	if root {
		store, err := storage.NewFS(abs)
		if err != nil {
			return nil, nil, err
		}
		repos, err := store.Subdirectories("", exclude)
		if err != nil {
			return nil, nil, err
		}
		return store, repos, nil
	}
	store, err := storage.NewFS(filepath.Dir(abs))
	if err != nil {
		return nil, nil, err
	}
	return store, []string{filepath.Base(abs)}, nil
}

// connect logs in with the configured credentials, prompting for whatever is
// missing, and offers a retry after each failed attempt.
func connect(ctx context.Context, console *prompt.Console, cfg BackendConfig, logger *slog.Logger) (*archivesspace.Client, prompt.Credentials, error) {
	creds := prompt.Credentials{
		URL:       cfg.URL,
		Username:  cfg.Username,
		Password:  cfg.Password,
		CreatedBy: cfg.CreatedBy,
	}
	ask := !creds.Complete()
	for {
		if ask {
			var err error
			if creds, err = console.Collect(ctx, creds); err != nil {
				return nil, creds, err
			}
		}
		client, err := login(ctx, creds, cfg.Timeout)
		if err == nil {
			logger.Info("authenticated", slog.String("backend", client.BaseURL()), slog.String("username", creds.Username))
			return client, creds, nil
		}
		if ctx.Err() != nil {
			return nil, creds, ctx.Err()
		}
		logger.Warn("login failed", slog.String("error", err.Error()))

		retry, cerr := console.Confirm(ctx, "Username, password, or URL was incorrect. Try again?")
		if cerr != nil {
			return nil, creds, cerr
		}
		if !retry {
			return nil, creds, fmt.Errorf("%w: %w", ErrAuthentication, err)
		}
		creds.Password = ""
		ask = true
	}
}

func login(ctx context.Context, creds prompt.Credentials, timeout time.Duration) (*archivesspace.Client, error) {
	client, err := archivesspace.New(creds.URL, archivesspace.WithTimeout(timeout))
	if err != nil {
		return nil, err
	}
	if err := client.Authenticate(ctx, creds.Username, creds.Password); err != nil {
		return nil, err
	}
	return client, nil
}

func newLogger(cfg ApplicationConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// interruptible cancels ctx on SIGINT or SIGTERM. After the first signal the
// default handling is restored, so a second Ctrl-C ends a blocked prompt.
func interruptible(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx, stop
}
