// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
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

	"github.com/starford/workshopwatch/internal/api"
	"github.com/starford/workshopwatch/internal/fetch"
	"github.com/starford/workshopwatch/internal/itemservice"
	"github.com/starford/workshopwatch/internal/mcpserver"
	"github.com/starford/workshopwatch/internal/overlay"
	"github.com/starford/workshopwatch/internal/reconcile"
	"github.com/starford/workshopwatch/internal/settings"
	"github.com/starford/workshopwatch/internal/sse"
	"github.com/starford/workshopwatch/internal/steam"
	"github.com/starford/workshopwatch/internal/steamapi"
	"github.com/starford/workshopwatch/internal/watch"
)

// fetchPollInterval is how often one-shot commands poll a running fetch.
const fetchPollInterval = 200 * time.Millisecond

// runtime holds the components shared by every command.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	db     *settings.DB
	store  *reconcile.Store
	svc    *itemservice.Service
	cancel context.CancelFunc
}

func (rt *runtime) close() {
	rt.cancel()
	rt.store.Close()
	if err := rt.db.Close(); err != nil {
		rt.logger.Warn("settings close failed", slog.String("error", err.Error()))
	}
}

// setup applies opts, builds the logger and every domain component, and
// performs the initial scan of the Steam root.
func setup(ctx context.Context, observer reconcile.Observer, opts ...Option) (*runtime, error) {
	app := &application{logOutput: os.Stderr}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(cfg.App, app.logOutput)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("steam_root", cfg.Steam.Root),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Int("fetch_batch_size", cfg.Fetch.BatchSize),
		slog.Duration("fetch_delay", cfg.Fetch.Delay),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if dir := filepath.Dir(cfg.SQLite.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := settings.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init settings: %w", err)
	}

	palette, err := itemservice.LoadPalette(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load palette: %w", err)
	}

	fetcher := fetch.New(
		steamapi.New(cfg.Steam.APIURL, cfg.Fetch.Timeout),
		fetch.WithBatchSize(cfg.Fetch.BatchSize),
		fetch.WithDelay(cfg.Fetch.Delay),
		fetch.WithLogger(logger),
	)
	storeOpts := []reconcile.Option{reconcile.WithLogger(logger)}
	if observer != nil {
		storeOpts = append(storeOpts, reconcile.WithObserver(observer))
	}
	store := reconcile.New(fetcher, storeOpts...)

	// Fetches outlive the request that starts them but not the process.
	fetchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	svc := itemservice.NewService(fetchCtx, itemservice.Deps{
		Scanner:    steam.NewScanner(logger),
		Store:      store,
		Loader:     overlay.NewLoader(cfg.Overlay.Timeout, logger),
		Settings:   db,
		Palette:    palette,
		Logger:     logger,
		ConfigRoot: cfg.Steam.Root,
	})

	rt := &runtime{cfg: cfg, logger: logger, db: db, store: store, svc: svc, cancel: cancel}

	if _, err := svc.Reload(ctx); err != nil {
		rt.close()
		return nil, fmt.Errorf("initial scan: %w", err)
	}
	return rt, nil
}

// startWatcher runs the manifest watcher in g when enabled and keeps its
// targets in step with reloads.
func (rt *runtime) startWatcher(ctx context.Context, g *errgroup.Group, cb watch.Callback) error {
	if !rt.cfg.Watch.Enabled {
		return nil
	}
	w := watch.New(rt.svc, rt.cfg.Watch.Debounce, rt.logger, cb)
	rt.svc.OnReload(func(infos []reconcile.ContainerInfo) {
		w.SetTargets(watchTargets(infos))
	})
	infos, err := rt.svc.Containers(ctx)
	if err != nil {
		return err
	}
	w.SetTargets(watchTargets(infos))
	g.Go(func() error { return w.Run(ctx) })
	return nil
}

func watchTargets(infos []reconcile.ContainerInfo) []watch.Target {
	out := make([]watch.Target, len(infos))
	for i, c := range infos {
		out[i] = watch.Target{ContainerID: c.ID, LibraryPath: c.LibraryPath}
	}
	return out
}

// Run starts the HTTP server and the manifest watcher.
func Run(ctx context.Context, opts ...Option) error {
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	rt, err := setup(ctx, broker, opts...)
	if err != nil {
		return err
	}
	defer rt.close()
	cfg, logger := rt.cfg, rt.logger

	apiRouter := api.NewRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := rt.svc.FetchState(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if err := rt.startWatcher(gCtx, g, broker.PublishRescan); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
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

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		// Stops the watcher.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// ContainerReport is one container in the scan output.
type ContainerReport struct {
	reconcile.ContainerInfo
	Items []itemservice.ItemView `json:"items"`
}

// Scan writes every container with its merged items to out as JSON. With
// fetchRemote, remote metadata is fetched for each container first.
func Scan(ctx context.Context, out io.Writer, fetchRemote bool, opts ...Option) error {
	rt, err := setup(ctx, nil, opts...)
	if err != nil {
		return err
	}
	defer rt.close()

	infos, err := rt.svc.Containers(ctx)
	if err != nil {
		return err
	}

	report := make([]ContainerReport, 0, len(infos))
	for _, c := range infos {
		if fetchRemote && c.ItemCount > 0 {
			if _, err := rt.svc.StartFetch(ctx, c.ID); err != nil {
				return fmt.Errorf("fetch %s: %w", c.ID, err)
			}
			final, err := rt.svc.WaitFetch(ctx, fetchPollInterval)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", c.ID, err)
			}
			rt.logger.Info("fetch complete",
				slog.String("container_id", c.ID),
				slog.Int("completed", final.Completed),
				slog.Int("total", final.Total))
		}
		items, err := rt.svc.Items(ctx, c.ID)
		if err != nil {
			return err
		}
		info, err := rt.svc.Container(ctx, c.ID)
		if err != nil {
			return err
		}
		report = append(report, ContainerReport{ContainerInfo: info, Items: items})
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// ServeMCP serves the MCP tools on stdin/stdout until stdin closes.
func ServeMCP(ctx context.Context, opts ...Option) error {
	rt, err := setup(ctx, nil, opts...)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	if err := rt.startWatcher(gCtx, g, nil); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	srv := mcpserver.New(rt.svc)
	rt.logger.Info("MCP server starting on stdio")
	err = srv.ServeStdio()
	cancel()
	if werr := g.Wait(); werr != nil && err == nil {
		err = werr
	}
	return err
}
