package application

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/izoe/variant-signer/internal/api"
	"github.com/izoe/variant-signer/internal/config"
	"github.com/izoe/variant-signer/internal/manifest"
	"github.com/izoe/variant-signer/internal/signing"
	"github.com/izoe/variant-signer/internal/storage"
	"github.com/izoe/variant-signer/internal/variant"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	cfg      config.Config
	resolver *signing.Resolver
	planner  *variant.Planner
	store    *storage.MemoryStore
	handler  *api.Handler
	router   http.Handler
	logger   *zap.Logger
	server   *http.Server
	clock    func() time.Time

	reloadMu sync.Mutex
}

// NewPlanner builds a resolver and planner for the configured project.
func NewPlanner(cfg config.Config, logger *zap.Logger) (*variant.Planner, *signing.Resolver, error) {
	resolver := signing.NewResolver(cfg.ProjectRoot)
	planner, err := variant.NewPlanner(cfg.Catalog, resolver, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build variant planner: %w", err)
	}
	return planner, resolver, nil
}

// New initializes the application and resolves every variant once. Any
// resolution failure is returned; the server never starts without a complete
// snapshot.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	planner, resolver, err := NewPlanner(cfg, logger)
	if err != nil {
		return nil, err
	}

	app := &App{
		cfg:      cfg,
		resolver: resolver,
		planner:  planner,
		store:    storage.NewMemoryStore(),
		logger:   logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}

	if _, err := app.Reload(); err != nil {
		return nil, fmt.Errorf("failed to resolve variants: %w", err)
	}

	app.handler = api.NewHandler(app.store, app, cfg.Catalog.App, cfg.ProjectRoot)
	app.router = api.NewRouter(app.handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)
	app.server = NewServer(cfg, app.router)

	return app, nil
}

// Reload re-plans every variant and swaps the stored snapshot. On failure the
// previous snapshot stays active.
func (a *App) Reload() (storage.Snapshot, error) {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	variants, err := a.planner.Plan()
	if err != nil {
		a.logger.Error("variant resolution failed", zap.Error(err))
		return storage.Snapshot{}, err
	}
	sums, err := manifest.Fingerprints(variants)
	if err != nil {
		a.logger.Error("key store fingerprinting failed", zap.Error(err))
		return storage.Snapshot{}, err
	}
	if err := a.store.Replace(variants, sums, a.clock()); err != nil {
		return storage.Snapshot{}, err
	}

	snap, _ := a.store.Snapshot()
	a.logger.Info("variant snapshot replaced",
		zap.Int("variants", len(snap.Variants)),
		zap.Time("resolved_at", snap.ResolvedAt),
	)
	return snap, nil
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening",
			zap.String("addr", a.server.Addr),
			zap.String("project_root", a.cfg.ProjectRoot),
		)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.router
}
