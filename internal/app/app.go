package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/logger"
	"gorm.io/gorm"

	"github.com/simp-lee/denuncias-admin/internal/api"
	"github.com/simp-lee/denuncias-admin/internal/config"
	"github.com/simp-lee/denuncias-admin/internal/domain"
	"github.com/simp-lee/denuncias-admin/internal/listing"
	"github.com/simp-lee/denuncias-admin/internal/middleware"
	"github.com/simp-lee/denuncias-admin/internal/module/auth"
	"github.com/simp-lee/denuncias-admin/internal/module/complaint"
	"github.com/simp-lee/denuncias-admin/internal/module/dashboard"
	"github.com/simp-lee/denuncias-admin/internal/module/dialog"
	"github.com/simp-lee/denuncias-admin/internal/observability"
	"github.com/simp-lee/denuncias-admin/internal/stats"
	"github.com/simp-lee/denuncias-admin/internal/workspace"
)

// App holds the core application dependencies and the HTTP server.
type App struct {
	engine     *gin.Engine
	db         *gorm.DB
	logger     *logger.Logger
	cfg        *config.Config
	sessions   auth.Service
	workspaces *workspace.Registry
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

var newHTTPServer = func(addr string, handler http.Handler, readTimeout time.Duration) httpServer {
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

var notifyContext = func(parent context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}

// New creates and wires a fully configured App from the given Config.
//
// It sets up logging, the session store, the complaints API client, the
// shared statistics cache, the workspace registry, handlers, middleware, and
// routes.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	success := false

	// 1. Setup logger.
	log, err := config.SetupLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	if cfg.Server.Mode == gin.DebugMode && cfg.Server.Host == "0.0.0.0" {
		log.Warn("insecure server config: debug mode on 0.0.0.0 may expose debug behavior and permissive CORS")
	}
	defer func() {
		if success {
			return
		}
		if err := log.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}()

	// 2. Setup the session store.
	db, err := config.SetupDatabase(&cfg.Database, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("setup database: %w", err)
	}
	defer func() {
		if success {
			return
		}
		sqlDB, err := db.DB()
		if err != nil {
			return
		}
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", slog.Any("error", err))
		}
	}()

	// 3. The sessions table is the only schema and has no external migrations.
	if err := db.AutoMigrate(&domain.Session{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	// 4. Complaints API client, statistics cache and per-session workspaces.
	metrics := observability.New()

	client, err := api.New(
		cfg.Upstream.BaseURL,
		api.NewHTTPClient(config.Duration(cfg.Upstream.Timeout), cfg.Upstream.MaxIdleConns),
		api.WithRecorder(metrics),
		api.WithLogger(log.Logger),
	)
	if err != nil {
		return nil, fmt.Errorf("setup complaints api client: %w", err)
	}

	charts := stats.NewService(config.Duration(cfg.Dashboard.StatsTTL), cfg.Dashboard.TopN, metrics, log.Logger)

	registry := workspace.NewRegistry(client, workspace.Settings{
		Listing: listing.Settings{
			DefaultPageSize: cfg.Listing.DefaultPageSize,
			MaxPageSize:     cfg.Listing.MaxPageSize,
		},
		DialogMaxQueue: cfg.Dialog.MaxQueue,
	},
		workspace.WithLogger(log.Logger),
		workspace.WithDialogObserver(metrics.DialogDelta),
		workspace.WithSessionObserver(metrics.SessionDelta),
		workspace.WithStatusChangeHook(func(domain.Complaint) { charts.Invalidate() }),
	)

	// 5. Manual dependency injection: repository → service → handler.
	sessions := auth.NewService(client, auth.NewSessionRepository(db), registry, config.Duration(cfg.Session.TTL), log.Logger)
	registry.OnExpire(sessions.Expire)

	modules := []Module{
		auth.NewModule(auth.NewHandler(sessions, auth.CookieSettings{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Session.Secure,
		})),
		complaint.NewModule(complaint.NewHandler(registry, charts)),
		dialog.NewModule(dialog.NewHandler(registry, config.Duration(cfg.Dialog.LongPollMax))),
		dashboard.NewModule(dashboard.NewHandler(registry, charts)),
	}

	// 6. Create Gin engine with custom middleware (not gin.Default()).
	if err := validateGinMode(cfg.Server.Mode); err != nil {
		return nil, err
	}
	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()

	engine.Use(
		middleware.Recovery(log.Logger),
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{
			TrustUpstream: false,
		}),
		middleware.Logger(log.Logger),
		middleware.Metrics(metrics),
		middleware.CORSWithConfig(resolveCORSConfig(cfg.Server.Mode, &cfg.Server.CORS)),
	)

	// 7. Resolve CSRF secret.
	csrfSecret := cfg.Server.CSRFSecret
	if isPlaceholderCSRFSecret(csrfSecret) {
		if cfg.Server.Mode == gin.ReleaseMode {
			return nil, errors.New("csrf_secret must be a non-placeholder value in release mode")
		}

		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generate csrf secret: %w", err)
		}
		csrfSecret = hex.EncodeToString(b)
		log.Warn("no csrf_secret configured, using random secret in non-release mode (will change on restart)")
	}

	// 8. Register all routes.
	if err := RegisterRoutes(engine, &RouteDeps{
		Modules:    modules,
		DB:         db,
		Metrics:    metrics.Handler(),
		Sessions:   sessions,
		CookieName: cfg.Session.CookieName,
		CSRFSecret: csrfSecret,
		Secure:     cfg.Session.Secure,
	}); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	success = true
	return &App{
		engine:     engine,
		db:         db,
		logger:     log,
		cfg:        cfg,
		sessions:   sessions,
		workspaces: registry,
	}, nil
}

func isPlaceholderCSRFSecret(secret string) bool {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return true
	}

	switch strings.ToLower(trimmed) {
	case "change-me-to-a-random-secret", "change-me-in-env":
		return true
	default:
		return false
	}
}

// resolveCORSConfig overlays the configured CORS settings on the defaults.
// In release mode, when no allowlist is configured, cross-origin requests
// are denied.
func resolveCORSConfig(mode string, cors *config.CORSConfig) middleware.CORSConfig {
	out := middleware.DefaultCORSConfig()
	if cors == nil {
		cors = &config.CORSConfig{}
	}

	switch {
	case len(cors.AllowOrigins) > 0:
		out.AllowOrigins = cors.AllowOrigins
	case mode == gin.ReleaseMode:
		out.AllowOrigins = []string{}
	}
	if len(cors.AllowMethods) > 0 {
		out.AllowMethods = cors.AllowMethods
	}
	if len(cors.AllowHeaders) > 0 {
		out.AllowHeaders = cors.AllowHeaders
	}
	// Cookie sessions need credentials; only an explicit allowlist may
	// turn them off.
	if len(cors.AllowOrigins) > 0 {
		out.AllowCredentials = cors.AllowCredentials
	}
	if d := config.Duration(cors.MaxAge); d > 0 {
		out.MaxAge = d
	}
	return out
}

func validateGinMode(mode string) error {
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		return nil
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}
}

// Run starts the HTTP server and the expired-session purge loop, and blocks
// until a shutdown signal is received. Shutdown drains HTTP requests, settles
// every session workspace, and then closes the database and the logger.
func (a *App) Run() error {
	if a == nil {
		return errors.New("app is nil")
	}
	if a.cfg == nil {
		return errors.New("app config is nil")
	}
	if a.engine == nil {
		return errors.New("app engine is nil")
	}

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	srv := newHTTPServer(addr, a.engine, config.Duration(a.cfg.Server.Timeout))

	// Listen for SIGINT / SIGTERM.
	ctx, stop := notifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	purgeCtx, stopPurge := context.WithCancel(ctx)
	purgeDone := make(chan struct{})
	go func() {
		defer close(purgeDone)
		a.purgeLoop(purgeCtx, config.Duration(a.cfg.Session.PurgeInterval))
	}()

	// Start HTTP server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		a.log().Info("server started", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		a.log().Info("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("server error: %w", err)
	}

	stopPurge()
	<-purgeDone

	// Graceful shutdown with 5-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if runErr == nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log().Error("server shutdown error", slog.Any("error", err))
		}
	}

	if a.workspaces != nil {
		a.log().Info("closing staff workspaces", slog.Int("open", a.workspaces.Len()))
		if err := a.workspaces.Shutdown(shutdownCtx); err != nil {
			a.log().Error("workspace shutdown error", slog.Any("error", err))
		}
	}

	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.log().Error("database close error", slog.Any("error", err))
			} else {
				a.log().Info("database connection closed")
			}
		}
	}

	a.log().Info("server stopped")
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}

	return runErr
}

// purgeLoop deletes expired sessions once at startup and then every
// interval until ctx is done.
func (a *App) purgeLoop(ctx context.Context, interval time.Duration) {
	if a.sessions == nil {
		return
	}
	a.purge(ctx)
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.purge(ctx)
		}
	}
}

func (a *App) purge(ctx context.Context) {
	n, err := a.sessions.PurgeExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			a.log().Error("purge expired sessions failed", slog.Any("error", err))
		}
		return
	}
	if n > 0 {
		a.log().Info("expired sessions purged", slog.Int("count", n))
	}
}

func (a *App) log() *slog.Logger {
	if a.logger != nil {
		return a.logger.Logger
	}
	return slog.Default()
}
