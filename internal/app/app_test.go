package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/simp-lee/logger"
	"gorm.io/gorm"

	"github.com/simp-lee/denuncias-admin/internal/config"
	"github.com/simp-lee/denuncias-admin/internal/domain"
)

type fakeHTTPServer struct {
	listenErr      error
	listenStarted  chan struct{}
	shutdownCalled bool
	stopCh         chan struct{}
	mu             sync.Mutex
}

func (f *fakeHTTPServer) ListenAndServe() error {
	if f.listenStarted != nil {
		close(f.listenStarted)
	}
	if f.listenErr != nil {
		return f.listenErr
	}
	if f.stopCh != nil {
		<-f.stopCh
	}
	return http.ErrServerClosed
}

func (f *fakeHTTPServer) Shutdown(context.Context) error {
	f.mu.Lock()
	f.shutdownCalled = true
	f.mu.Unlock()
	if f.stopCh != nil {
		close(f.stopCh)
	}
	return nil
}

func (f *fakeHTTPServer) wasShutdownCalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdownCalled
}

// fakeSessions counts purge runs; the other operations are unused by Run.
type fakeSessions struct {
	purges atomic.Int32
}

func (f *fakeSessions) Login(context.Context, string, string) (*domain.Session, error) {
	return nil, domain.ErrInternal
}

func (f *fakeSessions) Resolve(context.Context, string) (*domain.Session, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeSessions) Logout(context.Context, string) error { return nil }

func (f *fakeSessions) Expire(string) {}

func (f *fakeSessions) PurgeExpired(context.Context) (int, error) {
	f.purges.Add(1)
	return 0, nil
}

// stubHTTP replaces the server and signal hooks for the duration of a test.
func stubHTTP(t *testing.T, server *fakeHTTPServer, ctx context.Context, cancel context.CancelFunc) {
	t.Helper()
	originalNewHTTPServer := newHTTPServer
	originalNotifyContext := notifyContext
	t.Cleanup(func() {
		newHTTPServer = originalNewHTTPServer
		notifyContext = originalNotifyContext
	})

	newHTTPServer = func(string, http.Handler, time.Duration) httpServer {
		return server
	}
	notifyContext = func(context.Context, ...os.Signal) (context.Context, context.CancelFunc) {
		return ctx, cancel
	}
}

func testConfig(t *testing.T, upstreamURL string) *config.Config {
	t.Helper()
	t.Cleanup(func() { gin.SetMode(gin.TestMode) })
	return &config.Config{
		Server: config.ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Mode: gin.TestMode,
		},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "sessions.db")},
		},
		Log: config.LogConfig{
			Level:  "info",
			Format: "text",
		},
		Upstream: config.UpstreamConfig{BaseURL: upstreamURL, Timeout: "5s"},
		Session:  config.SessionConfig{CookieName: "denuncias_session", TTL: "8h"},
		Listing:  config.ListingConfig{DefaultPageSize: 10, MaxPageSize: 100},
		Dialog:   config.DialogConfig{MaxQueue: -1, LongPollMax: "1s"},
	}
}

func cleanupTestApp(t *testing.T, a *App) {
	t.Helper()
	if a == nil {
		return
	}
	if a.workspaces != nil {
		_ = a.workspaces.Shutdown(context.Background())
	}
	if a.db != nil {
		sqlDB, dbErr := a.db.DB()
		if dbErr == nil {
			_ = sqlDB.Close()
		}
	}
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

func TestResolveCORSConfig(t *testing.T) {
	tests := []struct {
		name            string
		mode            string
		corsCfg         *config.CORSConfig
		wantOrigins     []string
		wantMethods     []string
		wantCredentials bool
		wantMaxAge      time.Duration
	}{
		{
			name:            "debug mode uses permissive default when not configured",
			mode:            gin.DebugMode,
			corsCfg:         &config.CORSConfig{},
			wantOrigins:     []string{"*"},
			wantMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			wantCredentials: true,
			wantMaxAge:      12 * time.Hour,
		},
		{
			name:            "release mode denies cross-origin when not configured",
			mode:            gin.ReleaseMode,
			corsCfg:         nil,
			wantOrigins:     []string{},
			wantMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			wantCredentials: true,
			wantMaxAge:      12 * time.Hour,
		},
		{
			name: "release mode uses explicit allowlist",
			mode: gin.ReleaseMode,
			corsCfg: &config.CORSConfig{
				AllowOrigins:     []string{"https://admin.example.com"},
				AllowMethods:     []string{"GET", "POST"},
				AllowCredentials: true,
				MaxAge:           "1h",
			},
			wantOrigins:     []string{"https://admin.example.com"},
			wantMethods:     []string{"GET", "POST"},
			wantCredentials: true,
			wantMaxAge:      time.Hour,
		},
		{
			name: "allowlist can disable credentials",
			mode: gin.DebugMode,
			corsCfg: &config.CORSConfig{
				AllowOrigins: []string{"https://example.com"},
			},
			wantOrigins:     []string{"https://example.com"},
			wantMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			wantCredentials: false,
			wantMaxAge:      12 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := resolveCORSConfig(tt.mode, tt.corsCfg)

			if strings.Join(cfg.AllowOrigins, ",") != strings.Join(tt.wantOrigins, ",") || len(cfg.AllowOrigins) != len(tt.wantOrigins) {
				t.Fatalf("AllowOrigins = %v, want %v", cfg.AllowOrigins, tt.wantOrigins)
			}
			if strings.Join(cfg.AllowMethods, ",") != strings.Join(tt.wantMethods, ",") {
				t.Fatalf("AllowMethods = %v, want %v", cfg.AllowMethods, tt.wantMethods)
			}
			if cfg.AllowCredentials != tt.wantCredentials {
				t.Fatalf("AllowCredentials = %v, want %v", cfg.AllowCredentials, tt.wantCredentials)
			}
			if cfg.MaxAge != tt.wantMaxAge {
				t.Fatalf("MaxAge = %v, want %v", cfg.MaxAge, tt.wantMaxAge)
			}
		})
	}
}

func TestValidateGinMode(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		wantErr bool
	}{
		{name: "debug mode", mode: gin.DebugMode, wantErr: false},
		{name: "release mode", mode: gin.ReleaseMode, wantErr: false},
		{name: "test mode", mode: gin.TestMode, wantErr: false},
		{name: "invalid mode", mode: "staging", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateGinMode(tt.mode)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateGinMode() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsPlaceholderCSRFSecret(t *testing.T) {
	tests := map[string]bool{
		"":                             true,
		"   ":                          true,
		"change-me-in-env":             true,
		"CHANGE-ME-TO-A-RANDOM-SECRET": true,
		"Abcd1234!Abcd1234!Abcd1234!":  false,
	}
	for secret, want := range tests {
		if got := isPlaceholderCSRFSecret(secret); got != want {
			t.Errorf("isPlaceholderCSRFSecret(%q) = %v, want %v", secret, got, want)
		}
	}
}

func TestNew_ReturnsError(t *testing.T) {
	tests := []struct {
		name            string
		mutate          func(*config.Config)
		wantErrContains string
	}{
		{
			name:            "unsupported database driver",
			mutate:          func(c *config.Config) { c.Database.Driver = "unsupported" },
			wantErrContains: "setup database",
		},
		{
			name:            "upstream base url without http scheme",
			mutate:          func(c *config.Config) { c.Upstream.BaseURL = "ftp://complaints.local" },
			wantErrContains: "setup complaints api client",
		},
		{
			name:            "invalid gin mode",
			mutate:          func(c *config.Config) { c.Server.Mode = "staging" },
			wantErrContains: "invalid server.mode",
		},
		{
			name: "release mode rejects placeholder csrf secret",
			mutate: func(c *config.Config) {
				c.Server.Mode = gin.ReleaseMode
				c.Server.CSRFSecret = "change-me-in-env"
			},
			wantErrContains: "csrf_secret must be a non-placeholder value in release mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, "http://127.0.0.1:1/api")
			tt.mutate(cfg)

			app, err := New(cfg)
			if err == nil {
				cleanupTestApp(t, app)
				t.Fatalf("New() error = nil, want contains %q", tt.wantErrContains)
			}
			if app != nil {
				t.Fatalf("New() app = %#v, want nil", app)
			}
			if !strings.Contains(err.Error(), tt.wantErrContains) {
				t.Fatalf("New() error = %q, want contains %q", err.Error(), tt.wantErrContains)
			}
		})
	}
}

func TestNew_NilConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("New(nil) error = nil, want error")
	}
}

func TestNew_WiresPortal(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()

	cfg := testConfig(t, upstream.URL+"/api")
	cfg.Server.CSRFSecret = "Abcd1234!Abcd1234!Abcd1234!Abcd1234!"

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer cleanupTestApp(t, a)

	if !a.db.Migrator().HasTable(&domain.Session{}) {
		t.Fatal("sessions table was not migrated")
	}

	tests := []struct {
		method   string
		path     string
		wantCode int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/v1/auth/csrf", http.StatusOK},
		{http.MethodGet, "/api/v1/auth/me", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/complaints", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/dialog", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/dashboard/charts", http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/auth/login", http.StatusForbidden},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			a.engine.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d; body=%s", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}

	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("metrics output missing request counter:\n%s", w.Body.String())
	}
}

func TestRun_ReturnsError_WhenListenFails(t *testing.T) {
	listenErr := errors.New("listen failed")
	ctx, cancel := context.WithCancel(context.Background())
	stubHTTP(t, &fakeHTTPServer{listenErr: listenErr}, ctx, cancel)

	a := &App{
		engine: gin.New(),
		logger: logger.Default(),
		cfg:    &config.Config{Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080}},
	}

	err := a.Run()
	if err == nil {
		t.Fatalf("Run() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "server error") {
		t.Fatalf("Run() error = %q, want contains %q", err.Error(), "server error")
	}
	if !errors.Is(err, listenErr) {
		t.Fatalf("Run() error = %v, want wraps %v", err, listenErr)
	}
}

func TestRun_ShutdownSignal_PurgesAndClosesDatabase(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "run.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB() error = %v", err)
	}

	server := &fakeHTTPServer{listenStarted: make(chan struct{}), stopCh: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	stubHTTP(t, server, ctx, cancel)

	sessions := &fakeSessions{}
	a := &App{
		engine:   gin.New(),
		db:       db,
		logger:   logger.Default(),
		sessions: sessions,
		cfg: &config.Config{
			Server:  config.ServerConfig{Host: "127.0.0.1", Port: 8080},
			Session: config.SessionConfig{PurgeInterval: "10ms"},
		},
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run()
	}()

	select {
	case <-server.listenStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not start listening in time")
	}

	deadline := time.Now().Add(2 * time.Second)
	for sessions.purges.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("purges = %d, want at least 2 (startup and one tick)", sessions.purges.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return in time after shutdown signal")
	}

	if !server.wasShutdownCalled() {
		t.Fatal("expected server Shutdown() to be called")
	}
	if pingErr := sqlDB.Ping(); pingErr == nil {
		t.Fatal("expected database connection to be closed, but Ping() succeeded")
	}
}
