package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/simp-lee/denuncias-admin/internal/domain"
	"github.com/simp-lee/denuncias-admin/internal/middleware"
	"github.com/simp-lee/denuncias-admin/internal/pkg"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// --- test helpers ---

func openTestSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	return db
}

type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, id string) (*domain.Session, error) {
	if id != "sess-1" {
		return nil, domain.NewAppError(domain.CodeUnauthorized, "session expired", nil)
	}
	return &domain.Session{ID: id, Email: "ana@muni.cl", Role: domain.RoleStaff}, nil
}

type mockModule struct {
	prefix string
	called bool
}

func (m *mockModule) RegisterRoutes(public *gin.RouterGroup, protected *gin.RouterGroup) {
	m.called = true
	public.GET(m.prefix+"/ping", func(c *gin.Context) {
		pkg.Success(c, gin.H{"csrf": middleware.GetCSRFToken(c)})
	})
	public.POST(m.prefix+"/ping", func(c *gin.Context) {
		pkg.Success(c, nil)
	})
	protected.GET(m.prefix+"/secret", func(c *gin.Context) {
		pkg.Success(c, gin.H{"email": middleware.CurrentSession(c).Email})
	})
}

func testRouteDeps(modules ...Module) *RouteDeps {
	return &RouteDeps{
		Modules:    modules,
		Metrics:    http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics\n")) }),
		Sessions:   fakeResolver{},
		CookieName: "denuncias_session",
		CSRFSecret: "test-secret",
	}
}

// --- Health check tests ---

func TestHealthHandler(t *testing.T) {
	closed := openTestSQLiteDB(t)
	sqlDB, _ := closed.DB()
	_ = sqlDB.Close()

	tests := []struct {
		name       string
		db         *gorm.DB
		wantCode   int
		wantStatus string
		wantDB     string
	}{
		{"database reachable", openTestSQLiteDB(t), http.StatusOK, "ok", "ok"},
		{"database closed", closed, http.StatusServiceUnavailable, "degraded", "error"},
		{"no database", nil, http.StatusServiceUnavailable, "degraded", "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/health", healthHandler(tt.db))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			var body struct {
				Status     string            `json:"status"`
				Components map[string]string `json:"components"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			if body.Components["database"] != tt.wantDB {
				t.Errorf("database = %q, want %q", body.Components["database"], tt.wantDB)
			}
		})
	}
}

// --- RegisterRoutes tests ---

func TestRegisterRoutes_Validation(t *testing.T) {
	tests := []struct {
		name    string
		router  *gin.Engine
		deps    func() *RouteDeps
		wantErr string
	}{
		{"nil router", nil, func() *RouteDeps { return testRouteDeps(&mockModule{}) }, "router is nil"},
		{"nil deps", gin.New(), func() *RouteDeps { return nil }, "route dependencies are nil"},
		{"no modules", gin.New(), func() *RouteDeps { return testRouteDeps() }, "at least one module"},
		{"empty csrf secret", gin.New(), func() *RouteDeps {
			d := testRouteDeps(&mockModule{})
			d.CSRFSecret = "  "
			return d
		}, "csrf secret is required"},
		{"no session resolver", gin.New(), func() *RouteDeps {
			d := testRouteDeps(&mockModule{})
			d.Sessions = nil
			return d
		}, "session resolver is required"},
		{"no cookie name", gin.New(), func() *RouteDeps {
			d := testRouteDeps(&mockModule{})
			d.CookieName = ""
			return d
		}, "cookie name is required"},
		{"nil module entry", gin.New(), func() *RouteDeps { return testRouteDeps(&mockModule{}, nil) }, "module at index 1 is nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RegisterRoutes(tt.router, tt.deps())
			if err == nil {
				t.Fatalf("RegisterRoutes() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("RegisterRoutes() error = %q, want contains %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestRegisterRoutes_ModulesAreCalled(t *testing.T) {
	m1, m2 := &mockModule{prefix: "/a"}, &mockModule{prefix: "/b"}
	r := gin.New()
	if err := RegisterRoutes(r, testRouteDeps(m1, m2)); err != nil {
		t.Fatalf("RegisterRoutes() error = %v", err)
	}
	if !m1.called || !m2.called {
		t.Fatalf("modules called = %v, %v, want both", m1.called, m2.called)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/b/ping", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/v1/b/ping status = %d, want 200", w.Code)
	}
}

func TestRegisterRoutes_GroupsAndProtection(t *testing.T) {
	r := gin.New()
	if err := RegisterRoutes(r, testRouteDeps(&mockModule{})); err != nil {
		t.Fatalf("RegisterRoutes() error = %v", err)
	}

	// A safe request on the public group issues the CSRF cookie.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/v1/ping status = %d, want 200", w.Code)
	}
	var csrfCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "_csrf_token" {
			csrfCookie = c
		}
	}
	if csrfCookie == nil || csrfCookie.Value == "" {
		t.Fatal("expected _csrf_token cookie on safe request")
	}

	t.Run("unsafe request without token is rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/ping", nil))
		if w.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", w.Code)
		}
	})

	t.Run("unsafe request with token passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/ping", nil)
		req.AddCookie(csrfCookie)
		req.Header.Set("X-CSRF-Token", csrfCookie.Value)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200; body=%s", w.Code, w.Body.String())
		}
	})

	t.Run("protected route without session", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/secret", nil))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", w.Code)
		}
		if !strings.Contains(w.Body.String(), `"redirect":"/login"`) {
			t.Fatalf("body = %s, want login redirect", w.Body.String())
		}
	})

	t.Run("protected route with stale session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/secret", nil)
		req.AddCookie(&http.Cookie{Name: "denuncias_session", Value: "gone"})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", w.Code)
		}
	})

	t.Run("protected route with session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/secret", nil)
		req.AddCookie(&http.Cookie{Name: "denuncias_session", Value: "sess-1"})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if !strings.Contains(w.Body.String(), "ana@muni.cl") {
			t.Fatalf("body = %s, want session email", w.Body.String())
		}
	})

	t.Run("metrics", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "# metrics") {
			t.Fatalf("GET /metrics = %d %q", w.Code, w.Body.String())
		}
	})
}

func TestNoRouteHandler(t *testing.T) {
	r := gin.New()
	if err := RegisterRoutes(r, testRouteDeps(&mockModule{})); err != nil {
		t.Fatalf("RegisterRoutes() error = %v", err)
	}

	for _, path := range []string{"/api/v1/nope", "/nope", "/static/app.css"} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, path, nil)
			req.Header.Set("Accept", "text/html")
			r.ServeHTTP(w, req)

			if w.Code != http.StatusNotFound {
				t.Fatalf("status = %d, want 404", w.Code)
			}
			var resp pkg.Response
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("expected JSON body, got %q: %v", w.Body.String(), err)
			}
			if resp.Code != http.StatusNotFound || resp.Message != "not found" {
				t.Fatalf("resp = %+v", resp)
			}
		})
	}
}
