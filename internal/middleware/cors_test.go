package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func setupCORSRouter(mw gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw)
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func corsRequest(r *gin.Engine, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/test", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORS_NoOriginSkipsHeaders(t *testing.T) {
	w := corsRequest(setupCORSRouter(CORS()), http.MethodGet, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q; want none", got)
	}
}

func TestCORS_Default_EchoesOriginWithCredentials(t *testing.T) {
	w := corsRequest(setupCORSRouter(CORS()), http.MethodGet, "http://localhost:5173")

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q; want echoed origin", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q; want true", got)
	}
	if got := w.Header().Get("Access-Control-Max-Age"); got != "43200" {
		t.Errorf("Max-Age = %q; want 43200", got)
	}
	if got := w.Header().Get("Access-Control-Expose-Headers"); got != "X-Request-ID" {
		t.Errorf("Expose-Headers = %q", got)
	}
}

func TestCORS_WildcardWithoutCredentials(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowCredentials = false
	w := corsRequest(setupCORSRouter(CORSWithConfig(cfg)), http.MethodGet, "http://any.example")

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q; want *", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("Allow-Credentials = %q; want none", got)
	}
}

func TestCORS_SpecificOrigins(t *testing.T) {
	cfg := CORSConfig{
		AllowOrigins: []string{"https://portal.muni.cl"},
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Content-Type", "X-CSRF-Token"},
		MaxAge:       time.Hour,
	}
	r := setupCORSRouter(CORSWithConfig(cfg))

	tests := []struct {
		origin     string
		wantOrigin string
	}{
		{"https://portal.muni.cl", "https://portal.muni.cl"},
		{"https://evil.example", ""},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			w := corsRequest(r, http.MethodGet, tt.origin)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d; want 200", w.Code)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q; want %q", got, tt.wantOrigin)
			}
			if got := w.Header().Get("Vary"); got != "Origin" {
				t.Errorf("Vary = %q; want Origin", got)
			}
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	w := corsRequest(setupCORSRouter(CORS()), http.MethodOptions, "http://localhost:5173")

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d; want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, PUT, DELETE, OPTIONS" {
		t.Errorf("Allow-Methods = %q", got)
	}
}

func TestCORS_ZeroMaxAgeOmitsHeader(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.MaxAge = 0
	w := corsRequest(setupCORSRouter(CORSWithConfig(cfg)), http.MethodGet, "http://localhost:5173")
	if got := w.Header().Get("Access-Control-Max-Age"); got != "" {
		t.Errorf("Max-Age = %q; want none", got)
	}
}
