package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/simp-lee/denuncias-admin/internal/middleware"
)

// RouteDeps holds all dependencies needed to register routes.
type RouteDeps struct {
	Modules    []Module
	DB         *gorm.DB
	Metrics    http.Handler // served at /metrics when set
	Sessions   middleware.SessionResolver
	CookieName string
	CSRFSecret string
	Secure     bool
}

// RegisterRoutes registers all application routes on the given gin.Engine.
func RegisterRoutes(r *gin.Engine, deps *RouteDeps) error {
	if r == nil {
		return errors.New("router is nil")
	}
	if deps == nil {
		return errors.New("route dependencies are nil")
	}
	if len(deps.Modules) == 0 {
		return errors.New("at least one module is required")
	}
	if strings.TrimSpace(deps.CSRFSecret) == "" {
		return errors.New("csrf secret is required")
	}
	if deps.Sessions == nil {
		return errors.New("session resolver is required")
	}
	if strings.TrimSpace(deps.CookieName) == "" {
		return errors.New("session cookie name is required")
	}

	r.GET("/health", healthHandler(deps.DB))
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	// Sessions ride on cookies, so every API route carries CSRF protection.
	public := r.Group("/api/v1")
	public.Use(middleware.CSRF(middleware.CSRFConfig{
		Secret: deps.CSRFSecret,
		Secure: deps.Secure,
	}))

	protected := public.Group("")
	protected.Use(middleware.RequireSession(deps.Sessions, deps.CookieName))

	for i, m := range deps.Modules {
		if m == nil {
			return fmt.Errorf("module at index %d is nil", i)
		}
		m.RegisterRoutes(public, protected)
	}

	r.NoRoute(noRouteHandler())

	return nil
}

// healthHandler returns a handler that pings the database and reports status.
func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbStatus := "ok"
		status := "ok"
		code := http.StatusOK

		if db == nil {
			dbStatus = "error"
		} else if sqlDB, err := db.DB(); err != nil {
			dbStatus = "error"
		} else {
			ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
			defer cancel()
			if err := sqlDB.PingContext(ctx); err != nil {
				dbStatus = "error"
			}
		}
		if dbStatus != "ok" {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status": status,
			"components": gin.H{
				"database": dbStatus,
			},
		})
	}
}

// noRouteHandler answers unknown paths with the JSON envelope.
func noRouteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		renderError(c, http.StatusNotFound, "not found")
	}
}
