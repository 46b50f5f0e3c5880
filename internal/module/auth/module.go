package auth

import "github.com/gin-gonic/gin"

// AuthModule implements the app.Module interface for staff sessions.
type AuthModule struct {
	handler *AuthHandler
}

// NewModule creates a new AuthModule with the given handler.
// Panics if h is nil.
func NewModule(h *AuthHandler) *AuthModule {
	if h == nil {
		panic("auth.NewModule: handler must not be nil")
	}
	return &AuthModule{handler: h}
}

// RegisterRoutes registers auth API routes. Login and the CSRF token are
// public; the rest need a live session.
func (m *AuthModule) RegisterRoutes(public *gin.RouterGroup, protected *gin.RouterGroup) {
	auth := public.Group("/auth")
	auth.POST("/login", m.handler.Login)
	auth.GET("/csrf", m.handler.CSRFToken)

	session := protected.Group("/auth")
	session.POST("/logout", m.handler.Logout)
	session.GET("/me", m.handler.Me)
}
