package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/logger"

	"github.com/simp-lee/denuncias-admin/internal/domain"
	"github.com/simp-lee/denuncias-admin/internal/pkg"
)

const sessionContextKey = "staff_session"

// LoginPath is where the front end sends staff whose session ended.
const LoginPath = pkg.LoginPath

// SessionResolver looks up a live session by id.
type SessionResolver interface {
	Resolve(ctx context.Context, id string) (*domain.Session, error)
}

// RequireSession admits requests carrying a live session cookie. Others get
// 401 with a redirect hint:
//
//	{"code": 401, "message": "...", "data": {"redirect": "/login"}}
func RequireSession(resolver SessionResolver, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(cookieName)
		if err != nil || id == "" {
			AbortUnauthorized(c, "Debe iniciar sesión.")
			return
		}

		s, err := resolver.Resolve(c.Request.Context(), id)
		if err != nil {
			if domain.IsAuth(err) || domain.IsNotFound(err) {
				AbortUnauthorized(c, domain.UserMessage(err))
				return
			}
			slog.ErrorContext(c.Request.Context(), "session lookup failed", slog.String("error", err.Error()))
			abortJSON(c, http.StatusInternalServerError, "internal error")
			return
		}

		c.Set(sessionContextKey, s)
		ctx := logger.WithContextAttrs(c.Request.Context(), slog.String("session_id", s.ID))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CurrentSession returns the session admitted by RequireSession, or nil.
func CurrentSession(c *gin.Context) *domain.Session {
	if v, ok := c.Get(sessionContextKey); ok {
		if s, ok := v.(*domain.Session); ok {
			return s
		}
	}
	return nil
}

// AbortUnauthorized ends the request with 401 and the login redirect hint.
func AbortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    http.StatusUnauthorized,
		"message": message,
		"data":    pkg.RedirectData{Redirect: LoginPath},
	})
}
