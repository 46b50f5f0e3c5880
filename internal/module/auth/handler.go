package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/denuncias-admin/internal/middleware"
	"github.com/simp-lee/denuncias-admin/internal/pkg"
)

// CookieSettings configures the session cookie.
type CookieSettings struct {
	Name   string
	Secure bool
}

// AuthHandler handles REST API requests for staff sessions.
type AuthHandler struct {
	svc    Service
	cookie CookieSettings
}

// NewHandler creates a new AuthHandler with the given service.
func NewHandler(svc Service, cookie CookieSettings) *AuthHandler {
	return &AuthHandler{svc: svc, cookie: cookie}
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	session, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	pkg.Success(c, toSessionResponse(session))
}

// Logout handles POST /api/v1/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	session := middleware.CurrentSession(c)
	if session == nil {
		middleware.AbortUnauthorized(c, "Debe iniciar sesión.")
		return
	}
	if err := h.svc.Logout(c.Request.Context(), session.ID); err != nil {
		pkg.Error(c, err)
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	pkg.Success(c, pkg.RedirectData{Redirect: pkg.LoginPath})
}

// Me handles GET /api/v1/auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	session := middleware.CurrentSession(c)
	if session == nil {
		middleware.AbortUnauthorized(c, "Debe iniciar sesión.")
		return
	}
	pkg.Success(c, toSessionResponse(session))
}

// CSRFToken handles GET /api/v1/auth/csrf. The CSRF middleware has already
// issued the cookie; the body repeats the token for the header.
func (h *AuthHandler) CSRFToken(c *gin.Context) {
	pkg.Success(c, CSRFResponse{Token: middleware.GetCSRFToken(c)})
}
