package auth

import (
	"time"

	"github.com/simp-lee/denuncias-admin/internal/domain"
)

// LoginRequest represents the staff login input.
type LoginRequest struct {
	Email    string `json:"email" form:"email" binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required,max=128"`
}

// SessionResponse represents the signed-in staff member.
type SessionResponse struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CSRFResponse carries the token to echo in the X-CSRF-Token header.
type CSRFResponse struct {
	Token string `json:"token"`
}

func toSessionResponse(s *domain.Session) SessionResponse {
	return SessionResponse{Email: s.Email, Name: s.Name, Role: s.Role, ExpiresAt: s.ExpiresAt}
}
