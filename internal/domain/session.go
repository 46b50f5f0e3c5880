package domain

import (
	"context"
	"time"
)

// RoleStaff is the only role allowed into the portal.
const RoleStaff = "FUNCIONARIO"

// Session is an authenticated staff session. Token is the bearer credential
// issued by the complaints API and is never serialized to clients.
type Session struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Email     string    `gorm:"size:255;index;not null" json:"email"`
	Name      string    `gorm:"size:200" json:"name"`
	Role      string    `gorm:"size:50" json:"role"`
	Token     string    `gorm:"type:text;not null" json:"-"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expired reports whether the session is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionRepository defines the data access interface for sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes sessions that expired at or before now and
	// returns their ids.
	DeleteExpired(ctx context.Context, now time.Time) ([]string, error)
}
