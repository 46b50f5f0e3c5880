package auth

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/simp-lee/denuncias-admin/internal/api"
	"github.com/simp-lee/denuncias-admin/internal/domain"
)

// Authenticator exchanges staff credentials with the complaints API.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*api.LoginResult, error)
}

// WorkspaceCloser tears down the in-memory state of a session.
type WorkspaceCloser interface {
	Close(id string) bool
}

// Service defines the session operations.
type Service interface {
	Login(ctx context.Context, email, password string) (*domain.Session, error)
	Resolve(ctx context.Context, id string) (*domain.Session, error)
	Logout(ctx context.Context, id string) error
	// Expire ends a session whose token the complaints API rejected.
	Expire(id string)
	PurgeExpired(ctx context.Context) (int, error)
}

// staffClaims are the claims the complaints API puts in its tokens.
type staffClaims struct {
	Role  string `json:"rol"`
	Email string `json:"email"`
	Name  string `json:"nombre"`
	jwt.RegisteredClaims
}

var errSessionExpired = domain.NewAppError(domain.CodeUnauthorized, "La sesión expiró.", nil)

// authService implements Service.
type authService struct {
	upstream   Authenticator
	repo       domain.SessionRepository
	workspaces WorkspaceCloser
	ttl        time.Duration
	now        func() time.Time
	newID      func() string
	logger     *slog.Logger
}

// NewService creates a new session Service. ttl caps how long a session
// lives even when the upstream token is valid for longer.
func NewService(upstream Authenticator, repo domain.SessionRepository, workspaces WorkspaceCloser, ttl time.Duration, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &authService{
		upstream:   upstream,
		repo:       repo,
		workspaces: workspaces,
		ttl:        ttl,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
		logger:     logger,
	}
}

// Login authenticates against the complaints API and opens a session for
// staff members. Other roles are refused.
func (s *authService) Login(ctx context.Context, email, password string) (*domain.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, domain.NewAppError(domain.CodeValidation, "Debe ingresar correo y contraseña.", nil)
	}

	res, err := s.upstream.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	// The complaints API verifies its own tokens; the portal only reads them.
	var claims staffClaims
	if _, _, err := jwt.NewParser().ParseUnverified(res.Token, &claims); err != nil {
		return nil, domain.NewAppError(domain.CodeUnauthorized, "El servicio de denuncias entregó un token no válido.", err)
	}
	if claims.Role != domain.RoleStaff {
		s.logger.WarnContext(ctx, "login refused for non-staff role",
			slog.String("email", email), slog.String("role", claims.Role))
		return nil, domain.NewAppError(domain.CodeForbidden, "Acceso restringido a funcionarios municipales.", nil)
	}

	now := s.now()
	expires := now.Add(s.ttl)
	if claims.ExpiresAt != nil && claims.ExpiresAt.Time.Before(expires) {
		expires = claims.ExpiresAt.Time.UTC()
	}
	if !now.Before(expires) {
		return nil, domain.NewAppError(domain.CodeUnauthorized, "La sesión expiró.", nil)
	}

	session := &domain.Session{
		ID:        s.newID(),
		Email:     firstNonEmpty(claims.Email, res.Email, claims.Subject, email),
		Name:      firstNonEmpty(claims.Name, res.Name, res.Username),
		Role:      claims.Role,
		Token:     res.Token,
		ExpiresAt: expires,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "staff signed in",
		slog.String("email", session.Email), slog.Time("expires_at", session.ExpiresAt))
	return session, nil
}

// Resolve returns the live session with id. Missing and expired sessions
// are unauthorized; expired ones are removed on the way.
func (s *authService) Resolve(ctx context.Context, id string) (*domain.Session, error) {
	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			s.workspaces.Close(id)
			return nil, errSessionExpired
		}
		return nil, err
	}
	if session.Expired(s.now()) {
		if err := s.repo.Delete(ctx, id); err != nil && !domain.IsNotFound(err) {
			return nil, err
		}
		s.workspaces.Close(id)
		return nil, errSessionExpired
	}
	return session, nil
}

// Logout ends the session and its workspace. Ending an unknown session is
// not an error.
func (s *authService) Logout(ctx context.Context, id string) error {
	s.workspaces.Close(id)
	if err := s.repo.Delete(ctx, id); err != nil && !domain.IsNotFound(err) {
		return err
	}
	s.logger.InfoContext(ctx, "staff signed out")
	return nil
}

// Expire runs outside any request, so it bounds its own store access.
func (s *authService) Expire(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.workspaces.Close(id)
	if err := s.repo.Delete(ctx, id); err != nil && !domain.IsNotFound(err) {
		s.logger.Error("failed to remove rejected session", slog.String("session_id", id), slog.String("error", err.Error()))
		return
	}
	s.logger.Info("session ended after the complaints API rejected its token", slog.String("session_id", id))
}

// PurgeExpired removes expired sessions and their workspaces.
func (s *authService) PurgeExpired(ctx context.Context) (int, error) {
	ids, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.workspaces.Close(id)
	}
	if len(ids) > 0 {
		s.logger.InfoContext(ctx, "expired sessions purged", slog.Int("count", len(ids)))
	}
	return len(ids), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
