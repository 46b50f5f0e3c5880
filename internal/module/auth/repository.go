package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/simp-lee/denuncias-admin/internal/domain"
	"github.com/simp-lee/denuncias-admin/internal/pkg"
)

// sessionRepository implements domain.SessionRepository using GORM.
type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository creates a new SessionRepository backed by the given GORM database.
func NewSessionRepository(db *gorm.DB) domain.SessionRepository {
	return &sessionRepository{db: db}
}

// Create inserts a new session.
func (r *sessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return mapError(err)
	}
	return nil
}

// GetByID retrieves a session by its id.
func (r *sessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	var session domain.Session
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		return nil, mapError(err)
	}
	return &session, nil
}

// Delete removes a session by id.
func (r *sessionRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Session{})
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteExpired removes every session that expired at or before now and
// returns their ids.
func (r *sessionRepository) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := pkg.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Session{}).Where("expires_at <= ?", now).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Where("id IN ?", ids).Delete(&domain.Session{}).Error
	})
	if err != nil {
		return nil, mapError(err)
	}
	return ids, nil
}

// mapError converts GORM errors to domain errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicateKeyError(err) {
		return domain.NewAppError(domain.CodeAlreadyExists, "El registro ya existe.", err)
	}
	return domain.NewAppError(domain.CodeInternal, "Error de base de datos.", err)
}

// isDuplicateKeyError detects unique constraint violations by examining the
// error message. Not all GORM dialectors translate driver-level errors to
// gorm.ErrDuplicatedKey (e.g. the pure-Go SQLite driver).
func isDuplicateKeyError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}
