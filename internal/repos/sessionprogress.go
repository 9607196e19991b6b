package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/walehn/reader-study-backend/internal/pkg/logger"
	"github.com/walehn/reader-study-backend/internal/types"
)

type SessionProgressRepo interface {
	Create(ctx context.Context, tx *gorm.DB, progress *types.SessionProgress) error
	GetBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*types.SessionProgress, error)
	Save(ctx context.Context, tx *gorm.DB, progress *types.SessionProgress) error
	DeleteBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) error
}

type sessionProgressRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionProgressRepo(db *gorm.DB, baseLog *logger.Logger) SessionProgressRepo {
	repoLog := baseLog.With("repo", "SessionProgressRepo")
	return &sessionProgressRepo{db: db, log: repoLog}
}

func (r *sessionProgressRepo) Create(ctx context.Context, tx *gorm.DB, progress *types.SessionProgress) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if progress == nil {
		return nil
	}

	return transaction.WithContext(ctx).Create(progress).Error
}

func (r *sessionProgressRepo) GetBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*types.SessionProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.SessionProgress
	if err := transaction.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *sessionProgressRepo) Save(ctx context.Context, tx *gorm.DB, progress *types.SessionProgress) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if progress == nil {
		return nil
	}

	return transaction.WithContext(ctx).Save(progress).Error
}

func (r *sessionProgressRepo) DeleteBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&types.SessionProgress{}).Error
}
