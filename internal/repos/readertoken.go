package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/walehn/reader-study-backend/internal/pkg/logger"
	"github.com/walehn/reader-study-backend/internal/types"
)

type ReaderTokenRepo interface {
	Create(ctx context.Context, tx *gorm.DB, token *types.ReaderToken) error
	GetByHash(ctx context.Context, tx *gorm.DB, tokenHash string) (*types.ReaderToken, error)
	Revoke(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	RevokeAllForReader(ctx context.Context, tx *gorm.DB, readerID uuid.UUID) error
	DeleteExpired(ctx context.Context, tx *gorm.DB, before time.Time) error
}

type readerTokenRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReaderTokenRepo(db *gorm.DB, baseLog *logger.Logger) ReaderTokenRepo {
	repoLog := baseLog.With("repo", "ReaderTokenRepo")
	return &readerTokenRepo{db: db, log: repoLog}
}

func (r *readerTokenRepo) Create(ctx context.Context, tx *gorm.DB, token *types.ReaderToken) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if token == nil {
		return nil
	}

	return transaction.WithContext(ctx).Create(token).Error
}

func (r *readerTokenRepo) GetByHash(ctx context.Context, tx *gorm.DB, tokenHash string) (*types.ReaderToken, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.ReaderToken
	if err := transaction.WithContext(ctx).
		Where("token_hash = ?", tokenHash).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *readerTokenRepo) Revoke(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Model(&types.ReaderToken{}).
		Where("id = ?", id).
		Update("revoked", true).Error
}

func (r *readerTokenRepo) RevokeAllForReader(ctx context.Context, tx *gorm.DB, readerID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Model(&types.ReaderToken{}).
		Where("reader_id = ? AND revoked = ?", readerID, false).
		Update("revoked", true).Error
}

func (r *readerTokenRepo) DeleteExpired(ctx context.Context, tx *gorm.DB, before time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&types.ReaderToken{}).Error
}
