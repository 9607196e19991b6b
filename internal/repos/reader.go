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

type ReaderRepo interface {
	Create(ctx context.Context, tx *gorm.DB, readers []*types.Reader) ([]*types.Reader, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Reader, error)
	GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*types.Reader, error)
	EmailExists(ctx context.Context, tx *gorm.DB, email string) (bool, error)
	CodeExists(ctx context.Context, tx *gorm.DB, readerCode string) (bool, error)
	UpdateLastLogin(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error
}

type readerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReaderRepo(db *gorm.DB, baseLog *logger.Logger) ReaderRepo {
	repoLog := baseLog.With("repo", "ReaderRepo")
	return &readerRepo{db: db, log: repoLog}
}

func (r *readerRepo) Create(ctx context.Context, tx *gorm.DB, readers []*types.Reader) ([]*types.Reader, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(readers) == 0 {
		return []*types.Reader{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&readers).Error; err != nil {
		return nil, err
	}
	return readers, nil
}

func (r *readerRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Reader, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.Reader
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *readerRepo) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*types.Reader, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.Reader
	if err := transaction.WithContext(ctx).
		Where("email = ?", email).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *readerRepo) EmailExists(ctx context.Context, tx *gorm.DB, email string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Reader{}).
		Where("email = ?", email).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *readerRepo) CodeExists(ctx context.Context, tx *gorm.DB, readerCode string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Reader{}).
		Where("reader_code = ?", readerCode).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *readerRepo) UpdateLastLogin(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Model(&types.Reader{}).
		Where("id = ?", id).
		Update("last_login_at", at).Error
}
