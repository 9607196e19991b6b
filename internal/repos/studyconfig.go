package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/walehn/reader-study-backend/internal/pkg/logger"
	"github.com/walehn/reader-study-backend/internal/types"
)

type StudyConfigRepo interface {
	Get(ctx context.Context, tx *gorm.DB) (*types.StudyConfig, error)
	GetForUpdate(ctx context.Context, tx *gorm.DB) (*types.StudyConfig, error)
	Create(ctx context.Context, tx *gorm.DB, cfg *types.StudyConfig) error
	Save(ctx context.Context, tx *gorm.DB, cfg *types.StudyConfig) error
}

type studyConfigRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStudyConfigRepo(db *gorm.DB, baseLog *logger.Logger) StudyConfigRepo {
	repoLog := baseLog.With("repo", "StudyConfigRepo")
	return &studyConfigRepo{db: db, log: repoLog}
}

func (r *studyConfigRepo) Get(ctx context.Context, tx *gorm.DB) (*types.StudyConfig, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.StudyConfig
	if err := transaction.WithContext(ctx).
		Where("id = ?", types.StudyConfigSingletonID).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

// GetForUpdate reads the singleton row under an exclusive row lock so
// that lock transitions and structural updates serialize. Must be called
// inside a transaction. sqlite has no FOR UPDATE; its single-connection
// pool already serializes writers.
func (r *studyConfigRepo) GetForUpdate(ctx context.Context, tx *gorm.DB) (*types.StudyConfig, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	query := transaction.WithContext(ctx)
	if transaction.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var result types.StudyConfig
	if err := query.
		Where("id = ?", types.StudyConfigSingletonID).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *studyConfigRepo) Create(ctx context.Context, tx *gorm.DB, cfg *types.StudyConfig) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if cfg == nil {
		return nil
	}

	return transaction.WithContext(ctx).Create(cfg).Error
}

func (r *studyConfigRepo) Save(ctx context.Context, tx *gorm.DB, cfg *types.StudyConfig) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if cfg == nil {
		return nil
	}

	return transaction.WithContext(ctx).Save(cfg).Error
}
