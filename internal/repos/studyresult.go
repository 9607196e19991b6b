package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/walehn/reader-study-backend/internal/pkg/logger"
	"github.com/walehn/reader-study-backend/internal/types"
)

type StudyResultRepo interface {
	Create(ctx context.Context, tx *gorm.DB, result *types.StudyResult) error
	Exists(ctx context.Context, tx *gorm.DB, readerID, sessionID uuid.UUID, caseID string) (bool, error)
	ListByCase(ctx context.Context, tx *gorm.DB, caseID string) ([]*types.StudyResult, error)
	CountBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int64, error)
}

type studyResultRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStudyResultRepo(db *gorm.DB, baseLog *logger.Logger) StudyResultRepo {
	repoLog := baseLog.With("repo", "StudyResultRepo")
	return &studyResultRepo{db: db, log: repoLog}
}

func (r *studyResultRepo) Create(ctx context.Context, tx *gorm.DB, result *types.StudyResult) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if result == nil {
		return nil
	}

	// Creates the lesion marks through the association in the same insert.
	return transaction.WithContext(ctx).Create(result).Error
}

func (r *studyResultRepo) Exists(ctx context.Context, tx *gorm.DB, readerID, sessionID uuid.UUID, caseID string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.StudyResult{}).
		Where("reader_id = ? AND session_id = ? AND case_id = ?", readerID, sessionID, caseID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *studyResultRepo) ListByCase(ctx context.Context, tx *gorm.DB, caseID string) ([]*types.StudyResult, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.StudyResult
	if caseID == "" {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Preload("Lesions").
		Where("case_id = ?", caseID).
		Order("created_at").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *studyResultRepo) CountBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.StudyResult{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
