package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/walehn/reader-study-backend/internal/pkg/logger"
	"github.com/walehn/reader-study-backend/internal/types"
)

type StudySessionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, session *types.StudySession) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.StudySession, error)
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.StudySession, error)
	GetByReaderAndCode(ctx context.Context, tx *gorm.DB, readerID uuid.UUID, sessionCode string) (*types.StudySession, error)
	ListByReader(ctx context.Context, tx *gorm.DB, readerID uuid.UUID) ([]*types.StudySession, error)
	Save(ctx context.Context, tx *gorm.DB, session *types.StudySession) error
}

type studySessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStudySessionRepo(db *gorm.DB, baseLog *logger.Logger) StudySessionRepo {
	repoLog := baseLog.With("repo", "StudySessionRepo")
	return &studySessionRepo{db: db, log: repoLog}
}

func (r *studySessionRepo) Create(ctx context.Context, tx *gorm.DB, session *types.StudySession) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if session == nil {
		return nil
	}

	return transaction.WithContext(ctx).Create(session).Error
}

func (r *studySessionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.StudySession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.StudySession
	if err := transaction.WithContext(ctx).
		Preload("Progress").
		Where("id = ?", id).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

// GetByIDForUpdate locks the session row for the remainder of the
// enclosing transaction. Progress is not preloaded; fetch it through
// SessionProgressRepo inside the same transaction.
func (r *studySessionRepo) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.StudySession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	query := transaction.WithContext(ctx)
	if transaction.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var result types.StudySession
	if err := query.
		Where("id = ?", id).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *studySessionRepo) GetByReaderAndCode(ctx context.Context, tx *gorm.DB, readerID uuid.UUID, sessionCode string) (*types.StudySession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.StudySession
	if err := transaction.WithContext(ctx).
		Where("reader_id = ? AND session_code = ?", readerID, sessionCode).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *studySessionRepo) ListByReader(ctx context.Context, tx *gorm.DB, readerID uuid.UUID) ([]*types.StudySession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.StudySession
	if readerID == uuid.Nil {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Preload("Progress").
		Where("reader_id = ?", readerID).
		Order("session_code").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *studySessionRepo) Save(ctx context.Context, tx *gorm.DB, session *types.StudySession) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if session == nil {
		return nil
	}

	// Save would also cascade the Progress association; persist only the
	// session's own columns.
	return transaction.WithContext(ctx).
		Omit("Progress", "Reader").
		Save(session).Error
}
