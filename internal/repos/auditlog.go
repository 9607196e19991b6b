package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/walehn/reader-study-backend/internal/pkg/logger"
	"github.com/walehn/reader-study-backend/internal/types"
)

type AuditLogRepo interface {
	Create(ctx context.Context, tx *gorm.DB, entry *types.AuditLog) error
	ListByReader(ctx context.Context, tx *gorm.DB, readerID uuid.UUID, limit int) ([]*types.AuditLog, error)
}

type auditLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditLogRepo(db *gorm.DB, baseLog *logger.Logger) AuditLogRepo {
	repoLog := baseLog.With("repo", "AuditLogRepo")
	return &auditLogRepo{db: db, log: repoLog}
}

func (r *auditLogRepo) Create(ctx context.Context, tx *gorm.DB, entry *types.AuditLog) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if entry == nil {
		return nil
	}

	return transaction.WithContext(ctx).Create(entry).Error
}

func (r *auditLogRepo) ListByReader(ctx context.Context, tx *gorm.DB, readerID uuid.UUID, limit int) ([]*types.AuditLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.AuditLog
	if readerID == uuid.Nil {
		return results, nil
	}

	query := transaction.WithContext(ctx).
		Where("reader_id = ?", readerID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
