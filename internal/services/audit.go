package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	errs "github.com/walehn/reader-study-backend/internal/pkg/errors"
	"github.com/walehn/reader-study-backend/internal/pkg/logger"
	"github.com/walehn/reader-study-backend/internal/repos"
	"github.com/walehn/reader-study-backend/internal/types"
)

// AuditEvent is one recordable action with its request context.
type AuditEvent struct {
	ReaderID     *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   string
	IPAddress    string
	UserAgent    string
	Details      map[string]any
}

type AuditService interface {
	Record(ctx context.Context, event AuditEvent)
	ListForReader(ctx context.Context, readerID uuid.UUID, limit int) ([]*types.AuditLog, error)
}

type auditService struct {
	log       *logger.Logger
	auditRepo repos.AuditLogRepo
}

func NewAuditService(log *logger.Logger, auditRepo repos.AuditLogRepo) AuditService {
	serviceLog := log.With("service", "AuditService")
	return &auditService{log: serviceLog, auditRepo: auditRepo}
}

// Record is best effort: a failed audit write is logged, never surfaced
// to the operation being audited.
func (s *auditService) Record(ctx context.Context, event AuditEvent) {
	entry := &types.AuditLog{
		ID:           uuid.New(),
		ReaderID:     event.ReaderID,
		Action:       event.Action,
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		IPAddress:    event.IPAddress,
		UserAgent:    event.UserAgent,
	}
	if event.Details != nil {
		raw, _ := json.Marshal(event.Details)
		entry.Details = datatypes.JSON(raw)
	}
	if err := s.auditRepo.Create(ctx, nil, entry); err != nil {
		s.log.Error("Failed to write audit entry", "action", event.Action, "error", err)
	}
}

func (s *auditService) ListForReader(ctx context.Context, readerID uuid.UUID, limit int) ([]*types.AuditLog, error) {
	if readerID == uuid.Nil {
		return nil, fmt.Errorf("%w: reader id is required", errs.ErrInvalidArgument)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	entries, err := s.auditRepo.ListByReader(ctx, nil, readerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}
