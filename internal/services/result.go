package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	errs "github.com/walehn/reader-study-backend/internal/pkg/errors"
	"github.com/walehn/reader-study-backend/internal/pkg/logger"
	"github.com/walehn/reader-study-backend/internal/repos"
	"github.com/walehn/reader-study-backend/internal/types"
)

type LesionInput struct {
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Z          int    `json:"z"`
	Confidence string `json:"confidence"`
}

type SubmitResultInput struct {
	SessionID       uuid.UUID     `json:"session_id"`
	CaseID          string        `json:"case_id"`
	Mode            string        `json:"mode"`
	PatientDecision bool          `json:"patient_decision"`
	TimeSpentSec    float64       `json:"time_spent_sec"`
	Lesions         []LesionInput `json:"lesions"`
}

type StudyResultService interface {
	Submit(ctx context.Context, readerID uuid.UUID, input SubmitResultInput) (*types.StudyResult, error)
	ListByCase(ctx context.Context, caseID string) ([]*types.StudyResult, error)
}

type studyResultService struct {
	db          *gorm.DB
	log         *logger.Logger
	resultRepo  repos.StudyResultRepo
	sessionRepo repos.StudySessionRepo
	auditRepo   repos.AuditLogRepo
	configSvc   StudyConfigService
}

func NewStudyResultService(
	db *gorm.DB,
	log *logger.Logger,
	resultRepo repos.StudyResultRepo,
	sessionRepo repos.StudySessionRepo,
	auditRepo repos.AuditLogRepo,
	configSvc StudyConfigService,
) StudyResultService {
	serviceLog := log.With("service", "StudyResultService")
	return &studyResultService{
		db:          db,
		log:         serviceLog,
		resultRepo:  resultRepo,
		sessionRepo: sessionRepo,
		auditRepo:   auditRepo,
		configSvc:   configSvc,
	}
}

// Submit stores one patient-level decision with its lesion marks. The
// submission must match the session's current block: right mode, case
// present in that block's order, lesion count within the session's
// k_max snapshot.
func (s *studyResultService) Submit(ctx context.Context, readerID uuid.UUID, input SubmitResultInput) (*types.StudyResult, error) {
	if input.CaseID == "" {
		return nil, fmt.Errorf("%w: case_id is required", errs.ErrInvalidArgument)
	}
	if input.Mode != types.ModeAided && input.Mode != types.ModeUnaided {
		return nil, fmt.Errorf("%w: mode must be AIDED or UNAIDED", errs.ErrInvalidArgument)
	}
	if input.TimeSpentSec < 0 {
		return nil, fmt.Errorf("%w: time_spent_sec cannot be negative", errs.ErrInvalidArgument)
	}
	for i, lesion := range input.Lesions {
		switch lesion.Confidence {
		case types.ConfidenceDefinite, types.ConfidenceProbable, types.ConfidencePossible:
		default:
			return nil, fmt.Errorf("%w: lesion %d has invalid confidence %q", errs.ErrInvalidArgument, i, lesion.Confidence)
		}
	}

	cfg, err := s.configSvc.GetOrCreate(ctx)
	if err != nil {
		return nil, err
	}

	var result *types.StudyResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session, err := s.sessionRepo.GetByID(ctx, tx, input.SessionID)
		if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}
		if session == nil {
			return fmt.Errorf("%w: session %s", errs.ErrNotFound, input.SessionID)
		}
		if session.ReaderID != readerID {
			return fmt.Errorf("%w: session belongs to another reader", errs.ErrForbidden)
		}
		if session.Status != types.SessionStatusInProgress {
			return fmt.Errorf("%w: session is %s, not in_progress", errs.ErrIllegalState, session.Status)
		}
		if session.Progress == nil {
			return fmt.Errorf("%w: session has no progress row", errs.ErrIllegalState)
		}

		orderA, orderB, err := decodeOrders(session)
		if err != nil {
			return err
		}
		blockOrder := orderA
		blockMode := session.BlockAMode
		if session.Progress.CurrentBlock == types.BlockB {
			blockOrder = orderB
			blockMode = session.BlockBMode
		}

		if input.Mode != blockMode {
			return fmt.Errorf("%w: block %s expects %s submissions, got %s",
				errs.ErrInvalidArgument, session.Progress.CurrentBlock, blockMode, input.Mode)
		}
		if !contains(blockOrder, input.CaseID) {
			return fmt.Errorf("%w: case %s is not in the current block", errs.ErrInvalidArgument, input.CaseID)
		}
		if len(input.Lesions) > session.KMax {
			return fmt.Errorf("%w: %d lesion marks exceed the limit of %d",
				errs.ErrInvalidArgument, len(input.Lesions), session.KMax)
		}
		if cfg.RequireLesionMarking && input.PatientDecision && len(input.Lesions) == 0 {
			return fmt.Errorf("%w: a positive decision requires at least one lesion mark", errs.ErrInvalidArgument)
		}

		exists, err := s.resultRepo.Exists(ctx, tx, readerID, input.SessionID, input.CaseID)
		if err != nil {
			return fmt.Errorf("failed to check for duplicate result: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: result already submitted for case %s", errs.ErrConflict, input.CaseID)
		}

		resultID := uuid.New()
		lesions := make([]types.LesionMark, 0, len(input.Lesions))
		for i, lesion := range input.Lesions {
			lesions = append(lesions, types.LesionMark{
				ID:         uuid.New(),
				ResultID:   resultID,
				X:          lesion.X,
				Y:          lesion.Y,
				Z:          lesion.Z,
				Confidence: lesion.Confidence,
				MarkOrder:  i,
			})
		}
		result = &types.StudyResult{
			ID:              resultID,
			ReaderID:        readerID,
			SessionID:       input.SessionID,
			Mode:            input.Mode,
			CaseID:          input.CaseID,
			PatientDecision: input.PatientDecision,
			TimeSpentSec:    input.TimeSpentSec,
			Lesions:         lesions,
		}
		if err := s.resultRepo.Create(ctx, tx, result); err != nil {
			return fmt.Errorf("failed to store result: %w", err)
		}

		details, _ := json.Marshal(map[string]any{
			"session_id":       input.SessionID.String(),
			"mode":             input.Mode,
			"patient_decision": input.PatientDecision,
			"lesion_count":     len(input.Lesions),
		})
		entry := &types.AuditLog{
			ID:           uuid.New(),
			ReaderID:     &readerID,
			Action:       types.AuditCaseSubmit,
			ResourceType: "case",
			ResourceID:   input.CaseID,
			Details:      datatypes.JSON(details),
		}
		if err := s.auditRepo.Create(ctx, tx, entry); err != nil {
			s.log.Error("Failed to write submit audit entry", "error", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *studyResultService) ListByCase(ctx context.Context, caseID string) ([]*types.StudyResult, error) {
	if caseID == "" {
		return nil, fmt.Errorf("%w: case id is required", errs.ErrInvalidArgument)
	}
	results, err := s.resultRepo.ListByCase(ctx, nil, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	return results, nil
}

func contains(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}
