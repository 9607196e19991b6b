package services

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	errs "github.com/walehn/reader-study-backend/internal/pkg/errors"
	"github.com/walehn/reader-study-backend/internal/pkg/logger"
	"github.com/walehn/reader-study-backend/internal/repos"
	"github.com/walehn/reader-study-backend/internal/types"
)

// CaseProjection is what the viewer needs to render the next case.
type CaseProjection struct {
	CaseID        string `json:"case_id"`
	Index         int    `json:"index"`
	Block         string `json:"block"`
	Mode          string `json:"mode"`
	Total         int    `json:"total"`
	IsLastInBlock bool   `json:"is_last_in_block"`
}

// SessionState is the full post-operation view of one session.
type SessionState struct {
	Session           *types.StudySession `json:"session"`
	CurrentCase       *CaseProjection     `json:"current_case,omitempty"`
	CompletedCount    int                 `json:"completed_count"`
	TotalCases        int                 `json:"total_cases"`
	Resumed           bool                `json:"resumed"`
	IsSessionComplete bool                `json:"is_session_complete"`
}

// SessionSummary is the list view: one session plus completion percent.
type SessionSummary struct {
	Session         *types.StudySession `json:"session"`
	CompletedCount  int                 `json:"completed_count"`
	TotalCases      int                 `json:"total_cases"`
	ProgressPercent float64             `json:"progress_percent"`
}

type StudySessionService interface {
	Assign(ctx context.Context, adminID, readerID uuid.UUID, sessionCode string) (*types.StudySession, error)
	Enter(ctx context.Context, readerID, sessionID uuid.UUID, blockACases, blockBCases []string) (*SessionState, error)
	Advance(ctx context.Context, readerID, sessionID uuid.UUID, completedCaseID string) (*SessionState, error)
	Reset(ctx context.Context, adminID, sessionID uuid.UUID) (*types.StudySession, error)
	Get(ctx context.Context, readerID, sessionID uuid.UUID) (*SessionState, error)
	ListForReader(ctx context.Context, readerID uuid.UUID) ([]*SessionSummary, error)
}

type studySessionService struct {
	db           *gorm.DB
	log          *logger.Logger
	sessionRepo  repos.StudySessionRepo
	progressRepo repos.SessionProgressRepo
	readerRepo   repos.ReaderRepo
	auditRepo    repos.AuditLogRepo
	configSvc    StudyConfigService
}

func NewStudySessionService(
	db *gorm.DB,
	log *logger.Logger,
	sessionRepo repos.StudySessionRepo,
	progressRepo repos.SessionProgressRepo,
	readerRepo repos.ReaderRepo,
	auditRepo repos.AuditLogRepo,
	configSvc StudyConfigService,
) StudySessionService {
	serviceLog := log.With("service", "StudySessionService")
	return &studySessionService{
		db:           db,
		log:          serviceLog,
		sessionRepo:  sessionRepo,
		progressRepo: progressRepo,
		readerRepo:   readerRepo,
		auditRepo:    auditRepo,
		configSvc:    configSvc,
	}
}

// Assign creates a pending session for a reader. Block modes are
// resolved from the crossover mapping at assignment time; k_max and the
// AI threshold are snapshotted so later config edits never change an
// assigned session.
func (s *studySessionService) Assign(ctx context.Context, adminID, readerID uuid.UUID, sessionCode string) (*types.StudySession, error) {
	reader, err := s.readerRepo.GetByID(ctx, nil, readerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reader: %w", err)
	}
	if reader == nil {
		return nil, fmt.Errorf("%w: reader %s", errs.ErrNotFound, readerID)
	}
	if reader.Group == nil {
		return nil, fmt.Errorf("%w: reader %s has no crossover group", errs.ErrIllegalState, reader.ReaderCode)
	}

	cfg, err := s.configSvc.GetOrCreate(ctx)
	if err != nil {
		return nil, err
	}
	if !validSessionCode(sessionCode, cfg.TotalSessions) {
		return nil, fmt.Errorf("%w: session code %q is outside S1..S%d", errs.ErrInvalidArgument, sessionCode, cfg.TotalSessions)
	}

	existing, err := s.sessionRepo.GetByReaderAndCode(ctx, nil, readerID, sessionCode)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing session: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: reader %s already has session %s", errs.ErrConflict, reader.ReaderCode, sessionCode)
	}

	modeA, modeB, err := s.configSvc.BlockModes(ctx, *reader.Group, sessionCode)
	if err != nil {
		return nil, err
	}

	session := &types.StudySession{
		ID:          uuid.New(),
		SessionCode: sessionCode,
		ReaderID:    readerID,
		BlockAMode:  modeA,
		BlockBMode:  modeB,
		KMax:        cfg.KMax,
		AIThreshold: cfg.AIThreshold,
		Status:      types.SessionStatusPending,
	}
	if err := s.sessionRepo.Create(ctx, nil, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.audit(ctx, nil, &adminID, types.AuditSessionAssign, "session", session.ID.String(), map[string]any{
		"reader_id":    readerID.String(),
		"session_code": sessionCode,
	})
	s.log.Info("Assigned session", "reader_code", reader.ReaderCode, "session_code", sessionCode)
	return session, nil
}

// Enter starts a pending session or resumes an in-progress one. The
// caller supplies the block case lists; the first entry fixes the case
// orders for both blocks, creates the progress row and, once committed,
// triggers the config auto-lock. Completed sessions cannot be entered.
func (s *studySessionService) Enter(ctx context.Context, readerID, sessionID uuid.UUID, blockACases, blockBCases []string) (*SessionState, error) {
	var state *SessionState
	started := false

	// The config read stays outside the transaction: with the sqlite
	// deployment the transaction owns the only connection, so any non-tx
	// query inside it would block.
	cfg, err := s.configSvc.GetOrCreate(ctx)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session, err := s.sessionRepo.GetByIDForUpdate(ctx, tx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}
		if session == nil {
			return fmt.Errorf("%w: session %s", errs.ErrNotFound, sessionID)
		}
		if session.ReaderID != readerID {
			return fmt.Errorf("%w: session belongs to another reader", errs.ErrForbidden)
		}

		now := time.Now().UTC()

		switch session.Status {
		case types.SessionStatusPending:
			if blockACases == nil || blockBCases == nil {
				return fmt.Errorf("%w: block case lists are required to start a session", errs.ErrIllegalState)
			}
			if err := s.startSession(ctx, tx, session, cfg, blockACases, blockBCases, now); err != nil {
				return err
			}
			started = true
		case types.SessionStatusInProgress:
			progress, err := s.progressRepo.GetBySessionID(ctx, tx, sessionID)
			if err != nil {
				return fmt.Errorf("failed to load progress: %w", err)
			}
			if progress == nil {
				return fmt.Errorf("%w: session %s is in progress without a progress row", errs.ErrIllegalState, sessionID)
			}
			progress.LastAccessedAt = &now
			if err := s.progressRepo.Save(ctx, tx, progress); err != nil {
				return fmt.Errorf("failed to touch progress: %w", err)
			}
			session.Progress = progress
			s.audit(ctx, tx, &readerID, types.AuditSessionResume, "session", session.ID.String(), nil)
		case types.SessionStatusCompleted:
			// Completed sessions are read via Get, never re-entered.
			return fmt.Errorf("%w: session %s is already completed", errs.ErrIllegalState, sessionID)
		}

		state, err = projectState(session)
		if err != nil {
			return err
		}
		state.Resumed = session.Status == types.SessionStatusInProgress && !started
		return nil
	})
	if err != nil {
		return nil, err
	}

	if started {
		// Outside the session transaction on purpose: the lock transition
		// must not be able to roll back an already started session.
		if _, err := s.configSvc.TriggerLockIfNeeded(ctx, readerID); err != nil {
			s.log.Error("Failed to auto-lock study config", "error", err)
		}
	}
	return state, nil
}

// startSession fixes both block orders and creates the progress cursor.
// Runs inside the Enter transaction with the session row locked.
func (s *studySessionService) startSession(ctx context.Context, tx *gorm.DB, session *types.StudySession, cfg *types.StudyConfig, blockACases, blockBCases []string, now time.Time) error {
	orderA := append([]string(nil), blockACases...)
	orderB := append([]string(nil), blockBCases...)
	if cfg.CaseOrderMode == types.CaseOrderModeRandom {
		rng := rand.New(rand.NewSource(sessionOrderSeed(cfg.RandomSeed, session.ID)))
		rng.Shuffle(len(orderA), func(i, j int) { orderA[i], orderA[j] = orderA[j], orderA[i] })
		rng.Shuffle(len(orderB), func(i, j int) { orderB[i], orderB[j] = orderB[j], orderB[i] })
	}

	rawA, _ := json.Marshal(orderA)
	rawB, _ := json.Marshal(orderB)
	session.CaseOrderBlockA = datatypes.JSON(rawA)
	session.CaseOrderBlockB = datatypes.JSON(rawB)
	session.Status = types.SessionStatusInProgress

	progress := &types.SessionProgress{
		ID:             uuid.New(),
		SessionID:      session.ID,
		CurrentBlock:   types.BlockA,
		CompletedCases: datatypes.JSON([]byte("[]")),
		StartedAt:      &now,
		LastAccessedAt: &now,
	}

	// An empty block is exhausted the moment it is entered.
	if len(orderA) == 0 {
		progress.CurrentBlock = types.BlockB
	}
	if len(orderA) == 0 && len(orderB) == 0 {
		session.Status = types.SessionStatusCompleted
		progress.CompletedAt = &now
	}

	if err := s.sessionRepo.Save(ctx, tx, session); err != nil {
		return fmt.Errorf("failed to persist case orders: %w", err)
	}
	if err := s.progressRepo.Create(ctx, tx, progress); err != nil {
		return fmt.Errorf("failed to create progress: %w", err)
	}
	session.Progress = progress

	s.audit(ctx, tx, &session.ReaderID, types.AuditSessionStart, "session", session.ID.String(), map[string]any{
		"session_code": session.SessionCode,
		"block_a_size": len(orderA),
		"block_b_size": len(orderB),
	})
	return nil
}

// Advance records one completed case and moves the cursor. Re-sending a
// case id that is already recorded returns the current state unchanged.
// The submitted id is recorded as given even when it differs from the
// case at the cursor; the cursor still moves by one.
func (s *studySessionService) Advance(ctx context.Context, readerID, sessionID uuid.UUID, completedCaseID string) (*SessionState, error) {
	if completedCaseID == "" {
		return nil, fmt.Errorf("%w: completed case id is required", errs.ErrInvalidArgument)
	}

	var state *SessionState
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session, err := s.sessionRepo.GetByIDForUpdate(ctx, tx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}
		if session == nil {
			return fmt.Errorf("%w: session %s", errs.ErrNotFound, sessionID)
		}
		if session.ReaderID != readerID {
			return fmt.Errorf("%w: session belongs to another reader", errs.ErrForbidden)
		}
		if session.Status != types.SessionStatusInProgress {
			return fmt.Errorf("%w: session is %s, not in_progress", errs.ErrIllegalState, session.Status)
		}

		progress, err := s.progressRepo.GetBySessionID(ctx, tx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to load progress: %w", err)
		}
		if progress == nil {
			return fmt.Errorf("%w: session %s has no progress row", errs.ErrIllegalState, sessionID)
		}

		var completed []string
		if err := json.Unmarshal(progress.CompletedCases, &completed); err != nil {
			return fmt.Errorf("failed to decode completed cases: %w", err)
		}
		// A retry of the id just recorded returns the state unchanged.
		// An id recorded further back is trusted and still moves the
		// cursor, like any other submission.
		if n := len(completed); n > 0 && completed[n-1] == completedCaseID {
			session.Progress = progress
			state, err = projectState(session)
			return err
		}

		orderA, orderB, err := decodeOrders(session)
		if err != nil {
			return err
		}

		completed = append(completed, completedCaseID)
		rawCompleted, _ := json.Marshal(completed)
		progress.CompletedCases = datatypes.JSON(rawCompleted)
		progress.CurrentCaseIndex++

		now := time.Now().UTC()
		progress.LastAccessedAt = &now

		// Roll over exhausted blocks; B exhausted completes the session.
		if progress.CurrentBlock == types.BlockA && progress.CurrentCaseIndex >= len(orderA) {
			progress.CurrentBlock = types.BlockB
			progress.CurrentCaseIndex = 0
		}
		if progress.CurrentBlock == types.BlockB && progress.CurrentCaseIndex >= len(orderB) {
			session.Status = types.SessionStatusCompleted
			progress.CompletedAt = &now
			if err := s.sessionRepo.Save(ctx, tx, session); err != nil {
				return fmt.Errorf("failed to complete session: %w", err)
			}
		}

		if err := s.progressRepo.Save(ctx, tx, progress); err != nil {
			return fmt.Errorf("failed to save progress: %w", err)
		}

		s.audit(ctx, tx, &readerID, types.AuditCaseComplete, "case", completedCaseID, map[string]any{
			"session_id": session.ID.String(),
			"block":      progress.CurrentBlock,
		})
		if session.Status == types.SessionStatusCompleted {
			s.audit(ctx, tx, &readerID, types.AuditSessionComplete, "session", session.ID.String(), map[string]any{
				"session_code": session.SessionCode,
				"case_count":   len(completed),
			})
			s.log.Info("Session completed", "session_id", session.ID, "session_code", session.SessionCode)
		}

		session.Progress = progress
		state, err = projectState(session)
		return err
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// Reset returns a session to pending: the progress row is deleted and
// the stored case orders are cleared so the next entry reshuffles.
func (s *studySessionService) Reset(ctx context.Context, adminID, sessionID uuid.UUID) (*types.StudySession, error) {
	var session *types.StudySession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = s.sessionRepo.GetByIDForUpdate(ctx, tx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}
		if session == nil {
			return fmt.Errorf("%w: session %s", errs.ErrNotFound, sessionID)
		}

		if err := s.progressRepo.DeleteBySessionID(ctx, tx, sessionID); err != nil {
			return fmt.Errorf("failed to delete progress: %w", err)
		}

		session.Status = types.SessionStatusPending
		session.CaseOrderBlockA = nil
		session.CaseOrderBlockB = nil
		session.Progress = nil
		if err := s.sessionRepo.Save(ctx, tx, session); err != nil {
			return fmt.Errorf("failed to reset session: %w", err)
		}

		s.audit(ctx, tx, &adminID, types.AuditSessionReset, "session", session.ID.String(), map[string]any{
			"reader_id":    session.ReaderID.String(),
			"session_code": session.SessionCode,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Session reset", "session_id", sessionID)
	return session, nil
}

func (s *studySessionService) Get(ctx context.Context, readerID, sessionID uuid.UUID) (*SessionState, error) {
	session, err := s.sessionRepo.GetByID(ctx, nil, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session %s", errs.ErrNotFound, sessionID)
	}
	if session.ReaderID != readerID {
		return nil, fmt.Errorf("%w: session belongs to another reader", errs.ErrForbidden)
	}
	return projectState(session)
}

func (s *studySessionService) ListForReader(ctx context.Context, readerID uuid.UUID) ([]*SessionSummary, error) {
	sessions, err := s.sessionRepo.ListByReader(ctx, nil, readerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	summaries := make([]*SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		completedCount, total, err := progressCounts(session)
		if err != nil {
			return nil, err
		}
		percent := 0.0
		if total > 0 {
			percent = math.Round(float64(completedCount)/float64(total)*1000) / 10
		}
		summaries = append(summaries, &SessionSummary{
			Session:         session,
			CompletedCount:  completedCount,
			TotalCases:      total,
			ProgressPercent: percent,
		})
	}
	return summaries, nil
}

func (s *studySessionService) audit(ctx context.Context, tx *gorm.DB, actorID *uuid.UUID, action, resourceType, resourceID string, details map[string]any) {
	entry := &types.AuditLog{
		ID:           uuid.New(),
		ReaderID:     actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
	if details != nil {
		raw, _ := json.Marshal(details)
		entry.Details = datatypes.JSON(raw)
	}
	// Audit failures never fail the operation they describe.
	if err := s.auditRepo.Create(ctx, tx, entry); err != nil {
		s.log.Error("Failed to write audit entry", "action", action, "error", err)
	}
}

func validSessionCode(code string, totalSessions int) bool {
	for n := 1; n <= totalSessions; n++ {
		if code == fmt.Sprintf("S%d", n) {
			return true
		}
	}
	return false
}

// sessionOrderSeed derives a per-session shuffle seed. With a configured
// base seed the order is reproducible per session; without one it is
// time-dependent.
func sessionOrderSeed(base *int64, sessionID uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write(sessionID[:])
	if base != nil {
		return *base ^ int64(h.Sum64())
	}
	return time.Now().UnixNano() ^ int64(h.Sum64())
}

func decodeOrders(session *types.StudySession) (orderA, orderB []string, err error) {
	if session.CaseOrderBlockA != nil {
		if err := json.Unmarshal(session.CaseOrderBlockA, &orderA); err != nil {
			return nil, nil, fmt.Errorf("failed to decode block A order: %w", err)
		}
	}
	if session.CaseOrderBlockB != nil {
		if err := json.Unmarshal(session.CaseOrderBlockB, &orderB); err != nil {
			return nil, nil, fmt.Errorf("failed to decode block B order: %w", err)
		}
	}
	return orderA, orderB, nil
}

func progressCounts(session *types.StudySession) (completed, total int, err error) {
	orderA, orderB, err := decodeOrders(session)
	if err != nil {
		return 0, 0, err
	}
	total = len(orderA) + len(orderB)
	if session.Progress != nil && session.Progress.CompletedCases != nil {
		var done []string
		if err := json.Unmarshal(session.Progress.CompletedCases, &done); err != nil {
			return 0, 0, fmt.Errorf("failed to decode completed cases: %w", err)
		}
		completed = len(done)
	}
	return completed, total, nil
}

// projectState builds the client view from a session and its progress.
func projectState(session *types.StudySession) (*SessionState, error) {
	completedCount, total, err := progressCounts(session)
	if err != nil {
		return nil, err
	}
	state := &SessionState{
		Session:           session,
		CompletedCount:    completedCount,
		TotalCases:        total,
		IsSessionComplete: session.Status == types.SessionStatusCompleted,
	}
	if session.Status != types.SessionStatusInProgress || session.Progress == nil {
		return state, nil
	}

	orderA, orderB, err := decodeOrders(session)
	if err != nil {
		return nil, err
	}
	progress := session.Progress

	order := orderA
	mode := session.BlockAMode
	if progress.CurrentBlock == types.BlockB {
		order = orderB
		mode = session.BlockBMode
	}
	if progress.CurrentCaseIndex < 0 || progress.CurrentCaseIndex >= len(order) {
		return state, nil
	}
	state.CurrentCase = &CaseProjection{
		CaseID:        order[progress.CurrentCaseIndex],
		Index:         progress.CurrentCaseIndex,
		Block:         progress.CurrentBlock,
		Mode:          mode,
		Total:         len(order),
		IsLastInBlock: progress.CurrentCaseIndex == len(order)-1,
	}
	return state, nil
}
