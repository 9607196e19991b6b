package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/walehn/reader-study-backend/internal/repos"
	"github.com/walehn/reader-study-backend/internal/testutil"
	"github.com/walehn/reader-study-backend/internal/types"
)

type fixture struct {
	db         *gorm.DB
	partition  [][]string
	configSvc  StudyConfigService
	sessionSvc StudySessionService
	resultSvc  StudyResultService
	authSvc    AuthService

	readerRepo   repos.ReaderRepo
	sessionRepo  repos.StudySessionRepo
	progressRepo repos.SessionProgressRepo
	resultRepo   repos.StudyResultRepo
	auditRepo    repos.AuditLogRepo
}

func newFixture(t *testing.T, partition [][]string) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	log := testutil.NewLogger(t)

	readerRepo := repos.NewReaderRepo(db, log)
	tokenRepo := repos.NewReaderTokenRepo(db, log)
	configRepo := repos.NewStudyConfigRepo(db, log)
	sessionRepo := repos.NewStudySessionRepo(db, log)
	progressRepo := repos.NewSessionProgressRepo(db, log)
	resultRepo := repos.NewStudyResultRepo(db, log)
	auditRepo := repos.NewAuditLogRepo(db, log)

	configSvc := NewStudyConfigService(db, log, configRepo, auditRepo)
	sessionSvc := NewStudySessionService(db, log, sessionRepo, progressRepo, readerRepo, auditRepo, configSvc)
	resultSvc := NewStudyResultService(db, log, resultRepo, sessionRepo, auditRepo, configSvc)
	authSvc := NewAuthService(db, log, readerRepo, tokenRepo, auditRepo, "test-secret", time.Hour, 24*time.Hour)

	return &fixture{
		db:           db,
		partition:    partition,
		configSvc:    configSvc,
		sessionSvc:   sessionSvc,
		resultSvc:    resultSvc,
		authSvc:      authSvc,
		readerRepo:   readerRepo,
		sessionRepo:  sessionRepo,
		progressRepo: progressRepo,
		resultRepo:   resultRepo,
		auditRepo:    auditRepo,
	}
}

func (f *fixture) createReader(t *testing.T, code string, group int) *types.Reader {
	t.Helper()
	reader := &types.Reader{
		ID:           uuid.New(),
		ReaderCode:   code,
		Name:         "Reader " + code,
		Email:        code + "@example.com",
		PasswordHash: "x",
		Role:         types.RoleReader,
		Group:        &group,
		IsActive:     true,
	}
	if _, err := f.readerRepo.Create(context.Background(), nil, []*types.Reader{reader}); err != nil {
		t.Fatalf("create reader: %v", err)
	}
	return reader
}

func (f *fixture) createAdmin(t *testing.T, code string) *types.Reader {
	t.Helper()
	admin := &types.Reader{
		ID:           uuid.New(),
		ReaderCode:   code,
		Name:         "Admin " + code,
		Email:        code + "@example.com",
		PasswordHash: "x",
		Role:         types.RoleAdmin,
		IsActive:     true,
	}
	if _, err := f.readerRepo.Create(context.Background(), nil, []*types.Reader{admin}); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	return admin
}

// enter starts or resumes a session with the fixture's block partition.
func (f *fixture) enter(t *testing.T, readerID, sessionID uuid.UUID) *SessionState {
	t.Helper()
	state, err := f.sessionSvc.Enter(context.Background(), readerID, sessionID, f.partition[0], f.partition[1])
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	return state
}

func intPtr(v int) *int { return &v }
