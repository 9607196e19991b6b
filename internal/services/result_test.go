package services

import (
	"context"
	"errors"
	"testing"

	errs "github.com/walehn/reader-study-backend/internal/pkg/errors"
	"github.com/walehn/reader-study-backend/internal/types"
)

func startedSession(t *testing.T, f *fixture) (*types.Reader, *SessionState) {
	t.Helper()
	reader := f.createReader(t, "R01", 1)
	session := assignSession(t, f, reader.ID, "S1")
	return reader, f.enter(t, reader.ID, session.ID)
}

func TestSubmitStoresResultWithLesions(t *testing.T) {
	f := newFixture(t, testPartition)
	reader, state := startedSession(t, f)
	ctx := context.Background()

	result, err := f.resultSvc.Submit(ctx, reader.ID, SubmitResultInput{
		SessionID:       state.Session.ID,
		CaseID:          state.CurrentCase.CaseID,
		Mode:            state.CurrentCase.Mode,
		PatientDecision: true,
		TimeSpentSec:    42.5,
		Lesions: []LesionInput{
			{X: 10, Y: 20, Z: 5, Confidence: types.ConfidenceDefinite},
			{X: 30, Y: 40, Z: 8, Confidence: types.ConfidencePossible},
		},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(result.Lesions) != 2 {
		t.Fatalf("lesions = %d, want 2", len(result.Lesions))
	}
	if result.Lesions[0].MarkOrder != 0 || result.Lesions[1].MarkOrder != 1 {
		t.Fatal("lesion mark order must follow input order")
	}

	stored, err := f.resultSvc.ListByCase(ctx, state.CurrentCase.CaseID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 1 || len(stored[0].Lesions) != 2 {
		t.Fatalf("stored = %d results, want 1 with 2 lesions", len(stored))
	}
}

func TestSubmitRejectsModeMismatch(t *testing.T) {
	f := newFixture(t, testPartition)
	reader, state := startedSession(t, f)

	wrongMode := types.ModeAided
	if state.CurrentCase.Mode == types.ModeAided {
		wrongMode = types.ModeUnaided
	}
	_, err := f.resultSvc.Submit(context.Background(), reader.ID, SubmitResultInput{
		SessionID: state.Session.ID,
		CaseID:    state.CurrentCase.CaseID,
		Mode:      wrongMode,
	})
	if !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}
}

func TestSubmitRejectsCaseOutsideCurrentBlock(t *testing.T) {
	f := newFixture(t, testPartition)
	reader, state := startedSession(t, f)

	// A block B case submitted while the cursor is in block A.
	_, err := f.resultSvc.Submit(context.Background(), reader.ID, SubmitResultInput{
		SessionID: state.Session.ID,
		CaseID:    testPartition[1][0],
		Mode:      state.CurrentCase.Mode,
	})
	if !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}
}

func TestSubmitRejectsTooManyLesions(t *testing.T) {
	f := newFixture(t, testPartition)
	reader, state := startedSession(t, f)

	lesions := make([]LesionInput, state.Session.KMax+1)
	for i := range lesions {
		lesions[i] = LesionInput{X: i, Y: i, Z: i, Confidence: types.ConfidenceProbable}
	}
	_, err := f.resultSvc.Submit(context.Background(), reader.ID, SubmitResultInput{
		SessionID:       state.Session.ID,
		CaseID:          state.CurrentCase.CaseID,
		Mode:            state.CurrentCase.Mode,
		PatientDecision: true,
		Lesions:         lesions,
	})
	if !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}
}

func TestSubmitRejectsDuplicateTriple(t *testing.T) {
	f := newFixture(t, testPartition)
	reader, state := startedSession(t, f)
	ctx := context.Background()

	input := SubmitResultInput{
		SessionID:       state.Session.ID,
		CaseID:          state.CurrentCase.CaseID,
		Mode:            state.CurrentCase.Mode,
		PatientDecision: true,
		Lesions:         []LesionInput{{X: 1, Y: 2, Z: 3, Confidence: types.ConfidenceDefinite}},
	}
	if _, err := f.resultSvc.Submit(ctx, reader.ID, input); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := f.resultSvc.Submit(ctx, reader.ID, input); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("duplicate submit: got %v, want ErrConflict", err)
	}
}

func TestSubmitRequiresLesionOnPositiveDecision(t *testing.T) {
	f := newFixture(t, testPartition)
	reader, state := startedSession(t, f)

	_, err := f.resultSvc.Submit(context.Background(), reader.ID, SubmitResultInput{
		SessionID:       state.Session.ID,
		CaseID:          state.CurrentCase.CaseID,
		Mode:            state.CurrentCase.Mode,
		PatientDecision: true,
	})
	if !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}
}
