package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	errs "github.com/walehn/reader-study-backend/internal/pkg/errors"
	"github.com/walehn/reader-study-backend/internal/testutil"
	"github.com/walehn/reader-study-backend/internal/types"
)

func TestAuditRecordAndListForReader(t *testing.T) {
	f := newFixture(t, nil)
	auditSvc := NewAuditService(testutil.NewLogger(t), f.auditRepo)
	reader := f.createReader(t, "R01", 1)
	other := f.createReader(t, "R02", 2)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		auditSvc.Record(ctx, AuditEvent{
			ReaderID:     &reader.ID,
			Action:       types.AuditSessionStart,
			ResourceType: "session",
			ResourceID:   fmt.Sprintf("session-%d", i),
			IPAddress:    "10.0.0.1",
			Details:      map[string]any{"attempt": i},
		})
	}
	auditSvc.Record(ctx, AuditEvent{
		ReaderID:     &other.ID,
		Action:       types.AuditLogin,
		ResourceType: "reader",
		ResourceID:   other.ID.String(),
	})

	entries, err := auditSvc.ListForReader(ctx, reader.ID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3 (other reader excluded)", len(entries))
	}
	for _, entry := range entries {
		if entry.Action != types.AuditSessionStart || entry.IPAddress != "10.0.0.1" {
			t.Fatalf("unexpected entry: %+v", entry)
		}
	}

	limited, err := auditSvc.ListForReader(ctx, reader.ID, 2)
	if err != nil {
		t.Fatalf("limited list: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limited entries = %d, want 2", len(limited))
	}
}

func TestAuditListRequiresReaderID(t *testing.T) {
	f := newFixture(t, nil)
	auditSvc := NewAuditService(testutil.NewLogger(t), f.auditRepo)

	if _, err := auditSvc.ListForReader(context.Background(), uuid.Nil, 10); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}
}
