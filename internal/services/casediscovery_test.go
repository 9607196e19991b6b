package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	errs "github.com/walehn/reader-study-backend/internal/pkg/errors"
	"github.com/walehn/reader-study-backend/internal/repos"
	"github.com/walehn/reader-study-backend/internal/testutil"
)

func writeEmptyFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newCaseFixture(t *testing.T) CaseService {
	t.Helper()

	root := t.TempDir()
	posDir := filepath.Join(root, "positive")
	negDir := filepath.Join(root, "negative")
	aiDir := filepath.Join(root, "ai_labels")
	for _, dir := range []string{posDir, negDir, filepath.Join(aiDir, "positive")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	// Complete positive pair with an AI probability map.
	writeEmptyFile(t, filepath.Join(posDir, "enriched_001_10667525_20240909_baseline_0000.nii.gz"))
	writeEmptyFile(t, filepath.Join(posDir, "enriched_001_10667525_20240915_followup_0000.nii.gz"))
	writeEmptyFile(t, filepath.Join(aiDir, "positive", "enriched_001_10667525_ai_prob.nii.gz"))

	// Positive with a missing followup: excluded.
	writeEmptyFile(t, filepath.Join(posDir, "test_012_30773712_20230125_baseline_0000.nii.gz"))

	// Complete negative pair, no channel suffix.
	writeEmptyFile(t, filepath.Join(negDir, "neg_008_11155933_20240625_baseline.nii.gz"))
	writeEmptyFile(t, filepath.Join(negDir, "neg_008_11155933_20240701_followup.nii.gz"))

	// A file that matches no pattern.
	writeEmptyFile(t, filepath.Join(negDir, "README.txt"))

	t.Setenv("DATASET_DIR", root)
	t.Setenv("POSITIVE_DIR", posDir)
	t.Setenv("NEGATIVE_DIR", negDir)
	t.Setenv("AI_LABEL_DIR", aiDir)

	db := testutil.NewDB(t)
	log := testutil.NewLogger(t)
	configSvc := NewStudyConfigService(db, log, repos.NewStudyConfigRepo(db, log), repos.NewAuditLogRepo(db, log))
	return NewCaseService(log, configSvc, nil)
}

func TestScanPairsSeriesAndAppliesPrefixes(t *testing.T) {
	svc := newCaseFixture(t)
	ctx := context.Background()

	positive, negative, err := svc.Scan(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(positive) != 1 {
		t.Fatalf("positive = %d, want 1 (unpaired case excluded)", len(positive))
	}
	if positive[0].CaseID != "pos_enriched_001_10667525" {
		t.Fatalf("positive case id = %q", positive[0].CaseID)
	}
	if positive[0].AIProbPath == "" {
		t.Fatal("AI probability map not resolved")
	}
	if len(negative) != 1 || negative[0].CaseID != "neg_008_11155933" {
		t.Fatalf("negative cases = %+v", negative)
	}
	if negative[0].AIProbPath != "" {
		t.Fatal("negative case must have no AI map here")
	}
}

func TestCountAndFilePaths(t *testing.T) {
	svc := newCaseFixture(t)
	ctx := context.Background()

	count, err := svc.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count.Positive != 1 || count.Negative != 1 || count.Total != 2 {
		t.Fatalf("count = %+v, want 1/1/2", count)
	}

	files, err := svc.FilePaths(ctx, "neg_008_11155933")
	if err != nil {
		t.Fatalf("file paths: %v", err)
	}
	if files.Baseline == "" || files.Followup == "" {
		t.Fatalf("incomplete paths: %+v", files)
	}

	if _, err := svc.FilePaths(ctx, "missing_case"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestBlockPartitionIsStable(t *testing.T) {
	svc := newCaseFixture(t)
	ctx := context.Background()

	first, err := svc.BlockPartition(ctx)
	if err != nil {
		t.Fatalf("partition: %v", err)
	}
	second, err := svc.BlockPartition(ctx)
	if err != nil {
		t.Fatalf("partition: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("block counts differ: %d vs %d", len(first), len(second))
	}
	for b := range first {
		if len(first[b]) != len(second[b]) {
			t.Fatalf("block %d sizes differ", b)
		}
		for i := range first[b] {
			if first[b][i] != second[b][i] {
				t.Fatalf("block %d differs at %d: %q vs %q", b, i, first[b][i], second[b][i])
			}
		}
	}
}
