package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	errs "github.com/walehn/reader-study-backend/internal/pkg/errors"
	"github.com/walehn/reader-study-backend/internal/types"
)

func TestGetOrCreateSeedsDefaults(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cfg, err := f.configSvc.GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if cfg.ID != types.StudyConfigSingletonID {
		t.Fatalf("config id = %s, want singleton id", cfg.ID)
	}
	if cfg.TotalSessions != 2 || cfg.TotalBlocks != 2 || cfg.TotalGroups != 2 {
		t.Fatalf("defaults = %d/%d/%d, want 2/2/2", cfg.TotalSessions, cfg.TotalBlocks, cfg.TotalGroups)
	}
	if cfg.IsLocked {
		t.Fatal("new config must start unlocked")
	}

	var names map[string]string
	if err := json.Unmarshal(cfg.GroupNames, &names); err != nil {
		t.Fatalf("decode group names: %v", err)
	}
	if names["group_1"] != "Group 1" || names["group_2"] != "Group 2" {
		t.Fatalf("default group names = %v", names)
	}

	again, err := f.configSvc.GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if again.ID != cfg.ID {
		t.Fatal("second GetOrCreate must return the same row")
	}
}

func TestDefaultMappingAlternatesModes(t *testing.T) {
	mapping := types.DefaultCrossoverMapping()
	for groupKey, sessions := range mapping {
		for sessionCode, blocks := range sessions {
			if blocks["block_A"] == blocks["block_B"] {
				t.Fatalf("%s/%s: both blocks have mode %s", groupKey, sessionCode, blocks["block_A"])
			}
		}
	}
}

func TestUpdateUnlockedFields(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	name := "LVO Detection Study"
	threshold := 0.45
	cfg, err := f.configSvc.Update(ctx, StudyConfigPatch{
		StudyName:   &name,
		AIThreshold: &threshold,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if cfg.StudyName != name || cfg.AIThreshold != threshold {
		t.Fatalf("update not applied: %q %f", cfg.StudyName, cfg.AIThreshold)
	}
}

func TestUpdateRejectsOutOfRangeValues(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cases := []StudyConfigPatch{
		{TotalSessions: intPtr(0)},
		{TotalSessions: intPtr(21)},
		{TotalBlocks: intPtr(5)},
		{TotalGroups: intPtr(11)},
		{KMax: intPtr(0)},
	}
	for i, patch := range cases {
		if _, err := f.configSvc.Update(ctx, patch); !errors.Is(err, errs.ErrInvalidArgument) {
			t.Fatalf("case %d: got %v, want ErrInvalidArgument", i, err)
		}
	}
}

func TestLockedUpdateRejectsStructuralFieldsByName(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	admin := f.createAdmin(t, "A01")

	if _, err := f.configSvc.ManualLock(ctx, admin.ID); err != nil {
		t.Fatalf("lock: %v", err)
	}

	_, err := f.configSvc.Update(ctx, StudyConfigPatch{KMax: intPtr(5), TotalBlocks: intPtr(3)})
	if !errors.Is(err, errs.ErrConfigLocked) {
		t.Fatalf("got %v, want ErrConfigLocked", err)
	}
	if !strings.Contains(err.Error(), "k_max") || !strings.Contains(err.Error(), "total_blocks") {
		t.Fatalf("error must name every offending field, got %q", err.Error())
	}

	// Display fields stay editable after the lock.
	name := "Renamed"
	cfg, err := f.configSvc.Update(ctx, StudyConfigPatch{StudyName: &name})
	if err != nil {
		t.Fatalf("unlocked-field update after lock: %v", err)
	}
	if cfg.StudyName != name {
		t.Fatalf("study name = %q, want %q", cfg.StudyName, name)
	}
}

func TestUpdateValidatesCrossoverMapping(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	bad := map[string]map[string]map[string]string{
		"group_1": {
			"S1": {"block_A": "AIDED", "block_B": "SOMETIMES"},
			"S2": {"block_A": "AIDED", "block_B": "UNAIDED"},
		},
		"group_2": {
			"S1": {"block_A": "AIDED", "block_B": "UNAIDED"},
			"S2": {"block_A": "AIDED", "block_B": "UNAIDED"},
		},
	}
	if _, err := f.configSvc.Update(ctx, StudyConfigPatch{CrossoverMapping: bad}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("invalid mode: got %v, want ErrInvalidArgument", err)
	}

	missing := map[string]map[string]map[string]string{
		"group_1": {
			"S1": {"block_A": "AIDED", "block_B": "UNAIDED"},
			"S2": {"block_A": "AIDED", "block_B": "UNAIDED"},
		},
	}
	if _, err := f.configSvc.Update(ctx, StudyConfigPatch{CrossoverMapping: missing}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("missing group: got %v, want ErrInvalidArgument", err)
	}
}

func TestUpdateValidatesGroupNames(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.configSvc.Update(ctx, StudyConfigPatch{
		GroupNames: map[string]string{"group_1": "Alpha", "group_9": "Ghost"},
	}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("unknown group key: got %v, want ErrInvalidArgument", err)
	}

	if _, err := f.configSvc.Update(ctx, StudyConfigPatch{
		GroupNames: map[string]string{"group_1": "Alpha", "group_2": "  "},
	}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("blank name: got %v, want ErrInvalidArgument", err)
	}

	cfg, err := f.configSvc.Update(ctx, StudyConfigPatch{
		GroupNames: map[string]string{"group_1": "AI First", "group_2": "AI Second"},
	})
	if err != nil {
		t.Fatalf("valid names: %v", err)
	}
	if cfg.GroupNames == nil {
		t.Fatal("group names not persisted")
	}
}

func TestManualLockIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	admin := f.createAdmin(t, "A01")

	first, err := f.configSvc.ManualLock(ctx, admin.ID)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if !first {
		t.Fatal("first lock must report the transition")
	}

	second, err := f.configSvc.ManualLock(ctx, admin.ID)
	if err != nil {
		t.Fatalf("second lock: %v", err)
	}
	if second {
		t.Fatal("second lock must be a no-op")
	}

	cfg, err := f.configSvc.GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !cfg.IsLocked || cfg.LockedAt == nil || cfg.LockedBy == nil || *cfg.LockedBy != admin.ID {
		t.Fatal("lock metadata not persisted")
	}
}

func TestConcurrentAutoLockWinsOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	reader := f.createReader(t, "R01", 1)

	if _, err := f.configSvc.GetOrCreate(ctx); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	const callers = 8
	results := make([]bool, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			locked, err := f.configSvc.TriggerLockIfNeeded(ctx, reader.ID)
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			results[i] = locked
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, won := range results {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("lock winners = %d, want exactly 1", winners)
	}
}
