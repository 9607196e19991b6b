package allocation

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
)

func idRange(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s_%03d", prefix, i)
	}
	return out
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func TestPreviewAllocationBalancesCategories(t *testing.T) {
	p, err := PreviewAllocation(40, 80, 2, 2)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if p.PositivePerBlock != 20 || p.NegativePerBlock != 40 {
		t.Fatalf("per-block counts = %d/%d, want 20/40", p.PositivePerBlock, p.NegativePerBlock)
	}
	if p.CasesPerBlock != 60 {
		t.Fatalf("cases per block = %d, want 60", p.CasesPerBlock)
	}
	if p.UnusedCases != 0 {
		t.Fatalf("unused = %d, want 0", p.UnusedCases)
	}
	if p.CasesPerSession != 120 {
		t.Fatalf("cases per session = %d, want 120", p.CasesPerSession)
	}
	if p.Ratio != "20:40" {
		t.Fatalf("ratio = %q, want 20:40", p.Ratio)
	}
}

func TestPreviewAllocationReportsRemainderAsUnused(t *testing.T) {
	p, err := PreviewAllocation(41, 83, 3, 2)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if p.PositivePerBlock != 20 || p.NegativePerBlock != 41 {
		t.Fatalf("per-block counts = %d/%d, want 20/41", p.PositivePerBlock, p.NegativePerBlock)
	}
	// 41-40 positive + 83-82 negative excluded
	if p.UnusedCases != 2 {
		t.Fatalf("unused = %d, want 2", p.UnusedCases)
	}
	if p.UsableCases != 122 {
		t.Fatalf("usable = %d, want 122", p.UsableCases)
	}
}

func TestPreviewAllocationRejectsBadParams(t *testing.T) {
	if _, err := PreviewAllocation(10, 10, 0, 2); err == nil {
		t.Fatal("expected error for zero sessions")
	}
	if _, err := PreviewAllocation(10, 10, 2, 0); err == nil {
		t.Fatal("expected error for zero blocks")
	}
}

func TestAllocateSharesBlockContentAcrossSessions(t *testing.T) {
	pool := Pool{Positive: idRange("pos", 40), Negative: idRange("neg", 80)}
	rng := rand.New(rand.NewSource(7))

	res, err := Allocate(pool, 2, 2, true, rng)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(res.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(res.Sessions))
	}

	for _, key := range []string{"block_a", "block_b"} {
		s1 := res.Sessions["S1"][key]
		s2 := res.Sessions["S2"][key]
		if len(s1) != 60 || len(s2) != 60 {
			t.Fatalf("%s sizes = %d/%d, want 60/60", key, len(s1), len(s2))
		}
		c1, c2 := sortedCopy(s1), sortedCopy(s2)
		for i := range c1 {
			if c1[i] != c2[i] {
				t.Fatalf("%s content differs between sessions at %d: %q vs %q", key, i, c1[i], c2[i])
			}
		}
	}

	// Blocks must not overlap.
	seen := map[string]string{}
	for _, key := range []string{"block_a", "block_b"} {
		for _, id := range res.Sessions["S1"][key] {
			if prev, ok := seen[id]; ok {
				t.Fatalf("case %q in both %s and %s", id, prev, key)
			}
			seen[id] = key
		}
	}
}

func TestAllocatePreservesCategoryRatioPerBlock(t *testing.T) {
	pool := Pool{Positive: idRange("pos", 40), Negative: idRange("neg", 80)}
	res, err := Allocate(pool, 3, 2, true, rand.New(rand.NewSource(11)))
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	for code, blocks := range res.Sessions {
		for key, cases := range blocks {
			pos, neg := 0, 0
			for _, id := range cases {
				if id[:3] == "pos" {
					pos++
				} else {
					neg++
				}
			}
			if pos != 20 || neg != 40 {
				t.Fatalf("%s/%s category counts = %d/%d, want 20/40", code, key, pos, neg)
			}
		}
	}
}

func TestAllocateWithoutShuffleIsDeterministic(t *testing.T) {
	pool := Pool{Positive: idRange("pos", 4), Negative: idRange("neg", 6)}
	a, err := Allocate(pool, 2, 2, false, nil)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	b, err := Allocate(pool, 2, 2, false, nil)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	for code := range a.Sessions {
		for key := range a.Sessions[code] {
			x, y := a.Sessions[code][key], b.Sessions[code][key]
			if len(x) != len(y) {
				t.Fatalf("size mismatch for %s/%s", code, key)
			}
			for i := range x {
				if x[i] != y[i] {
					t.Fatalf("unshuffled order differs at %s/%s[%d]", code, key, i)
				}
			}
		}
	}
}

func TestAllocateSeededShuffleReproduces(t *testing.T) {
	pool := Pool{Positive: idRange("pos", 10), Negative: idRange("neg", 20)}
	a, err := Allocate(pool, 2, 2, true, rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	b, err := Allocate(pool, 2, 2, true, rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	for code := range a.Sessions {
		for key := range a.Sessions[code] {
			x, y := a.Sessions[code][key], b.Sessions[code][key]
			for i := range x {
				if x[i] != y[i] {
					t.Fatalf("seeded shuffle not reproducible at %s/%s[%d]", code, key, i)
				}
			}
		}
	}
}

func TestBlockNames(t *testing.T) {
	if BlockName(0) != "A" || BlockName(1) != "B" {
		t.Fatalf("unexpected block names: %s %s", BlockName(0), BlockName(1))
	}
	if BlockKey(0) != "block_a" || BlockKey(1) != "block_b" {
		t.Fatalf("unexpected block keys: %s %s", BlockKey(0), BlockKey(1))
	}
}
