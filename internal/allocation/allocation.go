// Package allocation partitions the discovered case pool into balanced
// crossover blocks. Every session receives the same block content; only
// the within-block order differs per session.
package allocation

import (
	"fmt"
	"math/rand"
	"time"
)

// Pool is the discovered case pool, split by category.
type Pool struct {
	Positive []string
	Negative []string
}

// Preview reports the sizing of an allocation without producing one.
type Preview struct {
	TotalCases       int    `json:"total_cases"`
	PositiveCases    int    `json:"positive_cases"`
	NegativeCases    int    `json:"negative_cases"`
	UsableCases      int    `json:"usable_cases"`
	NumSessions      int    `json:"num_sessions"`
	NumBlocks        int    `json:"num_blocks"`
	CasesPerSession  int    `json:"cases_per_session"`
	CasesPerBlock    int    `json:"cases_per_block"`
	PositivePerBlock int    `json:"positive_per_block"`
	NegativePerBlock int    `json:"negative_per_block"`
	Ratio            string `json:"ratio"`
	UnusedCases      int    `json:"unused_cases"`
}

// Result is a full allocation: sizing plus, per session code, the case
// identifiers of each block ("block_a", "block_b", ...).
type Result struct {
	Preview
	Sessions map[string]map[string][]string `json:"sessions"`
}

// BlockName returns "A", "B", ... for a zero-based block index.
func BlockName(i int) string {
	return string(rune('A' + i))
}

// BlockKey returns "block_a", "block_b", ... for a zero-based block index.
func BlockKey(i int) string {
	return "block_" + string(rune('a'+i))
}

func validate(numSessions, numBlocks int) error {
	if numSessions < 1 {
		return fmt.Errorf("num_sessions must be >= 1, got %d", numSessions)
	}
	if numBlocks < 1 || numBlocks > 26 {
		return fmt.Errorf("num_blocks must be between 1 and 26, got %d", numBlocks)
	}
	return nil
}

// PreviewAllocation computes sizing for the given category totals.
// Per-block counts are floor divisions by the block count; the remainder
// of each category is excluded so that every block has identical
// composition.
func PreviewAllocation(positive, negative, numSessions, numBlocks int) (*Preview, error) {
	if err := validate(numSessions, numBlocks); err != nil {
		return nil, err
	}

	posPerBlock := positive / numBlocks
	negPerBlock := negative / numBlocks
	casesPerBlock := posPerBlock + negPerBlock
	usable := (posPerBlock + negPerBlock) * numBlocks
	total := positive + negative

	return &Preview{
		TotalCases:       total,
		PositiveCases:    positive,
		NegativeCases:    negative,
		UsableCases:      usable,
		NumSessions:      numSessions,
		NumBlocks:        numBlocks,
		CasesPerSession:  casesPerBlock * numBlocks,
		CasesPerBlock:    casesPerBlock,
		PositivePerBlock: posPerBlock,
		NegativePerBlock: negPerBlock,
		Ratio:            fmt.Sprintf("%d:%d", posPerBlock, negPerBlock),
		UnusedCases:      total - usable,
	}, nil
}

// Allocate partitions the pool into blocks and replicates the partition
// across sessions. The block partition is computed exactly once, so all
// sessions share byte-identical block content; when shuffle is set, each
// session's copy of each block is permuted independently. A nil rng
// falls back to a time-seeded source.
func Allocate(pool Pool, numSessions, numBlocks int, shuffle bool, rng *rand.Rand) (*Result, error) {
	preview, err := PreviewAllocation(len(pool.Positive), len(pool.Negative), numSessions, numBlocks)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	positive := append([]string(nil), pool.Positive...)
	negative := append([]string(nil), pool.Negative...)
	if shuffle {
		rng.Shuffle(len(positive), func(i, j int) { positive[i], positive[j] = positive[j], positive[i] })
		rng.Shuffle(len(negative), func(i, j int) { negative[i], negative[j] = negative[j], negative[i] })
	}

	// One partition for all sessions: contiguous category slices of the
	// per-block size.
	blockParts := make([][]string, numBlocks)
	posIdx, negIdx := 0, 0
	for b := 0; b < numBlocks; b++ {
		part := make([]string, 0, preview.CasesPerBlock)
		part = append(part, positive[posIdx:posIdx+preview.PositivePerBlock]...)
		part = append(part, negative[negIdx:negIdx+preview.NegativePerBlock]...)
		blockParts[b] = part
		posIdx += preview.PositivePerBlock
		negIdx += preview.NegativePerBlock
	}

	sessions := make(map[string]map[string][]string, numSessions)
	for s := 1; s <= numSessions; s++ {
		blocks := make(map[string][]string, numBlocks)
		for b := 0; b < numBlocks; b++ {
			cases := append([]string(nil), blockParts[b]...)
			if shuffle {
				rng.Shuffle(len(cases), func(i, j int) { cases[i], cases[j] = cases[j], cases[i] })
			}
			blocks[BlockKey(b)] = cases
		}
		sessions[fmt.Sprintf("S%d", s)] = blocks
	}

	return &Result{Preview: *preview, Sessions: sessions}, nil
}
