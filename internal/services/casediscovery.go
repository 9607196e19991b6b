package services

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/walehn/reader-study-backend/internal/allocation"
	redisclient "github.com/walehn/reader-study-backend/internal/clients/redis"
	errs "github.com/walehn/reader-study-backend/internal/pkg/errors"
	"github.com/walehn/reader-study-backend/internal/pkg/logger"
	"github.com/walehn/reader-study-backend/internal/types"
	"github.com/walehn/reader-study-backend/internal/utils"
)

const (
	CategoryPositive = "positive"
	CategoryNegative = "negative"

	scanCacheKey = "cases:scan"
	scanCacheTTL = 60 * time.Second
)

// Positive volumes carry the _0000 channel suffix, negatives do not.
var (
	positivePattern = regexp.MustCompile(`^(.+)_\d{8}_(baseline|followup)_0000\.nii\.gz$`)
	negativePattern = regexp.MustCompile(`^(.+)_\d{8}_(baseline|followup)\.nii\.gz$`)
)

// CaseInfo describes one discovered case. A case exists only when both
// the baseline and followup series are present.
type CaseInfo struct {
	CaseID       string `json:"case_id"`
	Category     string `json:"category"`
	BaselinePath string `json:"baseline_path"`
	FollowupPath string `json:"followup_path"`
	AIProbPath   string `json:"ai_prob_path,omitempty"`
}

// CaseCount is the category breakdown of the dataset.
type CaseCount struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Total    int `json:"total"`
}

// CaseFiles resolves a case id to its on-disk series.
type CaseFiles struct {
	Baseline string `json:"baseline"`
	Followup string `json:"followup"`
	AIProb   string `json:"ai_prob,omitempty"`
}

type CaseService interface {
	Scan(ctx context.Context) (positive, negative []CaseInfo, err error)
	Count(ctx context.Context) (*CaseCount, error)
	Pool(ctx context.Context) (allocation.Pool, error)
	BlockPartition(ctx context.Context) ([][]string, error)
	Preview(ctx context.Context, numSessions, numBlocks int) (*allocation.Preview, error)
	Allocate(ctx context.Context, numSessions, numBlocks int, shuffle bool) (*allocation.Result, error)
	FilePaths(ctx context.Context, caseID string) (*CaseFiles, error)
}

type caseService struct {
	log         *logger.Logger
	configSvc   StudyConfigService
	cache       redisclient.Cache
	positiveDir string
	negativeDir string
	aiLabelDir  string
}

type scanSnapshot struct {
	Positive []CaseInfo `json:"positive"`
	Negative []CaseInfo `json:"negative"`
}

func NewCaseService(log *logger.Logger, configSvc StudyConfigService, cache redisclient.Cache) CaseService {
	serviceLog := log.With("service", "CaseService")
	datasetDir := utils.GetEnv("DATASET_DIR", "./dataset", serviceLog)
	return &caseService{
		log:         serviceLog,
		configSvc:   configSvc,
		cache:       cache,
		positiveDir: utils.GetEnv("POSITIVE_DIR", filepath.Join(datasetDir, "positive"), serviceLog),
		negativeDir: utils.GetEnv("NEGATIVE_DIR", filepath.Join(datasetDir, "negative"), serviceLog),
		aiLabelDir:  utils.GetEnv("AI_LABEL_DIR", filepath.Join(datasetDir, "ai_labels"), serviceLog),
	}
}

// Scan lists valid cases per category, sorted by case id. The result is
// cached briefly in redis since the dataset only changes on redeploy.
func (s *caseService) Scan(ctx context.Context) ([]CaseInfo, []CaseInfo, error) {
	if s.cache != nil {
		var snap scanSnapshot
		if err := s.cache.GetJSON(ctx, scanCacheKey, &snap); err == nil {
			return snap.Positive, snap.Negative, nil
		}
	}

	positive, err := s.scanFolder(s.positiveDir, positivePattern, "pos", CategoryPositive)
	if err != nil {
		return nil, nil, err
	}
	negative, err := s.scanFolder(s.negativeDir, negativePattern, "", CategoryNegative)
	if err != nil {
		return nil, nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, scanCacheKey, scanSnapshot{Positive: positive, Negative: negative}, scanCacheTTL); err != nil {
			s.log.Warn("Failed to cache case scan", "error", err)
		}
	}
	return positive, negative, nil
}

func (s *caseService) scanFolder(dir string, pattern *regexp.Regexp, prefix, category string) ([]CaseInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	type seriesPair struct {
		baseline string
		followup string
	}
	pairs := map[string]*seriesPair{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		caseID := match[1]
		if prefix != "" {
			caseID = prefix + "_" + caseID
		}
		pair := pairs[caseID]
		if pair == nil {
			pair = &seriesPair{}
			pairs[caseID] = pair
		}
		path := filepath.Join(dir, entry.Name())
		if match[2] == "baseline" {
			pair.baseline = path
		} else {
			pair.followup = path
		}
	}

	var cases []CaseInfo
	for caseID, pair := range pairs {
		if pair.baseline == "" || pair.followup == "" {
			continue
		}
		cases = append(cases, CaseInfo{
			CaseID:       caseID,
			Category:     category,
			BaselinePath: pair.baseline,
			FollowupPath: pair.followup,
			AIProbPath:   s.aiProbPath(caseID, category),
		})
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].CaseID < cases[j].CaseID })
	return cases, nil
}

func (s *caseService) aiProbPath(caseID, category string) string {
	name := strings.TrimPrefix(caseID, "pos_") + "_ai_prob.nii.gz"
	path := filepath.Join(s.aiLabelDir, category, name)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func (s *caseService) Count(ctx context.Context) (*CaseCount, error) {
	positive, negative, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &CaseCount{
		Positive: len(positive),
		Negative: len(negative),
		Total:    len(positive) + len(negative),
	}, nil
}

func (s *caseService) Pool(ctx context.Context) (allocation.Pool, error) {
	positive, negative, err := s.Scan(ctx)
	if err != nil {
		return allocation.Pool{}, err
	}
	pool := allocation.Pool{
		Positive: make([]string, 0, len(positive)),
		Negative: make([]string, 0, len(negative)),
	}
	for _, c := range positive {
		pool.Positive = append(pool.Positive, c.CaseID)
	}
	for _, c := range negative {
		pool.Negative = append(pool.Negative, c.CaseID)
	}
	return pool, nil
}

// BlockPartition computes the block membership every session shares.
// With a configured random seed the category lists are shuffled by a
// seeded rng before partitioning; without one the sorted scan order is
// used, so the partition is stable either way.
func (s *caseService) BlockPartition(ctx context.Context) ([][]string, error) {
	cfg, err := s.configSvc.GetOrCreate(ctx)
	if err != nil {
		return nil, err
	}
	pool, err := s.Pool(ctx)
	if err != nil {
		return nil, err
	}

	shuffle := false
	var rng *rand.Rand
	if cfg.CaseOrderMode == types.CaseOrderModeRandom && cfg.RandomSeed != nil {
		shuffle = true
		rng = rand.New(rand.NewSource(*cfg.RandomSeed))
	}

	res, err := allocation.Allocate(pool, 1, cfg.TotalBlocks, shuffle, rng)
	if err != nil {
		return nil, err
	}

	blocks := res.Sessions["S1"]
	partition := make([][]string, cfg.TotalBlocks)
	for b := 0; b < cfg.TotalBlocks; b++ {
		partition[b] = blocks[allocation.BlockKey(b)]
	}
	return partition, nil
}

func (s *caseService) Preview(ctx context.Context, numSessions, numBlocks int) (*allocation.Preview, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	preview, err := allocation.PreviewAllocation(count.Positive, count.Negative, numSessions, numBlocks)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidArgument, err)
	}
	return preview, nil
}

func (s *caseService) Allocate(ctx context.Context, numSessions, numBlocks int, shuffle bool) (*allocation.Result, error) {
	pool, err := s.Pool(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := s.configSvc.GetOrCreate(ctx)
	if err != nil {
		return nil, err
	}

	var rng *rand.Rand
	if cfg.RandomSeed != nil {
		rng = rand.New(rand.NewSource(*cfg.RandomSeed))
	}
	res, err := allocation.Allocate(pool, numSessions, numBlocks, shuffle, rng)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidArgument, err)
	}
	return res, nil
}

func (s *caseService) FilePaths(ctx context.Context, caseID string) (*CaseFiles, error) {
	positive, negative, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range positive {
		if c.CaseID == caseID {
			return &CaseFiles{Baseline: c.BaselinePath, Followup: c.FollowupPath, AIProb: c.AIProbPath}, nil
		}
	}
	for _, c := range negative {
		if c.CaseID == caseID {
			return &CaseFiles{Baseline: c.BaselinePath, Followup: c.FollowupPath, AIProb: c.AIProbPath}, nil
		}
	}
	return nil, fmt.Errorf("%w: case %s", errs.ErrNotFound, caseID)
}
