package services

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/semaphore"

	redisclient "github.com/walehn/reader-study-backend/internal/clients/redis"
	errs "github.com/walehn/reader-study-backend/internal/pkg/errors"
	"github.com/walehn/reader-study-backend/internal/pkg/logger"
	"github.com/walehn/reader-study-backend/internal/utils"
)

const (
	SeriesBaseline = "baseline"
	SeriesFollowup = "followup"
	SeriesAIProb   = "ai_prob"

	volumeCacheTTL = 10 * time.Minute
	// Payloads above this size bypass the cache.
	volumeCacheMaxBytes = 32 << 20
)

// VolumeService reads volumetric series off disk. Reads are bounded by
// a weighted semaphore so a burst of viewers cannot saturate disk I/O,
// and small payloads are served from redis on repeat access.
type VolumeService interface {
	ReadSeries(ctx context.Context, caseID, series string) ([]byte, error)
}

type volumeService struct {
	log     *logger.Logger
	caseSvc CaseService
	cache   redisclient.Cache
	sem     *semaphore.Weighted
}

func NewVolumeService(log *logger.Logger, caseSvc CaseService, cache redisclient.Cache) VolumeService {
	serviceLog := log.With("service", "VolumeService")
	workers := utils.GetEnvAsInt("VOLUME_WORKERS", 4, serviceLog)
	if workers < 1 {
		workers = 1
	}
	return &volumeService{
		log:     serviceLog,
		caseSvc: caseSvc,
		cache:   cache,
		sem:     semaphore.NewWeighted(int64(workers)),
	}
}

func (s *volumeService) ReadSeries(ctx context.Context, caseID, series string) ([]byte, error) {
	if series != SeriesBaseline && series != SeriesFollowup && series != SeriesAIProb {
		return nil, fmt.Errorf("%w: unknown series %q", errs.ErrInvalidArgument, series)
	}

	cacheKey := fmt.Sprintf("volume:%s:%s", caseID, series)
	if s.cache != nil {
		if raw, err := s.cache.GetBytes(ctx, cacheKey); err == nil {
			return raw, nil
		}
	}

	files, err := s.caseSvc.FilePaths(ctx, caseID)
	if err != nil {
		return nil, err
	}
	path := files.Baseline
	switch series {
	case SeriesFollowup:
		path = files.Followup
	case SeriesAIProb:
		path = files.AIProb
	}
	if path == "" {
		return nil, fmt.Errorf("%w: case %s has no %s series", errs.ErrNotFound, caseID, series)
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s series for case %s: %w", series, caseID, err)
	}

	if s.cache != nil && len(raw) <= volumeCacheMaxBytes {
		if err := s.cache.SetBytes(ctx, cacheKey, raw, volumeCacheTTL); err != nil {
			s.log.Warn("Failed to cache volume payload", "case_id", caseID, "series", series, "error", err)
		}
	}
	return raw, nil
}
