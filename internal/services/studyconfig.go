package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	errs "github.com/walehn/reader-study-backend/internal/pkg/errors"
	"github.com/walehn/reader-study-backend/internal/pkg/logger"
	"github.com/walehn/reader-study-backend/internal/repos"
	"github.com/walehn/reader-study-backend/internal/types"
)

// LockedFields are write-once after the configuration lock transition.
var LockedFields = []string{
	"total_sessions",
	"total_blocks",
	"total_groups",
	"crossover_mapping",
	"k_max",
	"require_lesion_marking",
}

// StudyConfigPatch is a partial update; nil means "leave unchanged".
type StudyConfigPatch struct {
	TotalSessions        *int                                    `json:"total_sessions"`
	TotalBlocks          *int                                    `json:"total_blocks"`
	TotalGroups          *int                                    `json:"total_groups"`
	CrossoverMapping     map[string]map[string]map[string]string `json:"crossover_mapping"`
	KMax                 *int                                    `json:"k_max"`
	AIThreshold          *float64                                `json:"ai_threshold"`
	ConfidenceMode       *string                                 `json:"confidence_mode"`
	RequireLesionMarking *bool                                   `json:"require_lesion_marking"`
	CaseOrderMode        *string                                 `json:"case_order_mode"`
	RandomSeed           *int64                                  `json:"random_seed"`
	StudyName            *string                                 `json:"study_name"`
	StudyDescription     *string                                 `json:"study_description"`
	GroupNames           map[string]string                       `json:"group_names"`
}

type StudyConfigService interface {
	GetOrCreate(ctx context.Context) (*types.StudyConfig, error)
	Update(ctx context.Context, patch StudyConfigPatch) (*types.StudyConfig, error)
	TriggerLockIfNeeded(ctx context.Context, actorID uuid.UUID) (bool, error)
	ManualLock(ctx context.Context, actorID uuid.UUID) (bool, error)
	BlockModes(ctx context.Context, group int, sessionCode string) (string, string, error)
}

type studyConfigService struct {
	db         *gorm.DB
	log        *logger.Logger
	configRepo repos.StudyConfigRepo
	auditRepo  repos.AuditLogRepo
}

func NewStudyConfigService(db *gorm.DB, log *logger.Logger, configRepo repos.StudyConfigRepo, auditRepo repos.AuditLogRepo) StudyConfigService {
	serviceLog := log.With("service", "StudyConfigService")
	return &studyConfigService{
		db:         db,
		log:        serviceLog,
		configRepo: configRepo,
		auditRepo:  auditRepo,
	}
}

func defaultConfig() *types.StudyConfig {
	mapping, _ := json.Marshal(types.DefaultCrossoverMapping())
	names, _ := json.Marshal(types.DefaultGroupNames())
	return &types.StudyConfig{
		ID:                   types.StudyConfigSingletonID,
		TotalSessions:        2,
		TotalBlocks:          2,
		TotalGroups:          2,
		CrossoverMapping:     datatypes.JSON(mapping),
		KMax:                 3,
		AIThreshold:          0.30,
		ConfidenceMode:       types.ConfidenceModeThreeLevel,
		RequireLesionMarking: true,
		CaseOrderMode:        types.CaseOrderModeRandom,
		StudyName:            "Reader Study",
		GroupNames:           datatypes.JSON(names),
	}
}

func (s *studyConfigService) GetOrCreate(ctx context.Context) (*types.StudyConfig, error) {
	cfg, err := s.configRepo.Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load study config: %w", err)
	}
	if cfg != nil {
		return cfg, nil
	}

	cfg = defaultConfig()
	if err := s.configRepo.Create(ctx, nil, cfg); err != nil {
		return nil, fmt.Errorf("failed to create default study config: %w", err)
	}
	s.log.Info("Created default study config")
	return cfg, nil
}

// getOrCreateForUpdate loads the singleton under a row lock, creating it
// first if absent. Must run inside a transaction.
func (s *studyConfigService) getOrCreateForUpdate(ctx context.Context, tx *gorm.DB) (*types.StudyConfig, error) {
	cfg, err := s.configRepo.GetForUpdate(ctx, tx)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}
	cfg = defaultConfig()
	if err := s.configRepo.Create(ctx, tx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *studyConfigService) Update(ctx context.Context, patch StudyConfigPatch) (*types.StudyConfig, error) {
	if err := validateStructuralRanges(patch); err != nil {
		return nil, err
	}

	var updated *types.StudyConfig
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cfg, err := s.getOrCreateForUpdate(ctx, tx)
		if err != nil {
			return fmt.Errorf("failed to load study config: %w", err)
		}

		if cfg.IsLocked {
			if offending := lockedFieldsIn(patch); len(offending) > 0 {
				return fmt.Errorf("%w: %s cannot change after the study is locked",
					errs.ErrConfigLocked, strings.Join(offending, ", "))
			}
		}

		totalGroups := cfg.TotalGroups
		if patch.TotalGroups != nil {
			totalGroups = *patch.TotalGroups
		}
		totalSessions := cfg.TotalSessions
		if patch.TotalSessions != nil {
			totalSessions = *patch.TotalSessions
		}

		if patch.CrossoverMapping != nil {
			if err := validateCrossoverMapping(patch.CrossoverMapping, totalGroups, totalSessions); err != nil {
				return fmt.Errorf("%w: invalid crossover mapping: %v", errs.ErrInvalidArgument, err)
			}
		}

		if patch.GroupNames != nil {
			// Validate against the mapping as it will stand after this update.
			effective := patch.CrossoverMapping
			if effective == nil {
				if err := json.Unmarshal(cfg.CrossoverMapping, &effective); err != nil {
					return fmt.Errorf("failed to decode stored crossover mapping: %w", err)
				}
			}
			if err := validateGroupNames(patch.GroupNames, effective); err != nil {
				return fmt.Errorf("%w: invalid group names: %v", errs.ErrInvalidArgument, err)
			}
		}

		applyPatch(cfg, patch)
		cfg.UpdatedAt = time.Now().UTC()

		if err := s.configRepo.Save(ctx, tx, cfg); err != nil {
			return fmt.Errorf("failed to save study config: %w", err)
		}
		updated = cfg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// TriggerLockIfNeeded performs the one-time lock transition on a
// reader's first session entry. The row lock taken before reading
// IsLocked guarantees that exactly one of any set of concurrent callers
// observes the unlocked state; everyone else gets (false, nil).
func (s *studyConfigService) TriggerLockIfNeeded(ctx context.Context, actorID uuid.UUID) (bool, error) {
	return s.lock(ctx, actorID, types.AuditConfigAutoLock, map[string]any{
		"reason":        "first_session_started",
		"locked_fields": LockedFields,
	})
}

func (s *studyConfigService) ManualLock(ctx context.Context, actorID uuid.UUID) (bool, error) {
	return s.lock(ctx, actorID, types.AuditConfigManualLock, map[string]any{
		"reason": "manual_lock_by_admin",
	})
}

func (s *studyConfigService) lock(ctx context.Context, actorID uuid.UUID, action string, details map[string]any) (bool, error) {
	locked := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cfg, err := s.getOrCreateForUpdate(ctx, tx)
		if err != nil {
			return fmt.Errorf("failed to load study config: %w", err)
		}
		if cfg.IsLocked {
			return nil
		}

		now := time.Now().UTC()
		cfg.IsLocked = true
		cfg.LockedAt = &now
		cfg.LockedBy = &actorID
		cfg.UpdatedAt = now
		if err := s.configRepo.Save(ctx, tx, cfg); err != nil {
			return fmt.Errorf("failed to persist lock: %w", err)
		}

		detailsJSON, _ := json.Marshal(details)
		entry := &types.AuditLog{
			ID:           uuid.New(),
			ReaderID:     &actorID,
			Action:       action,
			ResourceType: "study_config",
			ResourceID:   types.StudyConfigSingletonID.String(),
			Details:      datatypes.JSON(detailsJSON),
		}
		if err := s.auditRepo.Create(ctx, tx, entry); err != nil {
			return fmt.Errorf("failed to write lock audit entry: %w", err)
		}

		locked = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if locked {
		s.log.Info("Study config locked", "action", action, "actor_id", actorID)
	}
	return locked, nil
}

// BlockModes resolves (block A mode, block B mode) for a group and
// session code from the stored crossover mapping.
func (s *studyConfigService) BlockModes(ctx context.Context, group int, sessionCode string) (string, string, error) {
	cfg, err := s.GetOrCreate(ctx)
	if err != nil {
		return "", "", err
	}

	var mapping map[string]map[string]map[string]string
	if err := json.Unmarshal(cfg.CrossoverMapping, &mapping); err != nil {
		return "", "", fmt.Errorf("failed to decode crossover mapping: %w", err)
	}

	groupKey := fmt.Sprintf("group_%d", group)
	sessionMapping, ok := mapping[groupKey][sessionCode]
	if !ok {
		return "", "", fmt.Errorf("%w: no crossover entry for %s/%s", errs.ErrNotFound, groupKey, sessionCode)
	}
	return sessionMapping["block_A"], sessionMapping["block_B"], nil
}

func validateStructuralRanges(patch StudyConfigPatch) error {
	if patch.TotalSessions != nil && (*patch.TotalSessions < 1 || *patch.TotalSessions > 20) {
		return fmt.Errorf("%w: total_sessions must be between 1 and 20", errs.ErrInvalidArgument)
	}
	if patch.TotalBlocks != nil && (*patch.TotalBlocks < 1 || *patch.TotalBlocks > 4) {
		return fmt.Errorf("%w: total_blocks must be between 1 and 4", errs.ErrInvalidArgument)
	}
	if patch.TotalGroups != nil && (*patch.TotalGroups < 1 || *patch.TotalGroups > 10) {
		return fmt.Errorf("%w: total_groups must be between 1 and 10", errs.ErrInvalidArgument)
	}
	if patch.KMax != nil && (*patch.KMax < 1 || *patch.KMax > 10) {
		return fmt.Errorf("%w: k_max must be between 1 and 10", errs.ErrInvalidArgument)
	}
	if patch.AIThreshold != nil && (*patch.AIThreshold < 0 || *patch.AIThreshold > 1) {
		return fmt.Errorf("%w: ai_threshold must be between 0 and 1", errs.ErrInvalidArgument)
	}
	return nil
}

// lockedFieldsIn reports which write-once fields the patch touches.
func lockedFieldsIn(patch StudyConfigPatch) []string {
	var fields []string
	if patch.TotalSessions != nil {
		fields = append(fields, "total_sessions")
	}
	if patch.TotalBlocks != nil {
		fields = append(fields, "total_blocks")
	}
	if patch.TotalGroups != nil {
		fields = append(fields, "total_groups")
	}
	if patch.CrossoverMapping != nil {
		fields = append(fields, "crossover_mapping")
	}
	if patch.KMax != nil {
		fields = append(fields, "k_max")
	}
	if patch.RequireLesionMarking != nil {
		fields = append(fields, "require_lesion_marking")
	}
	return fields
}

// validateCrossoverMapping requires exactly the expected group keys,
// each with exactly the expected session codes, each holding block_A and
// block_B valued AIDED or UNAIDED. Any deviation rejects the mapping.
func validateCrossoverMapping(mapping map[string]map[string]map[string]string, totalGroups, totalSessions int) error {
	if len(mapping) != totalGroups {
		return fmt.Errorf("expected %d groups, got %d", totalGroups, len(mapping))
	}
	for g := 1; g <= totalGroups; g++ {
		groupKey := fmt.Sprintf("group_%d", g)
		sessions, ok := mapping[groupKey]
		if !ok {
			return fmt.Errorf("missing %q", groupKey)
		}
		if len(sessions) != totalSessions {
			return fmt.Errorf("%s: expected %d sessions, got %d", groupKey, totalSessions, len(sessions))
		}
		for n := 1; n <= totalSessions; n++ {
			sessionCode := fmt.Sprintf("S%d", n)
			blocks, ok := sessions[sessionCode]
			if !ok {
				return fmt.Errorf("missing %s.%s", groupKey, sessionCode)
			}
			if len(blocks) != 2 {
				return fmt.Errorf("%s.%s: expected block_A and block_B, got %d keys", groupKey, sessionCode, len(blocks))
			}
			for _, blockKey := range []string{"block_A", "block_B"} {
				mode, ok := blocks[blockKey]
				if !ok {
					return fmt.Errorf("missing %s.%s.%s", groupKey, sessionCode, blockKey)
				}
				if mode != types.ModeAided && mode != types.ModeUnaided {
					return fmt.Errorf("%s.%s.%s: invalid mode %q", groupKey, sessionCode, blockKey, mode)
				}
			}
		}
	}
	return nil
}

// validateGroupNames requires the display-name keys to match the
// mapping's group keys exactly.
func validateGroupNames(names map[string]string, mapping map[string]map[string]map[string]string) error {
	if len(names) != len(mapping) {
		return fmt.Errorf("expected %d group names, got %d", len(mapping), len(names))
	}
	for key, value := range names {
		if _, ok := mapping[key]; !ok {
			return fmt.Errorf("unknown group %q", key)
		}
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return fmt.Errorf("group name for %q is empty", key)
		}
		if len(value) > 50 {
			return fmt.Errorf("group name for %q exceeds 50 characters", key)
		}
	}
	return nil
}

func applyPatch(cfg *types.StudyConfig, patch StudyConfigPatch) {
	if patch.TotalSessions != nil {
		cfg.TotalSessions = *patch.TotalSessions
	}
	if patch.TotalBlocks != nil {
		cfg.TotalBlocks = *patch.TotalBlocks
	}
	if patch.TotalGroups != nil {
		cfg.TotalGroups = *patch.TotalGroups
	}
	if patch.CrossoverMapping != nil {
		raw, _ := json.Marshal(patch.CrossoverMapping)
		cfg.CrossoverMapping = datatypes.JSON(raw)
	}
	if patch.KMax != nil {
		cfg.KMax = *patch.KMax
	}
	if patch.AIThreshold != nil {
		cfg.AIThreshold = *patch.AIThreshold
	}
	if patch.ConfidenceMode != nil {
		cfg.ConfidenceMode = *patch.ConfidenceMode
	}
	if patch.RequireLesionMarking != nil {
		cfg.RequireLesionMarking = *patch.RequireLesionMarking
	}
	if patch.CaseOrderMode != nil {
		cfg.CaseOrderMode = *patch.CaseOrderMode
	}
	if patch.RandomSeed != nil {
		cfg.RandomSeed = patch.RandomSeed
	}
	if patch.StudyName != nil {
		cfg.StudyName = *patch.StudyName
	}
	if patch.StudyDescription != nil {
		cfg.StudyDescription = *patch.StudyDescription
	}
	if patch.GroupNames != nil {
		raw, _ := json.Marshal(patch.GroupNames)
		cfg.GroupNames = datatypes.JSON(raw)
	}
}
