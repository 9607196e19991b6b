package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ModeAided   = "AIDED"
	ModeUnaided = "UNAIDED"

	CaseOrderModeRandom = "random"
	CaseOrderModeFixed  = "fixed"

	ConfidenceModeThreeLevel = "three_level"
)

// StudyConfigSingletonID is the fixed primary key of the one study_config
// row. The table never holds more than one row.
var StudyConfigSingletonID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// StudyConfig is the singleton study configuration. Structural fields,
// the crossover mapping, KMax and RequireLesionMarking become write-once
// as soon as IsLocked flips; display fields stay mutable.
type StudyConfig struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	TotalSessions int `gorm:"column:total_sessions;not null;default:2" json:"total_sessions"`
	TotalBlocks   int `gorm:"column:total_blocks;not null;default:2" json:"total_blocks"`
	TotalGroups   int `gorm:"column:total_groups;not null;default:2" json:"total_groups"`

	// group key -> session code -> block_A/block_B -> AIDED|UNAIDED
	CrossoverMapping datatypes.JSON `gorm:"type:jsonb;column:crossover_mapping;not null" json:"crossover_mapping"`

	KMax                 int     `gorm:"column:k_max;not null;default:3" json:"k_max"`
	AIThreshold          float64 `gorm:"column:ai_threshold;not null;default:0.30" json:"ai_threshold"`
	ConfidenceMode       string  `gorm:"column:confidence_mode;size:20;not null;default:'three_level'" json:"confidence_mode"`
	RequireLesionMarking bool    `gorm:"column:require_lesion_marking;not null;default:true" json:"require_lesion_marking"`

	CaseOrderMode string `gorm:"column:case_order_mode;size:20;not null;default:'random'" json:"case_order_mode"`
	RandomSeed    *int64 `gorm:"column:random_seed" json:"random_seed,omitempty"`

	IsLocked bool       `gorm:"column:is_locked;not null;default:false" json:"is_locked"`
	LockedAt *time.Time `gorm:"column:locked_at" json:"locked_at,omitempty"`
	LockedBy *uuid.UUID `gorm:"type:uuid;column:locked_by" json:"locked_by,omitempty"`

	StudyName        string         `gorm:"column:study_name;size:200;not null;default:'Reader Study'" json:"study_name"`
	StudyDescription string         `gorm:"column:study_description" json:"study_description"`
	GroupNames       datatypes.JSON `gorm:"type:jsonb;column:group_names" json:"group_names,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (StudyConfig) TableName() string { return "study_config" }

// DefaultCrossoverMapping is the 2x2x2 crossover: each group reads one
// block aided and one unaided per session, with the assignment flipped
// between sessions and between groups.
func DefaultCrossoverMapping() map[string]map[string]map[string]string {
	return map[string]map[string]map[string]string{
		"group_1": {
			"S1": {"block_A": ModeUnaided, "block_B": ModeAided},
			"S2": {"block_A": ModeAided, "block_B": ModeUnaided},
		},
		"group_2": {
			"S1": {"block_A": ModeAided, "block_B": ModeUnaided},
			"S2": {"block_A": ModeUnaided, "block_B": ModeAided},
		},
	}
}

func DefaultGroupNames() map[string]string {
	return map[string]string{
		"group_1": "Group 1",
		"group_2": "Group 2",
	}
}
