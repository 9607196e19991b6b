package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SessionProgress is the persisted cursor of one session: at most one
// row per session, created at first entry and deleted by reset.
type SessionProgress struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"session_id"`

	CurrentBlock     string         `gorm:"column:current_block;size:1;not null;default:'A'" json:"current_block"` // A|B
	CurrentCaseIndex int            `gorm:"column:current_case_index;not null;default:0" json:"current_case_index"`
	CompletedCases   datatypes.JSON `gorm:"type:jsonb;column:completed_cases;not null" json:"completed_cases"` // JSON array of case ids

	StartedAt      *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	LastAccessedAt *time.Time `gorm:"column:last_accessed_at" json:"last_accessed_at,omitempty"`
	CompletedAt    *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (SessionProgress) TableName() string { return "session_progress" }
