package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SessionStatusPending    = "pending"
	SessionStatusInProgress = "in_progress"
	SessionStatusCompleted  = "completed"

	BlockA = "A"
	BlockB = "B"
)

// StudySession is one (reader, session code) assignment. The block case
// orders stay null until the reader's first entry, then hold the
// permutation that every re-entry replays.
type StudySession struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionCode string    `gorm:"column:session_code;size:50;not null;index:idx_reader_session,unique,priority:2" json:"session_code"` // S1, S2
	ReaderID    uuid.UUID `gorm:"type:uuid;not null;index:idx_reader_session,unique,priority:1" json:"reader_id"`
	Reader      *Reader   `gorm:"constraint:OnDelete:CASCADE;foreignKey:ReaderID;references:ID" json:"reader,omitempty"`

	BlockAMode string `gorm:"column:block_a_mode;size:10;not null" json:"block_a_mode"` // UNAIDED|AIDED
	BlockBMode string `gorm:"column:block_b_mode;size:10;not null" json:"block_b_mode"`

	// JSON arrays of case identifiers, written once on first entry.
	CaseOrderBlockA datatypes.JSON `gorm:"type:jsonb;column:case_order_block_a" json:"case_order_block_a,omitempty"`
	CaseOrderBlockB datatypes.JSON `gorm:"type:jsonb;column:case_order_block_b" json:"case_order_block_b,omitempty"`

	KMax        int     `gorm:"column:k_max;not null;default:3" json:"k_max"`
	AIThreshold float64 `gorm:"column:ai_threshold;not null;default:0.30" json:"ai_threshold"`

	Status    string    `gorm:"column:status;size:20;not null;default:'pending'" json:"status"` // pending|in_progress|completed
	CreatedAt time.Time `gorm:"not null" json:"created_at"`

	Progress *SessionProgress `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"progress,omitempty"`
}

func (StudySession) TableName() string { return "study_session" }
