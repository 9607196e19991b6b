package types

import (
	"time"

	"github.com/google/uuid"
)

// StudyResult is one patient-level decision for a (reader, session,
// case) triple. Duplicate triples are rejected at the service level.
type StudyResult struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ReaderID  uuid.UUID `gorm:"type:uuid;not null;index" json:"reader_id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`
	Mode      string    `gorm:"column:mode;size:10;not null" json:"mode"` // UNAIDED|AIDED
	CaseID    string    `gorm:"column:case_id;size:100;not null;index" json:"case_id"`

	PatientDecision bool    `gorm:"column:patient_decision;not null" json:"patient_decision"`
	TimeSpentSec    float64 `gorm:"column:time_spent_sec;not null" json:"time_spent_sec"`
	CreatedAt       time.Time `gorm:"not null" json:"created_at"`

	Lesions []LesionMark `gorm:"constraint:OnDelete:CASCADE;foreignKey:ResultID;references:ID" json:"lesions,omitempty"`
}

func (StudyResult) TableName() string { return "study_result" }
