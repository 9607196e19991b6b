package types

import "github.com/google/uuid"

const (
	ConfidenceDefinite = "definite"
	ConfidenceProbable = "probable"
	ConfidencePossible = "possible"
)

type LesionMark struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ResultID uuid.UUID `gorm:"type:uuid;not null;index" json:"result_id"`

	X          int    `gorm:"column:x;not null" json:"x"`
	Y          int    `gorm:"column:y;not null" json:"y"`
	Z          int    `gorm:"column:z;not null" json:"z"`
	Confidence string `gorm:"column:confidence;size:20;not null" json:"confidence"` // definite|probable|possible
	MarkOrder  int    `gorm:"column:mark_order;not null" json:"mark_order"`
}

func (LesionMark) TableName() string { return "lesion_mark" }
