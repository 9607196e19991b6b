package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleReader = "reader"
	RoleAdmin  = "admin"
)

type Reader struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ReaderCode   string     `gorm:"column:reader_code;size:50;not null;uniqueIndex" json:"reader_code"` // R01, R02...
	Name         string     `gorm:"column:name;size:100;not null" json:"name"`
	Email        string     `gorm:"column:email;size:200;not null;uniqueIndex" json:"email"`
	PasswordHash string     `gorm:"column:password_hash;size:255;not null" json:"-"`
	Role         string     `gorm:"column:role;size:20;not null;default:'reader'" json:"role"` // reader|admin
	Group        *int       `gorm:"column:study_group" json:"group,omitempty"`                 // crossover group, nil for admins
	IsActive     bool       `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at" json:"last_login_at,omitempty"`

	Sessions []StudySession `gorm:"constraint:OnDelete:CASCADE;foreignKey:ReaderID;references:ID" json:"sessions,omitempty"`
}

func (Reader) TableName() string { return "reader" }
