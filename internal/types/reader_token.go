package types

import (
	"time"

	"github.com/google/uuid"
)

// ReaderToken holds one refresh token. Tokens rotate on refresh and are
// revoked on logout.
type ReaderToken struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ReaderID  uuid.UUID `gorm:"type:uuid;not null;index" json:"reader_id"`
	TokenHash string    `gorm:"column:token_hash;size:255;not null;uniqueIndex" json:"-"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null" json:"expires_at"`
	Revoked   bool      `gorm:"column:revoked;not null;default:false" json:"revoked"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (ReaderToken) TableName() string { return "reader_token" }
