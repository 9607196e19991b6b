package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	AuditSessionStart     = "SESSION_START"
	AuditSessionResume    = "SESSION_RESUME"
	AuditSessionComplete  = "SESSION_COMPLETE"
	AuditCaseComplete     = "CASE_COMPLETE"
	AuditConfigUpdate     = "CONFIG_UPDATE"
	AuditConfigAutoLock   = "CONFIG_AUTO_LOCKED"
	AuditConfigManualLock = "CONFIG_MANUAL_LOCKED"
	AuditSessionAssign    = "ADMIN_SESSION_ASSIGN"
	AuditSessionReset     = "ADMIN_SESSION_RESET"
	AuditLogin            = "LOGIN"
	AuditLogout           = "LOGOUT"
	AuditCaseSubmit       = "CASE_SUBMIT"
)

type AuditLog struct {
	ID       uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ReaderID *uuid.UUID `gorm:"type:uuid;index" json:"reader_id,omitempty"` // nil for pre-login actions

	Action       string `gorm:"column:action;size:50;not null" json:"action"`
	ResourceType string `gorm:"column:resource_type;size:50" json:"resource_type,omitempty"` // session|case|reader|study_config
	ResourceID   string `gorm:"column:resource_id;size:100" json:"resource_id,omitempty"`

	IPAddress string         `gorm:"column:ip_address;size:45" json:"ip_address,omitempty"`
	UserAgent string         `gorm:"column:user_agent;size:500" json:"user_agent,omitempty"`
	Details   datatypes.JSON `gorm:"type:jsonb;column:details" json:"details,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_log" }
