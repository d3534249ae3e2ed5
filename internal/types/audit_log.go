package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Audit actions.
const (
	AuditCreate  = "create"
	AuditUpdate  = "update"
	AuditApprove = "approve"
	AuditDelete  = "delete"
	AuditExport  = "export"
)

// AuditLogEntry is append-only. Rows are retained for the compliance window
// and are never updated or deleted by this service.
type AuditLogEntry struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Actor        uuid.UUID      `gorm:"type:uuid;index;not null" json:"actor"`
	Action       string         `gorm:"index;not null" json:"action"`
	ResourceType string         `gorm:"column:resource_type;not null" json:"resource_type"`
	ResourceID   uuid.UUID      `gorm:"type:uuid;column:resource_id;index;not null" json:"resource_id"`
	Details      datatypes.JSON `gorm:"type:jsonb" json:"details,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (AuditLogEntry) TableName() string {
	return "audit_log"
}

func (e *AuditLogEntry) BeforeCreate(_ *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
