package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EditHistoryEntry is written once per accepted review edit and never touched
// again. OldValue/NewValue hold the full note JSON before and after.
type EditHistoryEntry struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ConsultationID uuid.UUID      `gorm:"type:uuid;index;not null" json:"consultation_id"`
	Editor         uuid.UUID      `gorm:"type:uuid;not null" json:"editor"`
	Field          string         `gorm:"not null" json:"field"`
	OldValue       datatypes.JSON `gorm:"type:jsonb;column:old_value" json:"old_value,omitempty"`
	NewValue       datatypes.JSON `gorm:"type:jsonb;column:new_value" json:"new_value,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (EditHistoryEntry) TableName() string {
	return "edit_history"
}

func (e *EditHistoryEntry) BeforeCreate(_ *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
