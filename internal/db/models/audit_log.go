package models

import (
	"time"

	"gorm.io/gorm"
)

// AuditLogEntry is append-only; nothing updates or deletes these rows
// through normal operation.
type AuditLogEntry struct {
	gorm.Model
	ID         string `gorm:"primaryKey"`
	Actor      string `gorm:"not null;index"`
	ActorRole  string
	Action     string `gorm:"not null;index"`
	ResourceID string `gorm:"not null;index"`
	Detail     string `gorm:"type:json"`
	ClientIP   string
	OccurredAt time.Time `gorm:"index;default:CURRENT_TIMESTAMP"`
}
