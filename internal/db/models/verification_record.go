package models

import (
	"time"

	"gorm.io/gorm"
)

type VerificationOutcome string

const (
	VerificationValid   VerificationOutcome = "valid"
	VerificationInvalid VerificationOutcome = "invalid"
	VerificationError   VerificationOutcome = "error"
)

// VerificationRecord is appended once per verification attempt and feeds the
// "verified N times" counter and abuse monitoring.
type VerificationRecord struct {
	gorm.Model
	LetterRequestID string              `gorm:"index"`
	Outcome         VerificationOutcome `gorm:"not null"`
	ClientIP        string
	UserAgent       string
	CheckedAt       time.Time `gorm:"default:CURRENT_TIMESTAMP"`
}
