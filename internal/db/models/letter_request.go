package models

import (
	"time"

	"gorm.io/gorm"
)

type RequestStatus string

const (
	StatusSubmitted RequestStatus = "submitted"
	StatusInReview  RequestStatus = "in_review"
	StatusForwarded RequestStatus = "forwarded"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusCompleted RequestStatus = "completed"
)

// Final reports whether the status is terminal. No transition leaves a
// terminal status.
func (s RequestStatus) Final() bool {
	return s == StatusCompleted || s == StatusRejected
}

type LetterRequest struct {
	gorm.Model
	ID             string        `gorm:"primaryKey"`
	LetterType     string        `gorm:"not null;index"`
	RequesterID    string        `gorm:"not null;index"`
	RequesterName  string        `gorm:"not null"`
	Purpose        string        `gorm:"not null"`
	AdditionalInfo string        `gorm:"type:json"`
	Stage          string        `gorm:"not null"`
	Status         RequestStatus `gorm:"not null;default:'submitted';index"`
	AssignedRole   string        `gorm:"not null;index"`
	AssignedActor  *string
	RequestedAt    time.Time `gorm:"default:CURRENT_TIMESTAMP"`
	TransitionedAt time.Time
	LetterNumber    *string `gorm:"uniqueIndex"`
	RejectionReason *string
	Revoked         bool `gorm:"not null;default:false"`
	// Version drives optimistic conflict detection: every transition reads
	// the current value and its write only lands if the value is unchanged.
	Version     int `gorm:"not null;default:1"`
	Attachments []Attachment
	Signatures  []Signature
}
