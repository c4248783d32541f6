package models

import (
	"time"

	"gorm.io/gorm"
)

type SignatureStatus string

const (
	SignatureValid   SignatureStatus = "valid"
	SignatureRevoked SignatureStatus = "revoked"
)

// Signature rows are append-only. Correction is revocation plus re-signing,
// never an edit in place. The partial unique index keeps at most one valid
// row per request and signatory; concurrent duplicate inserts fail at the
// database even when both raced past the service's read.
type Signature struct {
	gorm.Model
	LetterRequestID  string `gorm:"index;not null;uniqueIndex:uniq_request_signatory_valid,where:status = 'valid'"`
	SignatoryID      string `gorm:"not null;uniqueIndex:uniq_request_signatory_valid"`
	SignatoryName    string `gorm:"not null"`
	SignatoryRole    string `gorm:"not null"`
	KeyID            string `gorm:"not null"`
	ProofData        string `gorm:"not null"`
	ProofSignature   string `gorm:"not null"`
	SignedAt         time.Time
	Status           SignatureStatus `gorm:"not null;default:'valid'"`
	RevocationReason string
}
