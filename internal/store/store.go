// Package store is the persistence boundary of the workflow core. The gorm
// implementation backs production; the memory implementation backs tests and
// the database.driver=memory development mode.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/devnolife/sakti-dashboard-sub017/internal/db/models"
)

var (
	// ErrNotFound means there is no row for the given key.
	ErrNotFound = errors.New("store: record not found")
	// ErrVersionConflict means the optimistic version guard failed; someone
	// else committed a transition first.
	ErrVersionConflict = errors.New("store: version conflict")
	// ErrDuplicate means a uniqueness rule rejected the insert, such as a
	// second valid signature for the same request and signatory.
	ErrDuplicate = errors.New("store: duplicate record")
)

// AuditFilter narrows an audit export. Zero values mean "no constraint".
type AuditFilter struct {
	Actor      string
	Action     string
	ResourceID string
	From       time.Time
	To         time.Time
	Offset     int
	Limit      int
}

// Store is the persistence collaborator the workflow engine, verification
// endpoint, and audit recorder talk to.
type Store interface {
	CreateRequest(ctx context.Context, req *models.LetterRequest, attachments []models.Attachment) error
	GetRequest(ctx context.Context, id string) (*models.LetterRequest, error)
	GetRequestByLetterNumber(ctx context.Context, letterNumber string) (*models.LetterRequest, error)
	ListByAssignedRole(ctx context.Context, role string) ([]models.LetterRequest, error)
	ListByRequester(ctx context.Context, requesterID string) ([]models.LetterRequest, error)
	// ApplyTransition writes the request's new state and the audit entry as
	// one atomic unit, guarded by expectedVersion. The request's Version is
	// bumped on success. audit may be nil.
	ApplyTransition(ctx context.Context, req *models.LetterRequest, expectedVersion int, audit *models.AuditLogEntry) error
	DeleteRequest(ctx context.Context, id string) error

	// AllocateSequence atomically increments and returns the next letter
	// number for (letterType, year).
	AllocateSequence(ctx context.Context, letterType string, year int) (int, error)

	// CreateSignature inserts a signature row. A valid row already existing
	// for the same request and signatory fails with ErrDuplicate.
	CreateSignature(ctx context.Context, sig *models.Signature) error
	ListSignatures(ctx context.Context, requestID string) ([]models.Signature, error)
	RevokeSignature(ctx context.Context, requestID, signatoryID, reason string) error

	ListAttachments(ctx context.Context, requestID string) ([]models.Attachment, error)

	AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]models.AuditLogEntry, int64, error)

	AppendVerification(ctx context.Context, rec *models.VerificationRecord) error
	CountVerifications(ctx context.Context, requestID string) (int64, error)
}
