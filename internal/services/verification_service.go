package services

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/devnolife/sakti-dashboard-sub017/internal/db/models"
	"github.com/devnolife/sakti-dashboard-sub017/internal/signing"
	"github.com/devnolife/sakti-dashboard-sub017/internal/store"
)

var verificationChecks = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "surat_verification_checks_total",
		Help: "Public verification attempts by outcome",
	},
	[]string{"outcome"},
)

// FailureReason is the single, uniform message the public endpoint returns
// for every failed verification. Which check failed is never disclosed.
const FailureReason = "dokumen tidak dapat diverifikasi"

// ReportSignatory is one signatory row of a successful verification report.
type ReportSignatory struct {
	Name     string    `json:"name"`
	Role     string    `json:"role"`
	SignedAt time.Time `json:"signed_at"`
}

// Report is what a holder of a verification link receives.
type Report struct {
	Valid             bool              `json:"valid"`
	Reason            string            `json:"reason,omitempty"`
	LetterNumber      string            `json:"letter_number,omitempty"`
	Issuer            string            `json:"issuer,omitempty"`
	SubjectID         string            `json:"subject_id,omitempty"`
	SubjectName       string            `json:"subject_name,omitempty"`
	IssuedAt          *time.Time        `json:"issued_at,omitempty"`
	Status            string            `json:"status,omitempty"`
	Signatories       []ReportSignatory `json:"signatories,omitempty"`
	VerificationCount int64             `json:"verification_count,omitempty"`
}

// ClientMeta is the origin metadata recorded with each verification attempt.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// VerificationService answers "is this document authentic, and what does it
// attest?" for unauthenticated holders of a proof token.
type VerificationService struct {
	store   store.Store
	keyring *signing.Keyring
	logger  *zap.Logger
}

func NewVerificationService(st store.Store, keyring *signing.Keyring, logger *zap.Logger) *VerificationService {
	return &VerificationService{
		store:   st,
		keyring: keyring,
		logger:  logger.With(zap.String("service", "verification")),
	}
}

func failure() Report {
	return Report{Valid: false, Reason: FailureReason}
}

func signatoryKey(role, name string, signedAt time.Time) string {
	return role + "\x00" + name + "\x00" + signedAt.UTC().Format(time.RFC3339Nano)
}

func (vs *VerificationService) record(ctx context.Context, requestID string, outcome models.VerificationOutcome, meta ClientMeta) {
	rec := &models.VerificationRecord{
		LetterRequestID: requestID,
		Outcome:         outcome,
		ClientIP:        meta.IP,
		UserAgent:       meta.UserAgent,
	}
	if err := vs.store.AppendVerification(ctx, rec); err != nil {
		vs.logger.Warn("verification record append failed", zap.Error(err))
	}
	verificationChecks.WithLabelValues(string(outcome)).Inc()
}

// VerifyToken re-checks the proof cryptographically and against the live
// request record. A letter that was signed and later administratively revoked
// fails here even though its signature still verifies. Every call counts
// toward the verification counter.
func (vs *VerificationService) VerifyToken(ctx context.Context, dataSegment, signatureSegment string, meta ClientMeta) Report {
	doc, err := vs.keyring.Verify(dataSegment, signatureSegment)
	if err != nil {
		// MalformedToken, InvalidSignature, and KeyExpired deliberately
		// collapse into one uniform failure.
		vs.record(ctx, "", models.VerificationInvalid, meta)
		return failure()
	}

	req, err := vs.store.GetRequestByLetterNumber(ctx, doc.LetterNumber)
	if err != nil {
		outcome := models.VerificationInvalid
		if !errors.Is(err, store.ErrNotFound) {
			outcome = models.VerificationError
			vs.logger.Error("request lookup failed", zap.Error(err))
		}
		vs.record(ctx, "", outcome, meta)
		return failure()
	}

	if req.Status != models.StatusCompleted || req.Revoked {
		vs.record(ctx, req.ID, models.VerificationInvalid, meta)
		return failure()
	}

	// A revoked signatory signature also invalidates the published proof.
	sigs, err := vs.store.ListSignatures(ctx, req.ID)
	if err != nil {
		vs.logger.Error("signature lookup failed", zap.Error(err))
		vs.record(ctx, req.ID, models.VerificationError, meta)
		return failure()
	}
	// Keyed by role, name, and signing time so that a revoked signature only
	// invalidates tokens that embed it. A re-signed document carries a fresh
	// timestamp and stays verifiable.
	revoked := make(map[string]bool)
	for _, sig := range sigs {
		if sig.Status == models.SignatureRevoked {
			revoked[signatoryKey(sig.SignatoryRole, sig.SignatoryName, sig.SignedAt)] = true
		}
	}
	for _, s := range doc.Signatories {
		if revoked[signatoryKey(s.Role, s.Name, s.SignedAt)] {
			vs.record(ctx, req.ID, models.VerificationInvalid, meta)
			return failure()
		}
	}

	vs.record(ctx, req.ID, models.VerificationValid, meta)
	count, err := vs.store.CountVerifications(ctx, req.ID)
	if err != nil {
		vs.logger.Warn("verification count failed", zap.Error(err))
	}

	issued := doc.IssuedAt
	report := Report{
		Valid:             true,
		LetterNumber:      doc.LetterNumber,
		Issuer:            doc.Issuer,
		SubjectID:         doc.SubjectID,
		SubjectName:       doc.SubjectName,
		IssuedAt:          &issued,
		Status:            doc.Status,
		VerificationCount: count,
	}
	for _, s := range doc.Signatories {
		report.Signatories = append(report.Signatories, ReportSignatory{
			Name:     s.Name,
			Role:     s.Role,
			SignedAt: s.SignedAt,
		})
	}
	return report
}
