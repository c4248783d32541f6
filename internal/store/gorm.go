package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/devnolife/sakti-dashboard-sub017/internal/db/models"
)

var _ Store = (*GormStore)(nil)

// GormStore is the PostgreSQL-backed Store.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreateRequest(ctx context.Context, req *models.LetterRequest, attachments []models.Attachment) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return err
		}
		for i := range attachments {
			attachments[i].LetterRequestID = req.ID
			if err := tx.Create(&attachments[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) GetRequest(ctx context.Context, id string) (*models.LetterRequest, error) {
	var req models.LetterRequest
	err := s.db.WithContext(ctx).First(&req, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *GormStore) GetRequestByLetterNumber(ctx context.Context, letterNumber string) (*models.LetterRequest, error) {
	var req models.LetterRequest
	err := s.db.WithContext(ctx).First(&req, "letter_number = ?", letterNumber).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *GormStore) ListByAssignedRole(ctx context.Context, role string) ([]models.LetterRequest, error) {
	var reqs []models.LetterRequest
	err := s.db.WithContext(ctx).
		Where("assigned_role = ? AND status NOT IN ?", role,
			[]models.RequestStatus{models.StatusCompleted, models.StatusRejected}).
		Order("requested_at ASC").
		Find(&reqs).Error
	return reqs, err
}

func (s *GormStore) ListByRequester(ctx context.Context, requesterID string) ([]models.LetterRequest, error) {
	var reqs []models.LetterRequest
	err := s.db.WithContext(ctx).
		Where("requester_id = ?", requesterID).
		Order("requested_at DESC").
		Find(&reqs).Error
	return reqs, err
}

func (s *GormStore) ApplyTransition(ctx context.Context, req *models.LetterRequest, expectedVersion int, audit *models.AuditLogEntry) error {
	next := *req
	next.Version = expectedVersion + 1
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.LetterRequest{}).
			Where("id = ? AND version = ?", req.ID, expectedVersion).
			Updates(map[string]interface{}{
				"stage":            next.Stage,
				"status":           next.Status,
				"assigned_role":    next.AssignedRole,
				"assigned_actor":   next.AssignedActor,
				"transitioned_at":  next.TransitionedAt,
				"letter_number":    next.LetterNumber,
				"rejection_reason": next.RejectionReason,
				"revoked":          next.Revoked,
				"version":          next.Version,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Either the row is gone or another writer won the version race.
			var count int64
			if err := tx.Model(&models.LetterRequest{}).Where("id = ?", req.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrVersionConflict
		}
		if audit != nil {
			// The trail row commits or rolls back with the state write. A
			// transition without its record never becomes visible; best-effort
			// recording applies only to appends made outside this transaction.
			if err := tx.Create(audit).Error; err != nil {
				return err
			}
		}
		req.Version = next.Version
		return nil
	})
}

func (s *GormStore) DeleteRequest(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("letter_request_id = ?", id).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.LetterRequest{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *GormStore) AllocateSequence(ctx context.Context, letterType string, year int) (int, error) {
	var allocated int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq := models.LetterSequence{LetterType: letterType, Year: year, NextValue: 1}
		// Single guarded increment: insert the row at 1 if missing, otherwise
		// bump it atomically at the database and read the result back.
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "letter_type"}, {Name: "year"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"next_value": gorm.Expr("letter_sequences.next_value + 1")}),
		}).Clauses(clause.Returning{Columns: []clause.Column{{Name: "next_value"}}}).
			Create(&seq).Error; err != nil {
			return err
		}
		allocated = seq.NextValue
		return nil
	})
	return allocated, err
}

func (s *GormStore) CreateSignature(ctx context.Context, sig *models.Signature) error {
	err := s.db.WithContext(ctx).Create(sig).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func (s *GormStore) ListSignatures(ctx context.Context, requestID string) ([]models.Signature, error) {
	var sigs []models.Signature
	err := s.db.WithContext(ctx).
		Where("letter_request_id = ?", requestID).
		Order("signed_at ASC").
		Find(&sigs).Error
	return sigs, err
}

func (s *GormStore) RevokeSignature(ctx context.Context, requestID, signatoryID, reason string) error {
	res := s.db.WithContext(ctx).Model(&models.Signature{}).
		Where("letter_request_id = ? AND signatory_id = ? AND status = ?",
			requestID, signatoryID, models.SignatureValid).
		Updates(map[string]interface{}{
			"status":            models.SignatureRevoked,
			"revocation_reason": reason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListAttachments(ctx context.Context, requestID string) ([]models.Attachment, error) {
	var atts []models.Attachment
	err := s.db.WithContext(ctx).
		Where("letter_request_id = ?", requestID).
		Find(&atts).Error
	return atts, err
}

func (s *GormStore) AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *GormStore) ListAudit(ctx context.Context, filter AuditFilter) ([]models.AuditLogEntry, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.AuditLogEntry{})
	if filter.Actor != "" {
		q = q.Where("actor = ?", filter.Actor)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.ResourceID != "" {
		q = q.Where("resource_id = ?", filter.ResourceID)
	}
	if !filter.From.IsZero() {
		q = q.Where("occurred_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		q = q.Where("occurred_at <= ?", filter.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var entries []models.AuditLogEntry
	err := q.Order("occurred_at ASC").Offset(filter.Offset).Limit(limit).Find(&entries).Error
	return entries, total, err
}

func (s *GormStore) AppendVerification(ctx context.Context, rec *models.VerificationRecord) error {
	if rec.CheckedAt.IsZero() {
		rec.CheckedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *GormStore) CountVerifications(ctx context.Context, requestID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.VerificationRecord{}).
		Where("letter_request_id = ? AND outcome = ?", requestID, models.VerificationValid).
		Count(&count).Error
	return count, err
}
