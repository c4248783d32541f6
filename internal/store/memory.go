package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/devnolife/sakti-dashboard-sub017/internal/db/models"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps everything in process under one mutex. It backs unit
// tests and the database.driver=memory development mode; the version guard
// and sequence increment behave exactly like the PostgreSQL store.
type MemoryStore struct {
	mu            sync.Mutex
	requests      map[string]models.LetterRequest
	attachments   map[string][]models.Attachment
	signatures    map[string][]models.Signature
	sequences     map[string]int
	audit         []models.AuditLogEntry
	verifications []models.VerificationRecord
	nextRowID     uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests:    make(map[string]models.LetterRequest),
		attachments: make(map[string][]models.Attachment),
		signatures:  make(map[string][]models.Signature),
		sequences:   make(map[string]int),
	}
}

func (s *MemoryStore) rowID() uint {
	s.nextRowID++
	return s.nextRowID
}

func seqKey(letterType string, year int) string {
	return fmt.Sprintf("%s/%d", letterType, year)
}

func (s *MemoryStore) CreateRequest(_ context.Context, req *models.LetterRequest, attachments []models.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = *req
	for i := range attachments {
		attachments[i].LetterRequestID = req.ID
		s.attachments[req.ID] = append(s.attachments[req.ID], attachments[i])
	}
	return nil
}

func (s *MemoryStore) GetRequest(_ context.Context, id string) (*models.LetterRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := req
	return &out, nil
}

func (s *MemoryStore) GetRequestByLetterNumber(_ context.Context, letterNumber string) (*models.LetterRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, req := range s.requests {
		if req.LetterNumber != nil && *req.LetterNumber == letterNumber {
			out := req
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListByAssignedRole(_ context.Context, role string) ([]models.LetterRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var reqs []models.LetterRequest
	for _, req := range s.requests {
		if req.AssignedRole == role && !req.Status.Final() {
			reqs = append(reqs, req)
		}
	}
	sort.Slice(reqs, func(i, j int) bool {
		return reqs[i].RequestedAt.Before(reqs[j].RequestedAt)
	})
	return reqs, nil
}

func (s *MemoryStore) ListByRequester(_ context.Context, requesterID string) ([]models.LetterRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var reqs []models.LetterRequest
	for _, req := range s.requests {
		if req.RequesterID == requesterID {
			reqs = append(reqs, req)
		}
	}
	sort.Slice(reqs, func(i, j int) bool {
		return reqs[i].RequestedAt.After(reqs[j].RequestedAt)
	})
	return reqs, nil
}

func (s *MemoryStore) ApplyTransition(_ context.Context, req *models.LetterRequest, expectedVersion int, audit *models.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.requests[req.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}
	next := *req
	next.Version = expectedVersion + 1
	s.requests[req.ID] = next
	if audit != nil {
		s.appendAuditLocked(audit)
	}
	req.Version = next.Version
	return nil
}

func (s *MemoryStore) DeleteRequest(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[id]; !ok {
		return ErrNotFound
	}
	delete(s.requests, id)
	delete(s.attachments, id)
	return nil
}

func (s *MemoryStore) AllocateSequence(_ context.Context, letterType string, year int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := seqKey(letterType, year)
	s.sequences[key]++
	return s.sequences[key], nil
}

func (s *MemoryStore) CreateSignature(_ context.Context, sig *models.Signature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.signatures[sig.LetterRequestID] {
		if existing.SignatoryID == sig.SignatoryID && existing.Status == models.SignatureValid {
			return ErrDuplicate
		}
	}
	sig.Model.ID = s.rowID()
	s.signatures[sig.LetterRequestID] = append(s.signatures[sig.LetterRequestID], *sig)
	return nil
}

func (s *MemoryStore) ListSignatures(_ context.Context, requestID string) ([]models.Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sigs := make([]models.Signature, len(s.signatures[requestID]))
	copy(sigs, s.signatures[requestID])
	sort.Slice(sigs, func(i, j int) bool {
		return sigs[i].SignedAt.Before(sigs[j].SignedAt)
	})
	return sigs, nil
}

func (s *MemoryStore) RevokeSignature(_ context.Context, requestID, signatoryID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	revoked := false
	sigs := s.signatures[requestID]
	for i := range sigs {
		if sigs[i].SignatoryID == signatoryID && sigs[i].Status == models.SignatureValid {
			sigs[i].Status = models.SignatureRevoked
			sigs[i].RevocationReason = reason
			revoked = true
		}
	}
	if !revoked {
		return ErrNotFound
	}
	return nil
}

func (s *MemoryStore) ListAttachments(_ context.Context, requestID string) ([]models.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	atts := make([]models.Attachment, len(s.attachments[requestID]))
	copy(atts, s.attachments[requestID])
	return atts, nil
}

func (s *MemoryStore) appendAuditLocked(entry *models.AuditLogEntry) {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	s.audit = append(s.audit, *entry)
}

func (s *MemoryStore) AppendAudit(_ context.Context, entry *models.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendAuditLocked(entry)
	return nil
}

func (s *MemoryStore) ListAudit(_ context.Context, filter AuditFilter) ([]models.AuditLogEntry, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []models.AuditLogEntry
	for _, e := range s.audit {
		if filter.Actor != "" && e.Actor != filter.Actor {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.ResourceID != "" && e.ResourceID != filter.ResourceID {
			continue
		}
		if !filter.From.IsZero() && e.OccurredAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && e.OccurredAt.After(filter.To) {
			continue
		}
		matched = append(matched, e)
	}
	total := int64(len(matched))

	offset := filter.Offset
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (s *MemoryStore) AppendVerification(_ context.Context, rec *models.VerificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.CheckedAt.IsZero() {
		rec.CheckedAt = time.Now().UTC()
	}
	s.verifications = append(s.verifications, *rec)
	return nil
}

func (s *MemoryStore) CountVerifications(_ context.Context, requestID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, rec := range s.verifications {
		if rec.LetterRequestID == requestID && rec.Outcome == models.VerificationValid {
			count++
		}
	}
	return count, nil
}
