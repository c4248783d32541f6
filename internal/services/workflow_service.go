package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/devnolife/sakti-dashboard-sub017/internal/canonical"
	"github.com/devnolife/sakti-dashboard-sub017/internal/db/models"
	"github.com/devnolife/sakti-dashboard-sub017/internal/signing"
	"github.com/devnolife/sakti-dashboard-sub017/internal/store"
	"github.com/devnolife/sakti-dashboard-sub017/internal/workflow"
	"github.com/devnolife/sakti-dashboard-sub017/pkg/letternumber"
)

var workflowTransitions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "surat_workflow_transitions_total",
		Help: "Workflow transitions by letter type, action, and outcome",
	},
	[]string{"letter_type", "action", "outcome"},
)

// Actor is the authenticated identity a transition runs as. The portal's
// auth layer verifies it before the engine is invoked; the engine only
// checks that the role matches the stage.
type Actor struct {
	ID   string
	Name string
	Role string
}

// SubmitInput is the submission intake payload.
type SubmitInput struct {
	LetterType     string
	RequesterID    string
	RequesterName  string
	Purpose        string
	AdditionalInfo map[string]string
	Attachments    []models.Attachment
	ClientIP       string
}

// WorkflowService drives a LetterRequest through its letter type's workflow
// definition and guarantees exactly one winner among concurrent transitions.
type WorkflowService struct {
	store    store.Store
	registry *workflow.Registry
	keyring  *signing.Keyring
	audit    *AuditService
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewWorkflowService(
	st store.Store,
	registry *workflow.Registry,
	keyring *signing.Keyring,
	audit *AuditService,
	notifier Notifier,
	logger *zap.Logger,
) *WorkflowService {
	return &WorkflowService{
		store:    st,
		registry: registry,
		keyring:  keyring,
		audit:    audit,
		notifier: notifier,
		logger:   logger.With(zap.String("service", "workflow")),
		now:      time.Now,
	}
}

func (ws *WorkflowService) count(letterType, action, outcome string) {
	workflowTransitions.WithLabelValues(letterType, action, outcome).Inc()
}

// notify dispatches fire-and-forget; the transition never waits on it.
func (ws *WorkflowService) notify(fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			ws.logger.Warn("notification dispatch failed", zap.Error(err))
		}
	}()
}

// Submit creates a request and assigns it to the first stage's role queue.
func (ws *WorkflowService) Submit(ctx context.Context, in SubmitInput) (*models.LetterRequest, error) {
	def, err := ws.registry.Definition(in.LetterType)
	if err != nil {
		return nil, err
	}
	if in.RequesterID == "" {
		return nil, ErrRequesterRequired
	}
	if in.Purpose == "" {
		return nil, ErrPurposeRequired
	}

	info := "{}"
	if in.AdditionalInfo != nil {
		b, err := json.Marshal(in.AdditionalInfo)
		if err != nil {
			return nil, fmt.Errorf("additional info not serializable: %w", err)
		}
		info = string(b)
	}

	now := ws.now().UTC()
	first := def.FirstStage()
	req := &models.LetterRequest{
		ID:             uuid.New().String(),
		LetterType:     in.LetterType,
		RequesterID:    in.RequesterID,
		RequesterName:  in.RequesterName,
		Purpose:        in.Purpose,
		AdditionalInfo: info,
		Stage:          first.Name,
		Status:         models.StatusSubmitted,
		AssignedRole:   first.Role,
		RequestedAt:    now,
		TransitionedAt: now,
		Version:        1,
	}

	for i := range in.Attachments {
		if in.Attachments[i].ID == "" {
			in.Attachments[i].ID = uuid.New().String()
		}
	}

	if err := ws.store.CreateRequest(ctx, req, in.Attachments); err != nil {
		ws.count(in.LetterType, "submit", "error")
		return nil, fmt.Errorf("create request: %w", err)
	}

	actor := Actor{ID: in.RequesterID, Name: in.RequesterName, Role: "requester"}
	ws.audit.Record(ctx, ws.audit.Entry(actor, "request.submit", req.ID, map[string]interface{}{
		"letter_type": in.LetterType,
		"stage":       first.Name,
	}, in.ClientIP))

	ws.notify(func(ctx context.Context) error {
		return ws.notifier.NotifyRole(ctx, first.Role, req.ID, "permohonan surat baru menunggu review")
	})

	ws.count(in.LetterType, "submit", "ok")
	ws.logger.Info("request submitted",
		zap.String("request_id", req.ID),
		zap.String("letter_type", in.LetterType),
		zap.String("assigned_role", first.Role))
	return req, nil
}

// AssignQueue returns the requests awaiting action from role, oldest first.
func (ws *WorkflowService) AssignQueue(ctx context.Context, role string) ([]models.LetterRequest, error) {
	return ws.store.ListByAssignedRole(ctx, role)
}

// Get returns one request.
func (ws *WorkflowService) Get(ctx context.Context, id string) (*models.LetterRequest, error) {
	req, err := ws.store.GetRequest(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownRequest
	}
	return req, err
}

// ListByRequester returns a requester's submission history, newest first.
func (ws *WorkflowService) ListByRequester(ctx context.Context, requesterID string) ([]models.LetterRequest, error) {
	return ws.store.ListByRequester(ctx, requesterID)
}

// ListAttachments returns the attachment metadata owned by a request.
func (ws *WorkflowService) ListAttachments(ctx context.Context, requestID string) ([]models.Attachment, error) {
	if _, err := ws.Get(ctx, requestID); err != nil {
		return nil, err
	}
	return ws.store.ListAttachments(ctx, requestID)
}

// statusAfterForward maps the destination stage index onto the forward-only
// status chain. Arriving at the final stage means the request is approved and
// awaiting completion; the first hop is in_review; hops between are forwarded.
func statusAfterForward(destIndex, stageCount int) models.RequestStatus {
	switch {
	case destIndex == stageCount-1:
		return models.StatusApproved
	case destIndex == 1:
		return models.StatusInReview
	default:
		return models.StatusForwarded
	}
}

// Forward advances the request to the immediate successor stage. The actor
// must hold the current stage's role and nextRole must name the successor's
// role exactly.
func (ws *WorkflowService) Forward(ctx context.Context, requestID string, actor Actor, nextRole, notes string) (*models.LetterRequest, error) {
	req, err := ws.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	def, err := ws.registry.Definition(req.LetterType)
	if err != nil {
		return nil, err
	}
	if req.Status.Final() {
		ws.count(req.LetterType, "forward", "finalized")
		return nil, ErrRequestAlreadyFinalized
	}
	if actor.Role != req.AssignedRole {
		ws.count(req.LetterType, "forward", "forbidden")
		return nil, ErrNotAssignedToActor
	}

	// Forwarding to the role already holding the request is a no-op, not an
	// error: freshly submitted requests sit in the first stage's queue and a
	// redundant "forward" there should not fail the caller.
	if nextRole == req.AssignedRole {
		ws.count(req.LetterType, "forward", "noop")
		return req, nil
	}

	idx, err := def.StageIndex(req.Stage)
	if err != nil {
		return nil, err
	}
	if idx+1 >= len(def.Stages) {
		ws.count(req.LetterType, "forward", "invalid")
		return nil, ErrInvalidStageTransition
	}
	next := def.Stages[idx+1]
	if nextRole != next.Role {
		ws.count(req.LetterType, "forward", "invalid")
		return nil, ErrInvalidStageTransition
	}

	expected := req.Version
	req.Stage = next.Name
	req.Status = statusAfterForward(idx+1, len(def.Stages))
	req.AssignedRole = next.Role
	req.AssignedActor = nil
	req.TransitionedAt = ws.now().UTC()

	entry := ws.audit.Entry(actor, "request.forward", req.ID, map[string]interface{}{
		"from_stage": def.Stages[idx].Name,
		"to_stage":   next.Name,
		"notes":      notes,
	}, "")
	if err := ws.applyTransition(ctx, req, expected, entry, "forward"); err != nil {
		return nil, err
	}

	ws.notify(func(ctx context.Context) error {
		return ws.notifier.NotifyRole(ctx, next.Role, req.ID, "permohonan surat menunggu tindakan Anda")
	})

	ws.count(req.LetterType, "forward", "ok")
	ws.logger.Info("request forwarded",
		zap.String("request_id", req.ID),
		zap.String("to_stage", next.Name),
		zap.String("actor", actor.ID))
	return req, nil
}

// Cancel withdraws a requester's own pending request. The request row and
// its attachment metadata are removed; the audit trail keeps the record.
func (ws *WorkflowService) Cancel(ctx context.Context, requestID string, actor Actor) error {
	req, err := ws.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if req.RequesterID != actor.ID {
		ws.count(req.LetterType, "cancel", "forbidden")
		return ErrNotAssignedToActor
	}
	if req.Status.Final() {
		ws.count(req.LetterType, "cancel", "finalized")
		return ErrRequestAlreadyFinalized
	}

	if err := ws.store.DeleteRequest(ctx, requestID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnknownRequest
		}
		return fmt.Errorf("delete request: %w", err)
	}

	ws.audit.Record(ctx, ws.audit.Entry(actor, "request.cancel", requestID, map[string]interface{}{
		"letter_type": req.LetterType,
		"stage":       req.Stage,
	}, ""))
	ws.count(req.LetterType, "cancel", "ok")
	ws.logger.Info("request cancelled",
		zap.String("request_id", requestID),
		zap.String("requester", actor.ID))
	return nil
}

// Reject finalizes the request from any non-terminal stage. A blank reason
// is refused; the reason is always carried back to the requester.
func (ws *WorkflowService) Reject(ctx context.Context, requestID string, actor Actor, reason string) (*models.LetterRequest, error) {
	if reason == "" {
		return nil, ErrReasonRequired
	}
	req, err := ws.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status.Final() {
		ws.count(req.LetterType, "reject", "finalized")
		return nil, ErrRequestAlreadyFinalized
	}
	if actor.Role != req.AssignedRole {
		ws.count(req.LetterType, "reject", "forbidden")
		return nil, ErrNotAssignedToActor
	}

	expected := req.Version
	req.Status = models.StatusRejected
	req.RejectionReason = &reason
	req.TransitionedAt = ws.now().UTC()

	entry := ws.audit.Entry(actor, "request.reject", req.ID, map[string]interface{}{
		"reason": reason,
		"stage":  req.Stage,
	}, "")
	if err := ws.applyTransition(ctx, req, expected, entry, "reject"); err != nil {
		return nil, err
	}

	ws.notify(func(ctx context.Context) error {
		return ws.notifier.NotifyRequester(ctx, req.RequesterID, req.ID, "permohonan surat ditolak: "+reason)
	})

	ws.count(req.LetterType, "reject", "ok")
	return req, nil
}

// Complete finalizes an approved request and mints its letter number. Calling
// Complete again on an already completed request returns the stored number
// unchanged, so retries after a timeout are safe.
func (ws *WorkflowService) Complete(ctx context.Context, requestID string, actor Actor) (*models.LetterRequest, error) {
	req, err := ws.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	def, err := ws.registry.Definition(req.LetterType)
	if err != nil {
		return nil, err
	}

	if req.Status == models.StatusCompleted {
		ws.count(req.LetterType, "complete", "idempotent")
		return req, nil
	}
	if req.Status.Final() {
		ws.count(req.LetterType, "complete", "finalized")
		return nil, ErrRequestAlreadyFinalized
	}

	final := def.FinalStage()
	if req.Stage != final.Name {
		ws.count(req.LetterType, "complete", "invalid")
		return nil, ErrInvalidStageTransition
	}
	if actor.Role != final.Role {
		ws.count(req.LetterType, "complete", "forbidden")
		return nil, ErrNotAssignedToActor
	}

	now := ws.now().UTC()
	seq, err := ws.store.AllocateSequence(ctx, req.LetterType, now.Year())
	if err != nil {
		return nil, fmt.Errorf("allocate sequence: %w", err)
	}
	number, err := letternumber.Format(def.NumberPrefix, seq, now)
	if err != nil {
		if errors.Is(err, letternumber.ErrSequenceExhausted) {
			ws.count(req.LetterType, "complete", "exhausted")
			return nil, ErrSequenceExhausted
		}
		return nil, err
	}

	expected := req.Version
	req.Status = models.StatusCompleted
	req.LetterNumber = &number
	req.TransitionedAt = now

	entry := ws.audit.Entry(actor, "request.complete", req.ID, map[string]interface{}{
		"letter_number": number,
	}, "")
	if err := ws.applyTransition(ctx, req, expected, entry, "complete"); err != nil {
		return nil, err
	}

	ws.notify(func(ctx context.Context) error {
		return ws.notifier.NotifyRequester(ctx, req.RequesterID, req.ID, "surat Anda telah selesai: "+number)
	})

	ws.count(req.LetterType, "complete", "ok")
	ws.logger.Info("request completed",
		zap.String("request_id", req.ID),
		zap.String("letter_number", number))
	return req, nil
}

// SignDocument attaches the signatory's digital signature to a completed
// letter. The proof covers the ordered signatory list up to and including
// this signer; re-signing by the same signatory is an idempotent no-op.
func (ws *WorkflowService) SignDocument(ctx context.Context, requestID string, signatory Actor) (*models.Signature, error) {
	req, err := ws.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	def, err := ws.registry.Definition(req.LetterType)
	if err != nil {
		return nil, err
	}
	if req.Status != models.StatusCompleted || req.LetterNumber == nil {
		return nil, ErrRequestNotCompleted
	}
	if !def.RequiresSignatory(signatory.Role) {
		return nil, ErrUnknownSignatory
	}

	existing, err := ws.store.ListSignatures(ctx, requestID)
	if err != nil {
		return nil, err
	}
	var valid []models.Signature
	for _, sig := range existing {
		if sig.Status != models.SignatureValid {
			continue
		}
		if sig.SignatoryID == signatory.ID && sig.SignatoryRole == signatory.Role {
			ws.count(req.LetterType, "sign", "idempotent")
			out := sig
			return &out, nil
		}
		valid = append(valid, sig)
	}

	// Required signatories sign in definition order.
	position := -1
	for i, role := range def.Signatories {
		if role == signatory.Role {
			position = i
			break
		}
	}
	if position != len(valid) {
		ws.count(req.LetterType, "sign", "order")
		return nil, ErrSignatureOrderViolation
	}

	// Microsecond precision survives the PostgreSQL timestamp round trip, so
	// the stored SignedAt stays byte-equal to the one embedded in the proof.
	now := ws.now().UTC().Truncate(time.Microsecond)
	doc := canonical.Document{
		LetterNumber: *req.LetterNumber,
		Issuer:       def.Issuer,
		SubjectID:    req.RequesterID,
		SubjectName:  req.RequesterName,
		IssuedAt:     req.TransitionedAt,
		Status:       string(models.StatusCompleted),
	}
	for _, sig := range valid {
		doc.Signatories = append(doc.Signatories, canonical.Signatory{
			Name:     sig.SignatoryName,
			Role:     sig.SignatoryRole,
			SignedAt: sig.SignedAt,
		})
	}
	doc.Signatories = append(doc.Signatories, canonical.Signatory{
		Name:     signatory.Name,
		Role:     signatory.Role,
		SignedAt: now,
	})

	canonicalBytes, err := canonical.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	keyID, mac, err := ws.keyring.Sign(canonicalBytes)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	token, err := signing.EncodeToken(canonicalBytes, keyID, mac)
	if err != nil {
		return nil, fmt.Errorf("encode token: %w", err)
	}

	sig := &models.Signature{
		LetterRequestID: requestID,
		SignatoryID:     signatory.ID,
		SignatoryName:   signatory.Name,
		SignatoryRole:   signatory.Role,
		KeyID:           keyID,
		ProofData:       token.Data,
		ProofSignature:  token.Signature,
		SignedAt:        now,
		Status:          models.SignatureValid,
	}
	if err := ws.store.CreateSignature(ctx, sig); err != nil {
		// A concurrent retry by the same signatory can win the insert after
		// our read; the uniqueness rule rejects ours, so return the winner's
		// row and stay idempotent.
		if errors.Is(err, store.ErrDuplicate) {
			winners, lerr := ws.store.ListSignatures(ctx, requestID)
			if lerr == nil {
				for _, w := range winners {
					if w.SignatoryID == signatory.ID && w.Status == models.SignatureValid {
						ws.count(req.LetterType, "sign", "idempotent")
						out := w
						return &out, nil
					}
				}
			}
		}
		ws.count(req.LetterType, "sign", "error")
		return nil, fmt.Errorf("store signature: %w", err)
	}

	ws.audit.Record(ctx, ws.audit.Entry(signatory, "request.sign", req.ID, map[string]interface{}{
		"letter_number": *req.LetterNumber,
		"key_id":        keyID,
	}, ""))

	ws.count(req.LetterType, "sign", "ok")
	ws.logger.Info("document signed",
		zap.String("request_id", req.ID),
		zap.String("signatory", signatory.ID),
		zap.String("role", signatory.Role))
	return sig, nil
}

// FullySigned reports whether every required signatory holds a valid
// signature, and returns the verification token of the last signature when
// the set is complete.
func (ws *WorkflowService) FullySigned(ctx context.Context, requestID string) (bool, *signing.Token, error) {
	req, err := ws.Get(ctx, requestID)
	if err != nil {
		return false, nil, err
	}
	def, err := ws.registry.Definition(req.LetterType)
	if err != nil {
		return false, nil, err
	}
	sigs, err := ws.store.ListSignatures(ctx, requestID)
	if err != nil {
		return false, nil, err
	}
	signed := make(map[string]models.Signature, len(sigs))
	for _, sig := range sigs {
		if sig.Status == models.SignatureValid {
			signed[sig.SignatoryRole] = sig
		}
	}
	var last *models.Signature
	for _, role := range def.Signatories {
		sig, ok := signed[role]
		if !ok {
			return false, nil, nil
		}
		out := sig
		last = &out
	}
	if last == nil {
		return false, nil, nil
	}
	return true, &signing.Token{Data: last.ProofData, Signature: last.ProofSignature}, nil
}

// Revoke administratively invalidates a completed letter. The signature on
// the published token still verifies cryptographically afterwards; the
// verification endpoint rejects it by live status.
func (ws *WorkflowService) Revoke(ctx context.Context, requestID string, actor Actor, reason string) (*models.LetterRequest, error) {
	if reason == "" {
		return nil, ErrReasonRequired
	}
	req, err := ws.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.StatusCompleted {
		return nil, ErrRequestNotRevocable
	}
	if req.Revoked {
		return req, nil
	}

	expected := req.Version
	req.Revoked = true
	req.TransitionedAt = ws.now().UTC()

	entry := ws.audit.Entry(actor, "request.revoke", req.ID, map[string]interface{}{
		"reason": reason,
	}, "")
	if err := ws.applyTransition(ctx, req, expected, entry, "revoke"); err != nil {
		return nil, err
	}
	ws.count(req.LetterType, "revoke", "ok")
	return req, nil
}

// RevokeSignature invalidates one signatory's signature so it can be
// re-issued. Signature rows are never edited in place.
func (ws *WorkflowService) RevokeSignature(ctx context.Context, requestID string, actor Actor, signatoryID, reason string) error {
	if reason == "" {
		return ErrReasonRequired
	}
	if _, err := ws.Get(ctx, requestID); err != nil {
		return err
	}
	if err := ws.store.RevokeSignature(ctx, requestID, signatoryID, reason); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnknownSignatory
		}
		return err
	}
	ws.audit.Record(ctx, ws.audit.Entry(actor, "signature.revoke", requestID, map[string]interface{}{
		"signatory_id": signatoryID,
		"reason":       reason,
	}, ""))
	return nil
}

func (ws *WorkflowService) applyTransition(ctx context.Context, req *models.LetterRequest, expectedVersion int, entry *models.AuditLogEntry, action string) error {
	err := ws.store.ApplyTransition(ctx, req, expectedVersion, entry)
	switch {
	case errors.Is(err, store.ErrVersionConflict):
		ws.count(req.LetterType, action, "conflict")
		return ErrConcurrentModification
	case errors.Is(err, store.ErrNotFound):
		return ErrUnknownRequest
	case err != nil:
		ws.count(req.LetterType, action, "error")
		return fmt.Errorf("apply transition: %w", err)
	}
	return nil
}
