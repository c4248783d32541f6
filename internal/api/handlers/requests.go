package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/devnolife/sakti-dashboard-sub017/internal/api/middleware"
	"github.com/devnolife/sakti-dashboard-sub017/internal/db/models"
	"github.com/devnolife/sakti-dashboard-sub017/internal/services"
)

type RequestHandler struct {
	workflow *services.WorkflowService
	logger   *zap.Logger
}

func NewRequestHandler(workflow *services.WorkflowService, logger *zap.Logger) *RequestHandler {
	return &RequestHandler{
		workflow: workflow,
		logger:   logger.With(zap.String("handler", "requests")),
	}
}

type attachmentInput struct {
	DisplayName    string `json:"display_name" binding:"required"`
	StorageLocator string `json:"storage_locator" binding:"required"`
	ByteSize       int64  `json:"byte_size"`
	MediaType      string `json:"media_type"`
}

type submitRequest struct {
	LetterType     string            `json:"letter_type" binding:"required"`
	Purpose        string            `json:"purpose" binding:"required"`
	AdditionalInfo map[string]string `json:"additional_info"`
	Attachments    []attachmentInput `json:"attachments"`
}

type requestResponse struct {
	ID              string               `json:"id"`
	LetterType      string               `json:"letter_type"`
	RequesterID     string               `json:"requester_id"`
	RequesterName   string               `json:"requester_name"`
	Purpose         string               `json:"purpose"`
	Stage           string               `json:"stage"`
	Status          models.RequestStatus `json:"status"`
	AssignedRole    string               `json:"assigned_role"`
	RequestedAt     time.Time            `json:"requested_at"`
	TransitionedAt  time.Time            `json:"transitioned_at"`
	LetterNumber    *string              `json:"letter_number,omitempty"`
	RejectionReason *string              `json:"rejection_reason,omitempty"`
	Revoked         bool                 `json:"revoked,omitempty"`
	Version         int                  `json:"version"`
}

func toResponse(req *models.LetterRequest) requestResponse {
	return requestResponse{
		ID:              req.ID,
		LetterType:      req.LetterType,
		RequesterID:     req.RequesterID,
		RequesterName:   req.RequesterName,
		Purpose:         req.Purpose,
		Stage:           req.Stage,
		Status:          req.Status,
		AssignedRole:    req.AssignedRole,
		RequestedAt:     req.RequestedAt,
		TransitionedAt:  req.TransitionedAt,
		LetterNumber:    req.LetterNumber,
		RejectionReason: req.RejectionReason,
		Revoked:         req.Revoked,
		Version:         req.Version,
	}
}

// writeWorkflowError maps the engine's error taxonomy onto HTTP statuses.
// Authenticated callers get the specific reason; they need it to act.
func writeWorkflowError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrUnknownRequest):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrPurposeRequired),
		errors.Is(err, services.ErrRequesterRequired),
		errors.Is(err, services.ErrReasonRequired):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNotAssignedToActor),
		errors.Is(err, services.ErrUnknownSignatory):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrRequestAlreadyFinalized),
		errors.Is(err, services.ErrConcurrentModification),
		errors.Is(err, services.ErrRequestNotCompleted),
		errors.Is(err, services.ErrRequestNotRevocable),
		errors.Is(err, services.ErrAlreadySigned):
		status = http.StatusConflict
	case errors.Is(err, services.ErrInvalidStageTransition),
		errors.Is(err, services.ErrSignatureOrderViolation):
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// Submit accepts a new letter request from the authenticated requester.
func (h *RequestHandler) Submit(c *gin.Context) {
	var body submitRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor := middleware.GetActor(c)

	attachments := make([]models.Attachment, 0, len(body.Attachments))
	for _, a := range body.Attachments {
		attachments = append(attachments, models.Attachment{
			DisplayName:    a.DisplayName,
			StorageLocator: a.StorageLocator,
			ByteSize:       a.ByteSize,
			MediaType:      a.MediaType,
		})
	}

	req, err := h.workflow.Submit(c.Request.Context(), services.SubmitInput{
		LetterType:     body.LetterType,
		RequesterID:    actor.ID,
		RequesterName:  actor.Name,
		Purpose:        body.Purpose,
		AdditionalInfo: body.AdditionalInfo,
		Attachments:    attachments,
		ClientIP:       c.ClientIP(),
	})
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toResponse(req))
}

// Queue returns the requests awaiting the actor's role, oldest first.
func (h *RequestHandler) Queue(c *gin.Context) {
	role := c.Param("role")
	actor := middleware.GetActor(c)
	if actor.Role != role {
		c.JSON(http.StatusForbidden, gin.H{"error": "queue is only visible to its own role"})
		return
	}

	reqs, err := h.workflow.AssignQueue(c.Request.Context(), role)
	if err != nil {
		h.logger.Error("queue read failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read queue"})
		return
	}
	out := make([]requestResponse, 0, len(reqs))
	for i := range reqs {
		out = append(out, toResponse(&reqs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"requests": out})
}

// Get returns one request with its attachments and signatures.
func (h *RequestHandler) Get(c *gin.Context) {
	id := c.Param("id")
	req, err := h.workflow.Get(c.Request.Context(), id)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}

	attachments, err := h.workflow.ListAttachments(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("attachment read failed", zap.Error(err))
		attachments = nil
	}

	c.JSON(http.StatusOK, gin.H{
		"request":     toResponse(req),
		"attachments": attachments,
	})
}

// Mine returns the authenticated requester's submission history.
func (h *RequestHandler) Mine(c *gin.Context) {
	actor := middleware.GetActor(c)
	reqs, err := h.workflow.ListByRequester(c.Request.Context(), actor.ID)
	if err != nil {
		h.logger.Error("history read failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}
	out := make([]requestResponse, 0, len(reqs))
	for i := range reqs {
		out = append(out, toResponse(&reqs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"requests": out})
}

// Cancel withdraws the authenticated requester's own pending request.
func (h *RequestHandler) Cancel(c *gin.Context) {
	if err := h.workflow.Cancel(c.Request.Context(), c.Param("id"), middleware.GetActor(c)); err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

type forwardRequest struct {
	NextRole string `json:"next_role" binding:"required"`
	Notes    string `json:"notes"`
}

func (h *RequestHandler) Forward(c *gin.Context) {
	var body forwardRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := h.workflow.Forward(c.Request.Context(), c.Param("id"), middleware.GetActor(c), body.NextRole, body.Notes)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(req))
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *RequestHandler) Reject(c *gin.Context) {
	var body rejectRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := h.workflow.Reject(c.Request.Context(), c.Param("id"), middleware.GetActor(c), body.Reason)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(req))
}

func (h *RequestHandler) Complete(c *gin.Context) {
	req, err := h.workflow.Complete(c.Request.Context(), c.Param("id"), middleware.GetActor(c))
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(req))
}

type signatureResponse struct {
	SignatoryID   string                 `json:"signatory_id"`
	SignatoryName string                 `json:"signatory_name"`
	SignatoryRole string                 `json:"signatory_role"`
	SignedAt      time.Time              `json:"signed_at"`
	Status        models.SignatureStatus `json:"status"`
	VerifyPath    string                 `json:"verify_path"`
}

func toSignatureResponse(sig *models.Signature) signatureResponse {
	return signatureResponse{
		SignatoryID:   sig.SignatoryID,
		SignatoryName: sig.SignatoryName,
		SignatoryRole: sig.SignatoryRole,
		SignedAt:      sig.SignedAt,
		Status:        sig.Status,
		VerifyPath:    "/verify/" + sig.ProofData + "/" + sig.ProofSignature,
	}
}

// Sign attaches the authenticated signatory's signature to a completed letter.
func (h *RequestHandler) Sign(c *gin.Context) {
	sig, err := h.workflow.SignDocument(c.Request.Context(), c.Param("id"), middleware.GetActor(c))
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSignatureResponse(sig))
}

// VerificationLink returns the public verification path once every required
// signatory has signed.
func (h *RequestHandler) VerificationLink(c *gin.Context) {
	complete, token, err := h.workflow.FullySigned(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	if !complete {
		c.JSON(http.StatusConflict, gin.H{"error": "letter is not fully signed yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"verify_path": "/verify/" + token.Data + "/" + token.Signature,
	})
}

type revokeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Revoke administratively invalidates a completed letter.
func (h *RequestHandler) Revoke(c *gin.Context) {
	var body revokeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := h.workflow.Revoke(c.Request.Context(), c.Param("id"), middleware.GetActor(c), body.Reason)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(req))
}

type revokeSignatureRequest struct {
	SignatoryID string `json:"signatory_id" binding:"required"`
	Reason      string `json:"reason" binding:"required"`
}

// RevokeSignature invalidates one signatory's signature so it can be re-issued.
func (h *RequestHandler) RevokeSignature(c *gin.Context) {
	var body revokeSignatureRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.workflow.RevokeSignature(c.Request.Context(), c.Param("id"), middleware.GetActor(c), body.SignatoryID, body.Reason)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}
