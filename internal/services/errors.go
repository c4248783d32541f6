package services

import "errors"

// Workflow errors are surfaced verbatim to authenticated callers; they need
// the specific reason to act. Cryptographic failures never cross the public
// verification boundary with this level of detail.
var (
	ErrUnknownRequest          = errors.New("letter request not found")
	ErrRequestAlreadyFinalized = errors.New("letter request is already finalized")
	ErrRequestNotCompleted     = errors.New("letter request is not completed")
	ErrInvalidStageTransition  = errors.New("transition does not follow the workflow definition")
	ErrNotAssignedToActor      = errors.New("actor does not hold the role assigned to the current stage")
	ErrReasonRequired          = errors.New("rejection reason must not be blank")
	ErrAlreadySigned           = errors.New("signatory already holds a valid signature for this request")
	ErrUnknownSignatory        = errors.New("signatory role is not required by this letter type")
	ErrConcurrentModification  = errors.New("request was modified concurrently, refresh and retry")
	ErrSequenceExhausted       = errors.New("letter number sequence exhausted")
	ErrPurposeRequired         = errors.New("purpose must not be blank")
	ErrRequesterRequired       = errors.New("requester identity is required")
	ErrRequestNotRevocable     = errors.New("only completed letters can be revoked")
	ErrSignatureOrderViolation = errors.New("signatories must sign in the order the letter type defines")
)
