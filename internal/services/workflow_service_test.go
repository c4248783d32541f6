package services

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/devnolife/sakti-dashboard-sub017/internal/db/models"
	"github.com/devnolife/sakti-dashboard-sub017/internal/signing"
	"github.com/devnolife/sakti-dashboard-sub017/internal/store"
	"github.com/devnolife/sakti-dashboard-sub017/internal/workflow"
)

var (
	staffTU   = Actor{ID: "staff-1", Name: "Ibu Ratna", Role: "staff_tu"}
	wd1       = Actor{ID: "wd1-1", Name: "Dr. Rahmat Hidayat", Role: "wd1"}
	kaprodi   = Actor{ID: "kaprodi-1", Name: "Dr. Fitri Amalia", Role: "kaprodi"}
	requester = Actor{ID: "105841102422", Name: "Andi Pratama", Role: "mahasiswa"}
)

func newTestService(t *testing.T) (*WorkflowService, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	registry, err := workflow.NewRegistry(workflow.Defaults())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	keyring, err := signing.NewKeyring(signing.Key{ID: "k1", Secret: []byte("test-secret")}, nil, time.Hour)
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	logger := zap.NewNop()
	audit := NewAuditService(st, logger)
	ws := NewWorkflowService(st, registry, keyring, audit, NewLogNotifier(logger), logger)
	return ws, st
}

func submitSKA(t *testing.T, ws *WorkflowService) *models.LetterRequest {
	t.Helper()
	req, err := ws.Submit(context.Background(), SubmitInput{
		LetterType:    "surat_keterangan_aktif_kuliah",
		RequesterID:   requester.ID,
		RequesterName: requester.Name,
		Purpose:       "pengajuan beasiswa",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return req
}

func TestSubmitAssignsFirstStage(t *testing.T) {
	ws, _ := newTestService(t)
	req := submitSKA(t, ws)

	if req.Status != models.StatusSubmitted {
		t.Errorf("status = %s, want submitted", req.Status)
	}
	if req.Stage != "review_tu" || req.AssignedRole != "staff_tu" {
		t.Errorf("stage/role = %s/%s, want review_tu/staff_tu", req.Stage, req.AssignedRole)
	}
	if req.Version != 1 {
		t.Errorf("version = %d, want 1", req.Version)
	}
}

func TestSubmitValidation(t *testing.T) {
	ws, _ := newTestService(t)
	ctx := context.Background()

	if _, err := ws.Submit(ctx, SubmitInput{LetterType: "surat_tidak_ada", RequesterID: "x", Purpose: "p"}); !errors.Is(err, workflow.ErrUnknownLetterType) {
		t.Errorf("unknown type: got %v", err)
	}
	if _, err := ws.Submit(ctx, SubmitInput{LetterType: "surat_keterangan_aktif_kuliah", Purpose: "p"}); !errors.Is(err, ErrRequesterRequired) {
		t.Errorf("missing requester: got %v", err)
	}
	if _, err := ws.Submit(ctx, SubmitInput{LetterType: "surat_keterangan_aktif_kuliah", RequesterID: "x"}); !errors.Is(err, ErrPurposeRequired) {
		t.Errorf("missing purpose: got %v", err)
	}
}

func TestForwardLegality(t *testing.T) {
	ws, _ := newTestService(t)
	ctx := context.Background()
	req := submitSKA(t, ws)

	// Wrong actor for the current stage.
	if _, err := ws.Forward(ctx, req.ID, wd1, "wd1", ""); !errors.Is(err, ErrNotAssignedToActor) {
		t.Errorf("wrong actor: got %v, want ErrNotAssignedToActor", err)
	}

	// Forwarding to a role that is not the immediate successor.
	if _, err := ws.Forward(ctx, req.ID, staffTU, "kaprodi", ""); !errors.Is(err, ErrInvalidStageTransition) {
		t.Errorf("bad next role: got %v, want ErrInvalidStageTransition", err)
	}

	// Legal forward to the successor.
	got, err := ws.Forward(ctx, req.ID, staffTU, "wd1", "berkas lengkap")
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if got.Stage != "persetujuan_wd1" || got.AssignedRole != "wd1" {
		t.Errorf("stage/role after forward = %s/%s", got.Stage, got.AssignedRole)
	}
	if got.Status != models.StatusApproved {
		t.Errorf("status = %s, want approved (final stage reached)", got.Status)
	}

	// No stage beyond the final one.
	if _, err := ws.Forward(ctx, req.ID, wd1, "rektor", ""); !errors.Is(err, ErrInvalidStageTransition) {
		t.Errorf("forward past final: got %v, want ErrInvalidStageTransition", err)
	}
}

func TestForwardToCurrentRoleIsNoop(t *testing.T) {
	ws, _ := newTestService(t)
	req := submitSKA(t, ws)

	got, err := ws.Forward(context.Background(), req.ID, staffTU, "staff_tu", "")
	if err != nil {
		t.Fatalf("no-op forward: %v", err)
	}
	if got.Stage != "review_tu" || got.Version != 1 {
		t.Errorf("no-op forward changed state: stage=%s version=%d", got.Stage, got.Version)
	}
}

func TestForwardSkipStageFails(t *testing.T) {
	ws, _ := newTestService(t)
	ctx := context.Background()
	req, err := ws.Submit(ctx, SubmitInput{
		LetterType:    "surat_keterangan_lulus",
		RequesterID:   requester.ID,
		RequesterName: requester.Name,
		Purpose:       "wisuda",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// staff_tu must hand to kaprodi, not straight to wd1.
	if _, err := ws.Forward(ctx, req.ID, staffTU, "wd1", ""); !errors.Is(err, ErrInvalidStageTransition) {
		t.Errorf("skip stage: got %v, want ErrInvalidStageTransition", err)
	}

	mid, err := ws.Forward(ctx, req.ID, staffTU, "kaprodi", "")
	if err != nil {
		t.Fatalf("Forward to kaprodi: %v", err)
	}
	if mid.Status != models.StatusInReview {
		t.Errorf("status = %s, want in_review", mid.Status)
	}
}

func TestCancelOwnPendingRequest(t *testing.T) {
	ws, _ := newTestService(t)
	ctx := context.Background()
	req := submitSKA(t, ws)

	// Only the requester may withdraw it.
	if err := ws.Cancel(ctx, req.ID, staffTU); !errors.Is(err, ErrNotAssignedToActor) {
		t.Errorf("foreign cancel: got %v, want ErrNotAssignedToActor", err)
	}

	if err := ws.Cancel(ctx, req.ID, requester); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := ws.Get(ctx, req.ID); !errors.Is(err, ErrUnknownRequest) {
		t.Errorf("cancelled request still readable: %v", err)
	}

	// Finalized requests stay on record.
	done := submitSKA(t, ws)
	if _, err := ws.Reject(ctx, done.ID, staffTU, "berkas tidak sesuai"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if err := ws.Cancel(ctx, done.ID, requester); !errors.Is(err, ErrRequestAlreadyFinalized) {
		t.Errorf("cancel finalized: got %v, want ErrRequestAlreadyFinalized", err)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	ws, _ := newTestService(t)
	req := submitSKA(t, ws)

	if _, err := ws.Reject(context.Background(), req.ID, staffTU, ""); !errors.Is(err, ErrReasonRequired) {
		t.Errorf("blank reason: got %v, want ErrReasonRequired", err)
	}
}

func TestConcurrentForwardExactlyOneWinner(t *testing.T) {
	ws, _ := newTestService(t)
	req := submitSKA(t, ws)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = ws.Forward(ctx, req.ID, staffTU, "wd1", "")
		}(i)
	}
	wg.Wait()

	var ok, conflict int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrConcurrentModification), errors.Is(err, ErrNotAssignedToActor):
			// The loser either lost the version race or read the already
			// advanced request, depending on interleaving.
			conflict++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflict != 1 {
		t.Fatalf("winners=%d losers=%d, want exactly one of each", ok, conflict)
	}

	final, err := ws.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.Stage != "persetujuan_wd1" || final.Version != 2 {
		t.Errorf("final stage=%s version=%d, want persetujuan_wd1/2", final.Stage, final.Version)
	}
}

func TestCompleteOnlyFromFinalStage(t *testing.T) {
	ws, _ := newTestService(t)
	ctx := context.Background()
	req := submitSKA(t, ws)

	if _, err := ws.Complete(ctx, req.ID, staffTU); !errors.Is(err, ErrInvalidStageTransition) {
		t.Errorf("complete from first stage: got %v, want ErrInvalidStageTransition", err)
	}

	if _, err := ws.Forward(ctx, req.ID, staffTU, "wd1", ""); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if _, err := ws.Complete(ctx, req.ID, staffTU); !errors.Is(err, ErrNotAssignedToActor) {
		t.Errorf("complete by wrong role: got %v, want ErrNotAssignedToActor", err)
	}

	done, err := ws.Complete(ctx, req.ID, wd1)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != models.StatusCompleted || done.LetterNumber == nil {
		t.Fatalf("completed request: status=%s number=%v", done.Status, done.LetterNumber)
	}
}

func TestCompleteIdempotent(t *testing.T) {
	ws, _ := newTestService(t)
	ctx := context.Background()
	req := submitSKA(t, ws)
	if _, err := ws.Forward(ctx, req.ID, staffTU, "wd1", ""); err != nil {
		t.Fatalf("Forward: %v", err)
	}

	first, err := ws.Complete(ctx, req.ID, wd1)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	second, err := ws.Complete(ctx, req.ID, wd1)
	if err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	if *first.LetterNumber != *second.LetterNumber {
		t.Errorf("letter number changed on retry: %s vs %s", *first.LetterNumber, *second.LetterNumber)
	}
	if second.Version != first.Version {
		t.Errorf("retried complete bumped version: %d vs %d", second.Version, first.Version)
	}
}

func TestLetterNumberSequencePerTypeAndYear(t *testing.T) {
	ws, _ := newTestService(t)
	ctx := context.Background()

	var numbers []string
	for i := 0; i < 3; i++ {
		req := submitSKA(t, ws)
		if _, err := ws.Forward(ctx, req.ID, staffTU, "wd1", ""); err != nil {
			t.Fatalf("Forward: %v", err)
		}
		done, err := ws.Complete(ctx, req.ID, wd1)
		if err != nil {
			t.Fatalf("Complete: %v", err)
		}
		numbers = append(numbers, *done.LetterNumber)
	}

	pattern := regexp.MustCompile(`^SKA/(\d{3})/[IVXLCDM]+/\d{4}$`)
	seen := make(map[string]bool)
	for i, n := range numbers {
		m := pattern.FindStringSubmatch(n)
		if m == nil {
			t.Fatalf("number %q does not match pattern", n)
		}
		if seen[n] {
			t.Fatalf("duplicate letter number %q", n)
		}
		seen[n] = true
		want := []string{"001", "002", "003"}[i]
		if m[1] != want {
			t.Errorf("sequence %d = %s, want %s", i, m[1], want)
		}
	}
}

func TestSignDocument(t *testing.T) {
	ws, _ := newTestService(t)
	ctx := context.Background()
	req := submitSKA(t, ws)

	// Signing before completion is illegal.
	if _, err := ws.SignDocument(ctx, req.ID, wd1); !errors.Is(err, ErrRequestNotCompleted) {
		t.Errorf("sign before complete: got %v, want ErrRequestNotCompleted", err)
	}

	if _, err := ws.Forward(ctx, req.ID, staffTU, "wd1", ""); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if _, err := ws.Complete(ctx, req.ID, wd1); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// Only required signatories may sign.
	if _, err := ws.SignDocument(ctx, req.ID, staffTU); !errors.Is(err, ErrUnknownSignatory) {
		t.Errorf("unknown signatory: got %v, want ErrUnknownSignatory", err)
	}

	sig, err := ws.SignDocument(ctx, req.ID, wd1)
	if err != nil {
		t.Fatalf("SignDocument: %v", err)
	}
	if sig.ProofData == "" || sig.ProofSignature == "" {
		t.Error("signature carries no proof token")
	}

	// Re-signing by the same signatory is an idempotent no-op.
	again, err := ws.SignDocument(ctx, req.ID, wd1)
	if err != nil {
		t.Fatalf("retried SignDocument: %v", err)
	}
	if again.ProofData != sig.ProofData || again.ProofSignature != sig.ProofSignature {
		t.Error("retried sign produced a different proof")
	}

	complete, token, err := ws.FullySigned(ctx, req.ID)
	if err != nil {
		t.Fatalf("FullySigned: %v", err)
	}
	if !complete || token == nil {
		t.Fatal("request should be fully signed")
	}
}

// Retried signs racing each other must settle on a single valid row; the
// losers get the winner's proof back instead of inserting a second one.
func TestConcurrentSignSingleValidRow(t *testing.T) {
	ws, st := newTestService(t)
	ctx := context.Background()
	req := submitSKA(t, ws)
	if _, err := ws.Forward(ctx, req.ID, staffTU, "wd1", ""); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if _, err := ws.Complete(ctx, req.ID, wd1); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	const attempts = 16
	sigs := make([]*models.Signature, attempts)
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sigs[n], errs[n] = ws.SignDocument(ctx, req.ID, wd1)
		}(i)
	}
	wg.Wait()

	for i := 0; i < attempts; i++ {
		if errs[i] != nil {
			t.Fatalf("SignDocument %d: %v", i, errs[i])
		}
		if sigs[i].ProofData != sigs[0].ProofData || sigs[i].ProofSignature != sigs[0].ProofSignature {
			t.Errorf("SignDocument %d returned a different proof", i)
		}
	}

	stored, err := st.ListSignatures(ctx, req.ID)
	if err != nil {
		t.Fatalf("ListSignatures: %v", err)
	}
	valid := 0
	for _, s := range stored {
		if s.Status == models.SignatureValid {
			valid++
		}
	}
	if valid != 1 {
		t.Errorf("valid signatures = %d, want 1", valid)
	}
}

func TestSignatoriesSignInDefinedOrder(t *testing.T) {
	ws, _ := newTestService(t)
	ctx := context.Background()
	req, err := ws.Submit(ctx, SubmitInput{
		LetterType:    "surat_keterangan_lulus",
		RequesterID:   requester.ID,
		RequesterName: requester.Name,
		Purpose:       "wisuda",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := ws.Forward(ctx, req.ID, staffTU, "kaprodi", ""); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if _, err := ws.Forward(ctx, req.ID, kaprodi, "wd1", ""); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if _, err := ws.Complete(ctx, req.ID, wd1); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// wd1 is second in the required list; kaprodi must sign first.
	if _, err := ws.SignDocument(ctx, req.ID, wd1); !errors.Is(err, ErrSignatureOrderViolation) {
		t.Errorf("out of order sign: got %v, want ErrSignatureOrderViolation", err)
	}
	if _, err := ws.SignDocument(ctx, req.ID, kaprodi); err != nil {
		t.Fatalf("kaprodi sign: %v", err)
	}
	if _, err := ws.SignDocument(ctx, req.ID, wd1); err != nil {
		t.Fatalf("wd1 sign: %v", err)
	}

	complete, _, err := ws.FullySigned(ctx, req.ID)
	if err != nil || !complete {
		t.Fatalf("fully signed = %v, err %v", complete, err)
	}
}

func TestAssignQueueOldestFirst(t *testing.T) {
	ws, _ := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, time.August, 1, 8, 0, 0, 0, time.UTC)
	times := []time.Time{base.Add(2 * time.Hour), base, base.Add(time.Hour)}
	var ids []string
	for _, ts := range times {
		ts := ts
		ws.now = func() time.Time { return ts }
		req := submitSKA(t, ws)
		ids = append(ids, req.ID)
	}
	ws.now = time.Now

	queue, err := ws.AssignQueue(ctx, "staff_tu")
	if err != nil {
		t.Fatalf("AssignQueue: %v", err)
	}
	if len(queue) != 3 {
		t.Fatalf("queue length = %d, want 3", len(queue))
	}
	if queue[0].ID != ids[1] || queue[1].ID != ids[2] || queue[2].ID != ids[0] {
		t.Error("queue is not ordered oldest first")
	}

	// Finalized requests drop out of the queue.
	if _, err := ws.Reject(ctx, ids[1], staffTU, "berkas tidak lengkap"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	queue, err = ws.AssignQueue(ctx, "staff_tu")
	if err != nil {
		t.Fatalf("AssignQueue: %v", err)
	}
	if len(queue) != 2 {
		t.Errorf("queue length after reject = %d, want 2", len(queue))
	}
}
