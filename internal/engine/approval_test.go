package engine_test

import (
	"errors"
	"testing"

	"github.com/OpenGrantStack/GrantReady-Ledger/internal/ledger"
)

func hasAuditAction(tx *ledger.Transaction, action string) bool {
	for _, rec := range tx.AuditTrail {
		if rec.Action == action {
			return true
		}
	}
	return false
}

func TestAddSignature_promotesThroughThreshold(t *testing.T) {
	eng, _, _ := newTestEngine(t, 2)

	tx, err := eng.CreateTransaction(ctx, "cycle-1", ledger.TxAllocation,
		allocationInputs("5000.00", "5000.00"), "", "")
	if err != nil {
		t.Fatal(err)
	}

	// First signature implicitly submits the draft.
	tx, err = eng.AddSignature(ctx, tx.ID, "signer-A", "a1b2", ledger.SignatureEdDSA)
	if err != nil {
		t.Fatal(err)
	}
	if tx.Status != ledger.TxPendingApproval {
		t.Errorf("status = %s, want PENDING_APPROVAL", tx.Status)
	}
	if len(tx.ReceivedSignatures) != 1 || tx.ReceivedSignatures[0] != "signer-A" {
		t.Errorf("receivedSignatures = %v, want [signer-A]", tx.ReceivedSignatures)
	}

	// The same signer cannot sign twice.
	_, err = eng.AddSignature(ctx, tx.ID, "signer-A", "a1b2", ledger.SignatureEdDSA)
	if !errors.Is(err, ledger.ErrDuplicateSigner) {
		t.Fatalf("expected ErrDuplicateSigner, got %v", err)
	}

	// The second signature crosses the threshold.
	tx, err = eng.AddSignature(ctx, tx.ID, "signer-B", "c3d4", ledger.SignatureECDSA)
	if err != nil {
		t.Fatal(err)
	}
	if tx.Status != ledger.TxApproved {
		t.Errorf("status = %s, want APPROVED", tx.Status)
	}
	if !hasAuditAction(tx, "ALL_SIGNATURES_RECEIVED") {
		t.Error("audit trail missing ALL_SIGNATURES_RECEIVED")
	}

	// Signature records land on every child entry, in arrival order.
	_, entries, err := eng.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if len(e.Signatures) != 2 {
			t.Fatalf("entry %s has %d signatures, want 2", e.ID, len(e.Signatures))
		}
		if e.Signatures[0].Signer != "signer-A" || e.Signatures[1].Signer != "signer-B" {
			t.Errorf("signature order not preserved: %+v", e.Signatures)
		}
	}
}

func TestAddSignature_unknownTransaction(t *testing.T) {
	eng, _, _ := newTestEngine(t, 2)

	var nf *ledger.NotFoundError
	_, err := eng.AddSignature(ctx, "missing", "signer-A", "a1b2", ledger.SignatureEdDSA)
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestExecute_updatesBalancesAndConfirmsEntries(t *testing.T) {
	eng, _, _ := newTestEngine(t, 1)

	tx, err := eng.CreateTransaction(ctx, "cycle-1", ledger.TxAllocation,
		allocationInputs("5000.00", "5000.00"), "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AddSignature(ctx, tx.ID, "signer-A", "a1b2", ledger.SignatureEdDSA); err != nil {
		t.Fatal(err)
	}

	tx, err = eng.Execute(ctx, tx.ID, "operator")
	if err != nil {
		t.Fatal(err)
	}
	if tx.Status != ledger.TxExecuted {
		t.Fatalf("status = %s, want EXECUTED", tx.Status)
	}
	if tx.ExecutionTimestamp == nil {
		t.Error("executionTimestamp not set")
	}
	if tx.Blockchain == nil || tx.Blockchain.TxHash == "" {
		t.Error("blockchain metadata not recorded")
	}

	_, entries, err := eng.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Status != ledger.EntryConfirmed {
			t.Errorf("entry %s status = %s, want CONFIRMED", e.ID, e.Status)
		}
	}

	funding, err := eng.AccountBalance(ctx, "funding", "USD")
	if err != nil {
		t.Fatal(err)
	}
	if funding.Balance.String() != "5000.00" {
		t.Errorf("funding balance = %s, want 5000.00", funding.Balance)
	}
	disb, err := eng.AccountBalance(ctx, "disbursement", "USD")
	if err != nil {
		t.Fatal(err)
	}
	if disb.Balance.String() != "-5000.00" {
		t.Errorf("disbursement balance = %s, want -5000.00", disb.Balance)
	}
}

func TestExecute_balanceDerivationMatchesRunningIndex(t *testing.T) {
	eng, _, _ := newTestEngine(t, 1)

	for _, amount := range []string{"100.00", "250.50", "9.99"} {
		tx, err := eng.CreateTransaction(ctx, "cycle-1", ledger.TxAllocation,
			allocationInputs(amount, amount), "", "")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := eng.AddSignature(ctx, tx.ID, "signer-A", "a1b2", ledger.SignatureEdDSA); err != nil {
			t.Fatal(err)
		}
		if _, err := eng.Execute(ctx, tx.ID, "operator"); err != nil {
			t.Fatal(err)
		}
	}

	running, err := eng.AccountBalance(ctx, "funding", "USD")
	if err != nil {
		t.Fatal(err)
	}
	if running.Balance.String() != "360.49" {
		t.Errorf("running balance = %s, want 360.49", running.Balance)
	}

	// Dropping the index and re-deriving from the entry log must agree.
	eng.Balances().Reset()
	derived, err := eng.AccountBalance(ctx, "funding", "USD")
	if err != nil {
		t.Fatal(err)
	}
	if !derived.Balance.Equal(running.Balance) {
		t.Errorf("derived balance %s != running balance %s", derived.Balance, running.Balance)
	}
}

func TestExecute_requiresApproval(t *testing.T) {
	eng, _, _ := newTestEngine(t, 2)

	tx, err := eng.CreateTransaction(ctx, "cycle-1", ledger.TxAllocation,
		allocationInputs("10.00", "10.00"), "", "")
	if err != nil {
		t.Fatal(err)
	}

	_, err = eng.Execute(ctx, tx.ID, "operator")
	if !errors.Is(err, ledger.ErrIllegalTransactionTransition) {
		t.Fatalf("expected ErrIllegalTransactionTransition, got %v", err)
	}
}

func TestExecute_sinkFailureRejects(t *testing.T) {
	eng, sink, _ := newTestEngine(t, 1)
	sink.FailSubmit = true

	tx, err := eng.CreateTransaction(ctx, "cycle-1", ledger.TxAllocation,
		allocationInputs("10.00", "10.00"), "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AddSignature(ctx, tx.ID, "signer-A", "a1b2", ledger.SignatureEdDSA); err != nil {
		t.Fatal(err)
	}

	tx, err = eng.Execute(ctx, tx.ID, "operator")
	var sinkErr *ledger.SinkError
	if !errors.As(err, &sinkErr) {
		t.Fatalf("expected SinkError, got %v", err)
	}
	if tx.Status != ledger.TxRejected {
		t.Errorf("status = %s, want REJECTED", tx.Status)
	}
	if !hasAuditAction(tx, "STATUS_CHANGE_REJECTED") {
		t.Error("rejection not recorded in audit trail")
	}

	// Rejected transactions never touch balances.
	bal, err := eng.AccountBalance(ctx, "funding", "USD")
	if err != nil {
		t.Fatal(err)
	}
	if !bal.Balance.IsZero() {
		t.Errorf("rejected transaction leaked into balances: %s", bal.Balance)
	}
}

func TestExecute_verifyFailureRejects(t *testing.T) {
	eng, sink, _ := newTestEngine(t, 1)
	sink.FailVerify = true

	tx, err := eng.CreateTransaction(ctx, "cycle-1", ledger.TxAllocation,
		allocationInputs("10.00", "10.00"), "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AddSignature(ctx, tx.ID, "signer-A", "a1b2", ledger.SignatureEdDSA); err != nil {
		t.Fatal(err)
	}

	tx, err = eng.Execute(ctx, tx.ID, "operator")
	var sinkErr *ledger.SinkError
	if !errors.As(err, &sinkErr) {
		t.Fatalf("expected SinkError, got %v", err)
	}
	if sinkErr.Stage != "verify" {
		t.Errorf("stage = %s, want verify", sinkErr.Stage)
	}
	if tx.Status != ledger.TxRejected {
		t.Errorf("status = %s, want REJECTED", tx.Status)
	}
}

func TestUpdateStatus_directExecution(t *testing.T) {
	eng, _, _ := newTestEngine(t, 2)

	tx, err := eng.CreateTransaction(ctx, "cycle-1", ledger.TxAllocation,
		allocationInputs("5000.00", "5000.00"), "", "")
	if err != nil {
		t.Fatal(err)
	}

	tx, err = eng.UpdateStatus(ctx, tx.ID, ledger.TxExecuted, "test")
	if err != nil {
		t.Fatal(err)
	}
	if tx.Status != ledger.TxExecuted {
		t.Fatalf("status = %s, want EXECUTED", tx.Status)
	}
	if tx.ExecutionTimestamp == nil {
		t.Error("executionTimestamp not set")
	}

	_, entries, err := eng.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Status != ledger.EntryConfirmed {
			t.Errorf("entry %s status = %s, want CONFIRMED", e.ID, e.Status)
		}
	}

	// Terminal states admit no further change.
	_, err = eng.UpdateStatus(ctx, tx.ID, ledger.TxCancelled, "test")
	if !errors.Is(err, ledger.ErrIllegalTransactionTransition) {
		t.Fatalf("expected ErrIllegalTransactionTransition, got %v", err)
	}
}

func TestCancel_missingTransactionIsNonFatal(t *testing.T) {
	eng, _, _ := newTestEngine(t, 2)

	ok, err := eng.Cancel(ctx, "never-stored", "duplicate request", "operator")
	if err != nil {
		t.Fatalf("queue-level cancellation must not fail: %v", err)
	}
	if !ok {
		t.Error("queue-level cancellation must report success")
	}
}

func TestCancel_marksEntriesCancelled(t *testing.T) {
	eng, _, _ := newTestEngine(t, 2)

	tx, err := eng.CreateTransaction(ctx, "cycle-1", ledger.TxAllocation,
		allocationInputs("10.00", "10.00"), "", "")
	if err != nil {
		t.Fatal(err)
	}

	ok, err := eng.Cancel(ctx, tx.ID, "grant withdrawn", "operator")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("cancel reported failure")
	}

	got, entries, err := eng.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != ledger.TxCancelled {
		t.Errorf("status = %s, want CANCELLED", got.Status)
	}
	for _, e := range entries {
		if e.Status != ledger.EntryCancelled {
			t.Errorf("entry %s status = %s, want CANCELLED", e.ID, e.Status)
		}
	}

	// A terminal transaction cannot be cancelled again.
	ok, err = eng.Cancel(ctx, tx.ID, "again", "operator")
	if ok || !errors.Is(err, ledger.ErrIllegalTransactionTransition) {
		t.Errorf("expected transition error on double cancel, got ok=%t err=%v", ok, err)
	}
}

func TestReject_recordsReason(t *testing.T) {
	eng, _, _ := newTestEngine(t, 2)

	tx, err := eng.CreateTransaction(ctx, "cycle-1", ledger.TxAllocation,
		allocationInputs("10.00", "10.00"), "", "")
	if err != nil {
		t.Fatal(err)
	}

	tx, err = eng.Reject(ctx, tx.ID, "failed review", "auditor")
	if err != nil {
		t.Fatal(err)
	}
	if tx.Status != ledger.TxRejected {
		t.Fatalf("status = %s, want REJECTED", tx.Status)
	}
	last := tx.AuditTrail[len(tx.AuditTrail)-1]
	if last.Action != "STATUS_CHANGE_REJECTED" || last.Details != "failed review" {
		t.Errorf("audit record %+v does not carry the reason", last)
	}
}

func TestSubmit_movesDraftToPendingApproval(t *testing.T) {
	eng, _, _ := newTestEngine(t, 2)

	tx, err := eng.CreateTransaction(ctx, "cycle-1", ledger.TxAllocation,
		allocationInputs("10.00", "10.00"), "", "")
	if err != nil {
		t.Fatal(err)
	}

	tx, err = eng.Submit(ctx, tx.ID, "operator")
	if err != nil {
		t.Fatal(err)
	}
	if tx.Status != ledger.TxPendingApproval {
		t.Errorf("status = %s, want PENDING_APPROVAL", tx.Status)
	}

	// Submitting twice is illegal.
	_, err = eng.Submit(ctx, tx.ID, "operator")
	if !errors.Is(err, ledger.ErrIllegalTransactionTransition) {
		t.Fatalf("expected ErrIllegalTransactionTransition, got %v", err)
	}
}
