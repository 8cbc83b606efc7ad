package engine_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/OpenGrantStack/GrantReady-Ledger/internal/ledger"
)

func reportMentions(errs []string, fragments ...string) bool {
	for _, msg := range errs {
		all := true
		for _, frag := range fragments {
			if !strings.Contains(msg, frag) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func TestVerifyIntegrity_cleanLedger(t *testing.T) {
	eng, _, _ := newTestEngine(t, 1)

	tx, err := eng.CreateTransaction(ctx, "cycle-1", ledger.TxAllocation,
		allocationInputs("5000.00", "5000.00"), "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AddSignature(ctx, tx.ID, "signer-A", "a1b2", ledger.SignatureEdDSA); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Execute(ctx, tx.ID, "operator"); err != nil {
		t.Fatal(err)
	}

	report, err := eng.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Valid {
		t.Errorf("clean ledger reported invalid: %v", report.Errors)
	}
}

func TestVerifyIntegrity_detectsTamperedAmount(t *testing.T) {
	eng, _, store := newTestEngine(t, 2)

	if _, err := eng.CreateTransaction(ctx, "cycle-1", ledger.TxAllocation,
		allocationInputs("5000.00", "5000.00"), "", ""); err != nil {
		t.Fatal(err)
	}

	entries, err := store.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	target := entries[1]
	original := target.Amount
	target.Amount = ledger.MustMoney("5000.01")

	report, err := eng.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Valid {
		t.Fatal("tampered amount not detected")
	}
	if !reportMentions(report.Errors, "invalid hash", target.ID) {
		t.Errorf("errors %v do not name the tampered entry", report.Errors)
	}

	// Restore, then break the chain link instead.
	target.Amount = original
	originalPrev := target.PreviousHash
	target.PreviousHash = strings.Repeat("00", 32)

	report, err = eng.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Valid {
		t.Fatal("broken chain not detected")
	}
	if !reportMentions(report.Errors, "broken chain", target.ID) {
		t.Errorf("errors %v do not name the broken link", report.Errors)
	}

	target.PreviousHash = originalPrev
	report, err = eng.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Valid {
		t.Errorf("restored ledger still invalid: %v", report.Errors)
	}
}

func TestVerifyIntegrity_detectsEmptySignature(t *testing.T) {
	eng, _, store := newTestEngine(t, 2)

	tx, err := eng.CreateTransaction(ctx, "cycle-1", ledger.TxAllocation,
		allocationInputs("10.00", "10.00"), "", "")
	if err != nil {
		t.Fatal(err)
	}

	_, entries, err := eng.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatal(err)
	}
	// Inject a structurally invalid (empty) signature past the engine.
	if err := store.AppendSignature(ctx, entries[0].ID, ledger.Signature{
		Signer:        "rogue",
		SignatureType: ledger.SignatureRSA,
	}); err != nil {
		t.Fatal(err)
	}

	report, err := eng.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Valid {
		t.Fatal("empty signature not detected")
	}
	if !reportMentions(report.Errors, "invalid signature", "rogue") {
		t.Errorf("errors %v do not name the rogue signer", report.Errors)
	}
}

func TestVerifyIntegrity_idempotent(t *testing.T) {
	eng, _, store := newTestEngine(t, 2)

	if _, err := eng.CreateTransaction(ctx, "cycle-1", ledger.TxAllocation,
		allocationInputs("5000.00", "5000.00"), "", ""); err != nil {
		t.Fatal(err)
	}

	// Tamper so the report is non-trivial.
	entries, err := store.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	entries[1].Amount = ledger.MustMoney("9999.99")

	first, err := eng.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	second, err := eng.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("verification not idempotent:\nfirst  %+v\nsecond %+v", first, second)
	}
}

func TestVerifyIntegrity_emptyLedger(t *testing.T) {
	eng, _, _ := newTestEngine(t, 2)

	report, err := eng.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Valid {
		t.Errorf("empty ledger reported invalid: %v", report.Errors)
	}
	if report.Errors == nil || report.Warnings == nil {
		t.Error("report slices must be non-nil for stable serialization")
	}
}
