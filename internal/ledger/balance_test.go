package ledger_test

import (
	"testing"

	"go.uber.org/zap"

	"github.com/OpenGrantStack/GrantReady-Ledger/internal/ledger"
)

func confirmedEntries(t *testing.T, s *ledger.MemoryStore) []*ledger.Entry {
	t.Helper()
	batch := []*ledger.Entry{
		newEntry("tx-1", "funding", "5000.00", ledger.EntryCredit),
		newEntry("tx-1", "disbursement", "5000.00", ledger.EntryDebit),
	}
	finalized, err := s.AppendBatch(ctx, batch, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range finalized {
		if err := s.SetStatus(ctx, e.ID, ledger.EntryConfirmed); err != nil {
			t.Fatal(err)
		}
	}
	return finalized
}

func TestApplyExecuted_creditAddsDebitSubtracts(t *testing.T) {
	s := ledger.NewMemoryStore(zap.NewNop())
	idx := ledger.NewBalanceIndex(s, zap.NewNop())

	entries := confirmedEntries(t, s)
	idx.ApplyExecuted(ctx, entries)

	funding, err := idx.AccountBalance(ctx, "funding", "USD")
	if err != nil {
		t.Fatal(err)
	}
	if funding.Balance.String() != "5000.00" {
		t.Errorf("funding balance = %s, want 5000.00", funding.Balance)
	}

	disb, err := idx.AccountBalance(ctx, "disbursement", "USD")
	if err != nil {
		t.Fatal(err)
	}
	if disb.Balance.String() != "-5000.00" {
		t.Errorf("disbursement balance = %s, want -5000.00", disb.Balance)
	}
	if disb.Verified {
		t.Error("freshly derived balance must not be verified")
	}
	if disb.AsOf.IsZero() {
		t.Error("balance asOf must be set")
	}
}

func TestAccountBalance_derivesFromConfirmedEntries(t *testing.T) {
	s := ledger.NewMemoryStore(zap.NewNop())
	idx := ledger.NewBalanceIndex(s, zap.NewNop())

	entries := confirmedEntries(t, s)
	idx.ApplyExecuted(ctx, entries)
	running, err := idx.AccountBalance(ctx, "funding", "USD")
	if err != nil {
		t.Fatal(err)
	}

	// A rebuilt index must derive the same value from the entry log.
	idx.Reset()
	derived, err := idx.AccountBalance(ctx, "funding", "USD")
	if err != nil {
		t.Fatal(err)
	}
	if !derived.Balance.Equal(running.Balance) {
		t.Errorf("derived balance %s != running balance %s", derived.Balance, running.Balance)
	}
}

func TestAccountBalance_ignoresPendingEntries(t *testing.T) {
	s := ledger.NewMemoryStore(zap.NewNop())
	idx := ledger.NewBalanceIndex(s, zap.NewNop())

	// PENDING entries must not count toward derived balances.
	if _, err := s.Append(ctx, newEntry("tx-1", "funding", "123.00", ledger.EntryCredit)); err != nil {
		t.Fatal(err)
	}

	bal, err := idx.AccountBalance(ctx, "funding", "USD")
	if err != nil {
		t.Fatal(err)
	}
	if !bal.Balance.IsZero() {
		t.Errorf("pending entries leaked into balance: %s", bal.Balance)
	}
}

func TestAccountBalance_adjustmentSubtracts(t *testing.T) {
	s := ledger.NewMemoryStore(zap.NewNop())
	idx := ledger.NewBalanceIndex(s, zap.NewNop())

	batch := []*ledger.Entry{
		newEntry("tx-1", "reserve", "100.00", ledger.EntryCredit),
		newEntry("tx-1", "reserve", "40.00", ledger.EntryAdjustment),
		newEntry("tx-1", "other", "60.00", ledger.EntryDebit),
	}
	finalized, err := s.AppendBatch(ctx, batch, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range finalized {
		if err := s.SetStatus(ctx, e.ID, ledger.EntryConfirmed); err != nil {
			t.Fatal(err)
		}
	}

	bal, err := idx.AccountBalance(ctx, "reserve", "USD")
	if err != nil {
		t.Fatal(err)
	}
	if bal.Balance.String() != "60.00" {
		t.Errorf("reserve balance = %s, want 60.00 (adjustment counts as debit)", bal.Balance)
	}
}

func TestMarkVerified(t *testing.T) {
	s := ledger.NewMemoryStore(zap.NewNop())
	idx := ledger.NewBalanceIndex(s, zap.NewNop())

	if idx.MarkVerified("funding", "USD") {
		t.Error("MarkVerified on empty index must report false")
	}

	entries := confirmedEntries(t, s)
	idx.ApplyExecuted(ctx, entries)
	if !idx.MarkVerified("funding", "USD") {
		t.Fatal("MarkVerified failed for existing balance")
	}
	bal, err := idx.AccountBalance(ctx, "funding", "USD")
	if err != nil {
		t.Fatal(err)
	}
	if !bal.Verified {
		t.Error("balance should be verified after MarkVerified")
	}
}
