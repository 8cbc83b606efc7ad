package ledger_test

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/OpenGrantStack/GrantReady-Ledger/internal/ledger"
)

func testEntry() *ledger.Entry {
	return &ledger.Entry{
		ID:            "7f2ab1e0-9c3d-4b5a-8f6e-1d2c3b4a5968",
		Timestamp:     time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
		GrantCycleID:  "cycle-1",
		TransactionID: "tx-1",
		Account: ledger.Account{
			ID:   "funding",
			Type: ledger.AccountFunding,
			Owner: ledger.AccountOwner{
				ID:   "org-1",
				Type: ledger.OwnerOrganization,
			},
		},
		Amount:      ledger.MustMoney("5000.00"),
		Currency:    "USD",
		EntryType:   ledger.EntryCredit,
		Description: "initial allocation",
		Metadata:    map[string]any{},
	}
}

func TestCanonicalPayload_sortsTopLevelKeys(t *testing.T) {
	e := testEntry()
	e.PreviousHash = strings.Repeat("ab", 32)

	payload, err := ledger.CanonicalPayload(e)
	if err != nil {
		t.Fatal(err)
	}

	// Top-level keys come out in lexicographic order; nested objects keep
	// their declared field order.
	want := `{"account":{"id":"funding","type":"FUNDING","owner":{"id":"org-1","type":"ORGANIZATION"}},` +
		`"amount":"5000.00",` +
		`"currency":"USD",` +
		`"description":"initial allocation",` +
		`"entryType":"CREDIT",` +
		`"grantCycleId":"cycle-1",` +
		`"id":"7f2ab1e0-9c3d-4b5a-8f6e-1d2c3b4a5968",` +
		`"metadata":{},` +
		`"previousHash":"` + strings.Repeat("ab", 32) + `",` +
		`"timestamp":"2024-03-10T12:00:00Z",` +
		`"transactionId":"tx-1"}`
	if string(payload) != want {
		t.Errorf("canonical payload mismatch:\ngot  %s\nwant %s", payload, want)
	}

	// hash, signatures and status never enter the payload.
	for _, excluded := range []string{`"hash"`, `"signatures"`, `"status"`} {
		if strings.Contains(string(payload), excluded) {
			t.Errorf("payload must not contain %s: %s", excluded, payload)
		}
	}

	// The payload is itself valid JSON.
	var parsed map[string]any
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
}

func TestCanonicalPayload_omitsEmptyPreviousHash(t *testing.T) {
	payload, err := ledger.CanonicalPayload(testEntry())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(payload), "previousHash") {
		t.Errorf("first-entry payload must omit previousHash: %s", payload)
	}
}

func TestHashEntry_matchesManualDigest(t *testing.T) {
	e := testEntry()

	hash, err := ledger.HashEntry(e)
	if err != nil {
		t.Fatal(err)
	}
	if !regexp.MustCompile(`^[a-f0-9]{64}$`).MatchString(hash) {
		t.Fatalf("hash is not 64-char lowercase hex: %q", hash)
	}

	payload, err := ledger.CanonicalPayload(e)
	if err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(payload)
	if want := hex.EncodeToString(sum[:]); hash != want {
		t.Errorf("HashEntry = %s, want %s", hash, want)
	}
}

func TestHashEntry_deterministic(t *testing.T) {
	e := testEntry()
	h1, err := ledger.HashEntry(e)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := ledger.HashEntry(e)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("hash not deterministic: %s != %s", h1, h2)
	}

	// Signatures and status must not influence the hash.
	e.Status = ledger.EntryConfirmed
	e.Signatures = append(e.Signatures, ledger.Signature{Signer: "a", Signature: "ff"})
	h3, err := ledger.HashEntry(e)
	if err != nil {
		t.Fatal(err)
	}
	if h3 != h1 {
		t.Error("hash changed after signature/status mutation")
	}

	// The amount is part of the payload.
	e.Amount = ledger.MustMoney("5000.01")
	h4, err := ledger.HashEntry(e)
	if err != nil {
		t.Fatal(err)
	}
	if h4 == h1 {
		t.Error("hash unchanged after amount mutation")
	}
}

func TestEntry_serializationRoundTrip(t *testing.T) {
	e := testEntry()
	e.Hash = strings.Repeat("0a", 32)
	e.Status = ledger.EntryPending
	e.Signatures = []ledger.Signature{}

	first, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	var back ledger.Entry
	if err := json.Unmarshal(first, &back); err != nil {
		t.Fatal(err)
	}
	second, err := json.Marshal(&back)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Errorf("re-serialization differs:\n%s\n%s", first, second)
	}
}

func TestMerkleRoot(t *testing.T) {
	e1 := testEntry()
	e1.Hash = strings.Repeat("aa", 32)
	e2 := testEntry()
	e2.Hash = strings.Repeat("bb", 32)

	root := ledger.MerkleRoot([]*ledger.Entry{e1, e2})

	sum := sha256.Sum256([]byte(e1.Hash + e2.Hash))
	if want := hex.EncodeToString(sum[:]); root != want {
		t.Errorf("MerkleRoot = %s, want %s", root, want)
	}

	// Order matters.
	if root == ledger.MerkleRoot([]*ledger.Entry{e2, e1}) {
		t.Error("merkle root must depend on entry order")
	}
}
