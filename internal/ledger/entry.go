package ledger

import (
	"time"
)

// AccountType classifies the role an account plays in a grant cycle.
type AccountType string

const (
	AccountFunding        AccountType = "FUNDING"
	AccountDisbursement   AccountType = "DISBURSEMENT"
	AccountBeneficiary    AccountType = "BENEFICIARY"
	AccountAdministrative AccountType = "ADMINISTRATIVE"
	AccountReserve        AccountType = "RESERVE"
)

// OwnerType identifies the kind of party that owns an account.
type OwnerType string

const (
	OwnerOrganization OwnerType = "ORGANIZATION"
	OwnerIndividual   OwnerType = "INDIVIDUAL"
	OwnerSystem       OwnerType = "SYSTEM"
)

// EntryType is the accounting direction of an entry.
type EntryType string

const (
	EntryDebit      EntryType = "DEBIT"
	EntryCredit     EntryType = "CREDIT"
	EntryAdjustment EntryType = "ADJUSTMENT"
)

// EntryStatus is the lifecycle state of an entry.
// PENDING may move to any of the three terminal states; CONFIRMED,
// REJECTED and CANCELLED are terminal.
type EntryStatus string

const (
	EntryPending   EntryStatus = "PENDING"
	EntryConfirmed EntryStatus = "CONFIRMED"
	EntryRejected  EntryStatus = "REJECTED"
	EntryCancelled EntryStatus = "CANCELLED"
)

// SignatureType names the signature scheme a signer used.
type SignatureType string

const (
	SignatureECDSA SignatureType = "ECDSA"
	SignatureEdDSA SignatureType = "EdDSA"
	SignatureRSA   SignatureType = "RSA"
)

// AccountOwner is the party behind an account.
type AccountOwner struct {
	ID   string    `json:"id"`
	Type OwnerType `json:"type"`
	Name string    `json:"name,omitempty"`
}

// Account identifies one side of a financial movement.
type Account struct {
	ID    string       `json:"id"`
	Type  AccountType  `json:"type"`
	Owner AccountOwner `json:"owner"`
}

// Signature is one signer's approval record. Arrival order is preserved
// both on entries and on the parent transaction.
type Signature struct {
	Signer        string        `json:"signer"`
	Signature     string        `json:"signature"`
	Timestamp     time.Time     `json:"timestamp"`
	SignatureType SignatureType `json:"signatureType"`
}

// ZKProof is an opaque zero-knowledge proof descriptor attached to an
// entry. The ledger carries it; it never constructs or checks proofs.
type ZKProof struct {
	Protocol     string   `json:"protocol"`
	Proof        string   `json:"proof"`
	PublicInputs []string `json:"publicInputs,omitempty"`
}

// Entry is a single atomic credit or debit in the ledger.
//
// Hash covers the canonical payload (see CanonicalPayload); Signatures and
// Status are deliberately outside the hashed payload so they can change
// after the entry is chained. PreviousHash is empty only for the first
// entry ever appended.
type Entry struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	GrantCycleID  string         `json:"grantCycleId"`
	TransactionID string         `json:"transactionId"`
	Account       Account        `json:"account"`
	Amount        Money          `json:"amount"`
	Currency      string         `json:"currency"`
	EntryType     EntryType      `json:"entryType"`
	Description   string         `json:"description"`
	Metadata      map[string]any `json:"metadata"`
	PreviousHash  string         `json:"previousHash,omitempty"`
	Hash          string         `json:"hash"`
	Signatures    []Signature    `json:"signatures"`
	ZKProof       *ZKProof       `json:"zkProof,omitempty"`
	Status        EntryStatus    `json:"status"`
}

// BalanceSign returns the multiplier an entry contributes to a balance:
// +1 for CREDIT, -1 for everything else. ADJUSTMENT entries intentionally
// fall into the -1 branch.
func (e *Entry) BalanceSign() int {
	if e.EntryType == EntryCredit {
		return 1
	}
	return -1
}

// SignedAmount is the entry amount with BalanceSign applied.
func (e *Entry) SignedAmount() Money {
	if e.BalanceSign() > 0 {
		return e.Amount
	}
	return e.Amount.Neg()
}

// Terminal reports whether the entry status admits no further transition.
func (s EntryStatus) Terminal() bool {
	switch s {
	case EntryConfirmed, EntryRejected, EntryCancelled:
		return true
	}
	return false
}
