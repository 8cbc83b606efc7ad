package ledger

import (
	"time"
)

// TransactionType classifies the economic event a transaction represents.
type TransactionType string

const (
	TxAllocation   TransactionType = "ALLOCATION"
	TxDisbursement TransactionType = "DISBURSEMENT"
	TxReturn       TransactionType = "RETURN"
	TxAdjustment   TransactionType = "ADJUSTMENT"
	TxClosure      TransactionType = "CLOSURE"
)

// TransactionStatus is the approval lifecycle state of a transaction.
type TransactionStatus string

const (
	TxDraft           TransactionStatus = "DRAFT"
	TxPendingApproval TransactionStatus = "PENDING_APPROVAL"
	TxApproved        TransactionStatus = "APPROVED"
	TxExecuted        TransactionStatus = "EXECUTED"
	TxRejected        TransactionStatus = "REJECTED"
	TxCancelled       TransactionStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transition.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case TxExecuted, TxRejected, TxCancelled:
		return true
	}
	return false
}

// AuditRecord is one line of a transaction's append-only audit trail.
type AuditRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Details   string    `json:"details,omitempty"`
}

// ChainMetadata describes where a transaction was anchored on an external
// chain. It is reported by the submission sink; the ledger treats it as
// opaque bookkeeping.
type ChainMetadata struct {
	Blockchain    string `json:"blockchain"`
	TxHash        string `json:"txHash"`
	BlockNumber   uint64 `json:"blockNumber,omitempty"`
	GasUsed       uint64 `json:"gasUsed,omitempty"`
	Confirmations int    `json:"confirmations,omitempty"`
}

// Transaction is a balanced bundle of at least two entries.
//
// Entries are owned by the Store; the transaction keeps only their ids as
// a weak back-reference and they are resolved through the store when the
// full record is needed.
type Transaction struct {
	ID                 string            `json:"id"`
	Timestamp          time.Time         `json:"timestamp"`
	GrantCycleID       string            `json:"grantCycleId"`
	TransactionType    TransactionType   `json:"transactionType"`
	Description        string            `json:"description"`
	EntryIDs           []string          `json:"-"`
	TotalAmount        Money             `json:"totalAmount"`
	Currency           string            `json:"currency"`
	PolicyID           string            `json:"policyId,omitempty"`
	RequiredSignatures int               `json:"requiredSignatures"`
	ReceivedSignatures []string          `json:"receivedSignatures"`
	Status             TransactionStatus `json:"status"`
	ExecutionTimestamp *time.Time        `json:"executionTimestamp,omitempty"`
	Blockchain         *ChainMetadata    `json:"blockchain,omitempty"`
	AuditTrail         []AuditRecord     `json:"auditTrail"`
}

// HasSigner reports whether signer already appears in ReceivedSignatures.
func (t *Transaction) HasSigner(signer string) bool {
	for _, s := range t.ReceivedSignatures {
		if s == signer {
			return true
		}
	}
	return false
}

// Audit appends a record to the audit trail with the current time.
func (t *Transaction) Audit(action, actor, details string) {
	t.AuditTrail = append(t.AuditTrail, AuditRecord{
		Timestamp: time.Now().UTC(),
		Action:    action,
		Actor:     actor,
		Details:   details,
	})
}

// GrantCycleStatus is the lifecycle state of a grant cycle.
type GrantCycleStatus string

const (
	CycleActive   GrantCycleStatus = "ACTIVE"
	CycleClosed   GrantCycleStatus = "CLOSED"
	CycleArchived GrantCycleStatus = "ARCHIVED"
)

// GrantCycle is the time-bounded envelope grouping related transactions.
// The ledger treats cycles as identifiers; their lifecycle is managed by
// the grant administration system.
type GrantCycle struct {
	ID          string           `json:"id"`
	GrantID     string           `json:"grantId"`
	StartDate   time.Time        `json:"startDate"`
	EndDate     time.Time        `json:"endDate"`
	TotalAmount Money            `json:"totalAmount"`
	Currency    string           `json:"currency"`
	Status      GrantCycleStatus `json:"status"`
	CreatedBy   string           `json:"createdBy"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}
