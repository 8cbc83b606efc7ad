// Package validation implements the structural and business-rule checks
// applied to ledger entries and transactions before they are accepted.
// All checks are pure: the validator performs no I/O and returns the
// full list of failures rather than stopping at the first.
package validation

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/OpenGrantStack/GrantReady-Ledger/internal/ledger"
)

const (
	maxEntryDescription = 1000
	maxTxDescription    = 2000
	minEntriesPerTx     = 2
	minRequiredSigs     = 1
	maxRequiredSigs     = 10
)

var (
	uuidPattern     = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
	hashPattern     = regexp.MustCompile(`^[a-f0-9]{64}$`)
	entryAmount     = regexp.MustCompile(`^-?\d+(\.\d{1,2})?$`)
	totalAmount     = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)
)

// Result is the outcome of a validation pass. Warnings do not affect
// Valid.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func newResult() *Result {
	return &Result{Valid: true, Errors: []string{}, Warnings: []string{}}
}

func (r *Result) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Valid = false
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// merge folds other into r, prefixing each message.
func (r *Result) merge(prefix string, other *Result) {
	for _, e := range other.Errors {
		r.errorf("%s%s", prefix, e)
	}
	for _, w := range other.Warnings {
		r.warnf("%s%s", prefix, w)
	}
}

// Validator checks entries and transactions against the schema rules and
// the configured business limits.
type Validator struct {
	supported map[string]bool
	maxAmount ledger.Money
}

// New creates a Validator. supportedCurrencies outside the set produce
// warnings, not errors; maxAmount is a hard per-entry limit.
func New(supportedCurrencies []string, maxAmount ledger.Money) *Validator {
	supported := make(map[string]bool, len(supportedCurrencies))
	for _, c := range supportedCurrencies {
		supported[c] = true
	}
	return &Validator{supported: supported, maxAmount: maxAmount}
}

// ValidateLedgerEntry runs the structural and business checks for a
// single entry.
func (v *Validator) ValidateLedgerEntry(e *ledger.Entry) *Result {
	r := newResult()

	if !uuidPattern.MatchString(e.ID) {
		r.errorf("id %q is not a v4 UUID", e.ID)
	}
	if e.Timestamp.IsZero() {
		r.errorf("timestamp is missing")
	}
	if !entryAmount.MatchString(e.Amount.String()) {
		r.errorf("amount %q is not a valid decimal", e.Amount.String())
	}
	if !currencyPattern.MatchString(e.Currency) {
		r.errorf("currency %q is not a 3-letter code", e.Currency)
	}
	if !hashPattern.MatchString(e.Hash) {
		r.errorf("hash %q is not a 64-char lowercase hex digest", e.Hash)
	}
	if len(e.Description) > maxEntryDescription {
		r.errorf("description exceeds %d characters", maxEntryDescription)
	}

	switch e.EntryType {
	case ledger.EntryDebit, ledger.EntryCredit, ledger.EntryAdjustment:
	default:
		r.errorf("entry type %q is unknown", e.EntryType)
	}

	if !e.Amount.IsPositive() {
		r.errorf("amount must be positive, got %s", e.Amount)
	}
	if len(v.supported) > 0 && !v.supported[e.Currency] {
		r.warnf("currency %s is not in the supported set", e.Currency)
	}
	if !v.maxAmount.IsZero() && e.Amount.Cmp(v.maxAmount) > 0 {
		r.errorf("amount %s exceeds the maximum of %s", e.Amount, v.maxAmount)
	}
	return r
}

// ValidateTransaction runs the structural and business checks for a
// transaction and all of its entries. Entry failures are prefixed with
// the entry id.
func (v *Validator) ValidateTransaction(tx *ledger.Transaction, entries []*ledger.Entry) *Result {
	r := newResult()

	if !uuidPattern.MatchString(tx.ID) {
		r.errorf("id %q is not a v4 UUID", tx.ID)
	}
	if tx.Timestamp.IsZero() {
		r.errorf("timestamp is missing")
	}
	if !totalAmount.MatchString(tx.TotalAmount.String()) {
		r.errorf("total amount %q is not a non-negative decimal", tx.TotalAmount.String())
	}
	if !currencyPattern.MatchString(tx.Currency) {
		r.errorf("currency %q is not a 3-letter code", tx.Currency)
	}
	if len(tx.Description) > maxTxDescription {
		r.errorf("description exceeds %d characters", maxTxDescription)
	}
	if len(entries) < minEntriesPerTx {
		r.errorf("transaction needs at least %d entries, got %d", minEntriesPerTx, len(entries))
	}
	if tx.RequiredSignatures < minRequiredSigs || tx.RequiredSignatures > maxRequiredSigs {
		r.errorf("required signatures must be between %d and %d, got %d",
			minRequiredSigs, maxRequiredSigs, tx.RequiredSignatures)
	}

	switch tx.TransactionType {
	case ledger.TxAllocation, ledger.TxDisbursement, ledger.TxReturn, ledger.TxAdjustment, ledger.TxClosure:
	default:
		r.errorf("transaction type %q is unknown", tx.TransactionType)
	}

	net := decimal.Zero
	credit := decimal.Zero
	for _, e := range entries {
		r.merge(fmt.Sprintf("entry %s: ", e.ID), v.ValidateLedgerEntry(e))

		if e.Currency != tx.Currency {
			r.errorf("entry %s: currency %s differs from transaction currency %s",
				e.ID, e.Currency, tx.Currency)
		}
		net = net.Add(e.SignedAmount().Decimal())
		if e.EntryType == ledger.EntryCredit {
			credit = credit.Add(e.Amount.Decimal())
		}
	}

	if net.Abs().Cmp(ledger.BalanceTolerance) > 0 {
		r.errorf("entries do not balance: net %s", ledger.MoneyFromDecimal(net))
	}
	if !tx.TotalAmount.Decimal().Equal(credit.Truncate(2)) {
		r.errorf("total amount %s does not match the credit sum %s",
			tx.TotalAmount, ledger.MoneyFromDecimal(credit))
	}
	if len(tx.ReceivedSignatures) > tx.RequiredSignatures {
		r.warnf("received %d signatures but only %d are required",
			len(tx.ReceivedSignatures), tx.RequiredSignatures)
	}
	return r
}
