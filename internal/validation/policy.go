package validation

import (
	"github.com/OpenGrantStack/GrantReady-Ledger/internal/ledger"
)

// PolicyRules is an optional per-policy overlay applied on top of the
// base validation. Business-hour breaches are warnings; everything else
// is an error.
type PolicyRules struct {
	ID                      string                   `json:"id"`
	AllowedTransactionTypes []ledger.TransactionType `json:"allowedTransactionTypes,omitempty"`
	MaxAmount               ledger.Money             `json:"maxAmount,omitempty"`
	BusinessHoursStart      int                      `json:"businessHoursStart"` // hour of day, inclusive
	BusinessHoursEnd        int                      `json:"businessHoursEnd"`   // hour of day, inclusive
	BlockedBeneficiaries    []string                 `json:"blockedBeneficiaries,omitempty"`
}

// ValidateAgainstPolicies checks a transaction against a policy overlay.
func (v *Validator) ValidateAgainstPolicies(tx *ledger.Transaction, entries []*ledger.Entry, rules PolicyRules) *Result {
	r := newResult()

	if len(rules.AllowedTransactionTypes) > 0 {
		allowed := false
		for _, t := range rules.AllowedTransactionTypes {
			if t == tx.TransactionType {
				allowed = true
				break
			}
		}
		if !allowed {
			r.errorf("transaction type %s is not allowed by policy %s", tx.TransactionType, rules.ID)
		}
	}

	if !rules.MaxAmount.IsZero() && tx.TotalAmount.Cmp(rules.MaxAmount) > 0 {
		r.errorf("total amount %s exceeds the policy maximum of %s", tx.TotalAmount, rules.MaxAmount)
	}

	if rules.BusinessHoursEnd > 0 {
		hour := tx.Timestamp.Hour()
		if hour < rules.BusinessHoursStart || hour > rules.BusinessHoursEnd {
			r.warnf("transaction created outside business hours (%02d:00-%02d:59)",
				rules.BusinessHoursStart, rules.BusinessHoursEnd)
		}
	}

	if len(rules.BlockedBeneficiaries) > 0 {
		blocked := make(map[string]bool, len(rules.BlockedBeneficiaries))
		for _, b := range rules.BlockedBeneficiaries {
			blocked[b] = true
		}
		for _, e := range entries {
			if e.Account.Type != ledger.AccountBeneficiary {
				continue
			}
			if blocked[e.Account.ID] || blocked[e.Account.Owner.ID] {
				r.errorf("entry %s: beneficiary %s is blocked", e.ID, e.Account.ID)
			}
		}
	}
	return r
}
