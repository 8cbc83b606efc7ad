package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/OpenGrantStack/GrantReady-Ledger/internal/ledger"
)

// Report is the outcome of an integrity sweep. Valid is true iff Errors
// is empty; warnings never affect it.
type Report struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// VerifyIntegrity walks the entire ledger and re-derives everything the
// chain claims: per-entry hashes, the previous-hash links, the signature
// oracle's verdicts, and per-transaction balance. Violations are
// reported, never repaired. The sweep is read-only and idempotent: two
// sweeps over unchanged state return identical reports.
func (e *Engine) VerifyIntegrity(ctx context.Context) (*Report, error) {
	report := &Report{Valid: true, Errors: []string{}, Warnings: []string{}}

	entries, err := e.entries.All(ctx)
	if err != nil {
		return nil, err
	}

	for i, en := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hash, err := ledger.HashEntry(en)
		if err != nil {
			return nil, fmt.Errorf("rehash entry %s: %w", en.ID, err)
		}
		if hash != en.Hash {
			report.fail("invalid hash: entry %s", en.ID)
		}

		if i == 0 {
			if en.PreviousHash != "" {
				report.fail("broken chain: entry %s carries a previous hash but is first", en.ID)
			}
		} else if en.PreviousHash != entries[i-1].Hash {
			report.fail("broken chain: entry %s", en.ID)
		}

		res, err := e.oracle.Verify(ctx, en)
		if err != nil {
			report.fail("signature oracle: entry %s: %v", en.ID, err)
			continue
		}
		if !res.Valid {
			for _, d := range res.Details {
				if !d.Valid {
					report.fail("invalid signature: entry %s signer %s", en.ID, d.Signer)
				}
			}
		}
	}

	for _, tx := range e.txs.All(ctx) {
		txEntries, err := e.entries.ByTransaction(ctx, tx.ID)
		if err != nil {
			return nil, err
		}
		net := decimal.Zero
		credit := decimal.Zero
		for _, en := range txEntries {
			net = net.Add(en.SignedAmount().Decimal())
			if en.EntryType == ledger.EntryCredit {
				credit = credit.Add(en.Amount.Decimal())
			}
		}
		if net.Abs().Cmp(ledger.BalanceTolerance) > 0 {
			report.fail("unbalanced transaction: %s net %s", tx.ID, ledger.MoneyFromDecimal(net))
		}
		if !tx.TotalAmount.Decimal().Equal(credit.Truncate(2)) {
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"transaction %s total %s does not match credit sum %s",
				tx.ID, tx.TotalAmount, ledger.MoneyFromDecimal(credit)))
		}
	}

	if report.Valid {
		integrityChecksTotal.WithLabelValues("valid").Inc()
	} else {
		integrityChecksTotal.WithLabelValues("invalid").Inc()
		e.logger.Warn("ledger integrity check failed",
			zap.Int("violations", len(report.Errors)),
		)
	}
	return report, nil
}

func (r *Report) fail(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Valid = false
}

// IntegrityErr converts a failed report into an IntegrityError, or nil
// for a clean sweep.
func (r *Report) IntegrityErr() error {
	if r.Valid {
		return nil
	}
	return &ledger.IntegrityError{Violations: r.Errors}
}
