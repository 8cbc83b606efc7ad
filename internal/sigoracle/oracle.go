// Package sigoracle defines the pluggable signature verification oracle.
// The ledger never parses signature bytes itself; it only consumes the
// oracle's verdict.
package sigoracle

import (
	"context"

	"github.com/OpenGrantStack/GrantReady-Ledger/internal/ledger"
)

// SignerResult is the verdict for a single signer on an entry.
type SignerResult struct {
	Signer string `json:"signer"`
	Valid  bool   `json:"valid"`
}

// Result aggregates the per-signer verdicts for one entry.
type Result struct {
	Valid   bool           `json:"valid"`
	Details []SignerResult `json:"details"`
}

// Oracle verifies the signatures attached to an entry.
type Oracle interface {
	Verify(ctx context.Context, e *ledger.Entry) (*Result, error)
}

// StructuralOracle accepts any signature with non-empty bytes. It stands
// in until a real cryptographic verifier is plugged in.
type StructuralOracle struct{}

// NewStructuralOracle creates a StructuralOracle.
func NewStructuralOracle() *StructuralOracle { return &StructuralOracle{} }

// Verify implements Oracle.
func (o *StructuralOracle) Verify(_ context.Context, e *ledger.Entry) (*Result, error) {
	r := &Result{Valid: true, Details: make([]SignerResult, 0, len(e.Signatures))}
	for _, sig := range e.Signatures {
		ok := len(sig.Signature) > 0
		if !ok {
			r.Valid = false
		}
		r.Details = append(r.Details, SignerResult{Signer: sig.Signer, Valid: ok})
	}
	return r, nil
}
