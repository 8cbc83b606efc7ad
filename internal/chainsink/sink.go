// Package chainsink defines the opaque submission endpoint an executed
// transaction is anchored to. The ledger engine does not depend on which
// chain sits behind the interface.
package chainsink

import (
	"context"

	"github.com/OpenGrantStack/GrantReady-Ledger/internal/ledger"
)

// Sink accepts a transaction for anchoring and answers verification and
// metadata queries about it.
type Sink interface {
	// Submit anchors a transaction and returns its chain-side hash.
	Submit(ctx context.Context, tx *ledger.Transaction, entries []*ledger.Entry) (string, error)

	// Verify reports whether the given chain-side hash is anchored.
	Verify(ctx context.Context, txHash string) (bool, error)

	// Metadata returns the anchoring details for a submitted hash.
	Metadata(ctx context.Context, txHash string) (*ledger.ChainMetadata, error)
}
