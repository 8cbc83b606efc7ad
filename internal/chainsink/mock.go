package chainsink

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/OpenGrantStack/GrantReady-Ledger/internal/ledger"
)

// ErrNotSubmitted is returned by Metadata for an unknown hash.
var ErrNotSubmitted = errors.New("transaction hash not submitted")

// MockSink is an in-process Sink for development and tests. The
// submission hash is the transaction's Merkle root; "anchoring" is a map
// insert. FailSubmit and FailVerify inject failures.
type MockSink struct {
	mu        sync.Mutex
	submitted map[string]*ledger.ChainMetadata
	block     uint64
	logger    *zap.Logger

	FailSubmit bool
	FailVerify bool
}

// NewMockSink creates an empty MockSink.
func NewMockSink(logger *zap.Logger) *MockSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MockSink{
		submitted: make(map[string]*ledger.ChainMetadata),
		logger:    logger,
	}
}

// Submit implements Sink.
func (s *MockSink) Submit(ctx context.Context, tx *ledger.Transaction, entries []*ledger.Entry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailSubmit {
		return "", errors.New("mock sink: submission rejected")
	}

	hash := ledger.MerkleRoot(entries)
	s.block++
	s.submitted[hash] = &ledger.ChainMetadata{
		Blockchain:    "mock",
		TxHash:        hash,
		BlockNumber:   s.block,
		Confirmations: 1,
	}
	s.logger.Debug("transaction anchored",
		zap.String("transaction_id", tx.ID),
		zap.String("tx_hash", hash),
	)
	return hash, nil
}

// Verify implements Sink.
func (s *MockSink) Verify(ctx context.Context, txHash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailVerify {
		return false, nil
	}
	_, ok := s.submitted[txHash]
	return ok, nil
}

// Metadata implements Sink.
func (s *MockSink) Metadata(_ context.Context, txHash string) (*ledger.ChainMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.submitted[txHash]
	if !ok {
		return nil, ErrNotSubmitted
	}
	return meta, nil
}
