package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the append-only entry log and the single owner of Entry
// records. Implementations must serialize appends so that the chain
// observes a total order on tip advancement: a batch acquires the tip,
// chains its entries, and publishes the new tip atomically. Entries from
// two transactions never interleave.
type Store interface {
	// Append chains a single entry. The store assigns the id and
	// timestamp if unset, fills PreviousHash from the current tip,
	// computes the hash and stores the entry with status PENDING.
	Append(ctx context.Context, e *Entry) (*Entry, error)

	// AppendBatch chains a group of entries atomically. If stage is
	// non-nil it is invoked with the finalized entries before they are
	// published; a stage error aborts the batch and leaves the tip
	// unchanged.
	AppendBatch(ctx context.Context, entries []*Entry, stage func([]*Entry) error) ([]*Entry, error)

	// Get returns the entry with the given id.
	Get(ctx context.Context, id string) (*Entry, error)

	// ByTransaction returns a transaction's entries ordered by timestamp
	// ascending.
	ByTransaction(ctx context.Context, txID string) ([]*Entry, error)

	// ByGrantCycle returns the ids of the transactions recorded under a
	// grant cycle, in creation order.
	ByGrantCycle(ctx context.Context, cycleID string) ([]string, error)

	// SetStatus transitions an entry's status. Moving out of a terminal
	// state fails with ErrIllegalEntryTransition.
	SetStatus(ctx context.Context, id string, status EntryStatus) error

	// AppendSignature appends a signature record to an entry. Signatures
	// sit outside the hashed payload, so this is permitted in any status.
	AppendSignature(ctx context.Context, id string, sig Signature) error

	// All returns a snapshot of every entry in chain order.
	All(ctx context.Context) ([]*Entry, error)

	// Len returns the number of entries.
	Len(ctx context.Context) (int, error)

	// Tip returns the hash of the most recently appended entry, or ""
	// when the ledger is empty.
	Tip(ctx context.Context) (string, error)
}

// MemoryStore is an in-memory, thread-safe Store implementation.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry // chain order
	byID    map[string]*Entry
	byTx    map[string][]*Entry
	byCycle map[string][]string // grant cycle id -> transaction ids
	tip     string
	logger  *zap.Logger
}

// NewMemoryStore creates an empty MemoryStore. The chain has no genesis
// record: the first appended entry simply carries no previousHash.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		byID:    make(map[string]*Entry),
		byTx:    make(map[string][]*Entry),
		byCycle: make(map[string][]string),
		logger:  logger,
	}
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, e *Entry) (*Entry, error) {
	finalized, err := s.AppendBatch(ctx, []*Entry{e}, nil)
	if err != nil {
		return nil, err
	}
	return finalized[0], nil
}

// AppendBatch implements Store.
func (s *MemoryStore) AppendBatch(ctx context.Context, entries []*Entry, stage func([]*Entry) error) ([]*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tip := s.tip
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now().UTC()
		}
		if e.Signatures == nil {
			e.Signatures = []Signature{}
		}
		if e.Metadata == nil {
			e.Metadata = map[string]any{}
		}
		e.PreviousHash = tip
		e.Status = EntryPending

		hash, err := HashEntry(e)
		if err != nil {
			return nil, err
		}
		e.Hash = hash
		tip = hash
	}

	if stage != nil {
		if err := stage(entries); err != nil {
			return nil, err
		}
	}

	for _, e := range entries {
		s.entries = append(s.entries, e)
		s.byID[e.ID] = e
		if e.TransactionID != "" {
			if len(s.byTx[e.TransactionID]) == 0 && e.GrantCycleID != "" {
				s.byCycle[e.GrantCycleID] = append(s.byCycle[e.GrantCycleID], e.TransactionID)
			}
			s.byTx[e.TransactionID] = append(s.byTx[e.TransactionID], e)
		}
	}
	s.tip = tip

	s.logger.Debug("entries appended",
		zap.Int("count", len(entries)),
		zap.String("tip", s.tip),
	)
	return entries, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, &NotFoundError{Kind: "entry", ID: id}
	}
	return e, nil
}

// ByTransaction implements Store.
func (s *MemoryStore) ByTransaction(_ context.Context, txID string) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]*Entry, len(s.byTx[txID]))
	copy(entries, s.byTx[txID])
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// ByGrantCycle implements Store.
func (s *MemoryStore) ByGrantCycle(_ context.Context, cycleID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, len(s.byCycle[cycleID]))
	copy(ids, s.byCycle[cycleID])
	return ids, nil
}

// SetStatus implements Store.
func (s *MemoryStore) SetStatus(_ context.Context, id string, status EntryStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return &NotFoundError{Kind: "entry", ID: id}
	}
	if e.Status == status {
		return nil
	}
	if e.Status.Terminal() {
		return ErrIllegalEntryTransition
	}
	e.Status = status
	return nil
}

// AppendSignature implements Store.
func (s *MemoryStore) AppendSignature(_ context.Context, id string, sig Signature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return &NotFoundError{Kind: "entry", ID: id}
	}
	e.Signatures = append(e.Signatures, sig)
	return nil
}

// All implements Store. The returned slice is a snapshot; the entries it
// points at are the live records.
func (s *MemoryStore) All(_ context.Context) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]*Entry, len(s.entries))
	copy(entries, s.entries)
	return entries, nil
}

// Len implements Store.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Tip implements Store.
func (s *MemoryStore) Tip(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tip, nil
}
