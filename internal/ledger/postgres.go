package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to
// serialise concurrent appends. The value is arbitrary but must be
// consistent across all ledgerd instances sharing a database.
const advisoryLockKey = int64(7_412_003_981)

const entryColumns = `id, ts, grant_cycle_id, transaction_id, account, amount, currency,
	entry_type, description, metadata, previous_hash, hash, signatures, zk_proof, status`

// PostgresStore persists the entry chain to PostgreSQL. It implements the
// Store interface; chain order is the seq column.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{pool: pool, logger: logger}
}

// Append implements Store.
func (s *PostgresStore) Append(ctx context.Context, e *Entry) (*Entry, error) {
	finalized, err := s.AppendBatch(ctx, []*Entry{e}, nil)
	if err != nil {
		return nil, err
	}
	return finalized[0], nil
}

// AppendBatch implements Store.
// It acquires a transaction-scoped advisory lock, reads the chain tip,
// chains and inserts the batch, and commits — so concurrent appends
// observe a total order on tip advancement and a stage failure leaves
// the chain untouched.
func (s *PostgresStore) AppendBatch(ctx context.Context, entries []*Entry, stage func([]*Entry) error) ([]*Entry, error) {
	dbtx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer dbtx.Rollback(ctx) //nolint:errcheck

	if _, err := dbtx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	var tip string
	err = dbtx.QueryRow(ctx, "SELECT hash FROM grant_entries ORDER BY seq DESC LIMIT 1").Scan(&tip)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("read chain tip: %w", err)
	}

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
		account, err := json.Marshal(e.Account)
		if err != nil {
			return nil, fmt.Errorf("marshal account: %w", err)
		}
		metadata, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		signatures, err := json.Marshal(e.Signatures)
		if err != nil {
			return nil, fmt.Errorf("marshal signatures: %w", err)
		}
		var zkProof []byte
		if e.ZKProof != nil {
			if zkProof, err = json.Marshal(e.ZKProof); err != nil {
				return nil, fmt.Errorf("marshal zk proof: %w", err)
			}
		}

		if _, err := dbtx.Exec(ctx,
			`INSERT INTO grant_entries
			 (id, ts, grant_cycle_id, transaction_id, account, amount, currency,
			  entry_type, description, metadata, previous_hash, hash, signatures, zk_proof, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			e.ID, e.Timestamp, e.GrantCycleID, e.TransactionID, account,
			e.Amount.String(), e.Currency, string(e.EntryType), e.Description,
			metadata, nullable(e.PreviousHash), e.Hash, signatures, zkProof, string(e.Status),
		); err != nil {
			return nil, fmt.Errorf("insert entry: %w", err)
		}
	}

	if err := dbtx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit entries: %w", err)
	}

	s.logger.Debug("entries appended",
		zap.Int("count", len(entries)),
		zap.String("tip", tip),
	)
	return entries, nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+entryColumns+" FROM grant_entries WHERE id = $1", id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Kind: "entry", ID: id}
		}
		return nil, fmt.Errorf("get entry %s: %w", id, err)
	}
	return e, nil
}

// ByTransaction implements Store.
func (s *PostgresStore) ByTransaction(ctx context.Context, txID string) ([]*Entry, error) {
	return s.queryEntries(ctx,
		"SELECT "+entryColumns+" FROM grant_entries WHERE transaction_id = $1 ORDER BY ts ASC, seq ASC", txID)
}

// ByGrantCycle implements Store.
func (s *PostgresStore) ByGrantCycle(ctx context.Context, cycleID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT transaction_id FROM grant_entries
		 WHERE grant_cycle_id = $1 AND transaction_id <> ''
		 GROUP BY transaction_id ORDER BY MIN(seq) ASC`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("query cycle transactions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan transaction id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetStatus implements Store.
func (s *PostgresStore) SetStatus(ctx context.Context, id string, status EntryStatus) error {
	var current string
	err := s.pool.QueryRow(ctx, "SELECT status FROM grant_entries WHERE id = $1", id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &NotFoundError{Kind: "entry", ID: id}
		}
		return fmt.Errorf("read entry status: %w", err)
	}
	if EntryStatus(current) == status {
		return nil
	}
	if EntryStatus(current).Terminal() {
		return ErrIllegalEntryTransition
	}
	if _, err := s.pool.Exec(ctx,
		"UPDATE grant_entries SET status = $1 WHERE id = $2", string(status), id); err != nil {
		return fmt.Errorf("update entry status: %w", err)
	}
	return nil
}

// AppendSignature implements Store.
func (s *PostgresStore) AppendSignature(ctx context.Context, id string, sig Signature) error {
	b, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signature: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		"UPDATE grant_entries SET signatures = signatures || $1::jsonb WHERE id = $2", b, id)
	if err != nil {
		return fmt.Errorf("append signature: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Kind: "entry", ID: id}
	}
	return nil
}

// All implements Store.
func (s *PostgresStore) All(ctx context.Context) ([]*Entry, error) {
	return s.queryEntries(ctx,
		"SELECT "+entryColumns+" FROM grant_entries ORDER BY seq ASC")
}

// Len implements Store.
func (s *PostgresStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM grant_entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// Tip implements Store.
func (s *PostgresStore) Tip(ctx context.Context) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx, "SELECT hash FROM grant_entries ORDER BY seq DESC LIMIT 1").Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read chain tip: %w", err)
	}
	return hash, nil
}

func (s *PostgresStore) queryEntries(ctx context.Context, query string, args ...any) ([]*Entry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		e          Entry
		account    []byte
		amount     string
		entryType  string
		metadata   []byte
		prevHash   *string
		signatures []byte
		zkProof    []byte
		status     string
	)
	if err := row.Scan(
		&e.ID, &e.Timestamp, &e.GrantCycleID, &e.TransactionID, &account,
		&amount, &e.Currency, &entryType, &e.Description, &metadata,
		&prevHash, &e.Hash, &signatures, &zkProof, &status,
	); err != nil {
		return nil, err
	}

	var err error
	if e.Amount, err = ParseMoney(amount); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(account, &e.Account); err != nil {
		return nil, fmt.Errorf("unmarshal account: %w", err)
	}
	if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if err := json.Unmarshal(signatures, &e.Signatures); err != nil {
		return nil, fmt.Errorf("unmarshal signatures: %w", err)
	}
	if len(zkProof) > 0 {
		e.ZKProof = &ZKProof{}
		if err := json.Unmarshal(zkProof, e.ZKProof); err != nil {
			return nil, fmt.Errorf("unmarshal zk proof: %w", err)
		}
	}
	if prevHash != nil {
		e.PreviousHash = *prevHash
	}
	e.EntryType = EntryType(entryType)
	e.Status = EntryStatus(status)
	return &e, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Schema is the DDL for the grant_entries table. ledgerd applies it at
// startup when storage.migrate is enabled.
const Schema = `
CREATE TABLE IF NOT EXISTS grant_entries (
	seq            BIGSERIAL PRIMARY KEY,
	id             UUID NOT NULL UNIQUE,
	ts             TIMESTAMPTZ NOT NULL,
	grant_cycle_id TEXT NOT NULL,
	transaction_id TEXT NOT NULL,
	account        JSONB NOT NULL,
	amount         TEXT NOT NULL,
	currency       TEXT NOT NULL,
	entry_type     TEXT NOT NULL,
	description    TEXT NOT NULL,
	metadata       JSONB NOT NULL DEFAULT '{}',
	previous_hash  TEXT,
	hash           TEXT NOT NULL,
	signatures     JSONB NOT NULL DEFAULT '[]',
	zk_proof       JSONB,
	status         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS grant_entries_tx_idx ON grant_entries (transaction_id);
CREATE INDEX IF NOT EXISTS grant_entries_cycle_idx ON grant_entries (grant_cycle_id);
CREATE INDEX IF NOT EXISTS grant_entries_account_idx ON grant_entries ((account->>'id'), currency);
`
