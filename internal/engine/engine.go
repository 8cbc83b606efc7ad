// Package engine hosts the ledger core: transaction assembly, the
// multi-signature approval state machine, balance derivation and
// integrity verification.
//
// The engine is a value constructed once and threaded through callers.
// Transaction state changes and the entry and balance updates they
// trigger run under a single engine lock; chain appends are serialized by
// the entry store, which chains, validates and publishes each batch under
// its own lock. The core thus behaves as if it were single-threaded with
// suspension only at validation, sink submission and signature-oracle
// calls.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/OpenGrantStack/GrantReady-Ledger/internal/chainsink"
	"github.com/OpenGrantStack/GrantReady-Ledger/internal/ledger"
	"github.com/OpenGrantStack/GrantReady-Ledger/internal/sigoracle"
	"github.com/OpenGrantStack/GrantReady-Ledger/internal/validation"
)

// Config is the tuning surface the engine consumes.
type Config struct {
	RequiredSignatures   int
	SupportedCurrencies  []string
	MaxTransactionAmount ledger.Money
	DefaultCurrency      string
	EnableMultiSignature bool
	EnableZKProofs       bool
}

// requiredSignatures clamps the configured threshold to [1, 10]. With
// multi-signature disabled a single signature approves.
func (c Config) requiredSignatures() int {
	if !c.EnableMultiSignature {
		return 1
	}
	n := c.RequiredSignatures
	if n < 1 {
		n = 1
	}
	if n > 10 {
		n = 10
	}
	return n
}

// Engine is the in-process ledger core.
type Engine struct {
	mu sync.Mutex // serializes transaction mutations and policy registration

	cfg       Config
	entries   ledger.Store
	txs       *ledger.TransactionStore
	balances  *ledger.BalanceIndex
	validator *validation.Validator
	policies  map[string]validation.PolicyRules
	sink      chainsink.Sink
	oracle    sigoracle.Oracle
	logger    *zap.Logger
}

// New creates an Engine over the given entry store, chain sink and
// signature oracle.
func New(cfg Config, store ledger.Store, sink chainsink.Sink, oracle sigoracle.Oracle, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		entries:   store,
		txs:       ledger.NewTransactionStore(),
		balances:  ledger.NewBalanceIndex(store, logger),
		validator: validation.New(cfg.SupportedCurrencies, cfg.MaxTransactionAmount),
		policies:  make(map[string]validation.PolicyRules),
		sink:      sink,
		oracle:    oracle,
		logger:    logger,
	}
}

// RegisterPolicy installs a policy overlay addressable by id from
// CreateTransaction.
func (e *Engine) RegisterPolicy(rules validation.PolicyRules) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[rules.ID] = rules
}

// EntryInput describes one entry of a transaction being assembled.
type EntryInput struct {
	Account     ledger.Account   `json:"account"`
	Amount      ledger.Money     `json:"amount"`
	Currency    string           `json:"currency"`
	EntryType   ledger.EntryType `json:"entryType"`
	Description string           `json:"description"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	ZKProof     *ledger.ZKProof  `json:"zkProof,omitempty"`
}

// CreateTransaction assembles a balanced transaction from the given entry
// descriptors and records it in DRAFT state.
//
// The descriptors are balance-checked first, then materialized as chained
// entries. Entries reach the chain only after validation passes: the
// batch is staged against the current tip, validated, and published
// atomically, so a failed transaction never advances the chain.
func (e *Engine) CreateTransaction(
	ctx context.Context,
	grantCycleID string,
	txType ledger.TransactionType,
	inputs []EntryInput,
	description string,
	policyID string,
) (*ledger.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	net := decimal.Zero
	credit := decimal.Zero
	currency := ""
	for i, in := range inputs {
		if i == 0 {
			currency = in.Currency
		} else if in.Currency != currency {
			return nil, fmt.Errorf("%w: entry %d has %s, expected %s",
				ledger.ErrCurrencyMismatch, i, in.Currency, currency)
		}
		if !e.cfg.MaxTransactionAmount.IsZero() && in.Amount.Cmp(e.cfg.MaxTransactionAmount) > 0 {
			return nil, fmt.Errorf("%w: entry %d amount %s exceeds the maximum of %s",
				ledger.ErrAmountOutOfRange, i, in.Amount, e.cfg.MaxTransactionAmount)
		}
		if in.EntryType == ledger.EntryCredit {
			net = net.Add(in.Amount.Decimal())
			credit = credit.Add(in.Amount.Decimal())
		} else {
			net = net.Sub(in.Amount.Decimal())
		}
	}
	if net.Abs().Cmp(ledger.BalanceTolerance) > 0 {
		return nil, &ledger.UnbalancedError{Net: ledger.MoneyFromDecimal(net)}
	}

	if currency == "" {
		currency = e.cfg.DefaultCurrency
	}

	var rules *validation.PolicyRules
	if policyID != "" {
		e.mu.Lock()
		r, ok := e.policies[policyID]
		e.mu.Unlock()
		if !ok {
			return nil, &ledger.NotFoundError{Kind: "policy", ID: policyID}
		}
		rules = &r
	}

	now := time.Now().UTC()
	tx := &ledger.Transaction{
		ID:                 uuid.New().String(),
		Timestamp:          now,
		GrantCycleID:       grantCycleID,
		TransactionType:    txType,
		Description:        description,
		TotalAmount:        ledger.MoneyFromDecimal(credit),
		Currency:           currency,
		PolicyID:           policyID,
		RequiredSignatures: e.cfg.requiredSignatures(),
		ReceivedSignatures: []string{},
		Status:             ledger.TxDraft,
		AuditTrail:         []ledger.AuditRecord{},
	}
	tx.Audit("CREATED", "system", "")

	staged := make([]*ledger.Entry, 0, len(inputs))
	for _, in := range inputs {
		zk := in.ZKProof
		if !e.cfg.EnableZKProofs {
			zk = nil
		}
		staged = append(staged, &ledger.Entry{
			GrantCycleID:  grantCycleID,
			TransactionID: tx.ID,
			Account:       in.Account,
			Amount:        in.Amount,
			Currency:      in.Currency,
			EntryType:     in.EntryType,
			Description:   in.Description,
			Metadata:      in.Metadata,
			ZKProof:       zk,
		})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Validation runs inside the staged append so a failure leaves the
	// chain tip untouched.
	finalized, err := e.entries.AppendBatch(ctx, staged, func(chained []*ledger.Entry) error {
		res := e.validator.ValidateTransaction(tx, chained)
		if rules != nil {
			res.Errors = append(res.Errors, e.validator.ValidateAgainstPolicies(tx, chained, *rules).Errors...)
			if len(res.Errors) > 0 {
				res.Valid = false
			}
		}
		if !res.Valid {
			return &ledger.ValidationError{Errors: res.Errors}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, en := range finalized {
		tx.EntryIDs = append(tx.EntryIDs, en.ID)
	}
	e.txs.Put(ctx, tx)

	e.logger.Info("transaction created",
		zap.String("transaction_id", tx.ID),
		zap.String("grant_cycle_id", grantCycleID),
		zap.String("type", string(txType)),
		zap.String("total", tx.TotalAmount.String()),
	)
	return tx, nil
}

// GetTransaction returns a transaction and its entries in chain order.
func (e *Engine) GetTransaction(ctx context.Context, id string) (*ledger.Transaction, []*ledger.Entry, error) {
	tx, err := e.txs.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	entries, err := e.entries.ByTransaction(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return tx, entries, nil
}

// TransactionsByGrantCycle returns the ids of the transactions recorded
// under a grant cycle.
func (e *Engine) TransactionsByGrantCycle(ctx context.Context, cycleID string) ([]string, error) {
	return e.entries.ByGrantCycle(ctx, cycleID)
}

// AccountBalance returns the balance of (accountID, currency), deriving
// it from CONFIRMED entries when the index holds no memoized value.
func (e *Engine) AccountBalance(ctx context.Context, accountID, currency string) (*ledger.Balance, error) {
	if currency == "" {
		currency = e.cfg.DefaultCurrency
	}
	return e.balances.AccountBalance(ctx, accountID, currency)
}

// Balances exposes the balance index (for audit tooling).
func (e *Engine) Balances() *ledger.BalanceIndex { return e.balances }

// Store exposes the entry store for read-only surfaces.
func (e *Engine) Store() ledger.Store { return e.entries }
