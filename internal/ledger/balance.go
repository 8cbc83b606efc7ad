package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Balance is the derived position of one account in one currency.
// Verified starts false; an external audit flips it.
type Balance struct {
	AccountID string    `json:"accountId"`
	Balance   Money     `json:"balance"`
	Currency  string    `json:"currency"`
	AsOf      time.Time `json:"asOf"`
	Verified  bool      `json:"verified"`
}

// BalanceIndex maintains per-(account, currency) balances derived from
// executed transactions. It can be dropped and recomputed from the entry
// log at any time; AccountBalance falls back to a scan of CONFIRMED
// entries when no memoized value exists.
type BalanceIndex struct {
	mu       sync.RWMutex
	balances map[string]*Balance
	store    Store
	logger   *zap.Logger
}

// NewBalanceIndex creates a BalanceIndex backed by the given entry store.
func NewBalanceIndex(store Store, logger *zap.Logger) *BalanceIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BalanceIndex{
		balances: make(map[string]*Balance),
		store:    store,
		logger:   logger,
	}
}

func balanceKey(accountID, currency string) string {
	return accountID + ":" + currency
}

// ApplyExecuted folds an executed transaction's entries into the index.
// Each CREDIT adds its amount, everything else subtracts. The state
// machine calls this exactly once per executed transaction.
func (b *BalanceIndex) ApplyExecuted(_ context.Context, entries []*Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now().UTC()
	for _, e := range entries {
		key := balanceKey(e.Account.ID, e.Currency)
		bal, ok := b.balances[key]
		if !ok {
			bal = &Balance{AccountID: e.Account.ID, Currency: e.Currency}
			b.balances[key] = bal
		}
		bal.Balance = bal.Balance.Add(e.SignedAmount())
		bal.AsOf = now
		bal.Verified = false
	}
}

// AccountBalance returns the balance for (accountID, currency). When the
// index has no memoized value it derives one by summing the CONFIRMED
// entries for that account and currency, memoizes it, and returns it.
func (b *BalanceIndex) AccountBalance(ctx context.Context, accountID, currency string) (*Balance, error) {
	key := balanceKey(accountID, currency)

	b.mu.RLock()
	bal, ok := b.balances[key]
	b.mu.RUnlock()
	if ok {
		return bal, nil
	}

	entries, err := b.store.All(ctx)
	if err != nil {
		return nil, err
	}
	sum := decimal.Zero
	for _, e := range entries {
		if e.Status != EntryConfirmed || e.Account.ID != accountID || e.Currency != currency {
			continue
		}
		sum = sum.Add(e.SignedAmount().Decimal())
	}

	bal = &Balance{
		AccountID: accountID,
		Balance:   MoneyFromDecimal(sum),
		Currency:  currency,
		AsOf:      time.Now().UTC(),
		Verified:  false,
	}

	b.mu.Lock()
	// Another caller may have derived it meanwhile; keep the first.
	if existing, ok := b.balances[key]; ok {
		bal = existing
	} else {
		b.balances[key] = bal
	}
	b.mu.Unlock()

	b.logger.Debug("balance derived",
		zap.String("account", accountID),
		zap.String("currency", currency),
		zap.String("balance", bal.Balance.String()),
	)
	return bal, nil
}

// Reset discards every memoized balance. Subsequent lookups re-derive
// from the entry log.
func (b *BalanceIndex) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances = make(map[string]*Balance)
}

// MarkVerified flips the verified flag for (accountID, currency) if the
// index holds a balance for it. Returns false when none exists.
func (b *BalanceIndex) MarkVerified(accountID, currency string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal, ok := b.balances[balanceKey(accountID, currency)]
	if !ok {
		return false
	}
	bal.Verified = true
	return true
}
