package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/OpenGrantStack/GrantReady-Ledger/internal/ledger"
)

// Audit trail actions emitted by the state machine. Status changes use
// statusChangeAction.
const (
	auditAllSignatures = "ALL_SIGNATURES_RECEIVED"
)

func statusChangeAction(s ledger.TransactionStatus) string {
	return "STATUS_CHANGE_" + string(s)
}

// Submit moves a DRAFT transaction to PENDING_APPROVAL after a validator
// pass.
func (e *Engine) Submit(ctx context.Context, txID, actor string) (*ledger.Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.txs.Get(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.Status != ledger.TxDraft {
		return nil, fmt.Errorf("%w: %s cannot be submitted from %s",
			ledger.ErrIllegalTransactionTransition, txID, tx.Status)
	}
	if err := e.revalidate(ctx, tx); err != nil {
		return nil, err
	}
	e.setStatus(tx, ledger.TxPendingApproval, actor, "")
	return tx, nil
}

// AddSignature records one signer's approval. The signature is appended
// to the transaction's signer set and, as a full record, to every child
// entry. Crossing the threshold promotes the transaction to APPROVED.
//
// A DRAFT transaction is implicitly submitted first, under the same
// validator guard as Submit.
func (e *Engine) AddSignature(ctx context.Context, txID, signer, signature string, sigType ledger.SignatureType) (*ledger.Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.txs.Get(ctx, txID)
	if err != nil {
		return nil, err
	}

	if tx.Status == ledger.TxDraft {
		if err := e.revalidate(ctx, tx); err != nil {
			return nil, err
		}
		e.setStatus(tx, ledger.TxPendingApproval, signer, "")
	}
	if tx.Status != ledger.TxPendingApproval {
		return nil, fmt.Errorf("%w: %s cannot accept signatures in %s",
			ledger.ErrIllegalTransactionTransition, txID, tx.Status)
	}
	if tx.HasSigner(signer) {
		return nil, fmt.Errorf("%w: %s already signed %s", ledger.ErrDuplicateSigner, signer, txID)
	}
	if signature == "" {
		return nil, fmt.Errorf("signature bytes for %s are empty", signer)
	}

	sig := ledger.Signature{
		Signer:        signer,
		Signature:     signature,
		Timestamp:     time.Now().UTC(),
		SignatureType: sigType,
	}
	for _, entryID := range tx.EntryIDs {
		if err := e.entries.AppendSignature(ctx, entryID, sig); err != nil {
			return nil, err
		}
	}
	tx.ReceivedSignatures = append(tx.ReceivedSignatures, signer)
	tx.Audit("SIGNATURE_ADDED", signer, string(sigType))

	e.logger.Info("signature added",
		zap.String("transaction_id", txID),
		zap.String("signer", signer),
		zap.Int("received", len(tx.ReceivedSignatures)),
		zap.Int("required", tx.RequiredSignatures),
	)

	if len(tx.ReceivedSignatures) >= tx.RequiredSignatures {
		tx.Audit(auditAllSignatures, "system", "")
		e.setStatus(tx, ledger.TxApproved, "system", "")
	}
	return tx, nil
}

// Execute anchors an APPROVED transaction through the chain sink and, on
// success, marks it EXECUTED: the execution timestamp is set, every child
// entry is confirmed, and the balance index is updated exactly once. A
// sink or verification failure moves the transaction to REJECTED with the
// failure recorded in the audit trail; the engine never retries.
func (e *Engine) Execute(ctx context.Context, txID, actor string) (*ledger.Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.txs.Get(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.Status != ledger.TxApproved {
		return nil, fmt.Errorf("%w: %s cannot be executed from %s",
			ledger.ErrIllegalTransactionTransition, txID, tx.Status)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := e.entries.ByTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}

	hash, err := e.sink.Submit(ctx, tx, entries)
	if err != nil {
		sinkErr := &ledger.SinkError{Stage: "submit", Err: err}
		e.rejectLocked(ctx, tx, actor, sinkErr.Error())
		return tx, sinkErr
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ok, err := e.sink.Verify(ctx, hash)
	if err != nil || !ok {
		if err == nil {
			err = fmt.Errorf("chain did not confirm %s", hash)
		}
		sinkErr := &ledger.SinkError{Stage: "verify", Err: err}
		e.rejectLocked(ctx, tx, actor, sinkErr.Error())
		return tx, sinkErr
	}

	if meta, err := e.sink.Metadata(ctx, hash); err == nil {
		tx.Blockchain = meta
	} else {
		tx.Blockchain = &ledger.ChainMetadata{Blockchain: "unknown", TxHash: hash}
	}

	if err := e.markExecuted(ctx, tx, actor, entries); err != nil {
		return nil, err
	}
	return tx, nil
}

// UpdateStatus performs a direct status transition. Terminal states admit
// no further change; moving to EXECUTED applies the full execution side
// effects. The event methods (Submit, AddSignature, Execute, Cancel,
// Reject) are the guarded path; UpdateStatus is the administrative one.
func (e *Engine) UpdateStatus(ctx context.Context, txID string, status ledger.TransactionStatus, actor string) (*ledger.Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.txs.Get(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is already %s",
			ledger.ErrIllegalTransactionTransition, txID, tx.Status)
	}

	switch status {
	case ledger.TxExecuted:
		entries, err := e.entries.ByTransaction(ctx, txID)
		if err != nil {
			return nil, err
		}
		if err := e.markExecuted(ctx, tx, actor, entries); err != nil {
			return nil, err
		}
	case ledger.TxRejected, ledger.TxCancelled:
		e.setStatus(tx, status, actor, "")
		e.settleEntries(ctx, tx, entryStatusFor(status))
	default:
		e.setStatus(tx, status, actor, "")
	}
	return tx, nil
}

// Cancel moves a non-terminal transaction to CANCELLED. A transaction
// missing from the ledger is non-fatal: the cancellation still succeeds
// at the queue level and Cancel reports true.
func (e *Engine) Cancel(ctx context.Context, txID, reason, actor string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.txs.Get(ctx, txID)
	if err != nil {
		e.logger.Warn("cancel for unknown transaction",
			zap.String("transaction_id", txID),
			zap.String("reason", reason),
		)
		return true, nil
	}
	if tx.Status.Terminal() {
		return false, fmt.Errorf("%w: %s is already %s",
			ledger.ErrIllegalTransactionTransition, txID, tx.Status)
	}
	e.setStatus(tx, ledger.TxCancelled, actor, reason)
	e.settleEntries(ctx, tx, ledger.EntryCancelled)
	return true, nil
}

// Reject moves a non-terminal transaction to REJECTED with the given
// reason.
func (e *Engine) Reject(ctx context.Context, txID, reason, actor string) (*ledger.Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.txs.Get(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is already %s",
			ledger.ErrIllegalTransactionTransition, txID, tx.Status)
	}
	e.rejectLocked(ctx, tx, actor, reason)
	return tx, nil
}

// revalidate re-runs the validator over a stored transaction. Used as the
// submit guard.
func (e *Engine) revalidate(ctx context.Context, tx *ledger.Transaction) error {
	entries, err := e.entries.ByTransaction(ctx, tx.ID)
	if err != nil {
		return err
	}
	res := e.validator.ValidateTransaction(tx, entries)
	if !res.Valid {
		return &ledger.ValidationError{Errors: res.Errors}
	}
	return nil
}

// setStatus changes the transaction status and appends the audit record.
// Callers hold e.mu.
func (e *Engine) setStatus(tx *ledger.Transaction, status ledger.TransactionStatus, actor, details string) {
	tx.Status = status
	tx.Audit(statusChangeAction(status), actor, details)
	transitionsTotal.WithLabelValues(string(status)).Inc()
	e.logger.Info("transaction status changed",
		zap.String("transaction_id", tx.ID),
		zap.String("status", string(status)),
		zap.String("actor", actor),
	)
}

func (e *Engine) rejectLocked(ctx context.Context, tx *ledger.Transaction, actor, details string) {
	e.setStatus(tx, ledger.TxRejected, actor, details)
	e.settleEntries(ctx, tx, ledger.EntryRejected)
}

// markExecuted applies the EXECUTED side effects: execution timestamp,
// child entries confirmed, balances updated. Terminal-state guards in the
// callers make this run at most once per transaction.
func (e *Engine) markExecuted(ctx context.Context, tx *ledger.Transaction, actor string, entries []*ledger.Entry) error {
	now := time.Now().UTC()
	for _, en := range entries {
		if err := e.entries.SetStatus(ctx, en.ID, ledger.EntryConfirmed); err != nil {
			return fmt.Errorf("confirm entry %s: %w", en.ID, err)
		}
	}
	tx.ExecutionTimestamp = &now
	e.setStatus(tx, ledger.TxExecuted, actor, "")
	e.balances.ApplyExecuted(ctx, entries)
	return nil
}

// settleEntries moves a transaction's PENDING entries to the given
// terminal status. Entries already terminal are left alone.
func (e *Engine) settleEntries(ctx context.Context, tx *ledger.Transaction, status ledger.EntryStatus) {
	for _, entryID := range tx.EntryIDs {
		en, err := e.entries.Get(ctx, entryID)
		if err != nil || en.Status.Terminal() {
			continue
		}
		if err := e.entries.SetStatus(ctx, entryID, status); err != nil {
			e.logger.Warn("entry settle failed",
				zap.String("entry_id", entryID),
				zap.Error(err),
			)
		}
	}
}

func entryStatusFor(s ledger.TransactionStatus) ledger.EntryStatus {
	if s == ledger.TxCancelled {
		return ledger.EntryCancelled
	}
	return ledger.EntryRejected
}
