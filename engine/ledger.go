package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"

	phraseerrors "phrasepool.dev/errors"
	"phrasepool.dev/engine/lockmgr"
	"phrasepool.dev/metrics"
)

const walletCurrency = "balance"

// Ledger implements C2: atomic balance mutation backed by Nakama's wallet
// (the balance) plus wallet ledger (the append-only Transaction journal,
// updateLedger=true on every WalletUpdate/MultiUpdate call). Grounded on
// items/shop.go's pre-check-then-commit shape and
// items/pending_writes.go + items/rewards.go's CommitPendingWrites
// (nk.MultiUpdate) atomic-commit primitive, and on
// original_source/backend/services/transaction_service.py's exact
// contract (row lock, new_balance<0 guard, skip_lock/auto_commit flags,
// balance_after snapshot).
type Ledger struct {
	nk    runtime.NakamaModule
	locks *lockmgr.Manager
}

func NewLedger(nk runtime.NakamaModule, locks *lockmgr.Manager) *Ledger {
	return &Ledger{nk: nk, locks: locks}
}

func playerLockKey(playerID string) string { return "player:" + playerID }

func (l *Ledger) Balance(ctx context.Context, playerID string) (int64, error) {
	account, err := l.nk.AccountGetId(ctx, playerID)
	if err != nil {
		return 0, fmt.Errorf("ledger: read account %s: %w", playerID, err)
	}
	var wallet map[string]int64
	if account.Wallet != "" {
		if err := json.Unmarshal([]byte(account.Wallet), &wallet); err != nil {
			return 0, phraseerrors.ErrUnmarshal
		}
	}
	return wallet[walletCurrency], nil
}

// Prepare validates the mutation (step 3 of spec.md §4.2's contract) without
// writing anything, returning the runtime.WalletUpdate ready for either a
// direct WalletUpdate call or bundling into nk.MultiUpdate alongside other
// storage writes for multi-step atomicity.
func (l *Ledger) Prepare(ctx context.Context, playerID string, amount int64, kind TransactionKind, referenceID string) (*runtime.WalletUpdate, *Transaction, error) {
	current, err := l.Balance(ctx, playerID)
	if err != nil {
		return nil, nil, err
	}
	newBalance := current + amount
	if newBalance < 0 {
		return nil, nil, phraseerrors.ErrInsufficientBalance
	}

	txID := uuid.New().String()
	tx := &Transaction{
		ID:           txID,
		PlayerID:     playerID,
		Amount:       amount,
		Kind:         kind,
		ReferenceID:  referenceID,
		BalanceAfter: newBalance,
		CreatedAt:    time.Now(),
	}
	update := &runtime.WalletUpdate{
		UserID:    playerID,
		Changeset: map[string]int64{walletCurrency: amount},
		Metadata: map[string]interface{}{
			"kind":         string(kind),
			"reference_id": referenceID,
			"tx_id":        txID,
		},
	}
	return update, tx, nil
}

// Apply acquires the per-player advisory lock (spec.md §5), validates, and
// commits a single balance mutation, returning the resulting Transaction.
// Pass skipLock=true when the caller already holds playerID's lock
// (spec.md §4.2's "reentrant-aware" callers).
func (l *Ledger) Apply(ctx context.Context, playerID string, amount int64, kind TransactionKind, referenceID string, skipLock bool) (*Transaction, error) {
	if !skipLock {
		unlock, err := l.locks.Acquire(ctx, playerLockKey(playerID))
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	update, tx, err := l.Prepare(ctx, playerID, amount, kind, referenceID)
	if err != nil {
		if err == phraseerrors.ErrInsufficientBalance {
			metrics.LedgerInsufficientBalanceTotal.WithLabelValues(string(kind)).Inc()
		}
		return nil, err
	}

	if _, _, err := l.nk.WalletUpdate(ctx, playerID, update.Changeset, update.Metadata, true); err != nil {
		return nil, fmt.Errorf("ledger: wallet update for %s: %w", playerID, err)
	}
	metrics.LedgerTransactionsTotal.WithLabelValues(string(kind)).Inc()
	return tx, nil
}

// WithPlayerLock runs fn with playerID's advisory lock held, for call sites
// that need to bundle a ledger mutation with other per-player state changes
// (active_round_id bookkeeping) under one critical section.
func (l *Ledger) WithPlayerLock(ctx context.Context, playerID string, fn func() error) error {
	unlock, err := l.locks.Acquire(ctx, playerLockKey(playerID))
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}
