package engine

import (
	"context"
	"fmt"

	"github.com/heroiclabs/nakama-common/runtime"
)

// PendingWrites batches storage writes and wallet updates for a single
// atomic MultiUpdate commit, generalized from items/pending_writes.go +
// items/rewards.go's CommitPendingWrites. Operations that pair a ledger
// entry with storage writes (round creation with its entry fee, a timeout
// refund with the round/player-state/abandonment writes, the daily bonus
// with the player-state write) collect into one of these and commit once,
// so a crash mid-operation never leaves storage and wallet state out of sync.
type PendingWrites struct {
	StorageWrites []*runtime.StorageWrite
	WalletUpdates []*runtime.WalletUpdate
}

func NewPendingWrites() *PendingWrites {
	return &PendingWrites{
		StorageWrites: make([]*runtime.StorageWrite, 0),
		WalletUpdates: make([]*runtime.WalletUpdate, 0),
	}
}

func (pw *PendingWrites) AddStorageWrite(write *runtime.StorageWrite) {
	if write == nil {
		return
	}
	pw.StorageWrites = append(pw.StorageWrites, write)
}

func (pw *PendingWrites) AddWalletUpdate(update *runtime.WalletUpdate) {
	if update == nil {
		return
	}
	pw.WalletUpdates = append(pw.WalletUpdates, update)
}

func (pw *PendingWrites) Merge(other *PendingWrites) {
	if other == nil {
		return
	}
	pw.StorageWrites = append(pw.StorageWrites, other.StorageWrites...)
	pw.WalletUpdates = append(pw.WalletUpdates, other.WalletUpdates...)
}

func (pw *PendingWrites) IsEmpty() bool {
	return len(pw.StorageWrites) == 0 && len(pw.WalletUpdates) == 0
}

// Commit executes every pending storage write and wallet update atomically.
// updateLedger is always true: every wallet mutation this engine makes must
// land in the player-visible transaction journal (spec.md §4.2).
func (pw *PendingWrites) Commit(ctx context.Context, nk runtime.NakamaModule) error {
	if pw.IsEmpty() {
		return nil
	}
	_, _, err := nk.MultiUpdate(ctx, nil, pw.StorageWrites, nil, pw.WalletUpdates, true)
	if err != nil {
		return fmt.Errorf("engine: atomic commit failed: %w", err)
	}
	return nil
}
