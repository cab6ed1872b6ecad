package engine

import (
	"context"
	"sync"
)

// InProcBroker is the default Broker: a mutex-guarded FIFO slice, grounded
// on spec.md §4.3's "in-process FIFO guarded by a mutex" option and on the
// teacher's general single-writer-serialized-internally storage idiom.
// Suitable for a single-process deployment; NewKafkaBroker is the
// distributed alternative.
type InProcBroker struct {
	mu    sync.Mutex
	items []string
}

func NewInProcBroker() *InProcBroker {
	return &InProcBroker{items: make([]string, 0, 64)}
}

func (b *InProcBroker) Push(ctx context.Context, item string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, item)
	return nil
}

func (b *InProcBroker) Pop(ctx context.Context) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return "", false, nil
	}
	item := b.items[0]
	b.items = b.items[1:]
	return item, true, nil
}

// RemoveSpecific scans and removes the first matching item. O(n), but the
// queue is expected to stay small (spec.md §4.3: abandonment-unwind is
// advisory, duplicates are defended at dequeue time).
func (b *InProcBroker) RemoveSpecific(ctx context.Context, item string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, v := range b.items {
		if v == item {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (b *InProcBroker) Len(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items), nil
}
