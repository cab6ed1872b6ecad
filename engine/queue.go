package engine

import (
	"context"

	"phrasepool.dev/config"
	"phrasepool.dev/metrics"
)

// Broker is C3's queue contract: push, atomic pop, best-effort specific
// removal, and length. spec.md §4.3/§9: "removals of specific items are
// best-effort on brokers that cannot random-access ... duplicates are
// defended at dequeue time" — every Broker implementation must tolerate a
// RemoveSpecific that silently does nothing.
type Broker interface {
	Push(ctx context.Context, item string) error
	Pop(ctx context.Context) (item string, ok bool, err error)
	RemoveSpecific(ctx context.Context, item string) error
	Len(ctx context.Context) (int, error)
}

// QueueService wraps the prompt queue and the phraseset voting pool over a
// pluggable Broker, and implements the discount predicate (spec.md §4.3,
// grounded on original_source/backend/services/queue_service.py).
type QueueService struct {
	cfg         *config.Config
	promptQueue Broker
	votingPool  Broker
}

func NewQueueService(cfg *config.Config, promptQueue, votingPool Broker) *QueueService {
	return &QueueService{cfg: cfg, promptQueue: promptQueue, votingPool: votingPool}
}

func (q *QueueService) PushPrompt(ctx context.Context, promptRoundID string) error {
	if err := q.promptQueue.Push(ctx, promptRoundID); err != nil {
		return err
	}
	if n, err := q.promptQueue.Len(ctx); err == nil {
		metrics.QueueDepthGauge.WithLabelValues("prompt").Set(float64(n))
	}
	return nil
}

func (q *QueueService) PopPrompt(ctx context.Context) (string, bool, error) {
	return q.promptQueue.Pop(ctx)
}

func (q *QueueService) RemovePromptSpecific(ctx context.Context, promptRoundID string) error {
	return q.promptQueue.RemoveSpecific(ctx, promptRoundID)
}

func (q *QueueService) PromptsWaiting(ctx context.Context) (int, error) {
	return q.promptQueue.Len(ctx)
}

// IsCopyDiscountActive reports whether length(prompt queue) > threshold
// (strict, matching queue_service.py's is_copy_discount_active).
func (q *QueueService) IsCopyDiscountActive(ctx context.Context) (bool, error) {
	waiting, err := q.PromptsWaiting(ctx)
	if err != nil {
		return false, err
	}
	active := waiting > q.cfg.CopyDiscountThreshold
	if active {
		metrics.CopyDiscountActiveGauge.Set(1)
	} else {
		metrics.CopyDiscountActiveGauge.Set(0)
	}
	return active, nil
}

// CopyCost returns the current copy-round cost and whether the discount is
// active.
func (q *QueueService) CopyCost(ctx context.Context) (cost int64, discountActive bool, err error) {
	discountActive, err = q.IsCopyDiscountActive(ctx)
	if err != nil {
		return 0, false, err
	}
	if discountActive {
		return q.cfg.CopyCostDiscount, true, nil
	}
	return q.cfg.CopyCostNormal, false, nil
}

func (q *QueueService) PushPhraseset(ctx context.Context, phrasesetID string) error {
	if err := q.votingPool.Push(ctx, phrasesetID); err != nil {
		return err
	}
	if n, err := q.votingPool.Len(ctx); err == nil {
		metrics.QueueDepthGauge.WithLabelValues("phraseset").Set(float64(n))
	}
	return nil
}

func (q *QueueService) PhrasesetsWaiting(ctx context.Context) (int, error) {
	return q.votingPool.Len(ctx)
}

func (q *QueueService) HasPromptsAvailable(ctx context.Context) (bool, error) {
	n, err := q.PromptsWaiting(ctx)
	return n > 0, err
}

func (q *QueueService) HasPhrasesetsAvailable(ctx context.Context) (bool, error) {
	n, err := q.PhrasesetsWaiting(ctx)
	return n > 0, err
}
