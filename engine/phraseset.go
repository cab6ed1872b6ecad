package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"phrasepool.dev/config"
	"phrasepool.dev/metrics"
)

// PhrasesetBuilder implements C5: materializes a Phraseset from a prompt
// round's first two submitted copies (spec.md §4.5).
type PhrasesetBuilder struct {
	cfg        *config.Config
	rounds     *RoundRepo
	phrasesets *PhrasesetRepo
	activity   *ActivityRepo
	queue      *QueueService
}

func NewPhrasesetBuilder(cfg *config.Config, rounds *RoundRepo, phrasesets *PhrasesetRepo, activity *ActivityRepo, queue *QueueService) *PhrasesetBuilder {
	return &PhrasesetBuilder{cfg: cfg, rounds: rounds, phrasesets: phrasesets, activity: activity, queue: queue}
}

// BuildIfReady is triggered on every submitted copy round. It is a no-op
// unless this is exactly the second submitted copy for promptRoundID; a
// third copy arriving afterward (a race on a retried abandoned prompt) is
// also a no-op, since the prompt round's PhrasesetStatus is already
// PRActive or PRFinalized by then.
func (b *PhrasesetBuilder) BuildIfReady(ctx context.Context, promptRoundID uuid.UUID) error {
	promptRound, found, err := b.rounds.Get(ctx, promptRoundID)
	if err != nil || !found {
		return err
	}
	if promptRound.PhrasesetStatus != PRWaitingCopies && promptRound.PhrasesetStatus != PRWaitingCopy1 {
		return nil
	}

	copies, err := b.rounds.SubmittedCopiesForPrompt(ctx, promptRoundID)
	if err != nil {
		return err
	}
	if len(copies) < 2 {
		return nil
	}
	copy1, copy2 := copies[0], copies[1]

	now := time.Now()
	ps := &Phraseset{
		ID:                 uuid.New(),
		PromptRoundID:      promptRoundID,
		CopyRound1ID:       copy1.ID,
		CopyRound2ID:       copy2.ID,
		PromptText:         promptRound.PromptText,
		Original:           promptRound.SubmittedPhrase,
		Copy1:              copy1.CopyPhrase,
		Copy2:              copy2.CopyPhrase,
		Status:             PhrasesetOpen,
		VoteCount:          0,
		CreatedAt:          now,
		TotalPool:          b.cfg.PhrasesetPrizePool + copy1.SystemContribution + copy2.SystemContribution,
		SystemContribution: copy1.SystemContribution + copy2.SystemContribution,
	}
	if err := b.phrasesets.Put(ctx, ps); err != nil {
		return err
	}

	promptRound.PhrasesetStatus = PRActive
	promptRound.Copy1PlayerID = copy1.PlayerID
	promptRound.Copy2PlayerID = copy2.PlayerID
	promptRound.PhrasesetID = ps.ID
	if err := b.rounds.Put(ctx, promptRound); err != nil {
		return err
	}

	if err := b.queue.PushPhraseset(ctx, ps.ID.String()); err != nil {
		return err
	}

	if err := b.activity.AttachPhraseset(ctx, promptRoundID, ps.ID); err != nil {
		return err
	}
	if err := b.activity.Append(ctx, promptRoundID, ActivityEntry{
		PhrasesetID:   ps.ID,
		PromptRoundID: promptRoundID,
		Kind:          ActPhrasesetCreated,
		CreatedAt:     now,
	}); err != nil {
		return err
	}

	metrics.PhrasesetsCreatedTotal.Inc()
	return nil
}
