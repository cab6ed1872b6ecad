package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"

	"phrasepool.dev/config"
	phraseerrors "phrasepool.dev/errors"
	"phrasepool.dev/engine/lockmgr"
	"phrasepool.dev/metrics"
	"phrasepool.dev/notify"
)

// PromptProvider is the read-only prompt library contract (spec.md §1's
// "static prompt library seeding" is an external collaborator; the core
// only reads and counts usage against it, grounded on
// storage/prompts.go's lib/pq-backed implementation).
type PromptProvider interface {
	RandomEnabled(ctx context.Context) (id uuid.UUID, text string, found bool, err error)
	IncrementUsage(ctx context.Context, id uuid.UUID) error
}

// RoundCoordinator implements C4: round lifecycle, precondition
// enforcement, and the expiry/grace/abandonment-cooldown policy.
type RoundCoordinator struct {
	cfg          *config.Config
	nk           runtime.NakamaModule
	logger       runtime.Logger
	ledger       *Ledger
	locks        *lockmgr.Manager
	queue        *QueueService
	validator    *Validator
	rounds       *RoundRepo
	playerStates *PlayerStateRepo
	abandonments *AbandonmentRepo
	activity     *ActivityRepo
	prompts      PromptProvider
	builder      *PhrasesetBuilder
}

func NewRoundCoordinator(
	cfg *config.Config,
	nk runtime.NakamaModule,
	logger runtime.Logger,
	ledger *Ledger,
	locks *lockmgr.Manager,
	queue *QueueService,
	validator *Validator,
	rounds *RoundRepo,
	playerStates *PlayerStateRepo,
	abandonments *AbandonmentRepo,
	activity *ActivityRepo,
	prompts PromptProvider,
	builder *PhrasesetBuilder,
) *RoundCoordinator {
	return &RoundCoordinator{
		cfg: cfg, nk: nk, logger: logger, ledger: ledger, locks: locks, queue: queue, validator: validator,
		rounds: rounds, playerStates: playerStates, abandonments: abandonments, activity: activity,
		prompts: prompts, builder: builder,
	}
}

func (c *RoundCoordinator) setActiveRound(state *PlayerState, id *uuid.UUID, tag RoundTag) {
	state.ActiveRoundID = id
	state.ActiveRoundTag = tag
}

// resolveActiveRound returns a player's active round, lazily resolving
// timeout first (spec.md §4.4: "evaluated on any read of the round").
// A nil return with nil error means the player has no active round.
func (c *RoundCoordinator) resolveActiveRound(ctx context.Context, playerID string) (*Round, *PlayerState, error) {
	state, err := c.playerStates.Get(ctx, playerID)
	if err != nil {
		return nil, nil, err
	}
	if state.ActiveRoundID == nil {
		return nil, state, nil
	}
	round, found, err := c.rounds.Get(ctx, *state.ActiveRoundID)
	if err != nil {
		return nil, nil, err
	}
	if !found || round.Status != RoundActive {
		c.setActiveRound(state, nil, "")
		if err := c.playerStates.Put(ctx, state); err != nil {
			return nil, nil, err
		}
		return nil, state, nil
	}
	if round.IsTimedOut(time.Now(), c.cfg.GracePeriod()) {
		if err := c.handleTimeoutLocked(ctx, round, state); err != nil {
			return nil, nil, err
		}
		return nil, state, nil
	}
	return round, state, nil
}

// GetCurrentRound exposes the resolved active round for GetCurrentRound RPC
// and GetRoundAvailability.
func (c *RoundCoordinator) GetCurrentRound(ctx context.Context, playerID string) (*Round, error) {
	var result *Round
	err := c.ledger.WithPlayerLock(ctx, playerID, func() error {
		round, _, err := c.resolveActiveRound(ctx, playerID)
		result = round
		return err
	})
	return result, err
}

// Availability is the per-player read shape behind GetRoundAvailability:
// whether each of the three round types is presently startable, alongside
// the player's current active round if any (spec.md §6).
type Availability struct {
	CanPrompt      bool
	CanCopy        bool
	CanVote        bool
	CurrentRoundID *uuid.UUID
}

// GetAvailability reports what playerID can start right now, without
// mutating anything beyond resolveActiveRound's usual lazy timeout cleanup.
func (c *RoundCoordinator) GetAvailability(ctx context.Context, playerID string) (*Availability, error) {
	var out *Availability
	err := c.ledger.WithPlayerLock(ctx, playerID, func() error {
		active, _, err := c.resolveActiveRound(ctx, playerID)
		if err != nil {
			return err
		}
		av := &Availability{}
		if active != nil {
			id := active.ID
			av.CurrentRoundID = &id
			out = av
			return nil
		}

		outstanding, err := c.rounds.OutstandingPromptCount(ctx, playerID)
		if err != nil {
			return err
		}
		av.CanPrompt = outstanding < c.cfg.MaxOutstandingPrompts

		hasPrompts, err := c.queue.HasPromptsAvailable(ctx)
		if err != nil {
			return err
		}
		av.CanCopy = hasPrompts

		hasPhrasesets, err := c.queue.HasPhrasesetsAvailable(ctx)
		if err != nil {
			return err
		}
		av.CanVote = hasPhrasesets

		out = av
		return nil
	})
	return out, err
}

// StartPromptRound implements spec.md §4.4's Start-prompt operation.
func (c *RoundCoordinator) StartPromptRound(ctx context.Context, playerID string) (*Round, error) {
	var result *Round
	err := c.ledger.WithPlayerLock(ctx, playerID, func() error {
		active, state, err := c.resolveActiveRound(ctx, playerID)
		if err != nil {
			return err
		}
		if active != nil {
			return phraseerrors.ErrAlreadyInRound
		}

		outstanding, err := c.rounds.OutstandingPromptCount(ctx, playerID)
		if err != nil {
			return err
		}
		if outstanding >= c.cfg.MaxOutstandingPrompts {
			return phraseerrors.ErrMaxOutstandingPrompts
		}

		promptID, promptText, found, err := c.prompts.RandomEnabled(ctx)
		if err != nil {
			return err
		}
		if !found {
			return phraseerrors.ErrNoPromptsEnabled
		}

		now := time.Now()
		round := &Round{
			ID:              uuid.New(),
			Tag:             RoundPrompt,
			Status:          RoundActive,
			PlayerID:        playerID,
			CreatedAt:       now,
			ExpiresAt:       now.Add(c.cfg.PromptRoundDuration()),
			Cost:            c.cfg.PromptCost,
			PromptLibraryID: promptID,
			PromptText:      promptText,
			PhrasesetStatus: PRWaitingCopies,
		}

		if err := c.commitNewRound(ctx, round, state, TxPromptEntry); err != nil {
			return err
		}
		if err := c.prompts.IncrementUsage(ctx, promptID); err != nil {
			return err
		}
		metrics.RoundsStartedTotal.WithLabelValues(string(RoundPrompt)).Inc()
		result = round
		return nil
	})
	return result, err
}

// commitNewRound debits the round's cost and writes the round + player
// state pointer atomically via PendingWrites, bundling the ledger mutation
// and storage writes into one MultiUpdate commit (spec.md §5: "a
// debited-but-uncreated round is an inconsistency the implementation must
// avoid").
func (c *RoundCoordinator) commitNewRound(ctx context.Context, round *Round, state *PlayerState, kind TransactionKind) error {
	update, _, err := c.ledger.Prepare(ctx, round.PlayerID, -round.Cost, kind, round.ID.String())
	if err != nil {
		return err
	}

	roundWrite, err := c.rounds.BuildWrite(round)
	if err != nil {
		return err
	}

	id := round.ID
	c.setActiveRound(state, &id, round.Tag)
	stateWrite, err := c.playerStates.BuildWrite(state)
	if err != nil {
		return err
	}

	pending := NewPendingWrites()
	pending.AddStorageWrite(roundWrite)
	pending.AddStorageWrite(stateWrite)
	pending.AddWalletUpdate(update)

	if err := pending.Commit(ctx, c.nk); err != nil {
		return err
	}
	metrics.LedgerTransactionsTotal.WithLabelValues(string(kind)).Inc()
	return nil
}

// SubmitPromptPhrase implements spec.md §4.4's Submit-prompt operation.
func (c *RoundCoordinator) SubmitPromptPhrase(ctx context.Context, playerID string, roundID uuid.UUID, phrase string) (string, error) {
	var normalized string
	err := c.ledger.WithPlayerLock(ctx, playerID, func() error {
		round, found, err := c.rounds.Get(ctx, roundID)
		if err != nil {
			return err
		}
		if !found || round.Tag != RoundPrompt || round.PlayerID != playerID {
			return phraseerrors.ErrRoundNotFound
		}
		if round.Status != RoundActive {
			return phraseerrors.ErrRoundExpired
		}
		if round.IsTimedOut(time.Now(), c.cfg.GracePeriod()) {
			state, err := c.playerStates.Get(ctx, playerID)
			if err != nil {
				return err
			}
			if err := c.handleTimeoutLocked(ctx, round, state); err != nil {
				return err
			}
			return phraseerrors.ErrRoundExpired
		}

		valid, err := c.validator.ValidatePrompt(ctx, phrase)
		if err != nil {
			return err
		}
		normalized = valid

		round.SubmittedPhrase = valid
		round.Status = RoundSubmitted
		if err := c.rounds.Put(ctx, round); err != nil {
			return err
		}

		state, err := c.playerStates.Get(ctx, playerID)
		if err != nil {
			return err
		}
		if state.ActiveRoundID != nil && *state.ActiveRoundID == round.ID {
			c.setActiveRound(state, nil, "")
			if err := c.playerStates.Put(ctx, state); err != nil {
				return err
			}
		}

		if err := c.queue.PushPrompt(ctx, round.ID.String()); err != nil {
			return err
		}
		return c.activity.Append(ctx, round.ID, ActivityEntry{
			PromptRoundID: round.ID,
			Kind:          ActPromptCreated,
			PlayerID:      playerID,
			CreatedAt:     time.Now(),
		})
	})
	return normalized, err
}

// StartCopyRound implements spec.md §4.4's Start-copy operation.
func (c *RoundCoordinator) StartCopyRound(ctx context.Context, playerID string) (*Round, *Round, bool, error) {
	var newRound *Round
	var promptRound *Round
	var discountActiveOut bool
	err := c.ledger.WithPlayerLock(ctx, playerID, func() error {
		active, state, err := c.resolveActiveRound(ctx, playerID)
		if err != nil {
			return err
		}
		if active != nil {
			return phraseerrors.ErrAlreadyInRound
		}

		cost, discountActive, err := c.queue.CopyCost(ctx)
		if err != nil {
			return err
		}

		// Each queued prompt is examined at most once per call; ineligible
		// ones are pushed back, so without this bound a queue holding only
		// ineligible prompts would be drawn from forever.
		waiting, err := c.queue.PromptsWaiting(ctx)
		if err != nil {
			return err
		}
		var chosen *Round
		for attempt := 0; attempt < waiting; attempt++ {
			promptRoundID, ok, err := c.queue.PopPrompt(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return phraseerrors.ErrNoPromptsAvailable
			}
			id, parseErr := uuid.Parse(promptRoundID)
			if parseErr != nil {
				continue
			}
			candidate, found, err := c.rounds.Get(ctx, id)
			if err != nil {
				return err
			}
			if !found || candidate.Tag != RoundPrompt || candidate.Status != RoundSubmitted {
				continue
			}
			if candidate.PlayerID == playerID {
				if err := c.queue.PushPrompt(ctx, promptRoundID); err != nil {
					return err
				}
				continue
			}
			abandoned, err := c.abandonments.IsAbandoned(ctx, playerID, id, time.Now(), c.cfg.AbandonmentCooldown())
			if err != nil {
				return err
			}
			if abandoned {
				if err := c.queue.PushPrompt(ctx, promptRoundID); err != nil {
					return err
				}
				continue
			}
			if candidate.PhrasesetStatus == PRWaitingCopy1 && candidate.Copy1PlayerID == playerID {
				if err := c.queue.PushPrompt(ctx, promptRoundID); err != nil {
					return err
				}
				continue
			}
			chosen = candidate
			break
		}
		if chosen == nil {
			return phraseerrors.ErrNoPromptsAvailable
		}

		systemContribution := int64(0)
		if discountActive {
			systemContribution = c.cfg.CopyCostNormal - c.cfg.CopyCostDiscount
		}

		now := time.Now()
		round := &Round{
			ID:                 uuid.New(),
			Tag:                RoundCopy,
			Status:             RoundActive,
			PlayerID:           playerID,
			CreatedAt:          now,
			ExpiresAt:          now.Add(c.cfg.CopyRoundDuration()),
			Cost:               cost,
			PromptRoundID:      chosen.ID,
			OriginalPhrase:     chosen.SubmittedPhrase,
			SystemContribution: systemContribution,
		}

		if err := c.commitNewRound(ctx, round, state, TxCopyEntry); err != nil {
			// Compensating push-back: the prompt was popped for this
			// attempt but the round could not be created (spec.md §5's
			// ordering guarantee on queue pop vs. debit).
			_ = c.queue.PushPrompt(ctx, chosen.ID.String())
			return err
		}

		if chosen.PhrasesetStatus == PRWaitingCopies {
			chosen.PhrasesetStatus = PRWaitingCopy1
			chosen.Copy1PlayerID = playerID
			if err := c.rounds.Put(ctx, chosen); err != nil {
				return err
			}
			// Pop is destructive: this prompt still needs a second,
			// independent copy, so put it back for the next drawer
			// (spec.md §4.4's "other-copy if already present" — on this
			// draw it isn't yet).
			if err := c.queue.PushPrompt(ctx, chosen.ID.String()); err != nil {
				return err
			}
		}

		metrics.RoundsStartedTotal.WithLabelValues(string(RoundCopy)).Inc()
		newRound = round
		promptRound = chosen
		discountActiveOut = discountActive
		return nil
	})
	return newRound, promptRound, discountActiveOut, err
}

// SubmitCopyPhrase implements spec.md §4.4's Submit-copy operation,
// delegating phraseset materialization to C5 after the copy is recorded.
func (c *RoundCoordinator) SubmitCopyPhrase(ctx context.Context, playerID string, roundID uuid.UUID, phrase string, aiAssistUsed bool) (string, error) {
	var normalized string
	err := c.ledger.WithPlayerLock(ctx, playerID, func() error {
		round, found, err := c.rounds.Get(ctx, roundID)
		if err != nil {
			return err
		}
		if !found || round.Tag != RoundCopy || round.PlayerID != playerID {
			return phraseerrors.ErrRoundNotFound
		}
		if round.Status != RoundActive {
			return phraseerrors.ErrRoundExpired
		}
		if round.IsTimedOut(time.Now(), c.cfg.GracePeriod()) {
			state, err := c.playerStates.Get(ctx, playerID)
			if err != nil {
				return err
			}
			if err := c.handleTimeoutLocked(ctx, round, state); err != nil {
				return err
			}
			return phraseerrors.ErrRoundExpired
		}

		promptRound, found, err := c.rounds.Get(ctx, round.PromptRoundID)
		if err != nil {
			return err
		}
		if !found {
			return phraseerrors.ErrRoundNotFound
		}

		existingCopies, err := c.rounds.SubmittedCopiesForPrompt(ctx, promptRound.ID)
		if err != nil {
			return err
		}
		otherCopyPhrase := ""
		for _, cp := range existingCopies {
			if cp.PlayerID != playerID {
				otherCopyPhrase = cp.CopyPhrase
			}
		}

		valid, err := c.validator.ValidateCopy(ctx, phrase, promptRound.SubmittedPhrase, otherCopyPhrase, promptRound.PromptText)
		if err != nil {
			return err
		}
		normalized = valid

		round.CopyPhrase = valid
		round.Status = RoundSubmitted
		now := time.Now()
		round.SubmittedAt = &now
		round.AIAssistUsed = aiAssistUsed
		if err := c.rounds.Put(ctx, round); err != nil {
			return err
		}
		if aiAssistUsed {
			metrics.AIAssistTotal.Inc()
		}

		state, err := c.playerStates.Get(ctx, playerID)
		if err != nil {
			return err
		}
		if state.ActiveRoundID != nil && *state.ActiveRoundID == round.ID {
			c.setActiveRound(state, nil, "")
			if err := c.playerStates.Put(ctx, state); err != nil {
				return err
			}
		}

		kind := ActCopy1Submitted
		if len(existingCopies) > 0 {
			kind = ActCopy2Submitted
		}
		if err := c.activity.Append(ctx, promptRound.ID, ActivityEntry{
			PromptRoundID: promptRound.ID,
			Kind:          kind,
			PlayerID:      playerID,
			CreatedAt:     time.Now(),
		}); err != nil {
			return err
		}

		return c.builder.BuildIfReady(ctx, promptRound.ID)
	})
	return normalized, err
}

// handleTimeoutLocked runs the timeout side effects for round, assuming the
// caller already holds round.PlayerID's lock.
func (c *RoundCoordinator) handleTimeoutLocked(ctx context.Context, round *Round, state *PlayerState) error {
	switch round.Tag {
	case RoundPrompt:
		round.Status = RoundExpired
		round.PhrasesetStatus = PRAbandoned
		if err := c.queue.RemovePromptSpecific(ctx, round.ID.String()); err != nil {
			return err
		}
		if err := c.refundRoundTimeout(ctx, round, state, RoundExpired); err != nil {
			return err
		}
	case RoundCopy:
		round.Status = RoundAbandoned
		rec := &AbandonmentRecord{PlayerID: round.PlayerID, PromptRoundID: round.PromptRoundID, AbandonedAt: time.Now()}
		if err := c.refundRoundTimeoutWithExtra(ctx, round, state, RoundAbandoned, rec); err != nil {
			return err
		}
		if err := c.queue.PushPrompt(ctx, round.PromptRoundID.String()); err != nil {
			return err
		}
	case RoundVote:
		round.Status = RoundExpired
		if err := c.clearRoundNoRefund(ctx, round, state); err != nil {
			return err
		}
	}
	metrics.RoundsTimedOutTotal.WithLabelValues(string(round.Tag), string(round.Status)).Inc()
	return nil
}

func refundAmount(cost int64) int64 {
	return cost - cost/10
}

func (c *RoundCoordinator) refundRoundTimeout(ctx context.Context, round *Round, state *PlayerState, finalStatus RoundStatus) error {
	return c.refundRoundTimeoutWithExtra(ctx, round, state, finalStatus, nil)
}

func (c *RoundCoordinator) refundRoundTimeoutWithExtra(ctx context.Context, round *Round, state *PlayerState, finalStatus RoundStatus, abandonment *AbandonmentRecord) error {
	refund := refundAmount(round.Cost)
	update, _, err := c.ledger.Prepare(ctx, round.PlayerID, refund, TxRefund, round.ID.String())
	if err != nil {
		return err
	}
	roundWrite, err := c.rounds.BuildWrite(round)
	if err != nil {
		return err
	}

	pending := NewPendingWrites()
	pending.AddStorageWrite(roundWrite)
	pending.AddWalletUpdate(update)

	if state.ActiveRoundID != nil && *state.ActiveRoundID == round.ID {
		c.setActiveRound(state, nil, "")
		stateWrite, err := c.playerStates.BuildWrite(state)
		if err != nil {
			return err
		}
		pending.AddStorageWrite(stateWrite)
	}
	if abandonment != nil {
		abandonWrite, err := c.abandonments.BuildWrite(abandonment)
		if err != nil {
			return err
		}
		pending.AddStorageWrite(abandonWrite)
	}

	if err := pending.Commit(ctx, c.nk); err != nil {
		return err
	}
	metrics.LedgerTransactionsTotal.WithLabelValues(string(TxRefund)).Inc()

	balance, balErr := c.ledger.Balance(ctx, round.PlayerID)
	if balErr == nil {
		if err := notify.SendWalletDelta(ctx, c.nk, round.PlayerID, string(TxRefund), refund, balance); err != nil {
			LogError(ctx, c.logger, "notify refund failed", err, map[string]interface{}{"round_id": round.ID.String()})
		}
	}
	return nil
}

func (c *RoundCoordinator) clearRoundNoRefund(ctx context.Context, round *Round, state *PlayerState) error {
	if err := c.rounds.Put(ctx, round); err != nil {
		return err
	}
	if state.ActiveRoundID != nil && *state.ActiveRoundID == round.ID {
		c.setActiveRound(state, nil, "")
		return c.playerStates.Put(ctx, state)
	}
	return nil
}

// SweepExpiredRounds is the Timer Service's (C10) periodic pass over rounds
// no one has read since they expired — resolveActiveRound only catches
// timeouts lazily, on the owning player's next call, so an abandoned round
// with no further activity would otherwise sit unrefunded and the prompt
// it's attached to would never requeue.
func (c *RoundCoordinator) SweepExpiredRounds(ctx context.Context) error {
	all, err := c.rounds.All(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	grace := c.cfg.GracePeriod()
	for _, round := range all {
		if round.Status != RoundActive || !round.IsTimedOut(now, grace) {
			continue
		}
		playerID := round.PlayerID
		err := c.ledger.WithPlayerLock(ctx, playerID, func() error {
			fresh, found, err := c.rounds.Get(ctx, round.ID)
			if err != nil || !found || fresh.Status != RoundActive || !fresh.IsTimedOut(time.Now(), grace) {
				return err
			}
			state, err := c.playerStates.Get(ctx, playerID)
			if err != nil {
				return err
			}
			return c.handleTimeoutLocked(ctx, fresh, state)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
