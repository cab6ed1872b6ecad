package engine

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"

	"phrasepool.dev/config"
	phraseerrors "phrasepool.dev/errors"
	"phrasepool.dev/engine/lockmgr"
	"phrasepool.dev/metrics"
	"phrasepool.dev/notify"
)

func phrasesetLockKey(id uuid.UUID) string { return "phraseset:" + id.String() }

// VoteService implements C6: eligibility, priority selection, vote
// ingestion, timeline marking, and finalization. Deliberately does not
// expose a payout-claim operation — spec.md §4.8 keeps claim (an
// idempotent, separately-callable acknowledgement) out of the vote path,
// unlike original_source/backend/services/phraseset_service.py's merged
// "view collects payout" flow.
type VoteService struct {
	cfg          *config.Config
	nk           runtime.NakamaModule
	logger       runtime.Logger
	ledger       *Ledger
	locks        *lockmgr.Manager
	queue        *QueueService
	rounds       *RoundRepo
	phrasesets   *PhrasesetRepo
	votes        *VoteRepo
	activity     *ActivityRepo
	playerStates *PlayerStateRepo
	scoring      *ScoringService
}

func NewVoteService(
	cfg *config.Config,
	nk runtime.NakamaModule,
	logger runtime.Logger,
	ledger *Ledger,
	locks *lockmgr.Manager,
	queue *QueueService,
	rounds *RoundRepo,
	phrasesets *PhrasesetRepo,
	votes *VoteRepo,
	activity *ActivityRepo,
	playerStates *PlayerStateRepo,
	scoring *ScoringService,
) *VoteService {
	return &VoteService{
		cfg: cfg, nk: nk, logger: logger, ledger: ledger, locks: locks, queue: queue, rounds: rounds,
		phrasesets: phrasesets, votes: votes, activity: activity, playerStates: playerStates, scoring: scoring,
	}
}

// eligiblePhrasesets filters the voting pool to phrasesets voterID may vote
// on (spec.md §4.6): open/closing, voter isn't a contributor, voter hasn't
// already voted.
func (v *VoteService) eligiblePhrasesets(ctx context.Context, voterID string) ([]*Phraseset, error) {
	all, err := v.phrasesets.All(ctx)
	if err != nil {
		return nil, err
	}
	var eligible []*Phraseset
	for _, ps := range all {
		if ps.Status != PhrasesetOpen && ps.Status != PhrasesetClosing {
			continue
		}
		contributors, err := v.contributorsFor(ctx, ps)
		if err != nil {
			return nil, err
		}
		if contributors.Contains(voterID) {
			continue
		}
		_, found, err := v.votes.Get(ctx, ps.ID, voterID)
		if err != nil {
			return nil, err
		}
		if found {
			continue
		}
		eligible = append(eligible, ps)
	}
	return eligible, nil
}

func (v *VoteService) contributorsFor(ctx context.Context, ps *Phraseset) (Contributors, error) {
	prompt, _, err := v.rounds.Get(ctx, ps.PromptRoundID)
	if err != nil {
		return Contributors{}, err
	}
	copy1, _, err := v.rounds.Get(ctx, ps.CopyRound1ID)
	if err != nil {
		return Contributors{}, err
	}
	copy2, _, err := v.rounds.Get(ctx, ps.CopyRound2ID)
	if err != nil {
		return Contributors{}, err
	}
	c := Contributors{}
	if prompt != nil {
		c.PromptPlayerID = prompt.PlayerID
	}
	if copy1 != nil {
		c.Copy1PlayerID = copy1.PlayerID
	}
	if copy2 != nil {
		c.Copy2PlayerID = copy2.PlayerID
	}
	return c, nil
}

// selectPhraseset implements spec.md §4.6's three-tier selection priority:
// phrasesets at or past the fifth vote (closing soonest first), then ones
// at or past the third vote (same ordering), then everything else at
// random.
func selectPhraseset(eligible []*Phraseset) *Phraseset {
	var fivePlus, threeToFive, underThree []*Phraseset
	for _, ps := range eligible {
		switch {
		case ps.VoteCount >= 5:
			fivePlus = append(fivePlus, ps)
		case ps.VoteCount >= 3:
			threeToFive = append(threeToFive, ps)
		default:
			underThree = append(underThree, ps)
		}
	}

	if len(fivePlus) > 0 {
		sort.Slice(fivePlus, func(i, j int) bool {
			return timeOrZero(fivePlus[i].FifthVoteAt).Before(timeOrZero(fivePlus[j].FifthVoteAt))
		})
		return fivePlus[0]
	}
	if len(threeToFive) > 0 {
		sort.Slice(threeToFive, func(i, j int) bool {
			return timeOrZero(threeToFive[i].ThirdVoteAt).Before(timeOrZero(threeToFive[j].ThirdVoteAt))
		})
		return threeToFive[0]
	}
	if len(underThree) > 0 {
		return underThree[rand.Intn(len(underThree))]
	}
	return nil
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// StartVote implements spec.md §4.6's start-vote operation. Returns the
// round, the chosen phraseset, and its three phrases in randomized
// display order (the voter must not be able to infer original-vs-copy
// from slot position).
func (v *VoteService) StartVote(ctx context.Context, playerID string) (*Round, *Phraseset, []string, error) {
	var round *Round
	var chosen *Phraseset
	var shuffled []string
	err := v.ledger.WithPlayerLock(ctx, playerID, func() error {
		state, err := v.playerStates.Get(ctx, playerID)
		if err != nil {
			return err
		}
		if state.ActiveRoundID != nil {
			existing, found, err := v.rounds.Get(ctx, *state.ActiveRoundID)
			if err != nil {
				return err
			}
			if found && existing.Status == RoundActive && !existing.IsTimedOut(time.Now(), v.cfg.GracePeriod()) {
				return phraseerrors.ErrAlreadyInRound
			}
		}

		eligible, err := v.eligiblePhrasesets(ctx, playerID)
		if err != nil {
			return err
		}
		chosen = selectPhraseset(eligible)
		if chosen == nil {
			return phraseerrors.ErrNoPhrasesetsAvailable
		}

		update, _, err := v.ledger.Prepare(ctx, playerID, -v.cfg.VoteCost, TxVoteEntry, chosen.ID.String())
		if err != nil {
			return err
		}

		now := time.Now()
		r := &Round{
			ID:              uuid.New(),
			Tag:             RoundVote,
			Status:          RoundActive,
			PlayerID:        playerID,
			CreatedAt:       now,
			ExpiresAt:       now.Add(v.cfg.VoteRoundDuration()),
			Cost:            v.cfg.VoteCost,
			VotePhrasesetID: chosen.ID,
		}
		roundWrite, err := v.rounds.BuildWrite(r)
		if err != nil {
			return err
		}

		id := r.ID
		state.ActiveRoundID = &id
		state.ActiveRoundTag = RoundVote
		stateWrite, err := v.playerStates.BuildWrite(state)
		if err != nil {
			return err
		}

		pending := NewPendingWrites()
		pending.AddStorageWrite(roundWrite)
		pending.AddStorageWrite(stateWrite)
		pending.AddWalletUpdate(update)
		if err := pending.Commit(ctx, v.nk); err != nil {
			return err
		}
		metrics.LedgerTransactionsTotal.WithLabelValues(string(TxVoteEntry)).Inc()
		metrics.RoundsStartedTotal.WithLabelValues(string(RoundVote)).Inc()

		phrases := []string{chosen.Original, chosen.Copy1, chosen.Copy2}
		rand.Shuffle(len(phrases), func(i, j int) { phrases[i], phrases[j] = phrases[j], phrases[i] })

		round = r
		shuffled = phrases
		return nil
	})
	return round, chosen, shuffled, err
}

// SubmitVote implements spec.md §4.6's submit-vote operation: records the
// ballot, advances the phraseset's vote count and timeline marks under the
// phraseset's own advisory lock (serialized independently of any player
// lock, since many players vote on the same phraseset concurrently), and
// triggers finalization once a finalize condition is met.
func (v *VoteService) SubmitVote(ctx context.Context, playerID string, roundID uuid.UUID, votedPhrase string) (correct bool, payout int64, originalPhrase string, yourChoice string, err error) {
	round, found, err := v.rounds.Get(ctx, roundID)
	if err != nil {
		return false, 0, "", "", err
	}
	if !found || round.PlayerID != playerID || round.Tag != RoundVote {
		return false, 0, "", "", phraseerrors.ErrRoundNotFound
	}
	if round.Status != RoundActive {
		return false, 0, "", "", phraseerrors.ErrRoundExpired
	}
	if round.IsTimedOut(time.Now(), v.cfg.GracePeriod()) {
		return false, 0, "", "", phraseerrors.ErrRoundExpired
	}

	unlock, err := v.locks.Acquire(ctx, phrasesetLockKey(round.VotePhrasesetID))
	if err != nil {
		return false, 0, "", "", err
	}
	defer unlock()

	ps, found, err := v.phrasesets.Get(ctx, round.VotePhrasesetID)
	if err != nil {
		return false, 0, "", "", err
	}
	if !found || (ps.Status != PhrasesetOpen && ps.Status != PhrasesetClosing) {
		return false, 0, "", "", phraseerrors.ErrRoundNotFound
	}

	normalized := normalize(votedPhrase)
	var choiceMatched string
	correct = normalized == normalize(ps.Original)
	for _, choice := range []string{ps.Original, ps.Copy1, ps.Copy2} {
		if normalize(choice) == normalized {
			choiceMatched = choice
			break
		}
	}
	if choiceMatched == "" {
		return false, 0, "", "", phraseerrors.ErrInvalidChoice
	}
	yourChoice = choiceMatched
	originalPhrase = ps.Original

	if correct {
		payout = v.cfg.VotePayoutCorrect
		if _, err := v.ledger.Apply(ctx, playerID, payout, TxVotePayout, ps.ID.String(), false); err != nil {
			return false, 0, "", "", err
		}
	}

	now := time.Now()
	vote := &Vote{
		ID:          uuid.New(),
		PhrasesetID: ps.ID,
		VoterID:     playerID,
		VotedPhrase: votedPhrase,
		Correct:     correct,
		Payout:      payout,
		CreatedAt:   now,
	}
	if err := v.votes.Put(ctx, vote); err != nil {
		return false, 0, "", "", err
	}

	ps.VoteCount++
	switch ps.VoteCount {
	case 3:
		ps.ThirdVoteAt = &now
	case 5:
		ps.FifthVoteAt = &now
		closes := now.Add(v.cfg.FifthVoteCloseDuration())
		ps.ClosesAt = &closes
	}
	if ps.VoteCount >= 3 {
		ps.Status = PhrasesetClosing
	}
	if err := v.phrasesets.Put(ctx, ps); err != nil {
		return false, 0, "", "", err
	}

	round.Status = RoundSubmitted
	round.SubmittedAt = &now
	if err := v.rounds.Put(ctx, round); err != nil {
		return false, 0, "", "", err
	}

	state, err := v.playerStates.Get(ctx, playerID)
	if err == nil && state.ActiveRoundID != nil && *state.ActiveRoundID == roundID {
		state.ActiveRoundID = nil
		state.ActiveRoundTag = ""
		_ = v.playerStates.Put(ctx, state)
	}

	if err := v.activity.Append(ctx, ps.PromptRoundID, ActivityEntry{
		PhrasesetID:   ps.ID,
		PromptRoundID: ps.PromptRoundID,
		Kind:          ActVoteCast,
		CreatedAt:     now,
	}); err != nil {
		return false, 0, "", "", err
	}

	if trigger, ready := v.finalizeTrigger(ps, now); ready {
		if err := v.finalizeLocked(ctx, ps, trigger); err != nil {
			return false, 0, "", "", err
		}
	}
	return correct, payout, originalPhrase, yourChoice, nil
}

// shouldFinalize implements spec.md §4.7's finalize conditions.
func (v *VoteService) shouldFinalize(ps *Phraseset, now time.Time) bool {
	_, ready := v.finalizeTrigger(ps, now)
	return ready
}

// finalizeTrigger reports which of spec.md §4.7's three finalize
// conditions is met, if any, for use both as a gate and as a metrics label.
func (v *VoteService) finalizeTrigger(ps *Phraseset, now time.Time) (string, bool) {
	if ps.VoteCount >= v.cfg.VoteFinalizeMax {
		return "max_votes", true
	}
	if ps.FifthVoteAt != nil && now.Sub(*ps.FifthVoteAt) >= v.cfg.FifthVoteCloseDuration() {
		return "fifth_vote_close", true
	}
	if ps.VoteCount >= 3 && ps.FifthVoteAt == nil && ps.ThirdVoteAt != nil &&
		now.Sub(*ps.ThirdVoteAt) >= time.Duration(v.cfg.ThirdVoteTimeoutSeconds)*time.Second {
		return "third_vote_timeout", true
	}
	return "", false
}

// PollFinalize is invoked by the Timer Service (C10) to sweep closing
// phrasesets whose finalize window elapsed without another vote arriving
// to trigger SubmitVote's inline check.
func (v *VoteService) PollFinalize(ctx context.Context) error {
	all, err := v.phrasesets.All(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, ps := range all {
		if ps.Status != PhrasesetClosing {
			continue
		}
		if !v.shouldFinalize(ps, now) {
			continue
		}
		unlock, err := v.locks.Acquire(ctx, phrasesetLockKey(ps.ID))
		if err != nil {
			return err
		}
		fresh, found, err := v.phrasesets.Get(ctx, ps.ID)
		if err != nil {
			unlock()
			return err
		}
		trigger, ready := v.finalizeTrigger(fresh, now)
		if !found || fresh.Status != PhrasesetClosing || !ready {
			unlock()
			continue
		}
		err = v.finalizeLocked(ctx, fresh, trigger)
		unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// finalizeLocked computes payouts and disburses them. Called with the
// phraseset's advisory lock already held. Idempotent: a phraseset already
// PhrasesetFinalized is a no-op, so a concurrent SubmitVote-triggered call
// racing a PollFinalize sweep can never double-pay.
func (v *VoteService) finalizeLocked(ctx context.Context, ps *Phraseset, trigger string) error {
	if ps.Status == PhrasesetFinalized {
		return nil
	}

	ps.Status = PhrasesetClosed
	if err := v.phrasesets.Put(ctx, ps); err != nil {
		return err
	}

	votes, err := v.votes.ForPhraseset(ctx, ps.ID)
	if err != nil {
		return err
	}
	contributors, err := v.contributorsFor(ctx, ps)
	if err != nil {
		return err
	}
	payouts := v.scoring.CalculatePayouts(ps, votes, contributors)

	for _, p := range payouts {
		if p.Payout <= 0 || p.PlayerID == "" {
			continue
		}
		if _, err := v.ledger.Apply(ctx, p.PlayerID, p.Payout, TxPrizePayout, ps.ID.String(), false); err != nil {
			return err
		}
		if err := notify.SendPhrasesetFinalized(ctx, v.nk, p.PlayerID, ps.ID.String(), p.Role, p.Payout); err != nil {
			LogError(ctx, v.logger, "notify phraseset finalized failed", err, map[string]interface{}{"player_id": p.PlayerID, "phraseset_id": ps.ID.String()})
		}
	}

	now := time.Now()
	ps.Status = PhrasesetFinalized
	ps.FinalizedAt = &now
	if err := v.phrasesets.Put(ctx, ps); err != nil {
		return err
	}

	promptRound, found, err := v.rounds.Get(ctx, ps.PromptRoundID)
	if err != nil {
		return err
	}
	if found {
		promptRound.PhrasesetStatus = PRFinalized
		if err := v.rounds.Put(ctx, promptRound); err != nil {
			return err
		}
	}

	if err := v.activity.Append(ctx, ps.PromptRoundID, ActivityEntry{
		PhrasesetID:   ps.ID,
		PromptRoundID: ps.PromptRoundID,
		Kind:          ActFinalized,
		CreatedAt:     now,
	}); err != nil {
		return err
	}
	metrics.PhrasesetsFinalizedTotal.WithLabelValues(trigger).Inc()
	return nil
}
