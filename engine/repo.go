package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"
)

// RoundRepo persists Round records.
type RoundRepo struct{ store *ObjectStore }

func NewRoundRepo(store *ObjectStore) *RoundRepo { return &RoundRepo{store: store} }

func (r *RoundRepo) Get(ctx context.Context, id uuid.UUID) (*Round, bool, error) {
	var round Round
	version, found, err := r.store.get(ctx, collRounds, id.String(), &round)
	if err != nil || !found {
		return nil, found, err
	}
	round.Version = version
	return &round, true, nil
}

func (r *RoundRepo) Put(ctx context.Context, round *Round) error {
	version, err := r.store.put(ctx, collRounds, round.ID.String(), round, round.Version)
	if err != nil {
		return err
	}
	round.Version = version
	return nil
}

// BuildWrite produces a storage write for round without performing it, for
// callers bundling it into a PendingWrites commit alongside a wallet update.
func (r *RoundRepo) BuildWrite(round *Round) (*runtime.StorageWrite, error) {
	return r.store.writeOp(collRounds, round.ID.String(), round, round.Version)
}

func (r *RoundRepo) All(ctx context.Context) ([]*Round, error) {
	objects, err := r.store.listAll(ctx, collRounds)
	if err != nil {
		return nil, err
	}
	rounds := make([]*Round, 0, len(objects))
	for _, obj := range objects {
		var round Round
		if err := unmarshalInto(obj.Value, &round); err != nil {
			return nil, err
		}
		round.Version = obj.Version
		rounds = append(rounds, &round)
	}
	return rounds, nil
}

// SubmittedCopiesForPrompt returns submitted copy rounds for a prompt round,
// ordered by submission time (oldest first) — the order _check_and_create_wordset
// relies on to pick "the first two".
func (r *RoundRepo) SubmittedCopiesForPrompt(ctx context.Context, promptRoundID uuid.UUID) ([]*Round, error) {
	all, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	var copies []*Round
	for _, round := range all {
		if round.Tag == RoundCopy && round.PromptRoundID == promptRoundID && round.Status == RoundSubmitted {
			copies = append(copies, round)
		}
	}
	sortRoundsBySubmission(copies)
	return copies, nil
}

func sortRoundsBySubmission(rounds []*Round) {
	for i := 1; i < len(rounds); i++ {
		for j := i; j > 0; j-- {
			a, b := rounds[j-1], rounds[j]
			at, bt := a.CreatedAt, b.CreatedAt
			if a.SubmittedAt != nil {
				at = *a.SubmittedAt
			}
			if b.SubmittedAt != nil {
				bt = *b.SubmittedAt
			}
			if !at.After(bt) {
				break
			}
			rounds[j-1], rounds[j] = rounds[j], rounds[j-1]
		}
	}
}

// ActiveForPlayer returns a player's currently active round, if any
// (spec.md §8 invariant 3: at most one).
func (r *RoundRepo) ActiveForPlayer(ctx context.Context, playerID string) (*Round, error) {
	all, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	for _, round := range all {
		if round.PlayerID == playerID && round.Status == RoundActive {
			return round, nil
		}
	}
	return nil, nil
}

// OutstandingPromptCount counts a player's prompt rounds whose phraseset has
// not yet finalized or abandoned (spec.md §8 invariant 4).
func (r *RoundRepo) OutstandingPromptCount(ctx context.Context, playerID string) (int, error) {
	all, err := r.All(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, round := range all {
		if round.Tag != RoundPrompt || round.PlayerID != playerID {
			continue
		}
		switch round.PhrasesetStatus {
		case PRWaitingCopies, PRWaitingCopy1, PRActive:
			count++
		}
	}
	return count, nil
}

// PhrasesetRepo persists Phraseset records.
type PhrasesetRepo struct{ store *ObjectStore }

func NewPhrasesetRepo(store *ObjectStore) *PhrasesetRepo { return &PhrasesetRepo{store: store} }

func (r *PhrasesetRepo) Get(ctx context.Context, id uuid.UUID) (*Phraseset, bool, error) {
	var ps Phraseset
	version, found, err := r.store.get(ctx, collPhrasesets, id.String(), &ps)
	if err != nil || !found {
		return nil, found, err
	}
	ps.Version = version
	return &ps, true, nil
}

func (r *PhrasesetRepo) Put(ctx context.Context, ps *Phraseset) error {
	version, err := r.store.put(ctx, collPhrasesets, ps.ID.String(), ps, ps.Version)
	if err != nil {
		return err
	}
	ps.Version = version
	return nil
}

func (r *PhrasesetRepo) BuildWrite(ps *Phraseset) (*runtime.StorageWrite, error) {
	return r.store.writeOp(collPhrasesets, ps.ID.String(), ps, ps.Version)
}

func (r *PhrasesetRepo) All(ctx context.Context) ([]*Phraseset, error) {
	objects, err := r.store.listAll(ctx, collPhrasesets)
	if err != nil {
		return nil, err
	}
	sets := make([]*Phraseset, 0, len(objects))
	for _, obj := range objects {
		var ps Phraseset
		if err := unmarshalInto(obj.Value, &ps); err != nil {
			return nil, err
		}
		ps.Version = obj.Version
		sets = append(sets, &ps)
	}
	return sets, nil
}

// VoteRepo persists Vote records, one per (voter, phraseset) (spec.md §3 uniqueness).
type VoteRepo struct{ store *ObjectStore }

func NewVoteRepo(store *ObjectStore) *VoteRepo { return &VoteRepo{store: store} }

func voteKey(phrasesetID uuid.UUID, voterID string) string {
	return fmt.Sprintf("%s:%s", phrasesetID.String(), voterID)
}

func (r *VoteRepo) Get(ctx context.Context, phrasesetID uuid.UUID, voterID string) (*Vote, bool, error) {
	var v Vote
	_, found, err := r.store.get(ctx, collVotes, voteKey(phrasesetID, voterID), &v)
	if err != nil || !found {
		return nil, found, err
	}
	return &v, true, nil
}

func (r *VoteRepo) Put(ctx context.Context, v *Vote) error {
	_, err := r.store.put(ctx, collVotes, voteKey(v.PhrasesetID, v.VoterID), v, "")
	return err
}

func (r *VoteRepo) ForPhraseset(ctx context.Context, phrasesetID uuid.UUID) ([]*Vote, error) {
	objects, err := r.store.listAll(ctx, collVotes)
	if err != nil {
		return nil, err
	}
	var votes []*Vote
	for _, obj := range objects {
		var v Vote
		if err := unmarshalInto(obj.Value, &v); err != nil {
			return nil, err
		}
		if v.PhrasesetID == phrasesetID {
			votes = append(votes, &v)
		}
	}
	return votes, nil
}

// ResultViewRepo persists the claim-idempotency record (spec.md §3, §4.8).
type ResultViewRepo struct{ store *ObjectStore }

func NewResultViewRepo(store *ObjectStore) *ResultViewRepo { return &ResultViewRepo{store: store} }

func resultViewKey(phrasesetID uuid.UUID, playerID string) string {
	return fmt.Sprintf("%s:%s", phrasesetID.String(), playerID)
}

func (r *ResultViewRepo) Get(ctx context.Context, phrasesetID uuid.UUID, playerID string) (*ResultView, bool, error) {
	var rv ResultView
	_, found, err := r.store.get(ctx, collResultViews, resultViewKey(phrasesetID, playerID), &rv)
	if err != nil || !found {
		return nil, found, err
	}
	return &rv, true, nil
}

func (r *ResultViewRepo) Put(ctx context.Context, rv *ResultView) error {
	_, err := r.store.put(ctx, collResultViews, resultViewKey(rv.PhrasesetID, rv.PlayerID), rv, "")
	return err
}

// PlayerStateRepo persists PlayerState records (C9).
type PlayerStateRepo struct{ store *ObjectStore }

func NewPlayerStateRepo(store *ObjectStore) *PlayerStateRepo { return &PlayerStateRepo{store: store} }

func (r *PlayerStateRepo) Get(ctx context.Context, playerID string) (*PlayerState, error) {
	var state PlayerState
	_, found, err := r.store.get(ctx, collPlayerState, playerID, &state)
	if err != nil {
		return nil, err
	}
	if !found {
		return &PlayerState{PlayerID: playerID}, nil
	}
	return &state, nil
}

func (r *PlayerStateRepo) Put(ctx context.Context, state *PlayerState) error {
	_, err := r.store.put(ctx, collPlayerState, state.PlayerID, state, "")
	return err
}

func (r *PlayerStateRepo) BuildWrite(state *PlayerState) (*runtime.StorageWrite, error) {
	return r.store.writeOp(collPlayerState, state.PlayerID, state, "")
}

// AbandonmentRepo persists AbandonmentRecord rows keyed by player+prompt
// round, enforced against on StartCopyRound's queue pop (spec.md §4.4).
type AbandonmentRepo struct{ store *ObjectStore }

func NewAbandonmentRepo(store *ObjectStore) *AbandonmentRepo { return &AbandonmentRepo{store: store} }

func abandonmentKey(playerID string, promptRoundID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", playerID, promptRoundID.String())
}

func (r *AbandonmentRepo) Put(ctx context.Context, rec *AbandonmentRecord) error {
	_, err := r.store.put(ctx, collAbandonments, abandonmentKey(rec.PlayerID, rec.PromptRoundID), rec, "")
	return err
}

func (r *AbandonmentRepo) BuildWrite(rec *AbandonmentRecord) (*runtime.StorageWrite, error) {
	return r.store.writeOp(collAbandonments, abandonmentKey(rec.PlayerID, rec.PromptRoundID), rec, "")
}

// IsAbandoned reports whether playerID abandoned promptRoundID within the
// cooldown window (now - abandonedAt < cooldown).
func (r *AbandonmentRepo) IsAbandoned(ctx context.Context, playerID string, promptRoundID uuid.UUID, now time.Time, cooldown time.Duration) (bool, error) {
	var rec AbandonmentRecord
	_, found, err := r.store.get(ctx, collAbandonments, abandonmentKey(playerID, promptRoundID), &rec)
	if err != nil || !found {
		return false, err
	}
	return now.Sub(rec.AbandonedAt) < cooldown, nil
}
