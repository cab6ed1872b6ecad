package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	phraseerrors "phrasepool.dev/errors"
	"phrasepool.dev/engine/lockmgr"
	"phrasepool.dev/metrics"
)

const collActivity = "engine_activity"

// activityLog is the JSON body stored per prompt round: the append-only
// timeline spec.md §4.8 describes, keyed on the prompt round id because
// that id is stable across the whole lifecycle (the phraseset id does not
// exist yet when the first entries — prompt_created — are recorded).
type activityLog struct {
	Entries []ActivityEntry `json:"entries"`
}

// ActivityRepo implements the append-only timeline half of C8.
type ActivityRepo struct{ store *ObjectStore }

func NewActivityRepo(store *ObjectStore) *ActivityRepo { return &ActivityRepo{store: store} }

// Append adds one entry to promptRoundID's timeline, retrying the
// read-modify-write against Nakama's OCC version like
// items/progression.go's PrepareProgressionUpdate loop.
func (r *ActivityRepo) Append(ctx context.Context, promptRoundID uuid.UUID, entry ActivityEntry) error {
	key := promptRoundID.String()
	for attempt := 0; attempt < 5; attempt++ {
		var log activityLog
		version, found, err := r.store.get(ctx, collActivity, key, &log)
		if err != nil {
			return err
		}
		if !found {
			version = ""
		}
		log.Entries = append(log.Entries, entry)
		if _, err := r.store.put(ctx, collActivity, key, &log, version); err != nil {
			continue
		}
		return nil
	}
	return nil
}

// AttachPhraseset retroactively fills in PhrasesetID on every entry recorded
// against promptRoundID before the phraseset existed (spec.md §4.5 step 5).
func (r *ActivityRepo) AttachPhraseset(ctx context.Context, promptRoundID, phrasesetID uuid.UUID) error {
	key := promptRoundID.String()
	for attempt := 0; attempt < 5; attempt++ {
		var log activityLog
		version, found, err := r.store.get(ctx, collActivity, key, &log)
		if err != nil || !found {
			return err
		}
		for i := range log.Entries {
			log.Entries[i].PhrasesetID = phrasesetID
		}
		if _, err := r.store.put(ctx, collActivity, key, &log, version); err != nil {
			continue
		}
		return nil
	}
	return nil
}

func (r *ActivityRepo) Timeline(ctx context.Context, promptRoundID uuid.UUID) ([]ActivityEntry, error) {
	var log activityLog
	_, found, err := r.store.get(ctx, collActivity, promptRoundID.String(), &log)
	if err != nil || !found {
		return nil, err
	}
	return log.Entries, nil
}

// StatusBucket buckets a phraseset/round pair for the player phraseset list
// and dashboard summary (spec.md §4.8).
type StatusBucket string

const (
	BucketInProgress StatusBucket = "in_progress"
	BucketVoting     StatusBucket = "voting"
	BucketFinalized  StatusBucket = "finalized"
	BucketAbandoned  StatusBucket = "abandoned"
)

// PhrasesetSummary is one row of the player phraseset list.
type PhrasesetSummary struct {
	PromptRoundID uuid.UUID    `json:"prompt_round_id"`
	PhrasesetID   *uuid.UUID   `json:"phraseset_id,omitempty"`
	Role          string       `json:"role"` // "prompt" or "copy"
	Bucket        StatusBucket `json:"bucket"`
	PromptText    string       `json:"prompt_text"`
	CreatedAt     time.Time    `json:"created_at"`
}

// DashboardSummary is the counts-and-totals read shape. No ActivityService
// method builds one.
type DashboardSummary struct {
	PromptCounts map[StatusBucket]int `json:"prompt_counts"`
	CopyCounts   map[StatusBucket]int `json:"copy_counts"`
	UnclaimedDollars int64            `json:"unclaimed_dollars"`
}

// DetailView is the full per-phraseset read shape.
type DetailView struct {
	Phraseset    *Phraseset      `json:"phraseset"`
	Contributors Contributors    `json:"contributors"`
	Votes        []*Vote         `json:"votes"`
	Timeline     []ActivityEntry `json:"timeline"`
	Results      []PayoutBreakdown `json:"results,omitempty"`
	Claimed      bool            `json:"claimed"`
}

// ActivityService composes the repos needed to answer three of C8's read
// shapes (player phraseset list, unclaimed results, detail view) plus the
// idempotent claim operation. It does not compute the dashboard summary.
type ActivityService struct {
	activity    *ActivityRepo
	rounds      *RoundRepo
	phrasesets  *PhrasesetRepo
	votes       *VoteRepo
	resultViews *ResultViewRepo
	scoring     *ScoringService
	locks       *lockmgr.Manager
}

func NewActivityService(activity *ActivityRepo, rounds *RoundRepo, phrasesets *PhrasesetRepo, votes *VoteRepo, resultViews *ResultViewRepo, scoring *ScoringService, locks *lockmgr.Manager) *ActivityService {
	return &ActivityService{activity: activity, rounds: rounds, phrasesets: phrasesets, votes: votes, resultViews: resultViews, scoring: scoring, locks: locks}
}

func roundBucket(round *Round) StatusBucket {
	switch round.Status {
	case RoundAbandoned:
		return BucketAbandoned
	case RoundExpired:
		return BucketAbandoned
	}
	switch round.PhrasesetStatus {
	case PRFinalized:
		return BucketFinalized
	case PRAbandoned:
		return BucketAbandoned
	case PRActive:
		return BucketVoting
	default:
		return BucketInProgress
	}
}

// PlayerPhrasesetList returns every prompt round a player authored, for the
// paginated list read shape. roleFilter and bucketFilter of "" mean "any".
func (s *ActivityService) PlayerPhrasesetList(ctx context.Context, playerID, roleFilter string, bucketFilter StatusBucket) ([]PhrasesetSummary, error) {
	all, err := s.rounds.All(ctx)
	if err != nil {
		return nil, err
	}
	var out []PhrasesetSummary
	for _, round := range all {
		if round.Tag != RoundPrompt || round.PlayerID != playerID {
			continue
		}
		bucket := roundBucket(round)
		if bucketFilter != "" && bucket != bucketFilter {
			continue
		}
		if roleFilter != "" && roleFilter != "prompt" {
			continue
		}
		summary := PhrasesetSummary{
			PromptRoundID: round.ID,
			Role:          "prompt",
			Bucket:        bucket,
			PromptText:    round.PromptText,
			CreatedAt:     round.CreatedAt,
		}
		if round.PhrasesetID != uuid.Nil {
			id := round.PhrasesetID
			summary.PhrasesetID = &id
		}
		out = append(out, summary)
	}
	return out, nil
}

// Unclaimed returns finalized phrasesets the player contributed to that
// still carry an unclaimed ResultView (or none yet, i.e. never viewed).
func (s *ActivityService) Unclaimed(ctx context.Context, playerID string) ([]*Phraseset, error) {
	all, err := s.phrasesets.All(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Phraseset
	for _, ps := range all {
		if ps.Status != PhrasesetFinalized {
			continue
		}
		contributors, err := s.contributorsFor(ctx, ps)
		if err != nil || !contributors.Contains(playerID) {
			continue
		}
		rv, _, err := s.resultViews.Get(ctx, ps.ID, playerID)
		if err != nil {
			return nil, err
		}
		if rv == nil || !rv.Claimed {
			out = append(out, ps)
		}
	}
	return out, nil
}

func (s *ActivityService) contributorsFor(ctx context.Context, ps *Phraseset) (Contributors, error) {
	prompt, _, err := s.rounds.Get(ctx, ps.PromptRoundID)
	if err != nil {
		return Contributors{}, err
	}
	copy1, _, err := s.rounds.Get(ctx, ps.CopyRound1ID)
	if err != nil {
		return Contributors{}, err
	}
	copy2, _, err := s.rounds.Get(ctx, ps.CopyRound2ID)
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

// Detail returns the full detail view for a phraseset on behalf of a
// contributor (spec.md §4.8).
func (s *ActivityService) Detail(ctx context.Context, playerID string, phrasesetID uuid.UUID) (*DetailView, error) {
	ps, found, err := s.phrasesets.Get(ctx, phrasesetID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, phraseerrors.ErrRoundNotFound
	}
	contributors, err := s.contributorsFor(ctx, ps)
	if err != nil {
		return nil, err
	}
	if !contributors.Contains(playerID) {
		return nil, phraseerrors.ErrNotContributor
	}
	votes, err := s.votes.ForPhraseset(ctx, phrasesetID)
	if err != nil {
		return nil, err
	}
	timeline, err := s.activity.Timeline(ctx, ps.PromptRoundID)
	if err != nil {
		return nil, err
	}
	view := &DetailView{
		Phraseset:    ps,
		Contributors: contributors,
		Votes:        votes,
		Timeline:     timeline,
	}
	if ps.Status == PhrasesetFinalized {
		view.Results = s.scoring.CalculatePayouts(ps, votes, contributors)
		rv, _, err := s.resultViews.Get(ctx, phrasesetID, playerID)
		if err != nil {
			return nil, err
		}
		view.Claimed = rv != nil && rv.Claimed
	}
	return view, nil
}

// ClaimPhrasesetPrize implements spec.md §4.8's idempotent claim
// operation. The actual disbursement already happened at finalization
// (engine/vote.go's finalizeLocked); claiming only records that the
// player has acknowledged it, so repeated calls return the same amount
// with alreadyClaimed=true rather than paying out twice.
func (s *ActivityService) ClaimPhrasesetPrize(ctx context.Context, playerID string, phrasesetID uuid.UUID) (amount int64, alreadyClaimed bool, err error) {
	// Claims on the same phraseset by the same player race on the
	// ResultView's read-modify-write otherwise; taking this lock turns a
	// concurrent double-claim into a serialized pair instead of an OCC
	// write conflict on the loser.
	unlock, lockErr := s.locks.Acquire(ctx, phrasesetLockKey(phrasesetID)+":"+playerID)
	if lockErr != nil {
		return 0, false, lockErr
	}
	defer unlock()

	ps, found, err := s.phrasesets.Get(ctx, phrasesetID)
	if err != nil {
		return 0, false, err
	}
	if !found {
		return 0, false, phraseerrors.ErrRoundNotFound
	}
	if ps.Status != PhrasesetFinalized {
		return 0, false, phraseerrors.ErrNotFinalized
	}

	contributors, err := s.contributorsFor(ctx, ps)
	if err != nil {
		return 0, false, err
	}
	if !contributors.Contains(playerID) {
		return 0, false, phraseerrors.ErrNotContributor
	}

	existing, _, err := s.resultViews.Get(ctx, phrasesetID, playerID)
	if err != nil {
		return 0, false, err
	}
	if existing != nil && existing.Claimed {
		metrics.ClaimsTotal.WithLabelValues("already_claimed").Inc()
		return existing.OwedAmount, true, nil
	}

	votes, err := s.votes.ForPhraseset(ctx, phrasesetID)
	if err != nil {
		return 0, false, err
	}
	payouts := s.scoring.CalculatePayouts(ps, votes, contributors)
	var owed int64
	for _, p := range payouts {
		if p.PlayerID == playerID {
			owed += p.Payout
		}
	}

	now := time.Now()
	firstViewed := now
	if existing != nil {
		firstViewed = existing.FirstViewed
	}
	rv := &ResultView{
		PlayerID:    playerID,
		PhrasesetID: phrasesetID,
		FirstViewed: firstViewed,
		OwedAmount:  owed,
		Claimed:     true,
		ClaimedAt:   &now,
	}
	if err := s.resultViews.Put(ctx, rv); err != nil {
		return 0, false, err
	}

	if err := s.activity.Append(ctx, ps.PromptRoundID, ActivityEntry{
		PhrasesetID:   phrasesetID,
		PromptRoundID: ps.PromptRoundID,
		Kind:          ActClaimed,
		PlayerID:      playerID,
		CreatedAt:     now,
	}); err != nil {
		return 0, false, err
	}
	metrics.ClaimsTotal.WithLabelValues("first_claim").Inc()
	return owed, false, nil
}
