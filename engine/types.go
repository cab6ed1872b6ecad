// Package engine implements the round/phraseset lifecycle engine: the
// queue and matchmaking layer, the ledger, the phrase validator, the
// scoring calculator, and the timer service described by the game's
// specification. It is wired into Nakama's runtime via the RPC handlers
// in rpc.go.
package engine

import (
	"time"

	"github.com/google/uuid"
)

// RoundTag distinguishes the three round variants that share a common
// header (spec.md §3, §9 — a tagged-sum representation kept in memory).
type RoundTag string

const (
	RoundPrompt RoundTag = "prompt"
	RoundCopy   RoundTag = "copy"
	RoundVote   RoundTag = "vote"
)

// RoundStatus is the lifecycle status shared by every round variant.
type RoundStatus string

const (
	RoundActive    RoundStatus = "active"
	RoundSubmitted RoundStatus = "submitted"
	RoundExpired   RoundStatus = "expired"
	RoundAbandoned RoundStatus = "abandoned"
)

// PhrasesetRoundStatus tracks a prompt round's progress toward a built
// phraseset — distinct from RoundStatus, which tracks the prompt round
// itself.
type PhrasesetRoundStatus string

const (
	PRWaitingCopies PhrasesetRoundStatus = "waiting_copies"
	PRWaitingCopy1  PhrasesetRoundStatus = "waiting_copy1"
	PRActive        PhrasesetRoundStatus = "active"
	PRFinalized     PhrasesetRoundStatus = "finalized"
	PRAbandoned     PhrasesetRoundStatus = "abandoned"
)

// PhrasesetStatus is a Phraseset's own lifecycle.
type PhrasesetStatus string

const (
	PhrasesetOpen       PhrasesetStatus = "open"
	PhrasesetClosing    PhrasesetStatus = "closing"
	PhrasesetClosed     PhrasesetStatus = "closed"
	PhrasesetFinalized  PhrasesetStatus = "finalized"
)

// Round is the tagged-sum record for prompt/copy/vote rounds. Fields not
// meaningful for a given Tag are left zero-valued; persistence keeps them
// nullable (spec.md §9).
type Round struct {
	ID        uuid.UUID   `json:"id"`
	Tag       RoundTag    `json:"tag"`
	Status    RoundStatus `json:"status"`
	PlayerID  string      `json:"player_id"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
	Cost      int64       `json:"cost"`

	// Prompt variant.
	PromptLibraryID   uuid.UUID            `json:"prompt_library_id,omitempty"`
	PromptText        string               `json:"prompt_text,omitempty"`
	SubmittedPhrase   string               `json:"submitted_phrase,omitempty"`
	PhrasesetStatus   PhrasesetRoundStatus `json:"phraseset_status,omitempty"`
	Copy1PlayerID     string               `json:"copy1_player_id,omitempty"`
	Copy2PlayerID     string               `json:"copy2_player_id,omitempty"`
	PhrasesetID       uuid.UUID            `json:"phraseset_id,omitempty"`

	// Copy variant.
	PromptRoundID      uuid.UUID `json:"prompt_round_id,omitempty"`
	OriginalPhrase     string    `json:"original_phrase,omitempty"`
	CopyPhrase         string    `json:"copy_phrase,omitempty"`
	SystemContribution int64     `json:"system_contribution,omitempty"`
	AIAssistUsed       bool      `json:"ai_assist_used,omitempty"`

	// Vote variant.
	VotePhrasesetID uuid.UUID  `json:"vote_phraseset_id,omitempty"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`

	Version string `json:"-"` // Nakama storage OCC version, not persisted in the JSON body.
}

// IsTimedOut reports whether now is past expiry plus the grace period
// (spec.md §4.4).
func (r *Round) IsTimedOut(now time.Time, grace time.Duration) bool {
	return now.After(r.ExpiresAt.Add(grace))
}

// Phraseset is the triple (prompt, original, copy1, copy2) voters
// adjudicate (spec.md §3).
type Phraseset struct {
	ID uuid.UUID `json:"id"`

	PromptRoundID uuid.UUID `json:"prompt_round_id"`
	CopyRound1ID  uuid.UUID `json:"copy_round_1_id"`
	CopyRound2ID  uuid.UUID `json:"copy_round_2_id"`

	PromptText string `json:"prompt_text"`
	Original   string `json:"original_phrase"`
	Copy1      string `json:"copy1_phrase"`
	Copy2      string `json:"copy2_phrase"`

	Status    PhrasesetStatus `json:"status"`
	VoteCount int             `json:"vote_count"`

	ThirdVoteAt  *time.Time `json:"third_vote_at,omitempty"`
	FifthVoteAt  *time.Time `json:"fifth_vote_at,omitempty"`
	ClosesAt     *time.Time `json:"closes_at,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	FinalizedAt  *time.Time `json:"finalized_at,omitempty"`

	TotalPool          int64 `json:"total_pool"`
	SystemContribution int64 `json:"system_contribution"`

	Version string `json:"-"`
}

// Contributors holds the prompt/copy1/copy2 player ids, resolved by the
// caller from the three backing Rounds (Phraseset never stores them
// directly — spec.md §3's "weak relation + lookup").
type Contributors struct {
	PromptPlayerID string
	Copy1PlayerID  string
	Copy2PlayerID  string
}

func (c Contributors) Contains(playerID string) bool {
	return playerID == c.PromptPlayerID || playerID == c.Copy1PlayerID || playerID == c.Copy2PlayerID
}

// Vote is a single ballot cast against a Phraseset.
type Vote struct {
	ID          uuid.UUID `json:"id"`
	PhrasesetID uuid.UUID `json:"phraseset_id"`
	VoterID     string    `json:"voter_id"`
	VotedPhrase string    `json:"voted_phrase"`
	Correct     bool      `json:"correct"`
	Payout      int64     `json:"payout"`
	CreatedAt   time.Time `json:"created_at"`
}

// TransactionKind enumerates the Transaction.kind taxonomy (spec.md §3).
type TransactionKind string

const (
	TxPromptEntry         TransactionKind = "prompt_entry"
	TxCopyEntry           TransactionKind = "copy_entry"
	TxVoteEntry           TransactionKind = "vote_entry"
	TxVotePayout          TransactionKind = "vote_payout"
	TxPrizePayout         TransactionKind = "prize_payout"
	TxRefund              TransactionKind = "refund"
	TxDailyBonus          TransactionKind = "daily_bonus"
	TxSystemContribution  TransactionKind = "system_contribution"
	TxStartingBalance     TransactionKind = "starting_balance"
)

// Transaction is one append-only journal entry (Nakama's wallet ledger
// entry, see engine/ledger.go).
type Transaction struct {
	ID           string          `json:"id"`
	PlayerID     string          `json:"player_id"`
	Amount       int64           `json:"amount"`
	Kind         TransactionKind `json:"kind"`
	ReferenceID  string          `json:"reference_id,omitempty"`
	BalanceAfter int64           `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ResultView is the per-(player, phraseset) claim record (spec.md §3).
type ResultView struct {
	PlayerID    string     `json:"player_id"`
	PhrasesetID uuid.UUID  `json:"phraseset_id"`
	FirstViewed time.Time  `json:"first_viewed_at"`
	OwedAmount  int64      `json:"owed_amount"`
	Claimed     bool       `json:"claimed"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
}

// AbandonmentRecord blocks a player from re-drawing a prompt they
// abandoned within the cooldown window (spec.md §3).
type AbandonmentRecord struct {
	PlayerID      string    `json:"player_id"`
	PromptRoundID uuid.UUID `json:"prompt_round_id"`
	AbandonedAt   time.Time `json:"abandoned_at"`
}

// ActivityKind enumerates the append-only timeline events (spec.md §4.8,
// carried over from original_source/backend/models/phraseset_activity.py).
type ActivityKind string

const (
	ActPromptCreated    ActivityKind = "prompt_created"
	ActCopy1Submitted   ActivityKind = "copy1_submitted"
	ActCopy2Submitted   ActivityKind = "copy2_submitted"
	ActPhrasesetCreated ActivityKind = "phraseset_created"
	ActVoteCast         ActivityKind = "vote_cast"
	ActFinalized        ActivityKind = "finalized"
	ActClaimed          ActivityKind = "claimed"
)

// ActivityEntry is one row of a phraseset's timeline.
type ActivityEntry struct {
	PhrasesetID uuid.UUID              `json:"phraseset_id,omitempty"`
	PromptRoundID uuid.UUID            `json:"prompt_round_id,omitempty"`
	Kind        ActivityKind           `json:"kind"`
	PlayerID    string                 `json:"player_id,omitempty"`
	Detail      map[string]interface{} `json:"detail,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// PlayerState is the per-player bookkeeping the core owns beyond the
// Nakama account itself: the at-most-one active round pointer and daily
// bonus eligibility (spec.md §3's "Player" entity, minus balance which
// lives in the Nakama wallet and is never duplicated here).
type PlayerState struct {
	PlayerID        string     `json:"player_id"`
	ActiveRoundID   *uuid.UUID `json:"active_round_id,omitempty"`
	ActiveRoundTag  RoundTag   `json:"active_round_tag,omitempty"`
	LastBonusClaim  *time.Time `json:"last_bonus_claim_at,omitempty"`
}

// PayoutBreakdown is C7's output for a single contributor role.
type PayoutBreakdown struct {
	Role     string    `json:"role"` // original, copy1, copy2
	PlayerID string    `json:"player_id"`
	Phrase   string    `json:"phrase"`
	Points   int64     `json:"points"`
	Payout   int64     `json:"payout"`
}
