package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func newTestPhraseset(pool int64) *Phraseset {
	return &Phraseset{
		ID:         uuid.New(),
		PromptText: "A day at the beach",
		Original:   "SUNNY SHORE",
		Copy1:      "SANDY BEACH",
		Copy2:      "OCEAN FRONT",
		TotalPool:  pool,
	}
}

func vote(phrase string, correct bool) *Vote {
	return &Vote{ID: uuid.New(), VotedPhrase: phrase, Correct: correct}
}

func TestCalculatePayouts_ProportionalSplit(t *testing.T) {
	scoring := NewScoringService()
	ps := newTestPhraseset(300)
	contributors := Contributors{PromptPlayerID: "p1", Copy1PlayerID: "p2", Copy2PlayerID: "p3"}

	votes := []*Vote{
		vote("SUNNY SHORE", true),
		vote("SANDY BEACH", false),
		vote("SANDY BEACH", false),
	}

	breakdowns := scoring.CalculatePayouts(ps, votes, contributors)

	assert.Len(t, breakdowns, 3)
	// prize pool = 300 - 1*5 = 295; points = original 1, copy1 2*2=4, copy2 0; total 5
	assert.Equal(t, int64(59), breakdowns[0].Payout)  // 295*1/5
	assert.Equal(t, int64(236), breakdowns[1].Payout) // 295*4/5
	assert.Equal(t, int64(0), breakdowns[2].Payout)
	assert.Equal(t, "p1", breakdowns[0].PlayerID)
	assert.Equal(t, "p2", breakdowns[1].PlayerID)
}

func TestCalculatePayouts_NoVotesSplitsThreeWays(t *testing.T) {
	scoring := NewScoringService()
	ps := newTestPhraseset(300)
	contributors := Contributors{PromptPlayerID: "p1", Copy1PlayerID: "p2", Copy2PlayerID: "p3"}

	breakdowns := scoring.CalculatePayouts(ps, nil, contributors)

	for _, b := range breakdowns {
		assert.Equal(t, int64(100), b.Payout)
	}
}

func TestCalculatePayouts_PrizePoolNeverNegative(t *testing.T) {
	scoring := NewScoringService()
	ps := newTestPhraseset(10)
	contributors := Contributors{PromptPlayerID: "p1", Copy1PlayerID: "p2", Copy2PlayerID: "p3"}

	votes := []*Vote{
		vote("SUNNY SHORE", true),
		vote("SUNNY SHORE", true),
		vote("SUNNY SHORE", true),
	}

	breakdowns := scoring.CalculatePayouts(ps, votes, contributors)
	var total int64
	for _, b := range breakdowns {
		total += b.Payout
	}
	assert.GreaterOrEqual(t, total, int64(0))
}
