package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestSelectPhraseset_PrefersFivePlusOverOthers(t *testing.T) {
	now := time.Now()
	fivePlus := &Phraseset{ID: uuid.New(), VoteCount: 5, FifthVoteAt: timePtr(now)}
	threeToFive := &Phraseset{ID: uuid.New(), VoteCount: 3, ThirdVoteAt: timePtr(now.Add(-time.Hour))}
	underThree := &Phraseset{ID: uuid.New(), VoteCount: 1}

	chosen := selectPhraseset([]*Phraseset{underThree, threeToFive, fivePlus})
	assert.Equal(t, fivePlus.ID, chosen.ID)
}

func TestSelectPhraseset_FivePlusSortedByOldestFifthVote(t *testing.T) {
	now := time.Now()
	older := &Phraseset{ID: uuid.New(), VoteCount: 6, FifthVoteAt: timePtr(now.Add(-2 * time.Hour))}
	newer := &Phraseset{ID: uuid.New(), VoteCount: 5, FifthVoteAt: timePtr(now.Add(-1 * time.Hour))}

	chosen := selectPhraseset([]*Phraseset{newer, older})
	assert.Equal(t, older.ID, chosen.ID)
}

func TestSelectPhraseset_ThreeToFiveSortedByOldestThirdVote(t *testing.T) {
	now := time.Now()
	older := &Phraseset{ID: uuid.New(), VoteCount: 4, ThirdVoteAt: timePtr(now.Add(-2 * time.Hour))}
	newer := &Phraseset{ID: uuid.New(), VoteCount: 3, ThirdVoteAt: timePtr(now.Add(-1 * time.Hour))}

	chosen := selectPhraseset([]*Phraseset{newer, older})
	assert.Equal(t, older.ID, chosen.ID)
}

func TestSelectPhraseset_EmptyReturnsNil(t *testing.T) {
	assert.Nil(t, selectPhraseset(nil))
}

func TestFinalizeTrigger_MaxVotes(t *testing.T) {
	cfg := testConfig(t)
	v := &VoteService{cfg: cfg}
	ps := &Phraseset{VoteCount: cfg.VoteFinalizeMax}

	trigger, ok := v.finalizeTrigger(ps, time.Now())
	require.True(t, ok)
	assert.Equal(t, "max_votes", trigger)
}

func TestFinalizeTrigger_FifthVoteClose(t *testing.T) {
	cfg := testConfig(t)
	v := &VoteService{cfg: cfg}
	now := time.Now()
	ps := &Phraseset{VoteCount: 5, FifthVoteAt: timePtr(now.Add(-cfg.FifthVoteCloseDuration() - time.Second))}

	trigger, ok := v.finalizeTrigger(ps, now)
	require.True(t, ok)
	assert.Equal(t, "fifth_vote_close", trigger)
}

func TestFinalizeTrigger_ThirdVoteTimeout(t *testing.T) {
	cfg := testConfig(t)
	v := &VoteService{cfg: cfg}
	now := time.Now()
	ps := &Phraseset{
		VoteCount:   3,
		ThirdVoteAt: timePtr(now.Add(-time.Duration(cfg.ThirdVoteTimeoutSeconds)*time.Second - time.Second)),
	}

	trigger, ok := v.finalizeTrigger(ps, now)
	require.True(t, ok)
	assert.Equal(t, "third_vote_timeout", trigger)
}

func TestFinalizeTrigger_NoneYet(t *testing.T) {
	cfg := testConfig(t)
	v := &VoteService{cfg: cfg}
	now := time.Now()
	ps := &Phraseset{VoteCount: 2, ThirdVoteAt: nil, FifthVoteAt: nil}

	_, ok := v.finalizeTrigger(ps, now)
	assert.False(t, ok)
}
