package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDailyBonusAvailable_NeverClaimed(t *testing.T) {
	state := &PlayerState{LastBonusClaim: nil}
	assert.True(t, dailyBonusAvailable(state, time.Now()))
}

func TestDailyBonusAvailable_SameUTCDay(t *testing.T) {
	now := time.Date(2026, 7, 30, 23, 0, 0, 0, time.UTC)
	claimed := time.Date(2026, 7, 30, 1, 0, 0, 0, time.UTC)
	state := &PlayerState{LastBonusClaim: &claimed}
	assert.False(t, dailyBonusAvailable(state, now))
}

func TestDailyBonusAvailable_NextUTCDay(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 30, 0, 0, time.UTC)
	claimed := time.Date(2026, 7, 30, 23, 45, 0, 0, time.UTC)
	state := &PlayerState{LastBonusClaim: &claimed}
	assert.True(t, dailyBonusAvailable(state, now))
}

func TestDailyBonusAvailable_AcrossTimezoneNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	// 2026-07-30 20:00 in UTC-5 is 2026-07-31 01:00 UTC — a new calendar day.
	now := time.Date(2026, 7, 30, 20, 0, 0, 0, loc)
	claimed := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	state := &PlayerState{LastBonusClaim: &claimed}
	assert.True(t, dailyBonusAvailable(state, now))
}
