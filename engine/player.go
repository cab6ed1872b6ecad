package engine

import (
	"context"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"

	"phrasepool.dev/config"
	phraseerrors "phrasepool.dev/errors"
	"phrasepool.dev/metrics"
	"phrasepool.dev/notify"
)

// PlayerService implements C9: account onboarding, balance/status reads,
// and the daily bonus — grounded on items/initialize_user.go's
// wallet-seed-on-first-authenticate pattern and items/daily_drops.go's
// prepare-then-MultiUpdate claim shape, adapted from "drops" (an item
// grant) to a cash bonus and from a rolling last-claim timestamp to the
// original's one-per-UTC-calendar-date rule
// (original_source/backend/models/daily_bonus.py's unique player+date
// constraint).
type PlayerService struct {
	cfg          *config.Config
	nk           runtime.NakamaModule
	logger       runtime.Logger
	ledger       *Ledger
	rounds       *RoundRepo
	playerStates *PlayerStateRepo
}

func NewPlayerService(cfg *config.Config, nk runtime.NakamaModule, logger runtime.Logger, ledger *Ledger, rounds *RoundRepo, playerStates *PlayerStateRepo) *PlayerService {
	return &PlayerService{cfg: cfg, nk: nk, logger: logger, ledger: ledger, rounds: rounds, playerStates: playerStates}
}

// Onboard seeds a new account's starting balance. It credits unconditionally;
// the AfterAuthenticateDevice/AfterAuthenticateGameCenter hooks call it only
// for newly created accounts (out.Created distinguishes the two, same as
// items/initialize_user.go's InitializeUser).
func (s *PlayerService) Onboard(ctx context.Context, userID string) error {
	_, err := s.ledger.Apply(ctx, userID, s.cfg.StartingBalance, TxStartingBalance, "onboarding", false)
	return err
}

// Status is the get_current_round / player-summary read shape: balance,
// active round pointer, and outstanding prompt count (spec.md §8
// invariants 3 and 4 — both are surfaced here so a client can see them,
// not just have them silently enforced).
type Status struct {
	Balance              int64 `json:"balance"`
	OutstandingPrompts   int   `json:"outstanding_prompts"`
	ActiveRoundID        string `json:"active_round_id,omitempty"`
	ActiveRoundTag       string `json:"active_round_tag,omitempty"`
	DailyBonusAvailable  bool   `json:"daily_bonus_available"`
}

func (s *PlayerService) Status(ctx context.Context, playerID string) (*Status, error) {
	balance, err := s.ledger.Balance(ctx, playerID)
	if err != nil {
		return nil, err
	}
	outstanding, err := s.rounds.OutstandingPromptCount(ctx, playerID)
	if err != nil {
		return nil, err
	}
	state, err := s.playerStates.Get(ctx, playerID)
	if err != nil {
		return nil, err
	}
	status := &Status{
		Balance:             balance,
		OutstandingPrompts:  outstanding,
		DailyBonusAvailable: dailyBonusAvailable(state, time.Now()),
	}
	if state.ActiveRoundID != nil {
		status.ActiveRoundID = state.ActiveRoundID.String()
		status.ActiveRoundTag = string(state.ActiveRoundTag)
	}
	return status, nil
}

func dailyBonusAvailable(state *PlayerState, now time.Time) bool {
	if state.LastBonusClaim == nil {
		return true
	}
	ly, lm, ld := state.LastBonusClaim.UTC().Date()
	ny, nm, nd := now.UTC().Date()
	return !(ly == ny && lm == nm && ld == nd)
}

// ClaimDailyBonus pays the configured bonus at most once per UTC calendar
// day. Bundles the wallet update with the PlayerState write so a crash
// between the two can never grant a second bonus for the same day.
func (s *PlayerService) ClaimDailyBonus(ctx context.Context, playerID string) (amount int64, newBalance int64, err error) {
	err = s.ledger.WithPlayerLock(ctx, playerID, func() error {
		state, err := s.playerStates.Get(ctx, playerID)
		if err != nil {
			return err
		}
		now := time.Now()
		if !dailyBonusAvailable(state, now) {
			return phraseerrors.ErrDailyBonusNotAvailable
		}

		update, _, err := s.ledger.Prepare(ctx, playerID, s.cfg.DailyBonus, TxDailyBonus, "daily_bonus")
		if err != nil {
			return err
		}

		state.LastBonusClaim = &now
		stateWrite, err := s.playerStates.BuildWrite(state)
		if err != nil {
			return err
		}

		pending := NewPendingWrites()
		pending.AddStorageWrite(stateWrite)
		pending.AddWalletUpdate(update)
		if err := pending.Commit(ctx, s.nk); err != nil {
			return err
		}
		metrics.LedgerTransactionsTotal.WithLabelValues(string(TxDailyBonus)).Inc()
		amount = s.cfg.DailyBonus
		return nil
	})
	if err == nil {
		if balance, balErr := s.ledger.Balance(ctx, playerID); balErr == nil {
			newBalance = balance
			if notifyErr := notify.SendWalletDelta(ctx, s.nk, playerID, string(TxDailyBonus), amount, balance); notifyErr != nil {
				LogError(ctx, s.logger, "notify daily bonus failed", notifyErr, map[string]interface{}{"player_id": playerID})
			}
		}
	}
	return amount, newBalance, err
}
