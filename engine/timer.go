package engine

import (
	"context"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"

	"phrasepool.dev/config"
)

// TimerService implements C10: a background sweep that catches state
// transitions no player request happens to trigger — expired rounds no
// one reads, and phrasesets whose fifth-vote-close or third-vote-timeout
// window elapsed without another vote arriving.
type TimerService struct {
	cfg   *config.Config
	logger runtime.Logger
	rounds *RoundCoordinator
	votes  *VoteService
}

func NewTimerService(cfg *config.Config, logger runtime.Logger, rounds *RoundCoordinator, votes *VoteService) *TimerService {
	return &TimerService{cfg: cfg, logger: logger, rounds: rounds, votes: votes}
}

// Run blocks, ticking every cfg.TimerTickSeconds until ctx is cancelled.
// Intended to be launched as its own goroutine from InitModule.
func (t *TimerService) Run(ctx context.Context) {
	interval := time.Duration(t.cfg.TimerTickSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

func (t *TimerService) tick(ctx context.Context) {
	if err := t.rounds.SweepExpiredRounds(ctx); err != nil {
		t.logger.Error("timer: sweep expired rounds: %v", err)
	}
	if err := t.votes.PollFinalize(ctx); err != nil {
		t.logger.Error("timer: poll finalize: %v", err)
	}
}
