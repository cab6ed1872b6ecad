package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"

	"phrasepool.dev/config"
	"phrasepool.dev/engine"
	"phrasepool.dev/engine/lockmgr"
	"phrasepool.dev/storage"
)

// newBroker picks the queue backend per cfg.QueueBroker — "inproc" for a
// single-process deployment, "kafka" for a shared broker across more than
// one Nakama node.
func newBroker(cfg *config.Config, topic string) engine.Broker {
	if cfg.QueueBroker == "kafka" && len(cfg.KafkaBrokers) > 0 {
		return engine.NewKafkaBroker(cfg.KafkaBrokers, topic, cfg.KafkaGroupID)
	}
	return engine.NewInProcBroker()
}

func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	initStart := time.Now()

	env, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)
	cfg, err := config.Load(env)
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		return err
	}

	locks := lockmgr.New(cfg.LockTimeout())
	ledger := engine.NewLedger(nk, locks)

	promptBroker := newBroker(cfg, cfg.KafkaPromptTopic)
	votingBroker := newBroker(cfg, cfg.KafkaPhrasesetTopic)
	queue := engine.NewQueueService(cfg, promptBroker, votingBroker)

	validator := engine.NewValidator(cfg, engine.NewLexicalSimilarityModel())

	store := engine.NewObjectStore(nk)
	rounds := engine.NewRoundRepo(store)
	phrasesets := engine.NewPhrasesetRepo(store)
	votes := engine.NewVoteRepo(store)
	resultViews := engine.NewResultViewRepo(store)
	playerStates := engine.NewPlayerStateRepo(store)
	abandonments := engine.NewAbandonmentRepo(store)
	activity := engine.NewActivityRepo(store)

	prompts := storage.NewPromptStore(db)

	scoring := engine.NewScoringService()
	builder := engine.NewPhrasesetBuilder(cfg, rounds, phrasesets, activity, queue)

	roundCoordinator := engine.NewRoundCoordinator(
		cfg, nk, logger, ledger, locks, queue, validator,
		rounds, playerStates, abandonments, activity, prompts, builder,
	)
	voteService := engine.NewVoteService(
		cfg, nk, logger, ledger, locks, queue,
		rounds, phrasesets, votes, activity, playerStates, scoring,
	)
	activityService := engine.NewActivityService(activity, rounds, phrasesets, votes, resultViews, scoring, locks)
	playerService := engine.NewPlayerService(cfg, nk, logger, ledger, rounds, playerStates)

	eng := &engine.Engine{
		Rounds:   roundCoordinator,
		Votes:    voteService,
		Activity: activityService,
		Player:   playerService,
		Queue:    queue,
		Feedback: prompts,
	}

	rpcs := map[string]func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, string) (string, error){
		"start_prompt_round":        eng.RpcStartPromptRound,
		"submit_prompt_phrase":      eng.RpcSubmitPromptPhrase,
		"start_copy_round":          eng.RpcStartCopyRound,
		"submit_copy_phrase":        eng.RpcSubmitCopyPhrase,
		"start_vote_round":          eng.RpcStartVoteRound,
		"submit_vote":               eng.RpcSubmitVote,
		"get_round_availability":    eng.RpcGetRoundAvailability,
		"get_phraseset_results":     eng.RpcGetPhrasesetResults,
		"claim_phraseset_prize":     eng.RpcClaimPhrasesetPrize,
		"get_current_round":         eng.RpcGetCurrentRound,
		"claim_daily_bonus":         eng.RpcClaimDailyBonus,
		"get_phraseset_list":        eng.RpcGetPhrasesetList,
		"get_unclaimed_phrasesets":  eng.RpcGetUnclaimedPhrasesets,
		"submit_prompt_feedback":    eng.RpcSubmitPromptFeedback,
	}
	for id, fn := range rpcs {
		if err := initializer.RegisterRpc(id, fn); err != nil {
			logger.Error("Unable to register rpc %s: %v", id, err)
			return err
		}
	}

	if err := initializer.RegisterAfterAuthenticateDevice(afterAuthenticateDevice(playerService)); err != nil {
		logger.Error("Unable to register after authenticate device: %v", err)
		return err
	}
	if err := initializer.RegisterAfterAuthenticateGameCenter(afterAuthenticateGameCenter(playerService)); err != nil {
		logger.Error("Unable to register after authenticate game center: %v", err)
		return err
	}

	timer := engine.NewTimerService(cfg, logger, roundCoordinator, voteService)
	go timer.Run(ctx)

	logger.Info("Plugin loaded in '%d' msec.", time.Since(initStart).Milliseconds())
	return nil
}
