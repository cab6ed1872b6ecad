// Package config loads the engine's tunable settings from the embedded
// baseline and lets the Nakama runtime environment override individual keys.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

//go:embed default.json
var defaultConfig []byte

// Config mirrors the recognized options table. All costs/payouts are
// integer game dollars; all durations are stored in seconds and exposed
// as time.Duration via the helper methods below.
type Config struct {
	StartingBalance       int64 `json:"starting_balance"`
	DailyBonus            int64 `json:"daily_bonus"`
	PromptCost            int64 `json:"prompt_cost"`
	CopyCostNormal        int64 `json:"copy_cost_normal"`
	CopyCostDiscount      int64 `json:"copy_cost_discount"`
	VoteCost              int64 `json:"vote_cost"`
	VotePayoutCorrect     int64 `json:"vote_payout_correct"`
	PhrasesetPrizePool    int64 `json:"phraseset_prize_pool"`
	MaxOutstandingPrompts int   `json:"max_outstanding_prompts"`
	CopyDiscountThreshold int   `json:"copy_discount_threshold"`

	PromptRoundSeconds  int64 `json:"prompt_round_seconds"`
	CopyRoundSeconds    int64 `json:"copy_round_seconds"`
	VoteRoundSeconds    int64 `json:"vote_round_seconds"`
	GracePeriodSeconds  int64 `json:"grace_period_seconds"`

	PhraseMinWords           int     `json:"phrase_min_words"`
	PhraseMaxWords           int     `json:"phrase_max_words"`
	PhraseMaxLength          int     `json:"phrase_max_length"`
	PhraseMinCharPerWord     int     `json:"phrase_min_char_per_word"`
	PhraseMaxCharPerWord     int     `json:"phrase_max_char_per_word"`
	SignificantWordMinLength int     `json:"significant_word_min_length"`
	SimilarityThreshold      float64 `json:"similarity_threshold"`
	WordSimilarityThreshold  float64 `json:"word_similarity_threshold"`

	VoteFinalizeMax          int   `json:"vote_finalize_max"`
	FifthVoteCloseSeconds    int64 `json:"fifth_vote_close_seconds"`
	ThirdVoteTimeoutSeconds  int64 `json:"third_vote_timeout_seconds"`
	AbandonmentCooldownHours int64 `json:"abandonment_cooldown_hours"`
	LockTimeoutSeconds       int64 `json:"lock_timeout_seconds"`

	ConnectingWords []string `json:"connecting_words"`

	TimerTickSeconds int64  `json:"timer_tick_seconds"`
	QueueBroker      string `json:"queue_broker"` // "inproc" | "kafka"

	KafkaBrokers        []string `json:"kafka_brokers"`
	KafkaPromptTopic    string   `json:"kafka_prompt_topic"`
	KafkaPhrasesetTopic string   `json:"kafka_phraseset_topic"`
	KafkaGroupID        string   `json:"kafka_group_id"`
}

var (
	cfg     *Config
	cfgOnce sync.Once
	cfgErr  error
)

// Load parses the embedded baseline and applies env overrides. Safe to call
// repeatedly; the embedded parse happens once, env overrides are re-applied
// by the caller's env map is only read once at InitModule time so this is
// effectively a singleton for the lifetime of the module.
func Load(env map[string]string) (*Config, error) {
	cfgOnce.Do(func() {
		cfg = &Config{}
		if err := json.Unmarshal(defaultConfig, cfg); err != nil {
			cfgErr = fmt.Errorf("config: parse embedded default.json: %w", err)
			return
		}
	})
	if cfgErr != nil {
		return nil, cfgErr
	}

	applyEnvOverrides(cfg, env)
	return cfg, nil
}

func applyEnvOverrides(c *Config, env map[string]string) {
	for key, val := range env {
		switch key {
		case "starting_balance":
			c.StartingBalance = parseInt64(val, c.StartingBalance)
		case "daily_bonus":
			c.DailyBonus = parseInt64(val, c.DailyBonus)
		case "prompt_cost":
			c.PromptCost = parseInt64(val, c.PromptCost)
		case "copy_cost_normal":
			c.CopyCostNormal = parseInt64(val, c.CopyCostNormal)
		case "copy_cost_discount":
			c.CopyCostDiscount = parseInt64(val, c.CopyCostDiscount)
		case "vote_cost":
			c.VoteCost = parseInt64(val, c.VoteCost)
		case "vote_payout_correct":
			c.VotePayoutCorrect = parseInt64(val, c.VotePayoutCorrect)
		case "phraseset_prize_pool":
			c.PhrasesetPrizePool = parseInt64(val, c.PhrasesetPrizePool)
		case "max_outstanding_prompts":
			c.MaxOutstandingPrompts = int(parseInt64(val, int64(c.MaxOutstandingPrompts)))
		case "copy_discount_threshold":
			c.CopyDiscountThreshold = int(parseInt64(val, int64(c.CopyDiscountThreshold)))
		case "queue_broker":
			c.QueueBroker = val
		case "kafka_brokers":
			c.KafkaBrokers = strings.Split(val, ",")
		case "kafka_prompt_topic":
			c.KafkaPromptTopic = val
		case "kafka_phraseset_topic":
			c.KafkaPhrasesetTopic = val
		case "kafka_group_id":
			c.KafkaGroupID = val
		}
	}
}

func parseInt64(s string, fallback int64) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func (c *Config) PromptRoundDuration() time.Duration {
	return time.Duration(c.PromptRoundSeconds) * time.Second
}

func (c *Config) CopyRoundDuration() time.Duration {
	return time.Duration(c.CopyRoundSeconds) * time.Second
}

func (c *Config) VoteRoundDuration() time.Duration {
	return time.Duration(c.VoteRoundSeconds) * time.Second
}

func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

func (c *Config) FifthVoteCloseDuration() time.Duration {
	return time.Duration(c.FifthVoteCloseSeconds) * time.Second
}

func (c *Config) ThirdVoteTimeoutDuration() time.Duration {
	return time.Duration(c.ThirdVoteTimeoutSeconds) * time.Second
}

func (c *Config) AbandonmentCooldown() time.Duration {
	return time.Duration(c.AbandonmentCooldownHours) * time.Hour
}

func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutSeconds) * time.Second
}

func (c *Config) TimerTick() time.Duration {
	return time.Duration(c.TimerTickSeconds) * time.Second
}

// IsConnectingWord reports whether w (already uppercase) is exempt from
// length/dictionary checks.
func (c *Config) IsConnectingWord(w string) bool {
	for _, cw := range c.ConnectingWords {
		if cw == w {
			return true
		}
	}
	return false
}
