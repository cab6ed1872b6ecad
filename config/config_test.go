package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmbeddedDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), cfg.StartingBalance)
	assert.Equal(t, "inproc", cfg.QueueBroker)
	assert.Contains(t, cfg.ConnectingWords, "A")
}

func TestLoad_EnvOverride(t *testing.T) {
	cfg, err := Load(map[string]string{
		"starting_balance": "2500",
		"queue_broker":     "kafka",
		"kafka_brokers":    "broker-1:9092,broker-2:9092",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2500), cfg.StartingBalance)
	assert.Equal(t, "kafka", cfg.QueueBroker)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
}

func TestDurationHelpers(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(cfg.PromptRoundSeconds), int64(cfg.PromptRoundDuration().Seconds()))
	assert.Equal(t, int64(cfg.GracePeriodSeconds), int64(cfg.GracePeriod().Seconds()))
}

func TestIsConnectingWord(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.True(t, cfg.IsConnectingWord("A"))
	assert.False(t, cfg.IsConnectingWord("ZZZ"))
}
