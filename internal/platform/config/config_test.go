package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, time.Minute, cfg.Server.ReadTimeout)
	assert.Equal(t, 7*24*time.Hour, cfg.Lifecycle.ReviewTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Lifecycle.AutoSaveInterval)
	assert.Equal(t, 30*24*time.Hour, cfg.Lifecycle.ArchiveAfter)
	assert.Equal(t, 2000, cfg.Lifecycle.MaxMessageLength)
	assert.Zero(t, cfg.Lifecycle.NDAValidity)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 120, cfg.RateLimit.WritesPerWindow)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REVIEW_TIMEOUT_DAYS", "3")
	t.Setenv("MAX_MESSAGE_LENGTH", "50")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("SWEEP_INTERVAL", "15s")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 3*24*time.Hour, cfg.Lifecycle.ReviewTimeout)
	assert.Equal(t, 50, cfg.Lifecycle.MaxMessageLength)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 15*time.Second, cfg.Lifecycle.SweepInterval)
}

func TestFromEnvRejectsMalformedValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ARCHIVE_AFTER_DAYS", "soon")

	_, err := FromEnv()
	assert.ErrorContains(t, err, "ARCHIVE_AFTER_DAYS")
}

func TestFromEnvRejectsNonPositiveTimeout(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REVIEW_TIMEOUT_DAYS", "0")

	_, err := FromEnv()
	assert.ErrorContains(t, err, "review timeout")
}
