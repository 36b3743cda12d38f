package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SYNC_SCHEDULE", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("EXTERNAL_DB_PORT", "")

	cfg := Load()
	assert.Equal(t, "0 11 * * *", cfg.SyncSchedule)
	assert.True(t, cfg.SyncEnabled)
	assert.Equal(t, "sqlserver", cfg.ExternalDBDriver)
	assert.Equal(t, "1433", cfg.ExternalDBPort)
	assert.Nil(t, cfg.KafkaBrokers)
	assert.Equal(t, 48*time.Hour, cfg.RunCacheTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SYNC_ENABLED", "false")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("RUN_CACHE_TTL", "90m")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("SOURCE_TIMEZONE", "UTC")

	cfg := Load()
	assert.False(t, cfg.SyncEnabled)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 90*time.Minute, cfg.RunCacheTTL)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLocationFallsBackToLocal(t *testing.T) {
	assert.Equal(t, time.Local, (&Config{SourceTimezone: "Mars/Olympus"}).Location())
	assert.Equal(t, time.Local, (&Config{SourceTimezone: "local"}).Location())
}
