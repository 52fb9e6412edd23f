package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("DATABASE_URL", "")

	cfg := Load()
	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, "order-events", cfg.Kafka.Topic)
	assert.Equal(t, 30*time.Minute, cfg.Bot.SessionTTL)
	assert.Equal(t, "host=localhost port=5432 user=laser password=laser dbname=laser_orders sslmode=disable", cfg.Database.DSN())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("STORAGE", "Memory")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("TELEGRAM_OPERATOR_CHAT_ID", "-1001234567890")
	t.Setenv("BOT_SESSION_TTL", "45m")
	t.Setenv("SMTP_PORT", "not-a-port")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/laser")

	cfg := Load()
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, int64(-1001234567890), cfg.Telegram.OperatorChatID)
	assert.Equal(t, 45*time.Minute, cfg.Bot.SessionTTL)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "postgres://u:p@db/laser", cfg.Database.DSN())
}

func TestValidate(t *testing.T) {
	t.Setenv("STORAGE", "postgres")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("LOG_LEVEL", "")
	base := Load()
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"unknown storage", func(c *Config) { c.Storage = "mongo" }, `unknown STORAGE "mongo"`},
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }, "JWT_SECRET is required"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "LOG_LEVEL"},
		{"session ttl", func(c *Config) { c.Bot.SessionTTL = 0 }, "BOT_SESSION_TTL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	cfg := base
	cfg.Storage = StorageMemory
	cfg.Auth.JWTSecret = ""
	assert.NoError(t, cfg.Validate())
}

func TestNewLogger(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, NewLogger("debug").GetLevel())
	assert.Equal(t, logrus.InfoLevel, NewLogger("nonsense").GetLevel())
	_, ok := NewLogger("info").Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)
}
