package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASS", "")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_NAME", "dispatch")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "15")
	t.Setenv("OPERATOR_KEYS", "desk-1:$2a$10$abc, desk-2:$2a$10$def")
	t.Setenv("CONFIRM_TOKEN_TTL", "10m")
	t.Setenv("STATS_TZ", "")
	t.Setenv("LANE_TITLES", "Front Desk, Pickup")
	t.Setenv("AMQP_URL", "")

	cfg := Load()
	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 15, cfg.AccessTTLMin)
	assert.Equal(t, 10*time.Minute, cfg.TokenTTL)
	assert.Equal(t, time.UTC, cfg.StatsLoc)
	assert.Equal(t, []string{"Front Desk", "Pickup"}, cfg.LaneTitles)
	require.Len(t, cfg.Operators, 2)
	assert.Equal(t, "$2a$10$abc", cfg.Operators["desk-1"])
}

func TestParseOperatorsEmpty(t *testing.T) {
	assert.Empty(t, parseOperators(""))
}

func TestParseLanesDefault(t *testing.T) {
	assert.Equal(t, []string{"Lane 1", "Lane 2"}, parseLanes(""))
	assert.Equal(t, []string{"A"}, parseLanes(" A ,"))
}
