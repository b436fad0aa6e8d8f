package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_USER_NAME", "iris")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "iris-api", cfg.AppName)
	assert.Equal(t, 3003, cfg.Port)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, LockStrategyAdvisory, cfg.LockStrategy)
	assert.Equal(t, 3, cfg.IdentifyMaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "iris", cfg.DatabaseUserName)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("LOCK_STRATEGY", "none")
	t.Setenv("LOCK_WAIT", "250ms")
	t.Setenv("HTTP_SERVER_ALLOW_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, 250*time.Millisecond, cfg.LockWait)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowOrigins)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{StoreDriver: StoreDriverPostgres, LockStrategy: LockStrategyAdvisory, IdentifyMaxAttempts: 3}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.StoreDriver = "sqlite" }, wantErr: "STORE_DRIVER"},
		{name: "unknown strategy", mutate: func(c *Config) { c.LockStrategy = "mutex" }, wantErr: "LOCK_STRATEGY"},
		{name: "advisory needs postgres", mutate: func(c *Config) { c.StoreDriver = StoreDriverMemory }, wantErr: "advisory"},
		{name: "redis needs redis", mutate: func(c *Config) { c.LockStrategy = LockStrategyRedis }, wantErr: "REDIS_ENABLED"},
		{name: "redis enabled", mutate: func(c *Config) { c.LockStrategy = LockStrategyRedis; c.RedisEnabled = true }},
		{name: "memory without locks", mutate: func(c *Config) { c.StoreDriver = StoreDriverMemory; c.LockStrategy = LockStrategyNone }},
		{name: "zero attempts", mutate: func(c *Config) { c.IdentifyMaxAttempts = 0 }, wantErr: "IDENTIFY_MAX_ATTEMPTS"},
		{name: "auth without issuer", mutate: func(c *Config) { c.AuthEnabled = true }, wantErr: "AUTH_ISSUER_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
