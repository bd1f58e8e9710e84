package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMemoryDriverSkipsDatabaseVars(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", DriverMemory)
	t.Setenv("DB_USER", "")

	cfg := Load()
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Empty(t, cfg.DBUser)
	assert.Equal(t, 6, cfg.Checkin.RentalBlockHours)
	assert.Equal(t, 24, cfg.Checkin.MaxStayHours)
	assert.Equal(t, 2*time.Minute, cfg.Checkin.CheckoutClaimTTL)
	assert.Equal(t, 15*time.Minute, cfg.Checkin.RoomTurnover)
	assert.Equal(t, "0.0825", cfg.Checkin.TaxRate.String())
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoadCheckinConfigOverrides(t *testing.T) {
	t.Setenv("RENTAL_BLOCK_HOURS", "8")
	t.Setenv("MAX_STAY_HOURS", "4")
	t.Setenv("CHECKOUT_CLAIM_TTL", "90s")
	t.Setenv("TAX_RATE", "0.1")

	c := LoadCheckinConfig()
	assert.Equal(t, 8, c.RentalBlockHours)
	assert.Equal(t, 8, c.MaxStayHours, "max stay is never shorter than one block")
	assert.Equal(t, 90*time.Second, c.CheckoutClaimTTL)
	assert.Equal(t, "0.1", c.TaxRate.String())
}

func TestLoadRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	rl := LoadRateLimitConfig()
	assert.Equal(t, 1, rl.Capacity)
	assert.Equal(t, 1, rl.RefillTokens)
	assert.Equal(t, 2*time.Second, rl.RefillInterval)
	assert.Equal(t, 10*time.Second, rl.TTL)
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	c := LoadCacheConfig()
	require.True(t, c.Methods["GET"])
	assert.True(t, c.Methods["HEAD"])
	assert.Equal(t, 5*time.Second, c.TTL)
}

func TestLoadBrokerConfigFallsBackToAMQPURL(t *testing.T) {
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("AMQP_URL", "amqp://u:p@broker:5672/")
	b := LoadBrokerConfig()
	assert.Equal(t, "amqp://u:p@broker:5672/", b.URL)
	assert.Equal(t, "clubdesk.occupancy", b.Exchange)
	assert.Equal(t, "logs", b.LogDir)
}

func TestEnvBool(t *testing.T) {
	t.Setenv("X_FLAG", "off")
	assert.False(t, envBool("X_FLAG", true))
	t.Setenv("X_FLAG", "maybe")
	assert.True(t, envBool("X_FLAG", true))
}

func TestLoadRedisConfig(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_TLS", "1")
	c := LoadRedisConfig()
	assert.Equal(t, "cache:6380", c.Addr)
	assert.Equal(t, 3, c.DB)
	assert.True(t, c.TLS)

	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6379")
	assert.Equal(t, "redis:6379", LoadRedisConfig().Addr)
}

func TestDisabledRedisHasNoClient(t *testing.T) {
	rdb, err := NewRedisClient(RedisConfig{Disabled: true})
	require.NoError(t, err)
	assert.Nil(t, rdb)
}
