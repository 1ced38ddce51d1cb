package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/awaybot/awaybot/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 6000, cfg.TokenBudget)
	assert.Equal(t, 40, cfg.MaxMessages)
	assert.Equal(t, 10, cfg.FallbackMessages)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 1000, cfg.Retention)
	assert.Equal(t, time.Duration(0), cfg.TTL)
	assert.Equal(t, 10, cfg.FactsLimit)
}

func TestConfigFrom_Empty(t *testing.T) {
	assert.Equal(t, DefaultConfig(), ConfigFrom(config.MemoryConfig{}))
}

func TestConfigFrom_Partial(t *testing.T) {
	cfg := ConfigFrom(config.MemoryConfig{TokenBudget: 500, MaxMessages: 3, TTL: time.Hour})
	assert.Equal(t, 500, cfg.TokenBudget)
	assert.Equal(t, 3, cfg.MaxMessages)
	assert.Equal(t, time.Hour, cfg.TTL)
	// Fallback can never exceed the window.
	assert.Equal(t, 3, cfg.FallbackMessages)
	// Defaults for unspecified fields
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 1000, cfg.Retention)
}

func TestConfigFrom_RetentionCoversWindow(t *testing.T) {
	cfg := ConfigFrom(config.MemoryConfig{MaxMessages: 2000, Retention: 100})
	assert.Equal(t, 2000, cfg.Retention)
}
