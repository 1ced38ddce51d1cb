package memory

import (
	"time"

	"github.com/awaybot/awaybot/internal/config"
)

// Config holds the budgets shared by the stores and the assembler.
type Config struct {
	// TokenBudget caps the summed token count of history in a prompt.
	TokenBudget int
	// MaxMessages caps how many recent turns are considered at all.
	MaxMessages int
	// FallbackMessages is how many recent turns are used when not even the
	// newest turn fits the token budget.
	FallbackMessages int
	// TopK is the number of long-term memories recalled per prompt.
	TopK int
	// Retention is the number of turns kept per user; older ones are dropped.
	Retention int
	// TTL expires a user's whole history after inactivity. Zero keeps it.
	TTL time.Duration
	// FactsLimit caps how many facts are rendered into a prompt.
	FactsLimit int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TokenBudget:      6000,
		MaxMessages:      40,
		FallbackMessages: 10,
		TopK:             5,
		Retention:        1000,
		FactsLimit:       10,
	}
}

// ConfigFrom converts the loaded application settings, keeping defaults for
// any unset value.
func ConfigFrom(c config.MemoryConfig) Config {
	return Config{
		TokenBudget:      c.TokenBudget,
		MaxMessages:      c.MaxMessages,
		FallbackMessages: c.FallbackMessages,
		TopK:             c.TopK,
		Retention:        c.Retention,
		TTL:              c.TTL,
		FactsLimit:       c.FactsLimit,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TokenBudget <= 0 {
		c.TokenBudget = def.TokenBudget
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = def.MaxMessages
	}
	if c.FallbackMessages <= 0 {
		c.FallbackMessages = def.FallbackMessages
	}
	if c.FallbackMessages > c.MaxMessages {
		c.FallbackMessages = c.MaxMessages
	}
	if c.TopK <= 0 {
		c.TopK = def.TopK
	}
	if c.Retention < c.MaxMessages {
		c.Retention = max(def.Retention, c.MaxMessages)
	}
	if c.TTL < 0 {
		c.TTL = 0
	}
	if c.FactsLimit <= 0 {
		c.FactsLimit = def.FactsLimit
	}
	return c
}
