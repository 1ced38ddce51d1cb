package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	if len(c.JWT.Secret) < 32 {
		errs = append(errs, "JWT_SECRET must be at least 32 characters")
	}

	// Encryption key is optional, but when set it must be exactly 64 hex chars (32 bytes)
	if c.Encryption.Key == "" {
		slog.Warn("ENCRYPTION_KEY is empty, chat history is stored in plain text")
	} else if len(c.Encryption.Key) != 64 {
		errs = append(errs, "ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes)")
	} else if _, err := hex.DecodeString(c.Encryption.Key); err != nil {
		errs = append(errs, "ENCRYPTION_KEY must be valid hex")
	}

	switch c.DB.Driver {
	case "postgres":
		if c.DB.Password == "" {
			errs = append(errs, "DB_PASSWORD is required for the postgres driver")
		}
		if c.DB.Port < 1 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Sprintf("DB_PORT must be 1-65535, got %d", c.DB.Port))
		}
	case "sqlite":
		if c.DB.SQLitePath == "" {
			errs = append(errs, "DB_SQLITE_PATH is required for the sqlite driver")
		}
		if c.Vector.Backend == "pgvector" {
			errs = append(errs, "VECTOR_BACKEND=pgvector requires DB_DRIVER=postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("DB_DRIVER must be postgres or sqlite, got %q", c.DB.Driver))
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1-65535, got %d", c.Server.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1-65535, got %d", c.Redis.Port))
	}

	// Memory budgets
	if c.Memory.TokenBudget < 1 {
		errs = append(errs, "MEMORY_TOKEN_BUDGET must be positive")
	}
	if c.Memory.MaxMessages < 1 {
		errs = append(errs, "MEMORY_MAX_MESSAGES must be positive")
	}
	if c.Memory.FallbackMessages < 1 || c.Memory.FallbackMessages > c.Memory.MaxMessages {
		errs = append(errs, "MEMORY_FALLBACK_MESSAGES must be between 1 and MEMORY_MAX_MESSAGES")
	}
	if c.Memory.TopK < 1 {
		errs = append(errs, "MEMORY_TOP_K must be positive")
	}
	if c.Memory.Retention < c.Memory.MaxMessages {
		errs = append(errs, "MEMORY_RETENTION must be at least MEMORY_MAX_MESSAGES")
	}

	if c.Ingest.ChunkSize < 1 {
		errs = append(errs, "INGEST_CHUNK_SIZE must be positive")
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		errs = append(errs, "INGEST_CHUNK_OVERLAP must be between 0 and INGEST_CHUNK_SIZE-1")
	}

	switch c.Embed.Provider {
	case "hash", "ollama", "openai":
	default:
		errs = append(errs, fmt.Sprintf("EMBED_PROVIDER must be hash, ollama or openai, got %q", c.Embed.Provider))
	}
	if c.Embed.Dimensions < 1 {
		errs = append(errs, "EMBED_DIMENSIONS must be positive")
	}

	switch c.Vector.Backend {
	case "chromem", "pgvector":
	default:
		errs = append(errs, fmt.Sprintf("VECTOR_BACKEND must be chromem or pgvector, got %q", c.Vector.Backend))
	}

	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Sprintf("LLM_PROVIDER must be openai or anthropic, got %q", c.LLM.Provider))
	}
	if c.LLM.MaxTokens < 1 {
		errs = append(errs, "LLM_MAX_TOKENS must be positive")
	}

	// Missing API key: warn only, local OpenAI-compatible servers accept none
	if c.LLM.APIKey == "" {
		slog.Warn("LLM_API_KEY is empty, completion requests are sent unauthenticated")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
