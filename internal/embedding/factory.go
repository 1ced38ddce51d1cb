package embedding

import (
	"fmt"

	"github.com/awaybot/awaybot/internal/config"
)

// New builds the configured embedder wrapped in a cache. Remote providers
// are cached; the hash embedder is cheap enough to run uncached.
func New(cfg config.EmbedConfig) (Embedder, error) {
	var inner Embedder
	switch cfg.Provider {
	case "hash", "":
		return NewHashEmbedder(cfg.Dimensions), nil
	case "ollama":
		e, err := NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Dimensions)
		if err != nil {
			return nil, err
		}
		inner = e
	case "openai":
		inner = NewOpenAIEmbedder(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embed provider %q", cfg.Provider)
	}
	return NewCached(inner, cfg.Provider+":"+cfg.Model, cfg.CacheSize)
}
