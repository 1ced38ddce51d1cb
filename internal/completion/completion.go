// Package completion sends assembled prompts to a chat model and returns
// the reply text.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/awaybot/awaybot/internal/config"
	"github.com/awaybot/awaybot/internal/memory"
)

var ErrEmptyReply = errors.New("completion: model returned an empty reply")

// Client produces one reply for an ordered list of prompt blocks.
type Client interface {
	Complete(ctx context.Context, blocks []memory.Block, maxTokens int) (string, error)
}

const (
	retryInitialInterval = 4 * time.Second
	retryMaxInterval     = 10 * time.Second
)

// New builds the configured provider client wrapped with retries.
func New(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	var (
		inner Client
		err   error
	)
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		inner, err = NewOpenAIClient(ctx, cfg)
	case "anthropic":
		inner = NewAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewRetrying(inner, cfg.Retries, retryInitialInterval, retryMaxInterval), nil
}
