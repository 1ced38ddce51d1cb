package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/awaybot/awaybot/internal/config"
	"github.com/awaybot/awaybot/internal/memory"
)

const defaultAnthropicModel = "claude-3-5-haiku-latest"

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	client      anthropic.Client
	model       string
	temperature float64
	maxTokens   int
}

func NewAnthropicClient(cfg config.LLMConfig) *AnthropicClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Retries are handled by Retrying.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" || strings.HasPrefix(model, "gpt-") {
		model = defaultAnthropicModel
	}
	return &AnthropicClient{
		client:      anthropic.NewClient(opts...),
		model:       model,
		temperature: float64(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
	}
}

func (c *AnthropicClient) Complete(ctx context.Context, blocks []memory.Block, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	system, turns := splitSystem(blocks)
	if len(turns) == 0 {
		return "", fmt.Errorf("anthropic: no user message to reply to")
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(maxTokens),
		Messages:    toAnthropic(turns),
		Temperature: anthropic.Float(c.temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	reply := strings.TrimSpace(sb.String())
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}

// splitSystem joins every system block into one system prompt and merges
// consecutive turns of the same role. Leading assistant turns are dropped
// because the conversation must open with the user.
func splitSystem(blocks []memory.Block) (string, []memory.Block) {
	var system []string
	var turns []memory.Block
	for _, b := range blocks {
		if b.Role == memory.RoleSystem {
			system = append(system, b.Content)
			continue
		}
		role := b.Role
		if role != memory.RoleAssistant {
			role = memory.RoleUser
		}
		if len(turns) == 0 && role == memory.RoleAssistant {
			continue
		}
		if n := len(turns); n > 0 && turns[n-1].Role == role {
			turns[n-1].Content += "\n\n" + b.Content
			continue
		}
		turns = append(turns, memory.Block{Role: role, Content: b.Content})
	}
	return strings.Join(system, "\n\n"), turns
}

func toAnthropic(turns []memory.Block) []anthropic.MessageParam {
	msgs := make([]anthropic.MessageParam, len(turns))
	for i, t := range turns {
		if t.Role == memory.RoleAssistant {
			msgs[i] = anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Content))
		} else {
			msgs[i] = anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content))
		}
	}
	return msgs
}
