package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/awaybot/awaybot/internal/config"
	"github.com/awaybot/awaybot/internal/memory"
)

type generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// OpenAIClient talks to any OpenAI-compatible chat endpoint through eino.
type OpenAIClient struct {
	model generator
}

func NewOpenAIClient(ctx context.Context, cfg config.LLMConfig) (*OpenAIClient, error) {
	maxTokens := cfg.MaxTokens
	temperature := cfg.Temperature

	chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat model: %w", err)
	}
	return &OpenAIClient{model: chat}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, blocks []memory.Block, maxTokens int) (string, error) {
	var opts []model.Option
	if maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(maxTokens))
	}

	out, err := c.model.Generate(ctx, toSchema(blocks), opts...)
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", err)
	}
	reply := strings.TrimSpace(out.Content)
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}

func toSchema(blocks []memory.Block) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(blocks))
	for _, b := range blocks {
		switch b.Role {
		case memory.RoleSystem:
			msgs = append(msgs, schema.SystemMessage(b.Content))
		case memory.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(b.Content, nil))
		default:
			msgs = append(msgs, schema.UserMessage(b.Content))
		}
	}
	return msgs
}
