package memory

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/awaybot/awaybot/internal/metrics"
)

// FactLister reads a user's facts, highest confidence first.
type FactLister interface {
	List(ctx context.Context, userID string, limit int) ([]Fact, error)
}

// HistoryWindow returns recent turns that fit a token budget.
type HistoryWindow interface {
	ContextWindow(ctx context.Context, userID string, tokenBudget int) ([]ChatTurn, error)
}

// Recaller searches long-term memory.
type Recaller interface {
	Search(ctx context.Context, userID, query string, topK int) ([]MemorySummary, error)
}

// ContextAssembler merges facts, history and long-term recall into the
// ordered prompt sent to the completion client.
type ContextAssembler struct {
	facts   FactLister
	history HistoryWindow
	recall  Recaller
	prompts Prompts
	cfg     Config
}

// NewContextAssembler creates an assembler. Any source may be nil, in which
// case its section is left out.
func NewContextAssembler(facts FactLister, history HistoryWindow, recall Recaller, prompts Prompts, cfg Config) *ContextAssembler {
	return &ContextAssembler{
		facts:   facts,
		history: history,
		recall:  recall,
		prompts: prompts,
		cfg:     cfg.withDefaults(),
	}
}

// Build returns the prompt for currentText in this order: system prompt,
// facts, history, recall, current message. The three sources are read
// concurrently. A failing source is logged and its section left empty, so
// Build only fails on invalid input. The current message is always the
// last block.
//
// The newest history turn is dropped when it is the current message itself,
// since callers append the user turn before building.
func (a *ContextAssembler) Build(ctx context.Context, userID, currentText string) ([]Block, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	var (
		facts   []Fact
		history []ChatTurn
		recall  []MemorySummary
	)

	var g errgroup.Group
	if a.facts != nil {
		g.Go(func() error {
			var err error
			// One extra row leaves room for the reply mode, which is not rendered.
			if facts, err = a.facts.List(ctx, userID, a.cfg.FactsLimit+1); err != nil {
				slog.Warn("memory: failed to load facts", "error", err, "user_id", userID)
				facts = nil
			}
			return nil
		})
	}
	if a.history != nil {
		g.Go(func() error {
			var err error
			if history, err = a.history.ContextWindow(ctx, userID, a.cfg.TokenBudget); err != nil {
				slog.Warn("memory: failed to load history", "error", err, "user_id", userID)
				history = nil
			}
			return nil
		})
	}
	if a.recall != nil && strings.TrimSpace(currentText) != "" {
		g.Go(func() error {
			var err error
			if recall, err = a.recall.Search(ctx, userID, currentText, a.cfg.TopK); err != nil {
				slog.Warn("memory: failed to search long-term memory", "error", err, "user_id", userID)
				recall = nil
			}
			return nil
		})
	}
	_ = g.Wait()

	mode := ""
	var known []Fact
	for _, f := range facts {
		if f.Key == ReplyModeKey {
			mode = f.Value
			continue
		}
		if len(known) < a.cfg.FactsLimit {
			known = append(known, f)
		}
	}

	if n := len(history); n > 0 && history[n-1].Role == RoleUser && history[n-1].Content == currentText {
		history = history[:n-1]
	}

	blocks := make([]Block, 0, len(history)+4)
	if prompt := a.prompts.For(mode); prompt != "" {
		blocks = append(blocks, Block{Role: RoleSystem, Content: prompt})
	}
	if len(known) > 0 {
		blocks = append(blocks, Block{Role: RoleSystem, Content: renderFacts(known)})
	}
	seen := make(map[string]struct{}, len(history))
	for _, t := range history {
		blocks = append(blocks, Block{Role: t.Role, Content: t.Content})
		seen[t.Content] = struct{}{}
	}
	if text := renderRecall(recall, seen); text != "" {
		blocks = append(blocks, Block{Role: RoleSystem, Content: text})
	}
	blocks = append(blocks, Block{Role: RoleUser, Content: currentText})

	metrics.ContextBlocks.Observe(float64(len(blocks)))
	return blocks, nil
}

func renderFacts(facts []Fact) string {
	var b strings.Builder
	b.WriteString("User Context:")
	for _, f := range facts {
		b.WriteString("\n- ")
		b.WriteString(f.Key)
		b.WriteString(": ")
		b.WriteString(f.Value)
	}
	return b.String()
}

func renderRecall(hits []MemorySummary, seen map[string]struct{}) string {
	texts := make([]string, 0, len(hits))
	for _, h := range hits {
		if _, dup := seen[h.Text]; dup {
			continue
		}
		texts = append(texts, h.Text)
	}
	if len(texts) == 0 {
		return ""
	}
	return "Relevant memories:\n" + strings.Join(texts, "\n\n")
}
