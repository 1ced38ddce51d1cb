package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHistory struct {
	turns []ChatTurn
	err   error
}

func (s stubHistory) ContextWindow(context.Context, string, int) ([]ChatTurn, error) {
	return s.turns, s.err
}

type stubRecall struct {
	hits []MemorySummary
	err  error
	topK int
}

func (s *stubRecall) Search(_ context.Context, _, _ string, topK int) ([]MemorySummary, error) {
	s.topK = topK
	return s.hits, s.err
}

func testPrompts() Prompts {
	return Prompts{
		Default: "default prompt",
		Concise: "concise prompt",
		Expert:  "expert prompt",
	}
}

func TestContextAssembler_Order(t *testing.T) {
	facts := newMemFactStore()
	now := time.Now()
	require.NoError(t, facts.Upsert(context.Background(), Fact{UserID: "u1", Key: "name", Value: "Alice", Confidence: 0.9, UpdatedAt: now}))
	require.NoError(t, facts.Upsert(context.Background(), Fact{UserID: "u1", Key: "topic", Value: "python", Confidence: 0.5, UpdatedAt: now}))

	history := stubHistory{turns: []ChatTurn{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello Alice"},
	}}
	recall := &stubRecall{hits: []MemorySummary{
		{Text: "likes python", Score: 0.9},
		{Text: "works remotely", Score: 0.7},
	}}

	a := NewContextAssembler(facts, history, recall, testPrompts(), DefaultConfig())
	blocks, err := a.Build(context.Background(), "u1", "what's new?")
	require.NoError(t, err)

	assert.Equal(t, []Block{
		{Role: RoleSystem, Content: "default prompt"},
		{Role: RoleSystem, Content: "User Context:\n- name: Alice\n- topic: python"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello Alice"},
		{Role: RoleSystem, Content: "Relevant memories:\nlikes python\n\nworks remotely"},
		{Role: RoleUser, Content: "what's new?"},
	}, blocks)
	assert.Equal(t, 5, recall.topK)
}

func TestContextAssembler_ReplyModeSelectsPrompt(t *testing.T) {
	facts := newMemFactStore()
	require.NoError(t, facts.Upsert(context.Background(), Fact{UserID: "u1", Key: ReplyModeKey, Value: "expert", Confidence: 1, UpdatedAt: time.Now()}))

	a := NewContextAssembler(facts, nil, nil, testPrompts(), DefaultConfig())
	blocks, err := a.Build(context.Background(), "u1", "explain goroutines")
	require.NoError(t, err)

	assert.Equal(t, []Block{
		{Role: RoleSystem, Content: "expert prompt"},
		{Role: RoleUser, Content: "explain goroutines"},
	}, blocks)
}

func TestContextAssembler_UnknownModeUsesDefault(t *testing.T) {
	facts := newMemFactStore()
	require.NoError(t, facts.Upsert(context.Background(), Fact{UserID: "u1", Key: ReplyModeKey, Value: "friendly", Confidence: 1, UpdatedAt: time.Now()}))

	// No friendly prompt configured.
	a := NewContextAssembler(facts, nil, nil, testPrompts(), DefaultConfig())
	blocks, err := a.Build(context.Background(), "u1", "hey")
	require.NoError(t, err)
	assert.Equal(t, "default prompt", blocks[0].Content)
}

func TestContextAssembler_DegradesWhenSourcesFail(t *testing.T) {
	facts := newMemFactStore()
	facts.err = errors.New("db down")
	history := stubHistory{err: errors.New("redis down")}
	recall := &stubRecall{err: errors.New("encoder down")}

	a := NewContextAssembler(facts, history, recall, testPrompts(), DefaultConfig())
	blocks, err := a.Build(context.Background(), "u1", "are you there?")
	require.NoError(t, err)

	assert.Equal(t, []Block{
		{Role: RoleSystem, Content: "default prompt"},
		{Role: RoleUser, Content: "are you there?"},
	}, blocks)
}

func TestContextAssembler_CurrentMessageAlwaysLast(t *testing.T) {
	history := stubHistory{turns: []ChatTurn{
		{Role: RoleUser, Content: "one"},
		{Role: RoleAssistant, Content: "two"},
	}}
	a := NewContextAssembler(nil, history, &stubRecall{hits: []MemorySummary{{Text: "memo"}}}, Prompts{}, DefaultConfig())

	for _, text := range []string{"question", ""} {
		blocks, err := a.Build(context.Background(), "u1", text)
		require.NoError(t, err)
		require.NotEmpty(t, blocks)
		assert.Equal(t, Block{Role: RoleUser, Content: text}, blocks[len(blocks)-1])
	}
}

func TestContextAssembler_DropsAppendedCurrentMessage(t *testing.T) {
	history := stubHistory{turns: []ChatTurn{
		{Role: RoleUser, Content: "earlier"},
		{Role: RoleAssistant, Content: "reply"},
		{Role: RoleUser, Content: "now"},
	}}
	a := NewContextAssembler(nil, history, nil, testPrompts(), DefaultConfig())

	blocks, err := a.Build(context.Background(), "u1", "now")
	require.NoError(t, err)
	assert.Equal(t, []Block{
		{Role: RoleSystem, Content: "default prompt"},
		{Role: RoleUser, Content: "earlier"},
		{Role: RoleAssistant, Content: "reply"},
		{Role: RoleUser, Content: "now"},
	}, blocks)
}

func TestContextAssembler_RecallDedupedAgainstHistory(t *testing.T) {
	history := stubHistory{turns: []ChatTurn{{Role: RoleUser, Content: "I like Python"}}}
	recall := &stubRecall{hits: []MemorySummary{{Text: "I like Python"}}}
	a := NewContextAssembler(nil, history, recall, Prompts{}, DefaultConfig())

	blocks, err := a.Build(context.Background(), "u1", "what do I like?")
	require.NoError(t, err)
	assert.Equal(t, []Block{
		{Role: RoleUser, Content: "I like Python"},
		{Role: RoleUser, Content: "what do I like?"},
	}, blocks)
}

func TestContextAssembler_FactsLimit(t *testing.T) {
	facts := newMemFactStore()
	now := time.Now()
	for i, key := range []string{"a", "b", "c"} {
		require.NoError(t, facts.Upsert(context.Background(), Fact{UserID: "u1", Key: key, Value: "v", Confidence: 0.9 - float64(i)*0.1, UpdatedAt: now}))
	}
	require.NoError(t, facts.Upsert(context.Background(), Fact{UserID: "u1", Key: ReplyModeKey, Value: "concise", Confidence: 1, UpdatedAt: now}))

	cfg := DefaultConfig()
	cfg.FactsLimit = 2
	a := NewContextAssembler(facts, nil, nil, testPrompts(), cfg)

	blocks, err := a.Build(context.Background(), "u1", "x")
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	assert.Equal(t, "concise prompt", blocks[0].Content)
	assert.Equal(t, "User Context:\n- a: v\n- b: v", blocks[1].Content)
}

func TestContextAssembler_RejectsEmptyUser(t *testing.T) {
	a := NewContextAssembler(nil, nil, nil, testPrompts(), DefaultConfig())
	_, err := a.Build(context.Background(), "", "hi")
	assert.ErrorIs(t, err, ErrEmptyUserID)
}

func TestContextAssembler_WithRealStores(t *testing.T) {
	ctx := context.Background()
	shortTerm, _ := setupMiniredis(t, DefaultConfig())
	emb := newFixedEmbedder()
	longTerm := NewLongTermStore(emb, NewChromemIndex(chromem.NewDB(), 3), DefaultConfig())
	facts := newMemFactStore()
	extractor := NewFactExtractor(facts)

	_, err := extractor.Extract(ctx, "u1", "My name is Alice. I like Python.")
	require.NoError(t, err)
	appendN(t, shortTerm, "u1", "hello", "hi there", "where is the coffee")
	require.NoError(t, longTerm.IndexMessage(ctx, "u1", "coffee beans on the shelf", "old1", nil))

	a := NewContextAssembler(facts, shortTerm, longTerm, testPrompts(), DefaultConfig())
	blocks, err := a.Build(ctx, "u1", "where is the coffee")
	require.NoError(t, err)

	require.Len(t, blocks, 6)
	assert.Equal(t, "default prompt", blocks[0].Content)
	assert.Contains(t, blocks[1].Content, "- name: Alice")
	assert.Equal(t, Block{Role: RoleUser, Content: "hello"}, blocks[2])
	assert.Equal(t, Block{Role: RoleAssistant, Content: "hi there"}, blocks[3])
	assert.Equal(t, "Relevant memories:\ncoffee beans on the shelf", blocks[4].Content)
	assert.Equal(t, Block{Role: RoleUser, Content: "where is the coffee"}, blocks[5])
}
