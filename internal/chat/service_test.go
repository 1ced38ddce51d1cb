package chat

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/philippgille/chromem-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awaybot/awaybot/internal/config"
	"github.com/awaybot/awaybot/internal/database"
	"github.com/awaybot/awaybot/internal/embedding"
	"github.com/awaybot/awaybot/internal/governance/audit"
	"github.com/awaybot/awaybot/internal/governance/quota"
	"github.com/awaybot/awaybot/internal/memory"
	inats "github.com/awaybot/awaybot/internal/nats"
	"github.com/awaybot/awaybot/internal/tokens"
	"github.com/awaybot/awaybot/internal/users"
)

type fakeLLM struct {
	mu     sync.Mutex
	calls  int
	blocks []memory.Block
	reply  string
	err    error
}

func (f *fakeLLM) Complete(_ context.Context, blocks []memory.Block, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.blocks = blocks
	return f.reply, f.err
}

type recordingAudit struct {
	mu     sync.Mutex
	events []inats.AuditEvent
}

func (r *recordingAudit) PublishAuditEvent(_ context.Context, e inats.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingAudit) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

var testChatConfig = config.ChatConfig{
	ApologyText: "sorry, try later",
	BusyText:    "slow down",
}

type fixture struct {
	svc       *Service
	llm       *fakeLLM
	audit     *recordingAudit
	shortTerm *memory.ShortTermStore
	longTerm  *memory.LongTermStore
	facts     memory.FactStore
	users     *users.Service
	autoReply *AutoReply
}

func setup(t *testing.T, perMinute int) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := memory.DefaultConfig()
	emb := embedding.NewHashEmbedder(384)
	f := &fixture{
		llm:       &fakeLLM{reply: "Hi Alice, they will get back to you soon."},
		audit:     &recordingAudit{},
		shortTerm: memory.NewShortTermStore(rdb, tokens.EstimateCounter{}, cfg),
		longTerm:  memory.NewLongTermStore(emb, memory.NewChromemIndex(chromem.NewDB(), emb.Dimensions()), cfg),
		facts:     memory.NewSQLiteFactStore(db),
		users:     users.NewService(users.NewSQLiteRepository(db)),
		autoReply: NewAutoReply(rdb),
	}
	assembler := memory.NewContextAssembler(f.facts, f.shortTerm, f.longTerm, memory.Prompts{Default: "be helpful"}, cfg)

	f.svc = NewService(Deps{
		Users:     f.users,
		History:   f.shortTerm,
		Facts:     memory.NewFactExtractor(f.facts),
		Assembler: assembler,
		LLM:       f.llm,
		LongTerm:  f.longTerm,
		Quota:     quota.NewService(quota.NewRateLimiter(rdb), perMinute),
		Audit:     f.audit,
		AutoReply: f.autoReply,
	}, testChatConfig, 200)
	return f
}

func inbound(id, userID, text string) inats.InboundMessage {
	return inats.InboundMessage{
		ID:         id,
		UserID:     userID,
		Username:   "alice",
		Text:       text,
		ReceivedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestService_Handle(t *testing.T) {
	f := setup(t, 10)
	ctx := context.Background()

	reply, err := f.svc.Handle(ctx, inbound("m1", "42", "My name is Alice. Is the owner around?"))
	require.NoError(t, err)

	assert.Equal(t, f.llm.reply, reply.Text)
	assert.False(t, reply.Fallback)
	assert.Equal(t, "m1", reply.InReplyTo)
	assert.Equal(t, "42", reply.UserID)

	// The prompt opens with the system prompt and ends with the message.
	require.NotEmpty(t, f.llm.blocks)
	assert.Equal(t, memory.Block{Role: memory.RoleSystem, Content: "be helpful"}, f.llm.blocks[0])
	assert.Contains(t, f.llm.blocks[1].Content, "- name: Alice")
	assert.Equal(t, memory.Block{Role: memory.RoleUser, Content: "My name is Alice. Is the owner around?"}, f.llm.blocks[len(f.llm.blocks)-1])

	turns, err := f.shortTerm.Recent(ctx, "42", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, memory.RoleUser, turns[0].Role)
	assert.Equal(t, "m1", turns[0].ID)
	assert.Equal(t, memory.RoleAssistant, turns[1].Role)
	assert.Equal(t, f.llm.reply, turns[1].Content)

	stats, err := f.longTerm.Stats(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MessageMemories)

	user, err := f.users.GetByID(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "alice", user.Username)

	assert.Equal(t, []string{audit.EventReplySent}, f.audit.types())
}

func TestService_CompletionFailureApologizes(t *testing.T) {
	f := setup(t, 10)
	f.llm.err = errors.New("upstream 503")
	ctx := context.Background()

	reply, err := f.svc.Handle(ctx, inbound("m1", "42", "hello?"))
	require.NoError(t, err)
	assert.Equal(t, "sorry, try later", reply.Text)
	assert.True(t, reply.Fallback)

	turns, err := f.shortTerm.Recent(ctx, "42", 10)
	require.NoError(t, err)
	require.Len(t, turns, 1, "only the user turn is stored")
	assert.Equal(t, memory.RoleUser, turns[0].Role)

	assert.Equal(t, []string{audit.EventReplyFailed}, f.audit.types())
}

func TestService_AutoReplyOffRecordsWithoutReplying(t *testing.T) {
	f := setup(t, 10)
	ctx := context.Background()
	require.NoError(t, f.autoReply.SetEnabled(ctx, false))

	reply, err := f.svc.Handle(ctx, inbound("m1", "42", "My name is Alice. Call me back?"))
	assert.ErrorIs(t, err, ErrAutoReplyOff)
	assert.Nil(t, reply)
	assert.Zero(t, f.llm.calls)

	turns, err := f.shortTerm.Recent(ctx, "42", 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, memory.RoleUser, turns[0].Role)
	assert.Equal(t, "m1", turns[0].ID)

	fact, err := f.facts.Get(ctx, "42", "name")
	require.NoError(t, err)
	require.NotNil(t, fact)
	assert.Equal(t, "Alice", fact.Value)

	stats, err := f.longTerm.Stats(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MessageMemories)

	assert.Equal(t, []string{audit.EventReplySkipped}, f.audit.types())

	require.NoError(t, f.autoReply.SetEnabled(ctx, true))
	reply, err = f.svc.Handle(ctx, inbound("m2", "42", "still there?"))
	require.NoError(t, err)
	assert.Equal(t, f.llm.reply, reply.Text)
	assert.Equal(t, 1, f.llm.calls)
}

func TestService_AutoReplyOffSkipsQuota(t *testing.T) {
	f := setup(t, 1)
	ctx := context.Background()
	require.NoError(t, f.autoReply.SetEnabled(ctx, false))

	for _, id := range []string{"m1", "m2", "m3"} {
		_, err := f.svc.Handle(ctx, inbound(id, "42", "ping"))
		assert.ErrorIs(t, err, ErrAutoReplyOff)
	}

	n, err := f.shortTerm.Count(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NotContains(t, f.audit.types(), audit.EventRateLimited)
}

func TestService_RateLimited(t *testing.T) {
	f := setup(t, 1)
	ctx := context.Background()

	_, err := f.svc.Handle(ctx, inbound("m1", "42", "first"))
	require.NoError(t, err)

	reply, err := f.svc.Handle(ctx, inbound("m2", "42", "second"))
	require.NoError(t, err)
	assert.Equal(t, "slow down", reply.Text)
	assert.True(t, reply.Fallback)
	assert.Equal(t, 1, f.llm.calls)

	n, err := f.shortTerm.Count(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "the limited message is not recorded")

	assert.Equal(t, []string{audit.EventReplySent, audit.EventRateLimited}, f.audit.types())
}

func TestService_RedeliveryIsIdempotent(t *testing.T) {
	f := setup(t, 10)
	ctx := context.Background()
	msg := inbound("m1", "42", "are you there")

	_, err := f.svc.Handle(ctx, msg)
	require.NoError(t, err)
	_, err = f.svc.Handle(ctx, msg)
	require.NoError(t, err)

	n, err := f.shortTerm.Count(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats, err := f.longTerm.Stats(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MessageMemories)
}

func TestService_RejectsInvalidInput(t *testing.T) {
	f := setup(t, 10)
	ctx := context.Background()

	_, err := f.svc.Handle(ctx, inbound("m1", "42", "   "))
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = f.svc.Handle(ctx, inbound("m1", "", "hi"))
	assert.ErrorIs(t, err, memory.ErrEmptyUserID)

	assert.Zero(t, f.llm.calls)
}

func TestService_OptionalDepsMayBeNil(t *testing.T) {
	f := setup(t, 10)
	assembler := memory.NewContextAssembler(nil, f.shortTerm, nil, memory.Prompts{Default: "p"}, memory.DefaultConfig())
	svc := NewService(Deps{History: f.shortTerm, Assembler: assembler, LLM: f.llm}, testChatConfig, 0)

	reply, err := svc.Handle(context.Background(), inbound("", "7", "hello"))
	require.NoError(t, err)
	assert.Equal(t, f.llm.reply, reply.Text)
	assert.Empty(t, reply.InReplyTo)
}
