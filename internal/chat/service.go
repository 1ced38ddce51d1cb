// Package chat runs one reply turn: it records the user's message, builds
// the prompt from memory, asks the model and records the answer.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/awaybot/awaybot/internal/completion"
	"github.com/awaybot/awaybot/internal/config"
	"github.com/awaybot/awaybot/internal/governance/audit"
	"github.com/awaybot/awaybot/internal/governance/quota"
	"github.com/awaybot/awaybot/internal/memory"
	"github.com/awaybot/awaybot/internal/metrics"
	inats "github.com/awaybot/awaybot/internal/nats"
)

var (
	ErrEmptyMessage = errors.New("chat: empty message")
	// ErrAutoReplyOff reports that the message was recorded but no reply is
	// due because the owner switched auto-reply off.
	ErrAutoReplyOff = errors.New("chat: auto-reply is off")
)

type UserToucher interface {
	Touch(ctx context.Context, id, username, locale string) error
}

type History interface {
	Append(ctx context.Context, userID string, role memory.Role, text string, p memory.AppendParams) (memory.ChatTurn, error)
}

type FactExtractor interface {
	Extract(ctx context.Context, userID, text string) ([]memory.Fact, error)
}

type Assembler interface {
	Build(ctx context.Context, userID, currentText string) ([]memory.Block, error)
}

type MessageIndexer interface {
	IndexMessage(ctx context.Context, userID, text, messageID string, metadata map[string]string) error
}

type QuotaChecker interface {
	CheckQuota(ctx context.Context, userID string) error
}

type AutoReplySwitch interface {
	Enabled(ctx context.Context) (bool, error)
}

type AuditPublisher interface {
	PublishAuditEvent(ctx context.Context, event inats.AuditEvent) error
}

// Deps are the collaborators of a Service. Users, Facts, LongTerm, Quota,
// AutoReply and Audit are optional.
type Deps struct {
	Users     UserToucher
	History   History
	Facts     FactExtractor
	Assembler Assembler
	LLM       completion.Client
	LongTerm  MessageIndexer
	Quota     QuotaChecker
	AutoReply AutoReplySwitch
	Audit     AuditPublisher
}

// Reply is the text to send back for one inbound message. Fallback is set
// when Text is the busy or apology text rather than a model answer.
type Reply struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	InReplyTo string    `json:"in_reply_to,omitempty"`
	Fallback  bool      `json:"fallback"`
	SentAt    time.Time `json:"sent_at"`
}

type Service struct {
	deps      Deps
	cfg       config.ChatConfig
	maxTokens int
	now       func() time.Time
}

func NewService(deps Deps, cfg config.ChatConfig, maxTokens int) *Service {
	return &Service{deps: deps, cfg: cfg, maxTokens: maxTokens, now: time.Now}
}

// Handle produces the reply to one inbound message. Only failures to record
// the user's message are returned as errors; a failed completion yields the
// apology text. With auto-reply off the message is still remembered and
// ErrAutoReplyOff is returned instead of a reply.
func (s *Service) Handle(ctx context.Context, msg inats.InboundMessage) (*Reply, error) {
	if msg.UserID == "" {
		return nil, memory.ErrEmptyUserID
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = s.now()
	}

	replying := s.autoReplyEnabled(ctx)

	if replying && s.deps.Quota != nil {
		if err := s.deps.Quota.CheckQuota(ctx, msg.UserID); errors.Is(err, quota.ErrRateLimited) {
			metrics.ChatMessagesTotal.WithLabelValues("rate_limited").Inc()
			s.audit(ctx, msg.UserID, audit.EventRateLimited, "warn", "message dropped by rate limit")
			return s.reply(msg, s.cfg.BusyText, true), nil
		}
	}

	if s.deps.Users != nil {
		if err := s.deps.Users.Touch(ctx, msg.UserID, msg.Username, msg.Locale); err != nil {
			slog.Warn("chat: failed to touch user", "user_id", msg.UserID, "error", err)
		}
	}

	userTurn, err := s.deps.History.Append(ctx, msg.UserID, memory.RoleUser, text, memory.AppendParams{
		ID:        msg.ID,
		CreatedAt: msg.ReceivedAt,
	})
	if err != nil {
		metrics.ChatMessagesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("recording user message: %w", err)
	}

	if s.deps.Facts != nil {
		if _, err := s.deps.Facts.Extract(ctx, msg.UserID, text); err != nil {
			slog.Warn("chat: fact extraction failed", "user_id", msg.UserID, "error", err)
		}
	}

	if !replying {
		s.index(ctx, msg.UserID, text, userTurn.ID)
		metrics.ChatMessagesTotal.WithLabelValues("skipped").Inc()
		s.audit(ctx, msg.UserID, audit.EventReplySkipped, "info", "auto-reply is off")
		return nil, ErrAutoReplyOff
	}

	answer, err := s.complete(ctx, msg.UserID, text)
	if err != nil {
		slog.Error("chat: completion failed", "user_id", msg.UserID, "error", err)
		metrics.ChatMessagesTotal.WithLabelValues("fallback").Inc()
		s.audit(ctx, msg.UserID, audit.EventReplyFailed, "error", "completion failed")
		return s.reply(msg, s.cfg.ApologyText, true), nil
	}

	replyID := ""
	if msg.ID != "" {
		replyID = msg.ID + "-reply"
	}
	if _, err := s.deps.History.Append(ctx, msg.UserID, memory.RoleAssistant, answer, memory.AppendParams{ID: replyID}); err != nil {
		slog.Warn("chat: failed to record reply", "user_id", msg.UserID, "error", err)
	}

	s.index(ctx, msg.UserID, text, userTurn.ID)

	metrics.ChatMessagesTotal.WithLabelValues("ok").Inc()
	s.audit(ctx, msg.UserID, audit.EventReplySent, "info", fmt.Sprintf("reply of %d characters", len([]rune(answer))))
	return s.reply(msg, answer, false), nil
}

// autoReplyEnabled fails open so a Redis outage does not silence the
// assistant.
func (s *Service) autoReplyEnabled(ctx context.Context) bool {
	if s.deps.AutoReply == nil {
		return true
	}
	enabled, err := s.deps.AutoReply.Enabled(ctx)
	if err != nil {
		slog.Warn("chat: auto-reply check failed, replying", "error", err)
		return true
	}
	return enabled
}

func (s *Service) index(ctx context.Context, userID, text, messageID string) {
	if s.deps.LongTerm == nil {
		return
	}
	meta := map[string]string{"role": string(memory.RoleUser)}
	if err := s.deps.LongTerm.IndexMessage(ctx, userID, text, messageID, meta); err != nil {
		slog.Warn("chat: failed to index message", "user_id", userID, "error", err)
	}
}

func (s *Service) complete(ctx context.Context, userID, text string) (string, error) {
	blocks, err := s.deps.Assembler.Build(ctx, userID, text)
	if err != nil {
		return "", fmt.Errorf("building context: %w", err)
	}

	timer := prometheus.NewTimer(metrics.CompletionDuration)
	defer timer.ObserveDuration()
	return s.deps.LLM.Complete(ctx, blocks, s.maxTokens)
}

func (s *Service) reply(msg inats.InboundMessage, text string, fallback bool) *Reply {
	return &Reply{
		ID:        uuid.New().String(),
		UserID:    msg.UserID,
		Text:      text,
		InReplyTo: msg.ID,
		Fallback:  fallback,
		SentAt:    s.now().UTC(),
	}
}

func (s *Service) audit(ctx context.Context, userID, eventType, severity, details string) {
	if s.deps.Audit == nil {
		return
	}
	event := inats.AuditEvent{
		UserID:    userID,
		EventType: eventType,
		Severity:  severity,
		Details:   details,
		Timestamp: s.now().UTC(),
	}
	if err := s.deps.Audit.PublishAuditEvent(ctx, event); err != nil {
		slog.Error("publishing audit event", "error", err)
	}
}
