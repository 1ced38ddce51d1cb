package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/awaybot/awaybot/internal/nats"
)

const (
	consumerName = "chat-responder"
	retryDelay   = 5 * time.Second
)

// Handler handles one inbound message.
type Handler interface {
	Handle(ctx context.Context, msg inats.InboundMessage) (*Reply, error)
}

// OutboundPublisher delivers replies to the platform bridge.
type OutboundPublisher interface {
	PublishOutboundMessage(ctx context.Context, msg inats.OutboundMessage) error
}

// Consumer pulls inbound chat messages from JetStream, runs them through
// the per-user lanes and publishes the replies.
type Consumer struct {
	handler     Handler
	publisher   OutboundPublisher
	consumerMgr *inats.ConsumerManager
	lanes       *Lanes
}

func NewConsumer(handler Handler, publisher OutboundPublisher, consumerMgr *inats.ConsumerManager, lanes *Lanes) *Consumer {
	return &Consumer{
		handler:     handler,
		publisher:   publisher,
		consumerMgr: consumerMgr,
		lanes:       lanes,
	}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamChat, consumerName, inats.SubjectInboundAll)
	if err != nil {
		return err
	}

	slog.Info("chat consumer started", "consumer", consumerName)

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("chat consumer: fetching messages", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.dispatch(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

// dispatch decodes msg and queues it on the sender's lane. The message is
// acked or nacked once the lane has handled it.
func (c *Consumer) dispatch(ctx context.Context, msg jetstream.Msg) {
	var inbound inats.InboundMessage
	if err := json.Unmarshal(msg.Data(), &inbound); err != nil {
		slog.Error("chat consumer: unmarshaling inbound message", "error", err)
		_ = msg.Term()
		return
	}
	if inbound.UserID == "" {
		slog.Warn("chat consumer: inbound message without user", "id", inbound.ID)
		_ = msg.Term()
		return
	}

	err := c.lanes.Submit(inbound.UserID, func() { c.process(ctx, msg, inbound) })
	if err != nil {
		_ = msg.NakWithDelay(retryDelay)
	}
}

func (c *Consumer) process(ctx context.Context, msg jetstream.Msg, inbound inats.InboundMessage) {
	reply, err := c.handler.Handle(ctx, inbound)
	if errors.Is(err, ErrEmptyMessage) || errors.Is(err, ErrAutoReplyOff) {
		_ = msg.Ack()
		return
	}
	if err != nil {
		slog.Error("chat consumer: handling message", "id", inbound.ID, "user_id", inbound.UserID, "error", err)
		_ = msg.NakWithDelay(retryDelay)
		return
	}

	outbound := inats.OutboundMessage{
		ID:        reply.ID,
		UserID:    reply.UserID,
		Text:      reply.Text,
		InReplyTo: reply.InReplyTo,
		SentAt:    reply.SentAt,
	}
	if err := c.publisher.PublishOutboundMessage(ctx, outbound); err != nil {
		slog.Error("chat consumer: publishing reply", "id", inbound.ID, "error", err)
		_ = msg.NakWithDelay(retryDelay)
		return
	}

	_ = msg.Ack()
}
