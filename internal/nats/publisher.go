package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher writes typed events to JetStream.
type Publisher struct {
	js jetstream.JetStream
}

func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishInboundMessage queues a user's message for the chat consumer.
// The message ID doubles as the JetStream dedup ID.
func (p *Publisher) PublishInboundMessage(ctx context.Context, msg InboundMessage) error {
	return p.publish(ctx, InboundSubject(msg.UserID), msg, msg.ID)
}

// PublishOutboundMessage publishes a reply for the platform bridge.
func (p *Publisher) PublishOutboundMessage(ctx context.Context, msg OutboundMessage) error {
	dedupID := ""
	if msg.InReplyTo != "" {
		dedupID = "reply:" + msg.InReplyTo
	}
	return p.publish(ctx, OutboundSubject(msg.UserID), msg, dedupID)
}

func (p *Publisher) PublishAuditEvent(ctx context.Context, event AuditEvent) error {
	return p.publish(ctx, SubjectAuditEvent, event, "")
}

func (p *Publisher) publish(ctx context.Context, subject string, data any, dedupID string) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}

	var opts []jetstream.PublishOpt
	if dedupID != "" {
		opts = append(opts, jetstream.WithMsgID(dedupID))
	}
	ack, err := p.js.Publish(ctx, subject, payload, opts...)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	if ack.Duplicate {
		slog.Debug("nats: duplicate publish ignored", "subject", subject, "msg_id", dedupID)
	}
	return nil
}
