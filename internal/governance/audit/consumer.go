package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/awaybot/awaybot/internal/nats"
)

const persisterName = "audit-persister"

// Consumer persists audit events published on the events stream.
type Consumer struct {
	store       Store
	consumerMgr *inats.ConsumerManager
}

func NewConsumer(store Store, consumerMgr *inats.ConsumerManager) *Consumer {
	return &Consumer{store: store, consumerMgr: consumerMgr}
}

// Start persists events until ctx is cancelled. Events are written one at
// a time in delivery order.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamEvents, persisterName, inats.SubjectAuditEvent)
	if err != nil {
		return err
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		c.persist(ctx, msg)
	}, jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
		slog.Debug("audit consumer: pull error", "error", err)
	}))
	if err != nil {
		return fmt.Errorf("consuming audit events: %w", err)
	}
	slog.Info("audit consumer started", "consumer", persisterName)

	<-ctx.Done()
	cc.Stop()
	return nil
}

func (c *Consumer) persist(ctx context.Context, msg jetstream.Msg) {
	var event inats.AuditEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		slog.Error("audit consumer: dropping malformed event", "error", err)
		_ = msg.Term()
		return
	}

	if err := c.store.Insert(ctx, convertEventToLog(event)); err != nil {
		slog.Error("audit consumer: persisting event", "error", err, "event_type", event.EventType)
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}

// convertEventToLog maps a bus event to a table row. Details are stored as
// {"message": "..."}.
func convertEventToLog(event inats.AuditEvent) *AuditLog {
	log := &AuditLog{
		ID:        uuid.New(),
		UserID:    event.UserID,
		EventType: event.EventType,
		Severity:  event.Severity,
		CreatedAt: event.Timestamp,
	}
	if data, err := json.Marshal(map[string]string{"message": event.Details}); err == nil {
		log.Details = data
	}
	return log
}

// Recorder writes audit events straight to a store. It stands in for the
// NATS publisher when no broker is configured.
type Recorder struct {
	store Store
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

func (r *Recorder) PublishAuditEvent(ctx context.Context, event inats.AuditEvent) error {
	return r.store.Insert(ctx, convertEventToLog(event))
}
