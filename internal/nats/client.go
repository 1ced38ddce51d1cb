package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/awaybot/awaybot/internal/config"
)

// duplicateWindow is how long JetStream remembers a message ID. A chat
// platform retrying a delivery inside the window is published only once.
const duplicateWindow = 2 * time.Minute

// Client is a NATS connection with the awaybot streams in place.
type Client struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// NewClient connects, retrying in the background while the server is not
// up yet, and creates or updates the chat and event streams.
func NewClient(ctx context.Context, cfg config.NATSConfig) (*Client, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("awaybot"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrlRedacted())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	for _, sc := range streamConfigs() {
		if _, err := js.CreateOrUpdateStream(ctx, sc); err != nil {
			nc.Close()
			return nil, fmt.Errorf("ensuring stream %s: %w", sc.Name, err)
		}
	}

	slog.Info("connected to NATS", "url", nc.ConnectedUrlRedacted())
	return &Client{conn: nc, js: js}, nil
}

// streamConfigs describes the two streams. Chat traffic is short lived;
// audit events are kept until the audit consumer has had ample time to
// persist them.
func streamConfigs() []jetstream.StreamConfig {
	return []jetstream.StreamConfig{
		{
			Name:        StreamChat,
			Description: "inbound messages and outbound replies",
			Subjects:    []string{SubjectInboundPrefix + ".>", SubjectOutboundPrefix + ".>"},
			Retention:   jetstream.LimitsPolicy,
			Storage:     jetstream.FileStorage,
			MaxAge:      24 * time.Hour,
			Duplicates:  duplicateWindow,
		},
		{
			Name:        StreamEvents,
			Description: "audit events",
			Subjects:    []string{subjectEventsPrefix + ".>"},
			Retention:   jetstream.LimitsPolicy,
			Storage:     jetstream.FileStorage,
			MaxAge:      7 * 24 * time.Hour,
		},
	}
}

func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// Healthy reports whether the connection is currently up.
func (c *Client) Healthy() bool {
	return c.conn.IsConnected()
}

// Close drains in-flight messages and closes the connection.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		slog.Warn("draining NATS connection", "error", err)
	}
}
