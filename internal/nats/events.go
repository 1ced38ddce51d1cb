package nats

import (
	"strings"
	"time"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamChat   = "AWAYBOT_CHAT"
	StreamEvents = "AWAYBOT_EVENTS"
)

// Subject constants.
const (
	SubjectInboundPrefix  = "chat.inbound"  // chat.inbound.{user_id}
	SubjectOutboundPrefix = "chat.outbound" // chat.outbound.{user_id}
	SubjectInboundAll     = SubjectInboundPrefix + ".>"
	subjectEventsPrefix   = "awaybot.events"
	SubjectAuditEvent     = subjectEventsPrefix + ".audit"
)

// InboundSubject returns the subject the platform bridge publishes a user's
// messages on.
func InboundSubject(userID string) string {
	return SubjectInboundPrefix + "." + subjectToken(userID)
}

// OutboundSubject returns the subject replies to a user are published on.
func OutboundSubject(userID string) string {
	return SubjectOutboundPrefix + "." + subjectToken(userID)
}

// subjectToken makes a user ID safe as a single subject token.
func subjectToken(s string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}

// InboundMessage is published by the chat platform bridge when a user
// writes to the owner.
type InboundMessage struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Username   string    `json:"username,omitempty"`
	Locale     string    `json:"locale,omitempty"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// OutboundMessage is published for the bridge to deliver back to the user.
type OutboundMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	InReplyTo string    `json:"in_reply_to,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// AuditEvent is published for compliance/audit logging.
type AuditEvent struct {
	UserID    string    `json:"user_id"`
	EventType string    `json:"event_type"`
	Severity  string    `json:"severity"` // info, warn, error
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}
