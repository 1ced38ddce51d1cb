package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inats "github.com/awaybot/awaybot/internal/nats"
)

// fakeMsg records acknowledgements. Unused jetstream.Msg methods panic.
type fakeMsg struct {
	jetstream.Msg
	data []byte

	mu    sync.Mutex
	acked bool
	naked bool
	term  bool
}

func newFakeMsg(t *testing.T, v any) *fakeMsg {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return &fakeMsg{data: data}
}

func (m *fakeMsg) Data() []byte { return m.data }

func (m *fakeMsg) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = true
	return nil
}

func (m *fakeMsg) NakWithDelay(time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.naked = true
	return nil
}

func (m *fakeMsg) Term() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.term = true
	return nil
}

func (m *fakeMsg) state() (acked, naked, term bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acked, m.naked, m.term
}

type stubHandler struct {
	reply *Reply
	err   error
}

func (s stubHandler) Handle(_ context.Context, msg inats.InboundMessage) (*Reply, error) {
	if s.err != nil {
		return nil, s.err
	}
	r := *s.reply
	r.UserID = msg.UserID
	r.InReplyTo = msg.ID
	return &r, nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []inats.OutboundMessage
	err  error
}

func (p *recordingPublisher) PublishOutboundMessage(_ context.Context, msg inats.OutboundMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msg)
	return nil
}

func dispatchAndWait(c *Consumer, msg *fakeMsg) {
	c.dispatch(context.Background(), msg)
	c.lanes.Close()
}

func TestConsumer_PublishesReplyAndAcks(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewConsumer(stubHandler{reply: &Reply{ID: "r1", Text: "hello"}}, pub, nil, NewLanes(2))
	msg := newFakeMsg(t, inats.InboundMessage{ID: "m1", UserID: "42", Text: "hi"})

	dispatchAndWait(c, msg)

	acked, naked, _ := msg.state()
	assert.True(t, acked)
	assert.False(t, naked)
	require.Len(t, pub.sent, 1)
	assert.Equal(t, inats.OutboundMessage{ID: "r1", UserID: "42", Text: "hello", InReplyTo: "m1"}, pub.sent[0])
}

func TestConsumer_NaksOnHandlerError(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewConsumer(stubHandler{err: errors.New("redis down")}, pub, nil, NewLanes(1))
	msg := newFakeMsg(t, inats.InboundMessage{ID: "m1", UserID: "42", Text: "hi"})

	dispatchAndWait(c, msg)

	acked, naked, _ := msg.state()
	assert.False(t, acked)
	assert.True(t, naked)
	assert.Empty(t, pub.sent)
}

func TestConsumer_NaksOnPublishError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("no stream")}
	c := NewConsumer(stubHandler{reply: &Reply{Text: "x"}}, pub, nil, NewLanes(1))
	msg := newFakeMsg(t, inats.InboundMessage{ID: "m1", UserID: "42", Text: "hi"})

	dispatchAndWait(c, msg)

	_, naked, _ := msg.state()
	assert.True(t, naked)
}

func TestConsumer_AcksEmptyMessage(t *testing.T) {
	c := NewConsumer(stubHandler{err: ErrEmptyMessage}, &recordingPublisher{}, nil, NewLanes(1))
	msg := newFakeMsg(t, inats.InboundMessage{ID: "m1", UserID: "42"})

	dispatchAndWait(c, msg)

	acked, _, _ := msg.state()
	assert.True(t, acked)
}

func TestConsumer_AcksWithoutReplyWhenAutoReplyOff(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewConsumer(stubHandler{err: ErrAutoReplyOff}, pub, nil, NewLanes(1))
	msg := newFakeMsg(t, inats.InboundMessage{ID: "m1", UserID: "42", Text: "hi"})

	dispatchAndWait(c, msg)

	acked, naked, _ := msg.state()
	assert.True(t, acked)
	assert.False(t, naked)
	assert.Empty(t, pub.sent)
}

func TestConsumer_TerminatesMalformed(t *testing.T) {
	c := NewConsumer(stubHandler{}, &recordingPublisher{}, nil, NewLanes(1))

	bad := &fakeMsg{data: []byte("{not json")}
	c.dispatch(context.Background(), bad)
	_, _, term := bad.state()
	assert.True(t, term)

	noUser := newFakeMsg(t, inats.InboundMessage{ID: "m1", Text: "hi"})
	c.dispatch(context.Background(), noUser)
	_, _, term = noUser.state()
	assert.True(t, term)
}

func TestConsumer_NaksWhenLanesClosed(t *testing.T) {
	lanes := NewLanes(1)
	lanes.Close()
	c := NewConsumer(stubHandler{}, &recordingPublisher{}, nil, lanes)
	msg := newFakeMsg(t, inats.InboundMessage{ID: "m1", UserID: "42", Text: "hi"})

	c.dispatch(context.Background(), msg)

	_, naked, _ := msg.state()
	assert.True(t, naked)
}
