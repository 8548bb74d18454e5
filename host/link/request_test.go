package link

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackctl/host/serial"
	"stackctl/protocol"
)

// scriptedEndpoint answers every Send with a fixed list of inbound items
type scriptedEndpoint struct {
	mu     sync.Mutex
	sent   []protocol.Message
	inbox  []Inbound
	script []Inbound
}

func (e *scriptedEndpoint) Send(msg protocol.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, msg)
	e.inbox = append(e.inbox, e.script...)
}

func (e *scriptedEndpoint) Receive() (Inbound, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.inbox) == 0 {
		return Inbound{}, false
	}
	in := e.inbox[0]
	e.inbox = e.inbox[1:]
	return in, true
}

func TestSendAndWaitSkipsEvents(t *testing.T) {
	reply := protocol.Message{Kind: protocol.GetVersion, Payload: &protocol.Version{Hash: "3f9c2ab"}}
	ep := &scriptedEndpoint{script: []Inbound{
		{Event: &Event{Type: EventConnected, Port: "/dev/ttyACM0"}},
		{Event: &Event{Type: EventIOError, Detail: "read: timeout"}},
		{Message: &reply},
	}}

	var seen []EventType
	got, err := SendAndWait(context.Background(), ep, protocol.NewMessage(protocol.GetVersion),
		WithPollInterval(time.Millisecond),
		WithObserver(func(ev Event) { seen = append(seen, ev.Type) }),
	)
	require.NoError(t, err)
	assert.Equal(t, reply, got)
	assert.Equal(t, []EventType{EventConnected, EventIOError}, seen)
	require.Len(t, ep.sent, 1)
	assert.Equal(t, protocol.GetVersion, ep.sent[0].Kind)
}

func TestSendAndWaitCancelled(t *testing.T) {
	ep := &scriptedEndpoint{script: []Inbound{
		{Event: &Event{Type: EventConnectError, Detail: "no such device"}},
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := SendAndWait(ctx, ep, protocol.Message{Kind: protocol.GetStatus}, WithPollInterval(time.Millisecond))
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	var waitErr *WaitError
	require.ErrorAs(t, err, &waitErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, waitErr.LastEvent)
	assert.Equal(t, EventConnectError, waitErr.LastEvent.Type)
	assert.Contains(t, err.Error(), "no such device")
}

func TestWaitForMessage(t *testing.T) {
	msg := protocol.Message{Kind: protocol.ActionStop}
	ep := &scriptedEndpoint{inbox: []Inbound{{Message: &msg}}}

	got, err := WaitForMessage(context.Background(), ep, WithPollInterval(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, msg, got)
	assert.Empty(t, ep.sent)
}

func TestSendAndWaitOverTransport(t *testing.T) {
	port := serial.NewMockPort()
	tr := newTestTransport(t, map[string]*serial.MockPort{"/dev/ttyACM0": port})
	require.True(t, tr.Connect("/dev/ttyACM0", testBaud))
	tr.Start()

	reply := protocol.Message{Kind: protocol.GetProgress, Payload: &protocol.Progress{
		CurrentState: protocol.StateRunning,
		CurrentStep:  2,
		StackCount:   5,
	}}
	port.Feed(encode(t, reply))

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	var events []Event
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, err := SendAndWait(ctx, tr, protocol.NewMessage(protocol.GetProgress),
		WithObserver(func(ev Event) { events = append(events, ev) }),
		WithMetrics(m),
	)
	require.NoError(t, err)
	assert.Equal(t, reply, got)
	require.Len(t, events, 1)
	assert.Equal(t, EventConnected, events[0].Type)
	assert.Equal(t, 1, testutil.CollectAndCount(m.requests))
}
