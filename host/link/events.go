package link

import (
	"fmt"
	"time"

	"stackctl/protocol"
)

// EventType distinguishes connection status notifications
type EventType uint8

const (
	EventConnected EventType = iota + 1
	EventConnectError
	EventIOError
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventConnectError:
		return "connect_error"
	case EventIOError:
		return "io_error"
	default:
		return fmt.Sprintf("event(%d)", uint8(t))
	}
}

// Event is an out-of-band connection status notification
type Event struct {
	Type   EventType `json:"type" yaml:"type"`
	Port   string    `json:"port" yaml:"port"`
	Detail string    `json:"detail,omitempty" yaml:"detail,omitempty"`
	Time   time.Time `json:"time" yaml:"time"`
	Err    error     `json:"-" yaml:"-"`
}

// IsError reports whether the event signals a failure
func (e Event) IsError() bool {
	return e.Type == EventConnectError || e.Type == EventIOError
}

func (e Event) String() string {
	if e.Type == EventConnected {
		return fmt.Sprintf("success: Connected to %s.", e.Port)
	}
	return fmt.Sprintf("error: %s", e.Detail)
}

// Inbound is one item from the inbound queue: either a decoded message from
// the device or a connection event, never both
type Inbound struct {
	Message *protocol.Message
	Event   *Event
}

// IsEvent reports whether the item carries a connection event
func (in Inbound) IsEvent() bool {
	return in.Event != nil
}
