package shadow

import (
	"time"

	"github.com/rowanhart/aircloud/internal/protocol"
)

// EventType identifies a session event.
type EventType int

// Session events. The session owns a single outbound event channel that an
// external observer drains; there is no synchronous callback fan-out, so
// state transitions cannot re-enter the session through a handler.
const (
	// EventConnected fires after a successful handshake and subscription.
	EventConnected EventType = iota

	// EventDisconnected fires when the transport closes, whether caller-
	// initiated or unexpected. Err carries the transport error if any.
	EventDisconnected

	// EventStateChanged carries a freshly merged device status: an
	// unsolicited delta, or (policy-dependent) a polled get response.
	EventStateChanged

	// EventError carries advisory failures that are handled internally
	// (transport errors, circuit breaker trips) and never raised to a
	// specific caller.
	EventError
)

// String returns a log-friendly name for the event type.
func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventStateChanged:
		return "state_changed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one entry on the session's outbound event channel.
type Event struct {
	Type     EventType
	DeviceID string

	// Status is set for EventStateChanged: the merged canonical status
	// after applying the update that triggered the event.
	Status *protocol.DeviceStatus

	// Err is set for EventError and for unexpected EventDisconnected.
	Err error

	Time time.Time
}
