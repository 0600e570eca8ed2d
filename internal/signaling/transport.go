package signaling

import "context"

// EventKind discriminates transport events delivered to the session
// controller.
type EventKind string

const (
	EventOpen    EventKind = "open"
	EventMessage EventKind = "message"
	EventError   EventKind = "error"
	EventClose   EventKind = "close"
)

// CloseInfo carries the transport's close report. Clean distinguishes a
// graceful shutdown from a failure; the controller uses it to decide
// between tearing the session down and reconnecting.
type CloseInfo struct {
	Code   int
	Reason string
	Clean  bool
}

// Event is one transport occurrence. Exactly one of Payload, Err, Close is
// populated depending on Kind.
type Event struct {
	Kind    EventKind
	Payload []byte
	Err     error
	Close   *CloseInfo
}

// Conn is one established signaling channel for a session.
type Conn interface {
	// Send writes a signaling payload to the peer exchange.
	Send(ctx context.Context, payload []byte) error
	// Events delivers transport events in occurrence order. The channel is
	// closed after the terminal close event has been delivered.
	Events() <-chan Event
	Close() error
}

// Transport establishes signaling channels. It is the driven capability
// described by the session controller contract: media negotiation and NAT
// traversal live behind it, not in this subsystem.
type Transport interface {
	Open(ctx context.Context, sessionID string, peerEndpoints []string) (Conn, error)
}
