package session

import (
	"time"

	"github.com/pkg/errors"
)

// State is the lifecycle state of one call session. Transport readiness is
// always compared against these named states, never raw numeric codes.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// Terminal reports whether the session is disposed.
func (s State) Terminal() bool {
	return s == StateClosed
}

var ErrInvalidTransition = errors.New("invalid session state transition")

// canTransition encodes the session lifecycle:
// Idle → Connecting → Connected ⇄ Reconnecting, with Closed reachable from
// every state on hang-up or terminal failure.
func canTransition(from, to State) bool {
	if to == StateClosed {
		return from != StateClosed
	}

	switch from {
	case StateIdle:
		return to == StateConnecting
	case StateConnecting:
		return to == StateConnected || to == StateReconnecting
	case StateConnected:
		return to == StateReconnecting
	case StateReconnecting:
		return to == StateConnected
	}
	return false
}

// ReconnectionState tracks the in-flight retry bookkeeping for one session.
// It is reset on every successful reconnection.
type ReconnectionState struct {
	Attempts    int           `json:"attempts"`
	NextDelay   time.Duration `json:"next_delay"`
	LastFailure string        `json:"last_failure,omitempty"`
	Deadline    time.Time     `json:"deadline,omitempty"`
}

// Session is one live call between exactly two matched peers. The owning
// controller's run loop is the only writer for the session's lifetime.
type Session struct {
	SessionID      string            `json:"session_id"`
	CallerID       string            `json:"caller_id"`
	CalleeID       string            `json:"callee_id"`
	State          State             `json:"state"`
	CreatedAt      time.Time         `json:"created_at"`
	LastActivityAt time.Time         `json:"last_activity_at"`
	Reconnection   ReconnectionState `json:"reconnection"`
}

// StateEvent is emitted on every transition, in occurrence order, to the UI
// layer and the transcription pipeline.
type StateEvent struct {
	SessionID string    `json:"session_id"`
	From      State     `json:"from"`
	To        State     `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	Attempts  int       `json:"attempts"`
	At        time.Time `json:"at"`
}

// ReconnectRequest asks the controller to re-establish the signaling
// channel. Manual requests short-circuit the in-flight backoff delay but
// never restart it or double-count an attempt.
type ReconnectRequest struct {
	Manual bool      `json:"manual"`
	At     time.Time `json:"at"`
}
