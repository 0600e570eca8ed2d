package sessions

import (
	"time"

	"github.com/jailfriend/go-call-infra/internal/session"
)

type SessionResponse struct {
	SessionID         string    `json:"session_id"`
	CallerID          string    `json:"caller_id"`
	CalleeID          string    `json:"callee_id"`
	State             string    `json:"state"`
	CreatedAt         time.Time `json:"created_at"`
	LastActivityAt    time.Time `json:"last_activity_at,omitempty"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	LastFailure       string    `json:"last_failure,omitempty"`
}

func newSessionResponse(sess session.Session) *SessionResponse {
	return &SessionResponse{
		SessionID:         sess.SessionID,
		CallerID:          sess.CallerID,
		CalleeID:          sess.CalleeID,
		State:             string(sess.State),
		CreatedAt:         sess.CreatedAt,
		LastActivityAt:    sess.LastActivityAt,
		ReconnectAttempts: sess.Reconnection.Attempts,
		LastFailure:       sess.Reconnection.LastFailure,
	}
}
