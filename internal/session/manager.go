package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jailfriend/go-call-infra/internal/signaling"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrSessionNotFound = errors.New("session not found")

// SnapshotStore persists the latest per-session state for inspection by
// other instances. A nil store disables persistence.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, sess Session) error
	DeleteSnapshot(ctx context.Context, sessionID string) error
}

// Manager creates, tracks, and disposes session controllers. Each session
// runs as its own goroutine; the manager never touches session state
// directly.
type Manager struct {
	transport signaling.Transport
	cfg       ControllerConfig
	snapshots SnapshotStore

	mu       sync.RWMutex
	sessions map[string]*Controller
	cancels  map[string]context.CancelFunc
}

func NewManager(transport signaling.Transport, cfg ControllerConfig, snapshots SnapshotStore) *Manager {
	return &Manager{
		transport: transport,
		cfg:       cfg,
		snapshots: snapshots,
		sessions:  make(map[string]*Controller),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// CreateSession builds the session record for an accepted peer pair, starts
// its controller, and returns it. The controller is disposed automatically
// once it reaches Closed. Attach hooks run before the controller starts, so
// subscriptions made inside them observe every transition.
func (m *Manager) CreateSession(ctx context.Context, callerID, calleeID string, peerEndpoints []string, attach ...func(*Controller)) (*Controller, error) {
	if callerID == "" || calleeID == "" || callerID == calleeID {
		return nil, errors.New("a session needs two distinct participants")
	}

	sessionID := "call-" + uuid.New().String()
	sess := Session{
		SessionID: sessionID,
		CallerID:  callerID,
		CalleeID:  calleeID,
		State:     StateIdle,
		CreatedAt: time.Now(),
	}

	ctl := NewController(m.transport, m.cfg, sess, peerEndpoints)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	m.mu.Lock()
	m.sessions[sessionID] = ctl
	m.cancels[sessionID] = cancel
	m.mu.Unlock()

	for _, fn := range attach {
		fn(ctl)
	}

	go m.persistStates(runCtx, ctl)
	go func() {
		ctl.Run(runCtx)
		m.dispose(sessionID)
	}()

	return ctl, nil
}

// Get returns the controller of a live session.
func (m *Manager) Get(sessionID string) (*Controller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ctl, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ctl, nil
}

// Reconnect posts a reconnection trigger to a live session.
func (m *Manager) Reconnect(sessionID string, req ReconnectRequest) error {
	ctl, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	ctl.RequestReconnect(req)
	return nil
}

// Hangup ends a live session.
func (m *Manager) Hangup(sessionID, reason string) error {
	ctl, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	ctl.Hangup(reason)
	return nil
}

// Shutdown hangs up every live session and waits for the controllers to
// finish.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	controllers := make([]*Controller, 0, len(m.sessions))
	for _, ctl := range m.sessions {
		controllers = append(controllers, ctl)
	}
	m.mu.RUnlock()

	for _, ctl := range controllers {
		ctl.Hangup("server shutting down")
	}
	for _, ctl := range controllers {
		select {
		case <-ctl.Done():
		case <-ctx.Done():
			return
		}
	}
}

// persistStates mirrors every state transition into the snapshot store.
func (m *Manager) persistStates(ctx context.Context, ctl *Controller) {
	if m.snapshots == nil {
		return
	}

	events, unsubscribe := ctl.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			snap := ctl.Snapshot()
			if err := m.snapshots.SaveSnapshot(ctx, snap); err != nil {
				log.Warn().Err(err).Str("session_id", snap.SessionID).Msg("Failed to persist session snapshot")
			}
		}
	}
}

func (m *Manager) dispose(sessionID string) {
	m.mu.Lock()
	cancel := m.cancels[sessionID]
	delete(m.sessions, sessionID)
	delete(m.cancels, sessionID)
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if m.snapshots != nil {
		if err := m.snapshots.DeleteSnapshot(context.Background(), sessionID); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to delete session snapshot")
		}
	}

	log.Info().Str("session_id", sessionID).Msg("Session disposed")
}
