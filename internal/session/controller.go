package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jailfriend/go-call-infra/internal/config"
	"github.com/jailfriend/go-call-infra/internal/metrics"
	"github.com/jailfriend/go-call-infra/internal/signaling"
	"github.com/rs/zerolog/log"
)

// ControllerConfig tunes one session's reconnection and liveness behavior.
type ControllerConfig struct {
	Backoff          Backoff
	LivenessInterval time.Duration
	LivenessTimeout  time.Duration
	AudioBuffer      int
}

func ControllerConfigFromEnv(cfg config.Session) ControllerConfig {
	return ControllerConfig{
		Backoff:          BackoffFromConfig(cfg),
		LivenessInterval: cfg.LivenessInterval,
		LivenessTimeout:  cfg.LivenessTimeout,
		AudioBuffer:      cfg.AudioBuffer,
	}
}

// Controller owns the lifecycle of one call session. All session mutation
// happens on the Run goroutine; other goroutines interact exclusively
// through channels (reconnect requests, hang-up) and read-only snapshots.
type Controller struct {
	transport signaling.Transport
	cfg       ControllerConfig
	peers     []string

	reconnectCh chan ReconnectRequest
	hangupCh    chan string
	audio       chan []byte
	done        chan struct{}

	mu          sync.RWMutex
	snapshot    Session
	subscribers map[int]chan StateEvent
	nextSubID   int
	audioClosed bool
}

func NewController(transport signaling.Transport, cfg ControllerConfig, sess Session, peerEndpoints []string) *Controller {
	if cfg.AudioBuffer <= 0 {
		cfg.AudioBuffer = 64
	}
	sess.State = StateIdle

	return &Controller{
		transport:   transport,
		cfg:         cfg,
		peers:       peerEndpoints,
		reconnectCh: make(chan ReconnectRequest, 1),
		hangupCh:    make(chan string, 1),
		audio:       make(chan []byte, cfg.AudioBuffer),
		done:        make(chan struct{}),
		snapshot:    sess,
		subscribers: make(map[int]chan StateEvent),
	}
}

// Snapshot returns a copy of the current session record.
func (c *Controller) Snapshot() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Audio delivers the live media frames received over the session channel.
// The channel is closed atomically with the session reaching Closed, so a
// consumer never sees audio from a torn-down call.
func (c *Controller) Audio() <-chan []byte {
	return c.audio
}

// Done is closed once the session has reached Closed and every activity has
// stopped.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Subscribe registers a call-state observer. Events arrive in occurrence
// order; the returned func unsubscribes. Subscribers must drain promptly.
func (c *Controller) Subscribe() (<-chan StateEvent, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan StateEvent, 64)
	if c.snapshot.State.Terminal() {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(sub)
		}
	}
}

// RequestReconnect posts a reconnection trigger (manual retry or detected
// network loss). Requests arriving while an attempt is already in flight
// coalesce: the buffered request stands for all of them.
func (c *Controller) RequestReconnect(req ReconnectRequest) {
	if req.At.IsZero() {
		req.At = time.Now()
	}
	select {
	case c.reconnectCh <- req:
	default:
		// already pending, coalesce
	}
}

// Hangup ends the call from any state. Repeated hang-ups coalesce.
func (c *Controller) Hangup(reason string) {
	select {
	case c.hangupCh <- reason:
	default:
	}
}

// Run drives the session until it reaches Closed. It is the sole writer of
// session state.
func (c *Controller) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.finish()

	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	c.transition(StateConnecting, "both peers accepted")

	for {
		conn, err := c.transport.Open(ctx, c.sessionID(), c.peers)
		if err != nil {
			if ctx.Err() != nil {
				c.close("canceled")
				return
			}
			if !c.scheduleRetry(ctx, err.Error()) {
				return
			}
			continue
		}

		reason, retry := c.serve(ctx, conn)
		_ = conn.Close()

		if !retry {
			c.close(reason)
			return
		}
		if !c.scheduleRetry(ctx, reason) {
			return
		}
	}
}

// serve pumps transport events for one established channel. It returns the
// failure reason and whether the controller should attempt reconnection.
func (c *Controller) serve(ctx context.Context, conn signaling.Conn) (string, bool) {
	liveness := time.NewTicker(c.cfg.LivenessInterval)
	defer liveness.Stop()

	for {
		select {
		case <-ctx.Done():
			return "canceled", false

		case reason := <-c.hangupCh:
			return "hangup: " + reason, false

		case req := <-c.reconnectCh:
			// Meaningful only once the channel is up. While still
			// establishing, the request coalesces into the in-flight attempt.
			if c.state() == StateConnected {
				if req.Manual {
					return "manual reconnect requested", true
				}
				return "network loss reported", true
			}

		case <-liveness.C:
			if c.state() == StateConnected && time.Since(c.lastActivity()) > c.cfg.LivenessTimeout {
				return "liveness timeout", true
			}

		case ev, ok := <-conn.Events():
			if !ok {
				return "signaling channel lost", true
			}
			switch ev.Kind {
			case signaling.EventOpen:
				// requests posted during the outage refer to the outage we
				// just recovered from
				c.drainReconnect()
				c.transition(StateConnected, "signaling open")

			case signaling.EventMessage:
				c.touch()
				c.forwardAudio(ev.Payload)

			case signaling.EventError:
				// transient, contained here; the close event decides the outcome
				log.Warn().Err(ev.Err).Str("session_id", c.sessionID()).Msg("Signaling transport error")

			case signaling.EventClose:
				if ev.Close != nil && ev.Close.Clean {
					return fmt.Sprintf("peer closed channel (%d: %s)", ev.Close.Code, ev.Close.Reason), false
				}
				reason := "signaling channel lost"
				if ev.Close != nil {
					reason = fmt.Sprintf("signaling channel failed (%d: %s)", ev.Close.Code, ev.Close.Reason)
				}
				return reason, true
			}
		}
	}
}

// scheduleRetry enters Reconnecting, waits out the backoff delay, and
// reports whether another attempt may run. A manual reconnect request
// short-circuits the remaining delay without touching the attempt counter.
func (c *Controller) scheduleRetry(ctx context.Context, reason string) bool {
	attempts := c.attempts() + 1
	if c.cfg.Backoff.Exhausted(attempts) {
		c.close("retry budget exhausted: " + reason)
		return false
	}

	delay := c.cfg.Backoff.Delay(attempts)
	c.enterReconnecting(reason, attempts, delay)
	metrics.ReconnectAttempts.Inc()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.close("canceled")
			return false

		case hangupReason := <-c.hangupCh:
			c.close("hangup: " + hangupReason)
			return false

		case req := <-c.reconnectCh:
			if req.Manual {
				// skip the remaining wait; the in-flight attempt counter
				// and timer are left untouched
				c.drainReconnect()
				return true
			}
			// non-manual triggers coalesce into the scheduled attempt

		case <-timer.C:
			c.drainReconnect()
			return true
		}
	}
}

// drainReconnect discards requests that accumulated while an attempt was
// already being made for them.
func (c *Controller) drainReconnect() {
	for {
		select {
		case <-c.reconnectCh:
		default:
			return
		}
	}
}

func (c *Controller) transition(to State, reason string) {
	c.mu.Lock()

	from := c.snapshot.State
	if !canTransition(from, to) {
		c.mu.Unlock()
		log.Error().
			Str("session_id", c.snapshot.SessionID).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("Ignoring invalid session state transition")
		return
	}

	now := time.Now()
	c.snapshot.State = to
	if to == StateConnected {
		c.snapshot.Reconnection = ReconnectionState{}
		c.snapshot.LastActivityAt = now
	}

	ev := StateEvent{
		SessionID: c.snapshot.SessionID,
		From:      from,
		To:        to,
		Reason:    reason,
		Attempts:  c.snapshot.Reconnection.Attempts,
		At:        now,
	}
	c.publishLocked(ev)
	c.mu.Unlock()

	metrics.SessionTransitions.WithLabelValues(string(to)).Inc()

	log.Info().
		Str("session_id", ev.SessionID).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("reason", reason).
		Msg("Session state transition")
}

func (c *Controller) enterReconnecting(reason string, attempts int, delay time.Duration) {
	c.mu.Lock()
	from := c.snapshot.State
	if !canTransition(from, StateReconnecting) {
		c.mu.Unlock()
		log.Error().
			Str("session_id", c.snapshot.SessionID).
			Str("from", string(from)).
			Msg("Ignoring invalid session state transition")
		return
	}

	now := time.Now()
	c.snapshot.State = StateReconnecting
	c.snapshot.Reconnection = ReconnectionState{
		Attempts:    attempts,
		NextDelay:   delay,
		LastFailure: reason,
		Deadline:    now.Add(remainingBudget(c.cfg.Backoff, attempts)),
	}

	ev := StateEvent{
		SessionID: c.snapshot.SessionID,
		From:      from,
		To:        StateReconnecting,
		Reason:    reason,
		Attempts:  attempts,
		At:        now,
	}
	c.publishLocked(ev)
	c.mu.Unlock()

	metrics.SessionTransitions.WithLabelValues(string(StateReconnecting)).Inc()

	log.Info().
		Str("session_id", ev.SessionID).
		Int("attempt", attempts).
		Dur("delay", delay).
		Str("reason", reason).
		Msg("Session reconnecting")
}

// remainingBudget sums the delays still ahead of the given attempt, giving
// observers a worst-case give-up deadline.
func remainingBudget(b Backoff, fromAttempt int) time.Duration {
	var total time.Duration
	for a := fromAttempt; a <= b.MaxAttempts; a++ {
		total += b.Delay(a)
	}
	return total
}

func (c *Controller) close(reason string) {
	if c.state() != StateClosed {
		c.transition(StateClosed, reason)
	}
}

// finish tears down every per-session activity together: audio stops
// flowing in the same instant observers learn the session is gone.
func (c *Controller) finish() {
	c.mu.Lock()
	if !c.audioClosed {
		c.audioClosed = true
		close(c.audio)
	}
	for id, sub := range c.subscribers {
		delete(c.subscribers, id)
		close(sub)
	}
	c.mu.Unlock()
	close(c.done)
}

func (c *Controller) forwardAudio(frame []byte) {
	c.mu.RLock()
	closed := c.audioClosed
	c.mu.RUnlock()
	if closed {
		return
	}

	select {
	case c.audio <- frame:
	default:
		// consumer lagging: drop rather than deliver late audio
		metrics.AudioFramesDropped.Inc()
	}
}

func (c *Controller) publishLocked(ev StateEvent) {
	for _, sub := range c.subscribers {
		select {
		case sub <- ev:
		default:
			log.Warn().
				Str("session_id", ev.SessionID).
				Msg("Dropping state event for slow subscriber")
		}
	}
}

func (c *Controller) state() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.State
}

func (c *Controller) attempts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.Reconnection.Attempts
}

func (c *Controller) lastActivity() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.LastActivityAt
}

func (c *Controller) touch() {
	c.mu.Lock()
	c.snapshot.LastActivityAt = time.Now()
	c.mu.Unlock()
}

func (c *Controller) sessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.SessionID
}
