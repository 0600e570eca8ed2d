package signaling

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jailfriend/go-call-infra/internal/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	writeTimeout  = 10 * time.Second
	maxMessageLen = 1 << 20
)

// WebSocketTransport dials the platform's signaling exchange over a
// persistent WebSocket per session.
type WebSocketTransport struct {
	endpoint string
	dialer   *websocket.Dialer
}

func NewWebSocketTransport(cfg config.Session) (*WebSocketTransport, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	if cfg.TLSEnabled && cfg.TLSCACertFile != "" {
		caPEM, err := os.ReadFile(cfg.TLSCACertFile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read signaling CA certificate")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, errors.New("failed to parse signaling CA certificate")
		}
		dialer.TLSClientConfig = &tls.Config{RootCAs: pool}
	}

	return &WebSocketTransport{
		endpoint: cfg.SignalingEndpoint,
		dialer:   dialer,
	}, nil
}

// Open dials the exchange and starts the read pump. The returned Conn's
// event channel sees an open event first, then messages, then exactly one
// close event.
func (t *WebSocketTransport) Open(ctx context.Context, sessionID string, peerEndpoints []string) (Conn, error) {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "invalid signaling endpoint")
	}

	q := u.Query()
	q.Set("session_id", sessionID)
	q.Set("peers", strings.Join(peerEndpoints, ","))
	u.RawQuery = q.Encode()

	ws, _, err := t.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial signaling exchange for session %s", sessionID)
	}
	ws.SetReadLimit(maxMessageLen)

	conn := &wsConn{
		sessionID: sessionID,
		ws:        ws,
		events:    make(chan Event, 16),
	}

	conn.events <- Event{Kind: EventOpen}
	go conn.readPump()

	return conn, nil
}

type wsConn struct {
	sessionID string
	ws        *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan Event
}

func (c *wsConn) Send(ctx context.Context, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return errors.Wrap(err, "failed to set write deadline")
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return errors.Wrap(err, "failed to send signaling payload")
	}
	return nil
}

func (c *wsConn) Events() <-chan Event {
	return c.events
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "hangup"),
			time.Now().Add(writeTimeout))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// readPump forwards peer messages as events until the socket dies, then
// emits a single close event and shuts the event channel.
func (c *wsConn) readPump() {
	defer close(c.events)

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			c.events <- Event{Kind: EventClose, Close: closeInfoFromErr(err)}
			return
		}
		c.events <- Event{Kind: EventMessage, Payload: payload}
	}
}

func closeInfoFromErr(err error) *CloseInfo {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		clean := closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway
		return &CloseInfo{Code: closeErr.Code, Reason: closeErr.Text, Clean: clean}
	}

	log.Debug().Err(err).Msg("Signaling socket closed without close frame")
	return &CloseInfo{Code: websocket.CloseAbnormalClosure, Reason: err.Error(), Clean: false}
}
