package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jailfriend/go-call-infra/internal/config"
	"github.com/jailfriend/go-call-infra/internal/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrAuthFailed marks a credential rejection by the speech provider. It is
// a configuration problem, never retried.
var ErrAuthFailed = errors.New("speech provider rejected credentials")

// Stream is one persistent recognition connection.
type Stream interface {
	// SendAudio forwards one binary audio frame.
	SendAudio(ctx context.Context, frame []byte) error
	// Messages delivers decoded provider messages in arrival order. The
	// channel closes when the stream dies.
	Messages() <-chan Message
	Close() error
}

// Provider opens recognition streams.
type Provider interface {
	OpenStream(ctx context.Context, sessionID string, cfg StreamConfig) (Stream, error)
}

// WebSocketProvider speaks the provider's streaming protocol: a JSON
// configuration handshake, binary audio frames out, JSON messages in.
type WebSocketProvider struct {
	endpoint string
	apiKey   string
	dialer   *websocket.Dialer
}

func NewWebSocketProvider(cfg config.Transcribe) *WebSocketProvider {
	return &WebSocketProvider{
		endpoint: cfg.ProviderURL,
		apiKey:   cfg.APIKey,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeWindow,
		},
	}
}

func (p *WebSocketProvider) OpenStream(ctx context.Context, sessionID string, cfg StreamConfig) (Stream, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "invalid provider endpoint")
	}

	q := u.Query()
	q.Set("model", cfg.Model)
	if cfg.LanguageHint != "" {
		q.Set("language", cfg.LanguageHint)
	}
	q.Set("smart_format", strconv.FormatBool(cfg.SmartFormat))
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Token "+p.apiKey)

	ws, resp, err := p.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, ErrAuthFailed
		}
		return nil, errors.Wrap(err, "failed to dial speech provider")
	}

	// configuration handshake before any audio
	if err := ws.WriteJSON(cfg); err != nil {
		_ = ws.Close()
		return nil, errors.Wrap(err, "failed to send provider handshake")
	}

	stream := &wsStream{
		sessionID: sessionID,
		ws:        ws,
		messages:  make(chan Message, 32),
	}
	go stream.readPump()

	return stream, nil
}

type wsStream struct {
	sessionID string
	ws        *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	messages  chan Message
}

func (s *wsStream) SendAudio(ctx context.Context, frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := s.ws.SetWriteDeadline(deadline); err != nil {
		return errors.Wrap(err, "failed to set write deadline")
	}
	if err := s.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return errors.Wrap(err, "failed to send audio frame")
	}
	return nil
}

func (s *wsStream) Messages() <-chan Message {
	return s.messages
}

func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.ws.Close()
	})
	return err
}

// readPump decodes provider messages. A malformed message is discarded and
// logged; it must not kill the stream.
func (s *wsStream) readPump() {
	defer close(s.messages)

	for {
		_, payload, err := s.ws.ReadMessage()
		if err != nil {
			s.messages <- Message{Type: MessageClose, Description: err.Error()}
			return
		}

		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			metrics.MalformedProviderMessages.Inc()
			log.Warn().
				Err(err).
				Str("session_id", s.sessionID).
				Int("payload_len", len(payload)).
				Msg("Discarding malformed provider message")
			continue
		}
		if msg.Type == "" {
			metrics.MalformedProviderMessages.Inc()
			log.Warn().
				Str("session_id", s.sessionID).
				Msg("Discarding provider message without type tag")
			continue
		}

		s.messages <- msg
	}
}
