package call

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jailfriend/go-call-infra/internal/config"
	"github.com/jailfriend/go-call-infra/internal/match"
	"github.com/jailfriend/go-call-infra/internal/profile"
	"github.com/jailfriend/go-call-infra/internal/session"
	"github.com/jailfriend/go-call-infra/internal/signaling"
	"github.com/jailfriend/go-call-infra/internal/transcribe"
	"github.com/jailfriend/go-call-infra/internal/translate"
	"github.com/stretchr/testify/require"
)

// stubTransport accepts every dial and hands back a connection that is
// immediately open.
type stubTransport struct {
	mu    sync.Mutex
	conns []*stubConn
}

func (t *stubTransport) Open(ctx context.Context, sessionID string, peerEndpoints []string) (signaling.Conn, error) {
	conn := &stubConn{events: make(chan signaling.Event, 16)}
	conn.events <- signaling.Event{Kind: signaling.EventOpen}

	t.mu.Lock()
	t.conns = append(t.conns, conn)
	t.mu.Unlock()
	return conn, nil
}

func (t *stubTransport) latest() *stubConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

type stubConn struct {
	events    chan signaling.Event
	closeOnce sync.Once
}

func (c *stubConn) Send(ctx context.Context, payload []byte) error { return nil }
func (c *stubConn) Events() <-chan signaling.Event                 { return c.events }
func (c *stubConn) Close() error {
	c.closeOnce.Do(func() { close(c.events) })
	return nil
}

// stubProvider emits one scripted final transcript per opened stream.
type stubProvider struct {
	transcript string
}

func (p *stubProvider) OpenStream(ctx context.Context, sessionID string, cfg transcribe.StreamConfig) (transcribe.Stream, error) {
	return &stubStream{
		msgs: make(chan transcribe.Message, 4),
		prepared: transcribe.Message{
			Type:      transcribe.MessageTranscript,
			SpeakerID: "alice",
			Seq:       1,
			Text:      p.transcript,
			Final:     true,
			Language:  "en",
		},
	}, nil
}

type stubStream struct {
	msgs     chan transcribe.Message
	prepared transcribe.Message
	once     sync.Once
}

func (s *stubStream) SendAudio(ctx context.Context, frame []byte) error {
	s.once.Do(func() { s.msgs <- s.prepared })
	return nil
}

func (s *stubStream) Messages() <-chan transcribe.Message { return s.msgs }
func (s *stubStream) Close() error                        { return nil }

type echoTranslator struct{}

func (echoTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	return "[" + targetLang + "] " + text, nil
}

func testTranscribeConfig() config.Transcribe {
	return config.Transcribe{
		BufferFrames:  8,
		BackoffBase:   time.Millisecond,
		BackoffMax:    4 * time.Millisecond,
		BackoffFactor: 2.0,
		MaxAttempts:   3,
	}
}

func newTestService(t *testing.T, transport signaling.Transport, provider transcribe.Provider) *Service {
	t.Helper()

	overlay, err := translate.NewOverlay(echoTranslator{}, config.Translate{CacheSize: 16})
	require.NoError(t, err)

	sessions := session.NewManager(transport, session.ControllerConfig{
		Backoff:          session.Backoff{Base: time.Millisecond, Max: 4 * time.Millisecond, Factor: 2.0, MaxAttempts: 3},
		LivenessInterval: 50 * time.Millisecond,
		LivenessTimeout:  time.Minute,
		AudioBuffer:      16,
	}, nil)

	matcher := match.NewService(&staticProfiles{}, 10)
	return NewService(matcher, sessions, provider, overlay, testTranscribeConfig())
}

type staticProfiles struct{}

func (s *staticProfiles) GetProfile(ctx context.Context, userID string) (*profile.Profile, error) {
	return nil, profile.ErrNotFound
}

func (s *staticProfiles) ListMatchable(ctx context.Context, excludeUserID string, limit int) ([]*profile.Profile, error) {
	return nil, nil
}

func TestStartCallEmitsTranslatedCaptions(t *testing.T) {
	transport := &stubTransport{}
	svc := newTestService(t, transport, &stubProvider{transcript: "hello there"})
	defer svc.Shutdown(context.Background())

	sess, err := svc.StartCall(context.Background(), &StartCallRequest{
		CallerID:         "alice",
		CalleeID:         "bob",
		CaptionLanguages: map[string]string{"bob": "es"},
	}, []string{"ep-a", "ep-b"})
	require.NoError(t, err)
	require.NotEmpty(t, sess.SessionID)

	captions, unsubscribe := svc.SubscribeCaptions(sess.SessionID)
	defer unsubscribe()

	// audio frames from the signaling channel feed the provider, which
	// answers with the scripted transcript
	feed := time.NewTicker(10 * time.Millisecond)
	defer feed.Stop()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case caption := <-captions:
			require.Equal(t, "[es] hello there", caption.Text)
			require.Equal(t, "es", caption.TargetLang)
			require.True(t, caption.Segment.Final)
			return
		case <-feed.C:
			if conn := transport.latest(); conn != nil {
				select {
				case conn.events <- signaling.Event{Kind: signaling.EventMessage, Payload: []byte{0x01}}:
				default:
				}
			}
		case <-deadline:
			t.Fatal("timed out waiting for caption")
		}
	}
}

func TestHangupDisposesSession(t *testing.T) {
	transport := &stubTransport{}
	svc := newTestService(t, transport, &stubProvider{})
	defer svc.Shutdown(context.Background())

	sess, err := svc.StartCall(context.Background(), &StartCallRequest{
		CallerID: "alice",
		CalleeID: "bob",
	}, []string{"ep-a", "ep-b"})
	require.NoError(t, err)

	require.NoError(t, svc.Hangup(sess.SessionID, "caller hung up"))
	require.Eventually(t, func() bool {
		_, err := svc.GetSession(sess.SessionID)
		return err == session.ErrSessionNotFound
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReconnectUnknownSession(t *testing.T) {
	svc := newTestService(t, &stubTransport{}, &stubProvider{})
	defer svc.Shutdown(context.Background())

	require.ErrorIs(t, svc.Reconnect("call-missing"), session.ErrSessionNotFound)
}
