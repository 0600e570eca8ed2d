package call

import (
	"context"
	"sync"
	"time"

	"github.com/jailfriend/go-call-infra/internal/config"
	"github.com/jailfriend/go-call-infra/internal/match"
	"github.com/jailfriend/go-call-infra/internal/session"
	"github.com/jailfriend/go-call-infra/internal/transcribe"
	"github.com/jailfriend/go-call-infra/internal/translate"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Service ties the matcher, the session manager, the transcription pipeline
// and the translation overlay together behind one call-centric API. The
// HTTP handlers talk only to this service.
type Service struct {
	matcher  *match.Service
	sessions *session.Manager
	provider transcribe.Provider
	overlay  *translate.Overlay
	cfg      config.Transcribe

	mu    sync.Mutex
	calls map[string]context.CancelFunc
}

func NewService(
	matcher *match.Service,
	sessions *session.Manager,
	provider transcribe.Provider,
	overlay *translate.Overlay,
	cfg config.Transcribe,
) *Service {
	return &Service{
		matcher:  matcher,
		sessions: sessions,
		provider: provider,
		overlay:  overlay,
		cfg:      cfg,
		calls:    make(map[string]context.CancelFunc),
	}
}

// FindCandidates lists users the requester could call right now, soonest to
// leave first.
func (s *Service) FindCandidates(ctx context.Context, requesterID string) ([]match.Candidate, error) {
	candidates, err := s.matcher.FindCandidates(ctx, requesterID, time.Now())
	if err != nil {
		return nil, errors.Wrap(err, "failed to find candidates")
	}
	return candidates, nil
}

// StartCall creates a session between the two participants, starts its
// reconnection controller and attaches the caption pipeline. The session
// outlives the request context.
func (s *Service) StartCall(ctx context.Context, req *StartCallRequest, peerEndpoints []string) (session.Session, error) {
	ctl, err := s.sessions.CreateSession(ctx, req.CallerID, req.CalleeID, peerEndpoints, func(ctl *session.Controller) {
		if len(req.CaptionLanguages) > 0 {
			s.attachCaptions(ctl, ctl.Snapshot().SessionID, req.CaptionLanguages)
		}
	})
	if err != nil {
		return session.Session{}, errors.Wrap(err, "failed to create session")
	}

	return ctl.Snapshot(), nil
}

// attachCaptions runs the speech pipeline and the translation overlay for
// one session. Both stop when the session's controller finishes.
func (s *Service) attachCaptions(ctl *session.Controller, sessionID string, captionLangs map[string]string) {
	pipeline := transcribe.NewPipeline(s.provider, s.cfg)
	states, unsubscribe := ctl.Subscribe()

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.calls[sessionID] = cancel
	s.mu.Unlock()

	g, runCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer unsubscribe()
		return pipeline.Run(runCtx, sessionID, ctl.Audio(), states)
	})
	g.Go(func() error {
		s.overlay.Stream(runCtx, sessionID, pipeline.Segments(), captionLangs)
		return nil
	})
	g.Go(func() error {
		select {
		case <-ctl.Done():
		case <-runCtx.Done():
		}
		cancel()
		return nil
	})

	go func() {
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("Caption pipeline ended with error")
		}
		s.overlay.Forget(sessionID)
		s.mu.Lock()
		delete(s.calls, sessionID)
		s.mu.Unlock()
	}()
}

// GetSession returns the live snapshot of one session.
func (s *Service) GetSession(sessionID string) (session.Session, error) {
	ctl, err := s.sessions.Get(sessionID)
	if err != nil {
		return session.Session{}, err
	}
	return ctl.Snapshot(), nil
}

// Reconnect requests an immediate reconnection attempt for one session.
// Safe to call repeatedly; pending requests coalesce.
func (s *Service) Reconnect(sessionID string) error {
	return s.sessions.Reconnect(sessionID, session.ReconnectRequest{Manual: true, At: time.Now()})
}

// Hangup ends one session cleanly.
func (s *Service) Hangup(sessionID, reason string) error {
	return s.sessions.Hangup(sessionID, reason)
}

// SubscribeStates streams state transitions for one session to a UI client.
func (s *Service) SubscribeStates(sessionID string) (<-chan session.StateEvent, func(), error) {
	ctl, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, nil, err
	}
	states, unsubscribe := ctl.Subscribe()
	return states, unsubscribe, nil
}

// SubscribeCaptions streams translated captions for one session.
func (s *Service) SubscribeCaptions(sessionID string) (<-chan translate.Caption, func()) {
	return s.overlay.Subscribe(sessionID)
}

// Shutdown stops all caption pipelines and drains the session manager.
func (s *Service) Shutdown(ctx context.Context) {
	s.mu.Lock()
	for _, cancel := range s.calls {
		cancel()
	}
	s.mu.Unlock()

	s.sessions.Shutdown(ctx)
}
