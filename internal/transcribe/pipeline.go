package transcribe

import (
	"context"
	"strconv"
	"time"

	"github.com/jailfriend/go-call-infra/internal/config"
	"github.com/jailfriend/go-call-infra/internal/metrics"
	sess "github.com/jailfriend/go-call-infra/internal/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrProviderUnavailable marks a provider link that stayed down past the
// retry budget. Terminal for the pipeline, surfaced upward.
var ErrProviderUnavailable = errors.New("speech provider unavailable after retries")

// Pipeline streams one session's audio to the speech provider and emits
// ordered transcript segments. Audio forwarding is suspended while the
// session is not Connected; provider-link loss is recovered with the same
// bounded backoff policy the session controller uses, buffering a small
// window of audio during the gap and dropping the rest rather than
// delivering it late.
type Pipeline struct {
	provider     Provider
	streamCfg    StreamConfig
	policy       sess.Backoff
	bufferFrames int
	emitPartials bool

	segments chan Segment
}

func NewPipeline(provider Provider, cfg config.Transcribe) *Pipeline {
	bufferFrames := cfg.BufferFrames
	if bufferFrames <= 0 {
		bufferFrames = 128
	}

	return &Pipeline{
		provider: provider,
		streamCfg: StreamConfig{
			Model:        cfg.Model,
			LanguageHint: cfg.LanguageHint,
			SmartFormat:  cfg.SmartFormat,
		},
		policy: sess.Backoff{
			Base:        cfg.BackoffBase,
			Max:         cfg.BackoffMax,
			Factor:      cfg.BackoffFactor,
			MaxAttempts: cfg.MaxAttempts,
		},
		bufferFrames: bufferFrames,
		segments:     make(chan Segment, 64),
	}
}

// EmitPartials opts into forwarding non-final segments for speculative
// captioning. Finals always flow.
func (p *Pipeline) EmitPartials(enabled bool) {
	p.emitPartials = enabled
}

// Segments delivers transcript segments in non-decreasing per-speaker
// sequence order. Closed when the pipeline stops.
func (p *Pipeline) Segments() <-chan Segment {
	return p.segments
}

// Run drives the pipeline until the session's audio stream ends or a fatal
// error occurs. Auth failures and an exhausted provider retry budget are
// the only error returns; everything transient stays contained here.
func (p *Pipeline) Run(ctx context.Context, sessionID string, audio <-chan []byte, states <-chan sess.StateEvent) error {
	defer close(p.segments)

	var (
		stream    Stream
		msgs      <-chan Message
		retryCh   <-chan time.Time
		attempts  int
		connected bool
		buffered  [][]byte
		reorder   = make(map[string]*reorderBuffer)
	)

	stream, err := p.provider.OpenStream(ctx, sessionID, p.streamCfg)
	switch {
	case errors.Is(err, ErrAuthFailed):
		return err
	case err != nil:
		log.Warn().Err(err).Str("session_id", sessionID).Msg("Initial provider dial failed, retrying")
		attempts = 1
		if p.policy.Exhausted(attempts) {
			return errors.Wrap(ErrProviderUnavailable, err.Error())
		}
		retryCh = time.After(p.policy.Delay(attempts))
	default:
		msgs = stream.Messages()
	}

	closeStream := func() {
		if stream != nil {
			_ = stream.Close()
			stream = nil
			msgs = nil
		}
	}
	defer closeStream()

	for {
		select {
		case <-ctx.Done():
			return nil

		case st, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			connected = st.To == sess.StateConnected

		case frame, ok := <-audio:
			if !ok {
				// session torn down, nothing more to transcribe
				return nil
			}
			if !connected {
				// forwarding suspended while the call is not up
				continue
			}
			if stream == nil {
				buffered = p.buffer(buffered, frame)
				continue
			}
			if err := stream.SendAudio(ctx, frame); err != nil {
				log.Warn().Err(err).Str("session_id", sessionID).Msg("Provider link lost while sending audio")
				closeStream()
				buffered = p.buffer(buffered, frame)
				attempts++
				if p.policy.Exhausted(attempts) {
					return ErrProviderUnavailable
				}
				metrics.ProviderReconnects.Inc()
				retryCh = time.After(p.policy.Delay(attempts))
			}

		case msg, ok := <-msgs:
			if !ok {
				closeStream()
				attempts++
				if p.policy.Exhausted(attempts) {
					return ErrProviderUnavailable
				}
				metrics.ProviderReconnects.Inc()
				retryCh = time.After(p.policy.Delay(attempts))
				continue
			}

			switch msg.Type {
			case MessageOpen, MessageMetadata:
				log.Debug().Str("session_id", sessionID).Str("type", string(msg.Type)).Msg("Provider stream message")

			case MessageTranscript:
				if err := p.handleTranscript(ctx, sessionID, msg, reorder); err != nil {
					return nil
				}

			case MessageError:
				if isAuthError(msg.Code) {
					closeStream()
					return errors.Wrapf(ErrAuthFailed, "provider error %s: %s", msg.Code, msg.Description)
				}
				// transient; the close message decides what happens next
				log.Warn().
					Str("session_id", sessionID).
					Str("code", msg.Code).
					Str("description", msg.Description).
					Msg("Provider reported error")

			case MessageClose:
				log.Info().Str("session_id", sessionID).Str("reason", msg.Description).Msg("Provider closed stream")
				closeStream()
				attempts++
				if p.policy.Exhausted(attempts) {
					return ErrProviderUnavailable
				}
				metrics.ProviderReconnects.Inc()
				retryCh = time.After(p.policy.Delay(attempts))
			}

		case <-retryCh:
			retryCh = nil
			newStream, err := p.provider.OpenStream(ctx, sessionID, p.streamCfg)
			if errors.Is(err, ErrAuthFailed) {
				return err
			}
			if err != nil {
				attempts++
				if p.policy.Exhausted(attempts) {
					return errors.Wrap(ErrProviderUnavailable, err.Error())
				}
				retryCh = time.After(p.policy.Delay(attempts))
				continue
			}

			stream = newStream
			msgs = stream.Messages()
			attempts = 0

			// replay the buffered window, newest audio last
			for _, frame := range buffered {
				if err := stream.SendAudio(ctx, frame); err != nil {
					log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to replay buffered audio")
					break
				}
			}
			buffered = nil
		}
	}
}

// buffer holds a bounded window of audio during a provider outage. When it
// overflows, the oldest frames are dropped: stale audio is worth less than
// low latency once the link recovers.
func (p *Pipeline) buffer(buffered [][]byte, frame []byte) [][]byte {
	buffered = append(buffered, frame)
	if len(buffered) > p.bufferFrames {
		over := len(buffered) - p.bufferFrames
		buffered = buffered[over:]
		metrics.AudioFramesDropped.Add(float64(over))
	}
	return buffered
}

func (p *Pipeline) handleTranscript(ctx context.Context, sessionID string, msg Message, reorder map[string]*reorderBuffer) error {
	if msg.SpeakerID == "" || msg.Seq == 0 {
		metrics.MalformedProviderMessages.Inc()
		log.Warn().Str("session_id", sessionID).Msg("Discarding transcript without speaker or sequence number")
		return nil
	}

	rb, ok := reorder[msg.SpeakerID]
	if !ok {
		rb = newReorderBuffer()
		reorder[msg.SpeakerID] = rb
	}

	for _, seg := range rb.add(msg.segment(sessionID)) {
		if !seg.Final && !p.emitPartials {
			continue
		}
		select {
		case p.segments <- seg:
			metrics.SegmentsEmitted.WithLabelValues(strconv.FormatBool(seg.Final)).Inc()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func isAuthError(code string) bool {
	switch code {
	case "401", "403", "invalid_auth", "unauthorized":
		return true
	}
	return false
}
