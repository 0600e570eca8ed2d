package translate

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jailfriend/go-call-infra/internal/config"
	"github.com/jailfriend/go-call-infra/internal/metrics"
	"github.com/jailfriend/go-call-infra/internal/transcribe"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Overlay turns transcript segments into captions for each viewer
// language. Repeat translations of the same segment are served from a
// bounded cache, so captioning the same final segment twice is idempotent.
type Overlay struct {
	translator  Translator
	cache       *lru.Cache[string, string]
	speculative bool
	sink        Sink

	mu          sync.Mutex
	lastFinal   map[string]uint64            // (session|speaker|target) -> highest final seq emitted
	subscribers map[string]map[int]chan Caption
	nextSubID   int
}

func NewOverlay(translator Translator, cfg config.Translate) (*Overlay, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = 512
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create translation cache")
	}

	return &Overlay{
		translator:  translator,
		cache:       cache,
		speculative: cfg.SpeculativePartials,
		lastFinal:   make(map[string]uint64),
		subscribers: make(map[string]map[int]chan Caption),
	}, nil
}

// SetSink attaches an out-of-process caption fanout (optional).
func (o *Overlay) SetSink(sink Sink) {
	o.sink = sink
}

// Subscribe registers a caption consumer for one session, scoped to a UI
// lifecycle. The returned func unsubscribes.
func (o *Overlay) Subscribe(sessionID string) (<-chan Caption, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	subs, ok := o.subscribers[sessionID]
	if !ok {
		subs = make(map[int]chan Caption)
		o.subscribers[sessionID] = subs
	}

	id := o.nextSubID
	o.nextSubID++
	ch := make(chan Caption, 32)
	subs[id] = ch

	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if subs, ok := o.subscribers[sessionID]; ok {
			if sub, ok := subs[id]; ok {
				delete(subs, id)
				close(sub)
			}
			if len(subs) == 0 {
				delete(o.subscribers, sessionID)
			}
		}
	}
}

// Caption translates one segment into the target language. Pure apart from
// the cache: identical input yields identical output.
func (o *Overlay) Caption(ctx context.Context, seg transcribe.Segment, targetLang string) (Caption, error) {
	caption := Caption{Segment: seg, TargetLang: targetLang}

	if seg.Language == targetLang {
		caption.Text = seg.Text
		return caption, nil
	}

	key := cacheKey(seg, targetLang)
	if text, ok := o.cache.Get(key); ok {
		metrics.CaptionCacheHits.Inc()
		caption.Text = text
		return caption, nil
	}

	text, err := o.translator.Translate(ctx, seg.Text, seg.Language, targetLang)
	if err != nil {
		return Caption{}, errors.Wrapf(err, "failed to translate segment %d for %s", seg.Seq, targetLang)
	}

	o.cache.Add(key, text)
	caption.Text = text
	return caption, nil
}

// Stream captions every incoming segment for the distinct viewer languages
// of one session and fans the results out to subscribers. Returns when the
// segment channel closes or the context ends.
//
// Partials are only translated speculatively when enabled, and a partial
// never supersedes a final or any higher sequence number.
func (o *Overlay) Stream(ctx context.Context, sessionID string, segments <-chan transcribe.Segment, viewerLangs map[string]string) {
	targets := distinctLangs(viewerLangs)

	for {
		select {
		case <-ctx.Done():
			return
		case seg, ok := <-segments:
			if !ok {
				return
			}

			if !seg.Final && !o.speculative {
				continue
			}

			for _, lang := range targets {
				if o.stale(sessionID, seg, lang) {
					continue
				}

				caption, err := o.Caption(ctx, seg, lang)
				if err != nil {
					// one failed translation must not kill the caption stream
					log.Warn().Err(err).
						Str("session_id", sessionID).
						Str("target_lang", lang).
						Uint64("seq", seg.Seq).
						Msg("Skipping untranslatable segment")
					continue
				}

				o.emit(ctx, sessionID, seg, caption)
			}
		}
	}
}

// stale rejects captions that would roll a viewer's display backwards: any
// segment at or below the last finalized sequence number is outdated.
func (o *Overlay) stale(sessionID string, seg transcribe.Segment, lang string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	key := orderKey(sessionID, seg.SpeakerID, lang)
	last, ok := o.lastFinal[key]
	if !ok {
		return false
	}
	if seg.Final {
		return seg.Seq < last
	}
	return seg.Seq <= last
}

func (o *Overlay) emit(ctx context.Context, sessionID string, seg transcribe.Segment, caption Caption) {
	o.mu.Lock()
	if seg.Final {
		key := orderKey(sessionID, seg.SpeakerID, caption.TargetLang)
		if seg.Seq > o.lastFinal[key] {
			o.lastFinal[key] = seg.Seq
		}
	}
	subs := make([]chan Caption, 0, len(o.subscribers[sessionID]))
	for _, sub := range o.subscribers[sessionID] {
		subs = append(subs, sub)
	}
	o.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub <- caption:
		default:
			log.Warn().Str("session_id", sessionID).Msg("Dropping caption for slow subscriber")
		}
	}

	if o.sink != nil {
		if err := o.sink.PublishCaption(ctx, caption); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to publish caption to sink")
		}
	}

	metrics.CaptionsEmitted.WithLabelValues(caption.TargetLang).Inc()
}

// Forget drops the per-session ordering state once a session is disposed.
func (o *Overlay) Forget(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	prefix := sessionID + "|"
	for key := range o.lastFinal {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(o.lastFinal, key)
		}
	}
}

func cacheKey(seg transcribe.Segment, targetLang string) string {
	return fmt.Sprintf("%s|%s|%d|%t|%s", seg.SessionID, seg.SpeakerID, seg.Seq, seg.Final, targetLang)
}

func orderKey(sessionID, speakerID, lang string) string {
	return sessionID + "|" + speakerID + "|" + lang
}

func distinctLangs(viewerLangs map[string]string) []string {
	seen := make(map[string]struct{}, len(viewerLangs))
	langs := make([]string, 0, len(viewerLangs))
	for _, lang := range viewerLangs {
		if _, ok := seen[lang]; ok {
			continue
		}
		seen[lang] = struct{}{}
		langs = append(langs, lang)
	}
	return langs
}
