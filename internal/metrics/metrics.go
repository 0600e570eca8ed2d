package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Call-infra wide collectors, registered on the default registry and served
// by the API's /metrics endpoint.
var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "call_sessions_active",
		Help: "Number of call sessions currently running.",
	})

	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_session_transitions_total",
		Help: "Session state transitions by target state.",
	}, []string{"state"})

	ReconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "call_session_reconnect_attempts_total",
		Help: "Signaling reconnection attempts across all sessions.",
	})

	AudioFramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "call_audio_frames_dropped_total",
		Help: "Audio frames dropped because a consumer lagged or a provider link was down too long.",
	})

	ProviderReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "call_transcribe_provider_reconnects_total",
		Help: "Reconnections of the speech provider link.",
	})

	SegmentsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_transcribe_segments_total",
		Help: "Transcript segments emitted downstream, by finality.",
	}, []string{"final"})

	MalformedProviderMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "call_transcribe_malformed_messages_total",
		Help: "Provider messages discarded because they could not be decoded.",
	})

	CaptionsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_captions_emitted_total",
		Help: "Caption events emitted, by target language.",
	}, []string{"target_lang"})

	CaptionCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "call_caption_cache_hits_total",
		Help: "Caption translations served from the per-session cache.",
	})
)
