package transcribe

import "time"

// Segment is one unit of recognized speech for a session speaker. Sequence
// numbers are assigned by the provider, start at 1, and increase
// monotonically per speaker; the pipeline restores that order before
// emitting downstream.
type Segment struct {
	SessionID string        `json:"session_id"`
	SpeakerID string        `json:"speaker_id"`
	Seq       uint64        `json:"seq"`
	Text      string        `json:"text"`
	Final     bool          `json:"final"`
	Language  string        `json:"language"`
	Start     time.Duration `json:"start"`
	End       time.Duration `json:"end"`
}

// MessageType tags messages on the provider stream.
type MessageType string

const (
	MessageOpen       MessageType = "open"
	MessageMetadata   MessageType = "metadata"
	MessageTranscript MessageType = "transcript"
	MessageError      MessageType = "error"
	MessageClose      MessageType = "close"
)

// Message is one decoded provider stream message. Fields beyond Type are
// populated per message kind.
type Message struct {
	Type MessageType `json:"type"`

	// transcript payload
	SpeakerID  string  `json:"speaker_id,omitempty"`
	Seq        uint64  `json:"seq,omitempty"`
	Text       string  `json:"text,omitempty"`
	Final      bool    `json:"final,omitempty"`
	Language   string  `json:"language,omitempty"`
	StartSec   float64 `json:"start,omitempty"`
	EndSec     float64 `json:"end,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	// error payload
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`

	// metadata payload
	RequestID string `json:"request_id,omitempty"`
	ModelInfo string `json:"model_info,omitempty"`
}

// StreamConfig is the handshake sent when a provider stream opens.
type StreamConfig struct {
	Model        string `json:"model"`
	LanguageHint string `json:"language,omitempty"`
	SmartFormat  bool   `json:"smart_format"`
	Encoding     string `json:"encoding,omitempty"`
	SampleRate   int    `json:"sample_rate,omitempty"`
}

func (m Message) segment(sessionID string) Segment {
	return Segment{
		SessionID: sessionID,
		SpeakerID: m.SpeakerID,
		Seq:       m.Seq,
		Text:      m.Text,
		Final:     m.Final,
		Language:  m.Language,
		Start:     time.Duration(m.StartSec * float64(time.Second)),
		End:       time.Duration(m.EndSec * float64(time.Second)),
	}
}
