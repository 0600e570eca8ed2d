package translate

import (
	"context"

	"github.com/jailfriend/go-call-infra/internal/transcribe"
)

// Caption is one transcript segment rendered into a viewer's chosen
// language. Consumed by the UI layer, never persisted.
type Caption struct {
	Segment    transcribe.Segment `json:"segment"`
	TargetLang string             `json:"target_lang"`
	Text       string             `json:"text"`
}

// Translator converts one text between languages.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// Sink receives every emitted caption in addition to the in-process
// subscribers, e.g. for cross-instance fanout.
type Sink interface {
	PublishCaption(ctx context.Context, caption Caption) error
}
