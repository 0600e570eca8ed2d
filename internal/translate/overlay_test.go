package translate

import (
	"context"
	"testing"
	"time"

	"github.com/jailfriend/go-call-infra/internal/config"
	"github.com/jailfriend/go-call-infra/internal/transcribe"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTranslator struct {
	mock.Mock
}

func (m *MockTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	args := m.Called(ctx, text, sourceLang, targetLang)
	return args.String(0), args.Error(1)
}

func testSegment(seq uint64, text string, final bool) transcribe.Segment {
	return transcribe.Segment{
		SessionID: "call-1",
		SpeakerID: "user-a",
		Seq:       seq,
		Text:      text,
		Final:     final,
		Language:  "en",
	}
}

func newTestOverlay(t *testing.T, translator Translator, speculative bool) *Overlay {
	t.Helper()
	overlay, err := NewOverlay(translator, config.Translate{
		CacheSize:           16,
		SpeculativePartials: speculative,
	})
	require.NoError(t, err)
	return overlay
}

func TestCaptionIsIdempotent(t *testing.T) {
	translator := new(MockTranslator)
	translator.On("Translate", mock.Anything, "hello", "en", "es").Return("hola", nil).Once()

	overlay := newTestOverlay(t, translator, false)
	seg := testSegment(1, "hello", true)

	first, err := overlay.Caption(context.Background(), seg, "es")
	require.NoError(t, err)
	second, err := overlay.Caption(context.Background(), seg, "es")
	require.NoError(t, err)

	require.Equal(t, "hola", first.Text)
	require.Equal(t, first, second)
	translator.AssertExpectations(t)
}

func TestCaptionSkipsSameLanguage(t *testing.T) {
	translator := new(MockTranslator)
	overlay := newTestOverlay(t, translator, false)

	caption, err := overlay.Caption(context.Background(), testSegment(1, "hello", true), "en")
	require.NoError(t, err)
	require.Equal(t, "hello", caption.Text)
	translator.AssertNotCalled(t, "Translate")
}

func collectCaptions(t *testing.T, ch <-chan Caption, n int) []Caption {
	t.Helper()
	captions := make([]Caption, 0, n)
	for len(captions) < n {
		select {
		case caption := <-ch:
			captions = append(captions, caption)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for caption %d of %d", len(captions)+1, n)
		}
	}
	return captions
}

func TestStreamFinalOnlyByDefault(t *testing.T) {
	translator := new(MockTranslator)
	translator.On("Translate", mock.Anything, "hello world", "en", "es").Return("hola mundo", nil)

	overlay := newTestOverlay(t, translator, false)
	captions, unsubscribe := overlay.Subscribe("call-1")
	defer unsubscribe()

	segments := make(chan transcribe.Segment)
	done := make(chan struct{})
	go func() {
		defer close(done)
		overlay.Stream(context.Background(), "call-1", segments, map[string]string{"user-b": "es"})
	}()

	segments <- testSegment(1, "hello", false)
	segments <- testSegment(1, "hello world", true)
	close(segments)
	<-done

	got := collectCaptions(t, captions, 1)
	require.Equal(t, "hola mundo", got[0].Text)
	translator.AssertNotCalled(t, "Translate", mock.Anything, "hello", "en", "es")
}

func TestStreamSpeculativePartials(t *testing.T) {
	translator := new(MockTranslator)
	translator.On("Translate", mock.Anything, "hello", "en", "es").Return("hola", nil)
	translator.On("Translate", mock.Anything, "hello world", "en", "es").Return("hola mundo", nil)

	overlay := newTestOverlay(t, translator, true)
	captions, unsubscribe := overlay.Subscribe("call-1")
	defer unsubscribe()

	segments := make(chan transcribe.Segment)
	done := make(chan struct{})
	go func() {
		defer close(done)
		overlay.Stream(context.Background(), "call-1", segments, map[string]string{"user-b": "es"})
	}()

	segments <- testSegment(1, "hello", false)
	segments <- testSegment(1, "hello world", true)
	close(segments)
	<-done

	got := collectCaptions(t, captions, 2)
	require.Equal(t, "hola", got[0].Text)
	require.False(t, got[0].Segment.Final)
	require.Equal(t, "hola mundo", got[1].Text)
	require.True(t, got[1].Segment.Final)
}

func TestStreamDropsStalePartialAfterFinal(t *testing.T) {
	translator := new(MockTranslator)
	translator.On("Translate", mock.Anything, "hello world", "en", "es").Return("hola mundo", nil)

	overlay := newTestOverlay(t, translator, true)
	captions, unsubscribe := overlay.Subscribe("call-1")
	defer unsubscribe()

	segments := make(chan transcribe.Segment)
	done := make(chan struct{})
	go func() {
		defer close(done)
		overlay.Stream(context.Background(), "call-1", segments, map[string]string{"user-b": "es"})
	}()

	segments <- testSegment(1, "hello world", true)
	// a late partial for the already finalized utterance must not roll
	// the viewer's caption back
	segments <- testSegment(1, "hello", false)
	close(segments)
	<-done

	got := collectCaptions(t, captions, 1)
	require.Equal(t, "hola mundo", got[0].Text)
	select {
	case extra, ok := <-captions:
		if ok {
			t.Fatalf("unexpected extra caption: %q", extra.Text)
		}
	default:
	}
	translator.AssertNotCalled(t, "Translate", mock.Anything, "hello", "en", "es")
}

func TestStreamDeduplicatesViewerLanguages(t *testing.T) {
	translator := new(MockTranslator)
	translator.On("Translate", mock.Anything, "hello", "en", "es").Return("hola", nil).Once()

	overlay := newTestOverlay(t, translator, false)
	captions, unsubscribe := overlay.Subscribe("call-1")
	defer unsubscribe()

	segments := make(chan transcribe.Segment)
	done := make(chan struct{})
	go func() {
		defer close(done)
		overlay.Stream(context.Background(), "call-1", segments, map[string]string{
			"user-b": "es",
			"user-c": "es",
		})
	}()

	segments <- testSegment(1, "hello", true)
	close(segments)
	<-done

	got := collectCaptions(t, captions, 1)
	require.Equal(t, "hola", got[0].Text)
	translator.AssertExpectations(t)
}

func TestStreamSurvivesTranslatorError(t *testing.T) {
	translator := new(MockTranslator)
	translator.On("Translate", mock.Anything, "bad", "en", "es").Return("", context.DeadlineExceeded)
	translator.On("Translate", mock.Anything, "good", "en", "es").Return("bueno", nil)

	overlay := newTestOverlay(t, translator, false)
	captions, unsubscribe := overlay.Subscribe("call-1")
	defer unsubscribe()

	segments := make(chan transcribe.Segment)
	done := make(chan struct{})
	go func() {
		defer close(done)
		overlay.Stream(context.Background(), "call-1", segments, map[string]string{"user-b": "es"})
	}()

	segments <- testSegment(1, "bad", true)
	segments <- testSegment(2, "good", true)
	close(segments)
	<-done

	got := collectCaptions(t, captions, 1)
	require.Equal(t, "bueno", got[0].Text)
}
