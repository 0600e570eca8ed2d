package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/jailfriend/go-call-infra/internal/config"
	"github.com/pkg/errors"
)

// HTTPTranslator calls a LibreTranslate-compatible endpoint.
type HTTPTranslator struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPTranslator(cfg config.Translate) *HTTPTranslator {
	return &HTTPTranslator{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: cfg.RequestTimeout},
	}
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	APIKey string `json:"api_key,omitempty"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error"`
}

func (t *HTTPTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	body, err := json.Marshal(translateRequest{
		Q:      text,
		Source: sourceLang,
		Target: targetLang,
		APIKey: t.apiKey,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to encode translation request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "failed to build translation request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := t.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "translation request failed")
	}
	defer res.Body.Close()

	var parsed translateResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", errors.Wrap(err, "failed to decode translation response")
	}

	if res.StatusCode != http.StatusOK {
		if parsed.Error != "" {
			return "", errors.Errorf("translation endpoint returned %d: %s", res.StatusCode, parsed.Error)
		}
		return "", errors.Errorf("translation endpoint returned %d", res.StatusCode)
	}

	return parsed.TranslatedText, nil
}
