package call

// StartCallRequest asks for a new call session between two matched users.
// CaptionLanguages maps each participant to the language their captions
// should be rendered in; participants without an entry get no overlay.
type StartCallRequest struct {
	CallerID         string            `json:"caller_id"`
	CalleeID         string            `json:"callee_id"`
	CaptionLanguages map[string]string `json:"caption_languages,omitempty"`
}
