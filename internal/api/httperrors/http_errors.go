package httperrors

import (
	"fmt"
	"net/http"
)

const (
	TypeGeneric         = "generic"
	TypeValidation      = "validation"
	TypeSessionNotFound = "session_not_found"
)

// HTTPError is the public error payload returned by every API route.
type HTTPError struct {
	Code   int    `json:"status"`
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTPError %d (%s): %s", e.Code, e.Type, e.Title)
}

func NewHTTPError(code int, errorType, title string) *HTTPError {
	return &HTTPError{
		Code:  code,
		Type:  errorType,
		Title: title,
	}
}

func NewHTTPErrorWithDetail(code int, errorType, title, detail string) *HTTPError {
	return &HTTPError{
		Code:   code,
		Type:   errorType,
		Title:  title,
		Detail: detail,
	}
}

// NewNotFoundError is the canonical 404 payload.
func NewNotFoundError(errorType, title string) *HTTPError {
	return NewHTTPError(http.StatusNotFound, errorType, title)
}
