package sessions

import (
	"encoding/json"
	"net/http"

	"github.com/jailfriend/go-call-infra/internal/api"
	"github.com/jailfriend/go-call-infra/internal/api/httperrors"
	"github.com/jailfriend/go-call-infra/internal/session"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// GetSessionEventsRoute streams call-state transitions as server-sent
// events. Clients drive their UI (reconnecting banner, attempt counter)
// from this stream.
func GetSessionEventsRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Call.GET("/sessions/:id/events", getSessionEventsHandler(s))
}

func getSessionEventsHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		sessionID := c.Param("id")

		events, unsubscribe, err := s.Calls.SubscribeStates(sessionID)
		if errors.Is(err, session.ErrSessionNotFound) {
			return httperrors.NewNotFoundError(httperrors.TypeSessionNotFound, "session not found")
		}
		if err != nil {
			return httperrors.NewHTTPError(http.StatusInternalServerError, httperrors.TypeGeneric, "Failed to subscribe")
		}
		defer unsubscribe()

		return streamSSE(c, func(w *echo.Response) (bool, error) {
			select {
			case <-c.Request().Context().Done():
				return false, nil
			case ev, ok := <-events:
				if !ok {
					return false, nil
				}
				return true, writeSSEEvent(w, "state", ev)
			}
		})
	}
}

// streamSSE prepares the response for server-sent events and pumps next
// until it reports completion.
func streamSSE(c echo.Context, next func(w *echo.Response) (bool, error)) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	for {
		more, err := next(w)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

func writeSSEEvent(w *echo.Response, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to encode event")
	}
	if _, err := w.Write([]byte("event: " + event + "\ndata: " + string(data) + "\n\n")); err != nil {
		return err
	}
	w.Flush()
	return nil
}
