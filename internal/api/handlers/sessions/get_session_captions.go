package sessions

import (
	"github.com/jailfriend/go-call-infra/internal/api"
	"github.com/labstack/echo/v4"
)

// GetSessionCaptionsRoute streams translated captions as server-sent
// events, in transcript order per speaker.
func GetSessionCaptionsRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Call.GET("/sessions/:id/captions", getSessionCaptionsHandler(s))
}

func getSessionCaptionsHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		sessionID := c.Param("id")

		captions, unsubscribe := s.Calls.SubscribeCaptions(sessionID)
		defer unsubscribe()

		return streamSSE(c, func(w *echo.Response) (bool, error) {
			select {
			case <-c.Request().Context().Done():
				return false, nil
			case caption, ok := <-captions:
				if !ok {
					return false, nil
				}
				return true, writeSSEEvent(w, "caption", caption)
			}
		})
	}
}
