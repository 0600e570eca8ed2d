package sessions

import (
	"net/http"

	"github.com/jailfriend/go-call-infra/internal/api"
	"github.com/jailfriend/go-call-infra/internal/api/httperrors"
	"github.com/jailfriend/go-call-infra/internal/session"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

func PostReconnectSessionRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Call.POST("/sessions/:id/reconnect", postReconnectSessionHandler(s))
}

func postReconnectSessionHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		sessionID := c.Param("id")

		err := s.Calls.Reconnect(sessionID)
		if errors.Is(err, session.ErrSessionNotFound) {
			return httperrors.NewNotFoundError(httperrors.TypeSessionNotFound, "session not found")
		}
		if err != nil {
			return httperrors.NewHTTPError(http.StatusInternalServerError, httperrors.TypeGeneric, "Failed to request reconnect")
		}

		return c.NoContent(http.StatusAccepted)
	}
}
