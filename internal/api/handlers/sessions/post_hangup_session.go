package sessions

import (
	"net/http"

	"github.com/jailfriend/go-call-infra/internal/api"
	"github.com/jailfriend/go-call-infra/internal/api/httperrors"
	"github.com/jailfriend/go-call-infra/internal/api/middleware"
	"github.com/jailfriend/go-call-infra/internal/session"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type PostHangupSessionPayload struct {
	Reason string `json:"reason,omitempty"`
}

func PostHangupSessionRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Call.POST("/sessions/:id/hangup", postHangupSessionHandler(s))
}

func postHangupSessionHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		sessionID := c.Param("id")

		var body PostHangupSessionPayload
		if err := c.Bind(&body); err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "invalid request body")
		}

		reason := body.Reason
		if reason == "" {
			claims := middleware.UserClaims(c)
			if claims != nil {
				reason = "hang-up by " + claims.UserID
			} else {
				reason = "hang-up"
			}
		}

		err := s.Calls.Hangup(sessionID, reason)
		if errors.Is(err, session.ErrSessionNotFound) {
			return httperrors.NewNotFoundError(httperrors.TypeSessionNotFound, "session not found")
		}
		if err != nil {
			return httperrors.NewHTTPError(http.StatusInternalServerError, httperrors.TypeGeneric, "Failed to hang up session")
		}

		return c.NoContent(http.StatusAccepted)
	}
}
