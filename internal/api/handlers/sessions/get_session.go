package sessions

import (
	"net/http"

	"github.com/jailfriend/go-call-infra/internal/api"
	"github.com/jailfriend/go-call-infra/internal/api/httperrors"
	"github.com/jailfriend/go-call-infra/internal/session"
	"github.com/jailfriend/go-call-infra/internal/util"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

func GetSessionRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Call.GET("/sessions/:id", getSessionHandler(s))
}

func getSessionHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		sessionID := c.Param("id")

		sess, err := s.Calls.GetSession(sessionID)
		if errors.Is(err, session.ErrSessionNotFound) {
			// a disposed session may still have a persisted snapshot
			snap, storeErr := s.Store.GetSnapshot(ctx, sessionID)
			if storeErr != nil {
				return httperrors.NewNotFoundError(httperrors.TypeSessionNotFound, "session not found")
			}
			return c.JSON(http.StatusOK, newSessionResponse(*snap))
		}
		if err != nil {
			util.LogFromContext(ctx).Error().Err(err).Msg("Failed to load session")
			return httperrors.NewHTTPError(http.StatusInternalServerError, httperrors.TypeGeneric, "Failed to load session")
		}

		return c.JSON(http.StatusOK, newSessionResponse(sess))
	}
}
