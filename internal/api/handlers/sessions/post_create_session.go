package sessions

import (
	"net/http"

	"github.com/jailfriend/go-call-infra/internal/api"
	"github.com/jailfriend/go-call-infra/internal/api/httperrors"
	"github.com/jailfriend/go-call-infra/internal/api/middleware"
	"github.com/jailfriend/go-call-infra/internal/call"
	"github.com/jailfriend/go-call-infra/internal/util"
	"github.com/labstack/echo/v4"
)

type PostCreateSessionPayload struct {
	CalleeID         string            `json:"callee_id"`
	PeerEndpoints    []string          `json:"peer_endpoints,omitempty"`
	CaptionLanguages map[string]string `json:"caption_languages,omitempty"`
}

func PostCreateSessionRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Call.POST("/sessions", postCreateSessionHandler(s))
}

func postCreateSessionHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		claims := middleware.UserClaims(c)
		if claims == nil {
			return httperrors.NewHTTPError(http.StatusUnauthorized, httperrors.TypeGeneric, "missing claims")
		}

		var body PostCreateSessionPayload
		if err := c.Bind(&body); err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "invalid request body")
		}
		if body.CalleeID == "" {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "callee_id is required")
		}
		if body.CalleeID == claims.UserID {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "cannot call yourself")
		}

		sess, err := s.Calls.StartCall(ctx, &call.StartCallRequest{
			CallerID:         claims.UserID,
			CalleeID:         body.CalleeID,
			CaptionLanguages: body.CaptionLanguages,
		}, body.PeerEndpoints)
		if err != nil {
			log.Error().Err(err).Str("callee_id", body.CalleeID).Msg("Failed to create session")
			return httperrors.NewHTTPError(http.StatusInternalServerError, httperrors.TypeGeneric, "Failed to create session")
		}

		return c.JSON(http.StatusCreated, newSessionResponse(sess))
	}
}
