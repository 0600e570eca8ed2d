package auth

import (
	"net/http"

	"github.com/jailfriend/go-call-infra/internal/api"
	"github.com/jailfriend/go-call-infra/internal/api/httperrors"
	"github.com/jailfriend/go-call-infra/internal/util"
	"github.com/labstack/echo/v4"
)

type PostTokenPayload struct {
	UserID string   `json:"user_id"`
	Scopes []string `json:"scopes,omitempty"`
}

type PostTokenResponse struct {
	Token string `json:"token"`
}

func PostTokenRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Auth.POST("/token", postTokenHandler(s))
}

func postTokenHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var body PostTokenPayload
		if err := c.Bind(&body); err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "invalid request body")
		}
		if body.UserID == "" {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "user_id is required")
		}

		token, err := s.Auth.Generate(body.UserID, body.Scopes)
		if err != nil {
			log.Error().Err(err).Msg("Failed to generate token")
			return httperrors.NewHTTPError(http.StatusInternalServerError, httperrors.TypeGeneric, "Failed to generate token")
		}

		return c.JSON(http.StatusOK, &PostTokenResponse{Token: token})
	}
}
