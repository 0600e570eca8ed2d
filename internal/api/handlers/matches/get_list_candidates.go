package matches

import (
	"net/http"
	"time"

	"github.com/jailfriend/go-call-infra/internal/api"
	"github.com/jailfriend/go-call-infra/internal/api/httperrors"
	"github.com/jailfriend/go-call-infra/internal/api/middleware"
	"github.com/jailfriend/go-call-infra/internal/util"
	"github.com/labstack/echo/v4"
)

type CandidateResponse struct {
	UserID           string `json:"user_id"`
	RemainingSeconds int64  `json:"remaining_seconds"`
}

type GetListCandidatesResponse struct {
	Candidates []CandidateResponse `json:"candidates"`
}

func GetListCandidatesRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Call.GET("/candidates", getListCandidatesHandler(s))
}

func getListCandidatesHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		claims := middleware.UserClaims(c)
		if claims == nil {
			return httperrors.NewHTTPError(http.StatusUnauthorized, httperrors.TypeGeneric, "missing claims")
		}

		candidates, err := s.Calls.FindCandidates(ctx, claims.UserID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list candidates")
			return httperrors.NewHTTPError(http.StatusInternalServerError, httperrors.TypeGeneric, "Failed to list candidates")
		}

		response := &GetListCandidatesResponse{Candidates: make([]CandidateResponse, 0, len(candidates))}
		for _, candidate := range candidates {
			response.Candidates = append(response.Candidates, CandidateResponse{
				UserID:           candidate.UserID,
				RemainingSeconds: int64(candidate.Remaining / time.Second),
			})
		}

		return c.JSON(http.StatusOK, response)
	}
}
