package middleware

import (
	"net/http"
	"strings"

	"github.com/jailfriend/go-call-infra/internal/api/httperrors"
	"github.com/jailfriend/go-call-infra/internal/auth"
	"github.com/labstack/echo/v4"
)

const ctxKeyUserClaims = "user_claims"

// Auth validates the bearer token and stores the participant claims on the
// echo context.
func Auth(mgr *auth.JWTManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return httperrors.NewHTTPError(http.StatusUnauthorized, httperrors.TypeGeneric, "missing bearer token")
			}

			claims, err := mgr.Validate(token)
			if err != nil {
				return httperrors.NewHTTPError(http.StatusUnauthorized, httperrors.TypeGeneric, "invalid token")
			}

			c.Set(ctxKeyUserClaims, claims)
			return next(c)
		}
	}
}

// UserClaims returns the participant claims set by Auth, or nil on
// unauthenticated routes.
func UserClaims(c echo.Context) *auth.UserClaims {
	claims, _ := c.Get(ctxKeyUserClaims).(*auth.UserClaims)
	return claims
}
