package middleware

import (
	"net/http"

	"github.com/jailfriend/go-call-infra/internal/api/httperrors"
	"github.com/jailfriend/go-call-infra/internal/util"
	"github.com/labstack/echo/v4"
)

// HTTPErrorHandler renders every error as the public HTTPError payload.
func HTTPErrorHandler() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var payload *httperrors.HTTPError
		switch e := err.(type) {
		case *httperrors.HTTPError:
			payload = e
		case *echo.HTTPError:
			title, ok := e.Message.(string)
			if !ok {
				title = http.StatusText(e.Code)
			}
			payload = httperrors.NewHTTPError(e.Code, httperrors.TypeGeneric, title)
		default:
			payload = httperrors.NewHTTPError(http.StatusInternalServerError, httperrors.TypeGeneric, "Internal server error")
		}

		if writeErr := c.JSON(payload.Code, payload); writeErr != nil {
			util.LogFromContext(c.Request().Context()).Error().Err(writeErr).Msg("Failed to write error response")
		}
	}
}
