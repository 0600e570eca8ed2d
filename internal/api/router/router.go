package router

import (
	"net/http"

	"github.com/jailfriend/go-call-infra/internal/api"
	"github.com/jailfriend/go-call-infra/internal/api/handlers"
	"github.com/jailfriend/go-call-infra/internal/api/middleware"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Init attaches the echo instance, the middleware chain, and every route to
// the server.
func Init(s *api.Server) {
	s.Echo = echo.New()
	s.Echo.HideBanner = s.Config.Echo.HideBanner
	s.Echo.HTTPErrorHandler = middleware.HTTPErrorHandler()

	s.Echo.Use(echomiddleware.Recover())
	s.Echo.Use(echomiddleware.RequestID())
	s.Echo.Use(middleware.RequestLogger())

	s.Router = &api.Router{
		Root:      s.Echo.Group(""),
		APIV1Auth: s.Echo.Group("/api/v1/auth"),
		APIV1Call: s.Echo.Group("/api/v1/call", middleware.Auth(s.Auth)),
	}

	s.Router.Root.GET("/-/healthy", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	s.Router.Root.GET("/-/ready", func(c echo.Context) error {
		if !s.Ready() {
			return c.String(http.StatusServiceUnavailable, "Not ready")
		}
		return c.String(http.StatusOK, "Ready")
	})
	s.Router.Root.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.Router.Routes = handlers.AttachAllRoutes(s)
}
