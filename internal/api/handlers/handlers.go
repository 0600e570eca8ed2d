package handlers

import (
	"github.com/jailfriend/go-call-infra/internal/api"
	"github.com/jailfriend/go-call-infra/internal/api/handlers/auth"
	"github.com/jailfriend/go-call-infra/internal/api/handlers/matches"
	"github.com/jailfriend/go-call-infra/internal/api/handlers/sessions"
	"github.com/labstack/echo/v4"
)

// AttachAllRoutes registers every route on the server's router groups.
func AttachAllRoutes(s *api.Server) []*echo.Route {
	return []*echo.Route{
		auth.PostTokenRoute(s),
		matches.GetListCandidatesRoute(s),
		sessions.PostCreateSessionRoute(s),
		sessions.GetSessionRoute(s),
		sessions.PostReconnectSessionRoute(s),
		sessions.PostHangupSessionRoute(s),
		sessions.GetSessionEventsRoute(s),
		sessions.GetSessionCaptionsRoute(s),
	}
}
