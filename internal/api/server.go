package api

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/jailfriend/go-call-infra/internal/auth"
	"github.com/jailfriend/go-call-infra/internal/call"
	"github.com/jailfriend/go-call-infra/internal/config"
	"github.com/jailfriend/go-call-infra/internal/match"
	"github.com/jailfriend/go-call-infra/internal/profile"
	"github.com/jailfriend/go-call-infra/internal/session"
	"github.com/jailfriend/go-call-infra/internal/signaling"
	"github.com/jailfriend/go-call-infra/internal/store"
	"github.com/jailfriend/go-call-infra/internal/transcribe"
	"github.com/jailfriend/go-call-infra/internal/translate"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	// Import postgres driver for database/sql package
	_ "github.com/lib/pq"
)

type Router struct {
	Routes    []*echo.Route
	Root      *echo.Group
	APIV1Auth *echo.Group
	APIV1Call *echo.Group
}

// Server is a central struct keeping all the dependencies. Components are
// initialized in dependency order by InitComponents; the router is attached
// afterwards with router Init.
type Server struct {
	Echo   *echo.Echo
	Router *Router

	Config config.Server
	DB     *sql.DB
	Redis  *redis.Client

	Auth     *auth.JWTManager
	Profiles profile.Store
	Matcher  *match.Service
	Sessions *session.Manager
	Overlay  *translate.Overlay
	Calls    *call.Service
	Store    *store.RedisStore
}

func NewServer(cfg config.Server) *Server {
	return &Server{
		Config: cfg,
	}
}

// InitComponents connects the backing services and wires the call stack
// together. It must run before the router is initialized.
func (s *Server) InitComponents() error {
	db, err := sql.Open("postgres", s.Config.Database.ConnectionString())
	if err != nil {
		return errors.Wrap(err, "failed to open database connection")
	}
	s.DB = db

	s.Redis = redis.NewClient(&redis.Options{
		Addr:     s.Config.Redis.Address,
		Password: s.Config.Redis.Password,
		DB:       s.Config.Redis.DB,
	})

	s.Auth = auth.NewJWTManager(s.Config.Auth)
	s.Store = store.NewRedisStore(s.Redis, s.Config.Redis.SessionTTL)

	s.Profiles = profile.NewCachedStore(profile.NewPostgresStore(s.DB), s.Redis, s.Config.Redis.ProfileTTL)
	s.Matcher = match.NewService(s.Profiles, s.Config.Match.MaxCandidates)

	transport, err := signaling.NewWebSocketTransport(s.Config.Session)
	if err != nil {
		return errors.Wrap(err, "failed to init signaling transport")
	}
	s.Sessions = session.NewManager(transport, session.ControllerConfigFromEnv(s.Config.Session), s.Store)

	translator := translate.NewHTTPTranslator(s.Config.Translate)
	overlay, err := translate.NewOverlay(translator, s.Config.Translate)
	if err != nil {
		return errors.Wrap(err, "failed to init translation overlay")
	}
	s.Overlay = overlay
	s.Overlay.SetSink(s.Store)

	provider := transcribe.NewWebSocketProvider(s.Config.Transcribe)
	s.Calls = call.NewService(s.Matcher, s.Sessions, provider, s.Overlay, s.Config.Transcribe)

	return nil
}

func (s *Server) Ready() bool {
	return s.Echo != nil &&
		s.Router != nil &&
		s.DB != nil &&
		s.Redis != nil &&
		s.Calls != nil
}

func (s *Server) Start() error {
	if !s.Ready() {
		return errors.New("server is not ready")
	}

	return s.Echo.Start(s.Config.Echo.ListenAddress)
}

func (s *Server) Shutdown(ctx context.Context) []error {
	log.Warn().Msg("Shutting down server")

	var errs []error

	if s.Calls != nil {
		log.Debug().Msg("Draining call sessions")
		s.Calls.Shutdown(ctx)
	}

	if s.Echo != nil {
		log.Debug().Msg("Shutting down echo server")
		if err := s.Echo.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Failed to shutdown echo server")
			errs = append(errs, err)
		}
	}

	if s.Redis != nil {
		log.Debug().Msg("Closing redis connection")
		if err := s.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close redis connection")
			errs = append(errs, err)
		}
	}

	if s.DB != nil {
		log.Debug().Msg("Closing database connection")
		if err := s.DB.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			log.Error().Err(err).Msg("Failed to close database connection")
			errs = append(errs, err)
		}
	}

	return errs
}
