package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Server holds the full configuration for one call-infra instance.
type Server struct {
	Echo       Echo
	Database   Database
	Redis      Redis
	Auth       Auth
	Match      Match
	Session    Session
	Transcribe Transcribe
	Translate  Translate
	Logger     Logger
}

type Echo struct {
	ListenAddress string `env:"SERVER_ECHO_LISTEN_ADDRESS" envDefault:":8080"`
	HideBanner    bool   `env:"SERVER_ECHO_HIDE_BANNER" envDefault:"true"`
}

type Database struct {
	Host     string `env:"PGHOST" envDefault:"localhost"`
	Port     int    `env:"PGPORT" envDefault:"5432"`
	Username string `env:"PGUSER" envDefault:"callinfra"`
	Password string `env:"PGPASSWORD" envDefault:""`
	Database string `env:"PGDATABASE" envDefault:"callinfra"`
	SSLMode  string `env:"PGSSLMODE" envDefault:"disable"`
}

type Redis struct {
	Address    string        `env:"SERVER_REDIS_ADDRESS" envDefault:"localhost:6379"`
	Password   string        `env:"SERVER_REDIS_PASSWORD" envDefault:""`
	DB         int           `env:"SERVER_REDIS_DB" envDefault:"0"`
	ProfileTTL time.Duration `env:"SERVER_REDIS_PROFILE_TTL" envDefault:"5m"`
	SessionTTL time.Duration `env:"SERVER_REDIS_SESSION_TTL" envDefault:"1h"`
}

type Auth struct {
	JWTSecret     string        `env:"SERVER_AUTH_JWT_SECRET" envDefault:"dev-only-secret"`
	JWTIssuer     string        `env:"SERVER_AUTH_JWT_ISSUER" envDefault:"jailfriend-call-infra"`
	TokenDuration time.Duration `env:"SERVER_AUTH_TOKEN_DURATION" envDefault:"24h"`
}

type Match struct {
	MaxCandidates int `env:"SERVER_MATCH_MAX_CANDIDATES" envDefault:"50"`
}

// Session controls the reconnection policy for peer call sessions.
// The backoff values are deployment-tunable; defaults favor fast recovery
// on flaky mobile links.
type Session struct {
	BackoffBase       time.Duration `env:"SERVER_SESSION_BACKOFF_BASE" envDefault:"500ms"`
	BackoffMax        time.Duration `env:"SERVER_SESSION_BACKOFF_MAX" envDefault:"8s"`
	BackoffFactor     float64       `env:"SERVER_SESSION_BACKOFF_FACTOR" envDefault:"2.0"`
	MaxAttempts       int           `env:"SERVER_SESSION_MAX_ATTEMPTS" envDefault:"5"`
	LivenessInterval  time.Duration `env:"SERVER_SESSION_LIVENESS_INTERVAL" envDefault:"15s"`
	AudioBuffer       int           `env:"SERVER_SESSION_AUDIO_BUFFER" envDefault:"64"`
	LivenessTimeout   time.Duration `env:"SERVER_SESSION_LIVENESS_TIMEOUT" envDefault:"45s"`
	SignalingEndpoint string        `env:"SERVER_SESSION_SIGNALING_ENDPOINT" envDefault:"wss://localhost:8443/signal"`
	TLSEnabled        bool          `env:"SERVER_SESSION_TLS_ENABLED" envDefault:"false"`
	TLSCACertFile     string        `env:"SERVER_SESSION_TLS_CA_CERT_FILE" envDefault:""`
}

type Transcribe struct {
	ProviderURL     string        `env:"SERVER_TRANSCRIBE_PROVIDER_URL" envDefault:"wss://api.deepgram.com/v1/listen"`
	APIKey          string        `env:"SERVER_TRANSCRIBE_API_KEY" envDefault:""`
	Model           string        `env:"SERVER_TRANSCRIBE_MODEL" envDefault:"nova-2"`
	LanguageHint    string        `env:"SERVER_TRANSCRIBE_LANGUAGE_HINT" envDefault:""`
	SmartFormat     bool          `env:"SERVER_TRANSCRIBE_SMART_FORMAT" envDefault:"true"`
	BufferFrames    int           `env:"SERVER_TRANSCRIBE_BUFFER_FRAMES" envDefault:"128"`
	BackoffBase     time.Duration `env:"SERVER_TRANSCRIBE_BACKOFF_BASE" envDefault:"500ms"`
	BackoffMax      time.Duration `env:"SERVER_TRANSCRIBE_BACKOFF_MAX" envDefault:"8s"`
	BackoffFactor   float64       `env:"SERVER_TRANSCRIBE_BACKOFF_FACTOR" envDefault:"2.0"`
	MaxAttempts     int           `env:"SERVER_TRANSCRIBE_MAX_ATTEMPTS" envDefault:"5"`
	HandshakeWindow time.Duration `env:"SERVER_TRANSCRIBE_HANDSHAKE_WINDOW" envDefault:"10s"`
}

type Translate struct {
	Endpoint            string        `env:"SERVER_TRANSLATE_ENDPOINT" envDefault:"http://localhost:5001/translate"`
	APIKey              string        `env:"SERVER_TRANSLATE_API_KEY" envDefault:""`
	RequestTimeout      time.Duration `env:"SERVER_TRANSLATE_REQUEST_TIMEOUT" envDefault:"5s"`
	CacheSize           int           `env:"SERVER_TRANSLATE_CACHE_SIZE" envDefault:"512"`
	SpeculativePartials bool          `env:"SERVER_TRANSLATE_SPECULATIVE_PARTIALS" envDefault:"false"`
}

type Logger struct {
	Level              string `env:"SERVER_LOGGER_LEVEL" envDefault:"info"`
	PrettyPrintConsole bool   `env:"SERVER_LOGGER_PRETTY_PRINT_CONSOLE" envDefault:"false"`
}

var (
	configOnce   sync.Once
	parsedConfig Server
)

// DefaultServerConfigFromEnv parses the server configuration from the
// process environment exactly once. A .env.local file is honored for local
// development but never required.
func DefaultServerConfigFromEnv() Server {
	configOnce.Do(func() {
		if err := godotenv.Load(".env.local"); err == nil {
			log.Debug().Msg("Loaded .env.local")
		}

		if err := env.Parse(&parsedConfig); err != nil {
			log.Fatal().Err(err).Msg("Failed to parse server config from env")
		}
	})

	return parsedConfig
}

// ConnectionString assembles the lib/pq DSN for the profile read model.
func (d Database) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode)
}
