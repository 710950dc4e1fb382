package config

import (
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	env "github.com/Skotchmaster/streamtweet/pkg/config"
)

type Config struct {
	ServiceName string
	ServerPort  int
	LogLevel    string

	DatabaseURL string

	JWTAccessSecret  []byte
	JWTRefreshSecret []byte
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration

	CookieSecure   bool
	CookieSameSite http.SameSite
	CSRFEnabled    bool
	CORSOrigins    []string

	KafkaBrokers []string

	ESURL      string
	ESUser     string
	ESPassword string
	ESIndex    string

	SideEffectWorkers int
	SideEffectQueue   int

	AuthRateLimit int
	AuthRateBurst int
}

// Load reads the process environment, preferring values from a local .env file when present.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	cfg := &Config{
		ServiceName: env.EnvDefault("SERVICE_NAME", "streamtweet"),
		ServerPort:  env.EnvIntDefault("SERVER_PORT", 8000),
		LogLevel:    env.EnvDefault("LOG_LEVEL", "info"),

		DatabaseURL: env.EnvDefault("DATABASE_URL", "sqlite://streamtweet.db"),

		JWTAccessSecret:  []byte(os.Getenv("JWT_SECRET")),
		JWTRefreshSecret: []byte(os.Getenv("JWT_REFRESH_SECRET")),
		AccessTokenTTL:   env.EnvDurationDefault("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:  env.EnvDurationDefault("REFRESH_TOKEN_TTL", 7*24*time.Hour),

		CookieSecure:   env.EnvBoolDefault("COOKIE_SECURE", true),
		CookieSameSite: ParseSameSite(env.EnvDefault("COOKIE_SAMESITE", "lax")),
		CSRFEnabled:    env.EnvBoolDefault("CSRF_ENABLED", false),
		CORSOrigins:    env.CSV(env.EnvDefault("CORS_ORIGIN", "http://localhost:5173,https://streamtweet.netlify.app")),

		KafkaBrokers: env.CSV(os.Getenv("KAFKA_BROKERS")),

		ESURL:      os.Getenv("ES_URL"),
		ESUser:     os.Getenv("ES_USER"),
		ESPassword: os.Getenv("ES_PASSWORD"),
		ESIndex:    env.EnvDefault("ES_INDEX", "videos"),

		SideEffectWorkers: env.EnvIntDefault("SIDE_EFFECT_WORKERS", 4),
		SideEffectQueue:   env.EnvIntDefault("SIDE_EFFECT_QUEUE", 256),

		AuthRateLimit: env.EnvIntDefault("AUTH_RATE_LIMIT", 10),
		AuthRateBurst: env.EnvIntDefault("AUTH_RATE_BURST", 5),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	return errors.Join(
		env.NonEmptyBytes(c.JWTAccessSecret, "JWT_SECRET"),
		env.NonEmptyBytes(c.JWTRefreshSecret, "JWT_REFRESH_SECRET"),
		sameSecret(c.JWTAccessSecret, c.JWTRefreshSecret),
		noneNeedsSecure(c.CookieSameSite, c.CookieSecure),
	)
}

func ParseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func sameSecret(a, b []byte) error {
	if len(a) > 0 && string(a) == string(b) {
		return errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ")
	}
	return nil
}

func noneNeedsSecure(mode http.SameSite, secure bool) error {
	if mode == http.SameSiteNoneMode && !secure {
		return errors.New("COOKIE_SAMESITE=none requires COOKIE_SECURE=true")
	}
	return nil
}
