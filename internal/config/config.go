package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jamestelfer/casting-gate/internal/jwks"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Authorization AuthorizationConfig
	Server        ServerConfig
	Observe       ObserveConfig
}

type ServerConfig struct {
	Port                   int `env:"PORT, default=8080"`
	ShutdownTimeoutSeconds int `env:"SERVER_SHUTDOWN_TIMEOUT_SECS, default=25"`

	OutgoingHttpMaxIdleConns    int `env:"SERVER_OUTGOING_MAX_IDLE_CONNS, default=100"`
	OutgoingHttpMaxConnsPerHost int `env:"SERVER_OUTGOING_MAX_CONNS_PER_HOST, default=20"`

	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN, default=*"`

	// PolicyPath is an optional YAML file that overrides the permission
	// required by each route.
	PolicyPath string `env:"AUTHZ_POLICY_PATH"`
}

type AuthorizationConfig struct {
	Domain     string   `env:"AUTH0_DOMAIN, required"`
	Audience   string   `env:"API_AUDIENCE, required"`
	Algorithms []string `env:"ALGORITHMS, default=RS256"`

	AllowedClockSkew time.Duration `env:"JWT_ALLOWED_CLOCK_SKEW, default=0s"`

	// JWKSURL overrides the key set location derived from the domain.
	JWKSURL                string        `env:"JWT_JWKS_URL"`
	JWKSCacheTTL           time.Duration `env:"JWT_JWKS_CACHE_TTL, default=5m"`
	JWKSFetchTimeout       time.Duration `env:"JWT_JWKS_FETCH_TIMEOUT, default=5s"`
	JWKSMinRefreshInterval time.Duration `env:"JWT_JWKS_MIN_REFRESH_INTERVAL, default=30s"`
	JWKSRedisURL           string        `env:"JWT_JWKS_REDIS_URL"`
}

type ObserveConfig struct {
	Enabled                    bool   `env:"OBSERVE_ENABLED, default=false"`
	MetricsEnabled             bool   `env:"OBSERVE_METRICS_ENABLED, default=true"`
	Type                       string `env:"OBSERVE_TYPE, default=grpc"`
	ServiceName                string `env:"OBSERVE_OTEL_SERVICE_NAME, default=casting-gate"`
	TraceBatchTimeoutSeconds   int    `env:"OBSERVE_TRACE_BATCH_TIMEOUT_SECS, default=20"`
	MetricReadIntervalSeconds  int    `env:"OBSERVE_METRIC_READ_INTERVAL_SECS, default=60"`
	HttpTransportEnabled       bool   `env:"OBSERVE_HTTP_TRANSPORT_ENABLED, default=true"`
	HttpConnectionTraceEnabled bool   `env:"OBSERVE_CONNECTION_TRACE_ENABLED, default=false"`
}

// Load reads configuration from the environment. Values in a .env file in the
// working directory are added to the environment first, without overriding
// variables that are already set.
func Load(ctx context.Context) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf(".env file could not be read: %w", err)
	}

	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads configuration using the supplied lookuper.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (cfg Config, err error) {
	err = envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	})
	if err != nil {
		return
	}

	err = cfg.Authorization.validate()
	return
}

func (c AuthorizationConfig) validate() error {
	if c.JWKSCacheTTL < 0 {
		return fmt.Errorf("JWT_JWKS_CACHE_TTL cannot be negative, got %s", c.JWKSCacheTTL)
	}
	if c.JWKSFetchTimeout <= 0 {
		return fmt.Errorf("JWT_JWKS_FETCH_TIMEOUT must be positive, got %s", c.JWKSFetchTimeout)
	}
	if c.AllowedClockSkew < 0 {
		return fmt.Errorf("JWT_ALLOWED_CLOCK_SKEW cannot be negative, got %s", c.AllowedClockSkew)
	}
	return nil
}

// KeySetURL is the configured key set location, or the well-known location
// for the issuer domain.
func (c AuthorizationConfig) KeySetURL() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}
	return jwks.URLForDomain(c.Domain)
}
