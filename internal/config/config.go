// Package config loads service settings from TRACKURE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const envPrefix = "TRACKURE_"

// DatabaseConfig selects the Postgres backend. An empty DSN runs against the
// in-memory store.
type DatabaseConfig struct {
	DSN             string        `env:"DSN"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"12"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"15m"`
	ConnMaxIdleTime time.Duration `env:"CONN_MAX_IDLE_TIME" envDefault:"5m"`
}

// EntraConfig enables Microsoft Entra ID token verification.
type EntraConfig struct {
	TenantID string        `env:"TENANT_ID"`
	ClientID string        `env:"CLIENT_ID"`
	JWKSURL  string        `env:"JWKS_URL"`
	Issuer   string        `env:"ISSUER"`
	JWKSTTL  time.Duration `env:"JWKS_TTL" envDefault:"1h"`
}

// Enabled reports whether Entra verification is configured.
func (e EntraConfig) Enabled() bool {
	return e.TenantID != "" || e.JWKSURL != ""
}

// DevAuthConfig enables shared-secret tokens. BootstrapEmail seeds a
// SUPER_ADMIN into the in-memory store so a fresh local run can sign in.
type DevAuthConfig struct {
	Secret         string        `env:"SECRET"`
	TokenTTL       time.Duration `env:"TOKEN_TTL" envDefault:"8h"`
	BootstrapEmail string        `env:"BOOTSTRAP_EMAIL"`
}

type HTTPConfig struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:","`
	TrustedProxies  []string      `env:"TRUSTED_PROXIES" envSeparator:","`
	RateLimitRPS    float64       `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst  int           `env:"RATE_LIMIT_BURST" envDefault:"40"`
	MaxBodyBytes    int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// ArchiveConfig enables periodic upload of the activity trail. Archiving is
// off unless Bucket is set.
type ArchiveConfig struct {
	Bucket       string        `env:"BUCKET"`
	Prefix       string        `env:"PREFIX" envDefault:"activity"`
	Endpoint     string        `env:"ENDPOINT"`
	Region       string        `env:"REGION" envDefault:"us-east-1"`
	AccessKey    string        `env:"ACCESS_KEY"`
	SecretKey    string        `env:"SECRET_KEY"`
	UsePathStyle bool          `env:"USE_PATH_STYLE"`
	CreateBucket bool          `env:"CREATE_BUCKET"`
	Schedule     string        `env:"SCHEDULE" envDefault:"@every 1h"`
	RunTimeout   time.Duration `env:"RUN_TIMEOUT" envDefault:"5m"`
}

// Enabled reports whether a bucket is configured.
func (a ArchiveConfig) Enabled() bool { return a.Bucket != "" }

type Config struct {
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
	RoutePolicyFile string `env:"ROUTE_POLICY_FILE"`

	HTTP     HTTPConfig     `envPrefix:"HTTP_"`
	Database DatabaseConfig `envPrefix:"DB_"`
	Entra    EntraConfig    `envPrefix:"ENTRA_"`
	DevAuth  DevAuthConfig  `envPrefix:"DEV_AUTH_"`
	Archive  ArchiveConfig  `envPrefix:"ARCHIVE_"`
}

// Load parses the process environment and validates the result.
func Load() (*Config, error) {
	return parse(env.Options{Prefix: envPrefix})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: envPrefix, Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints and trims values.
func (c *Config) Validate() error {
	c.Entra.TenantID = strings.TrimSpace(c.Entra.TenantID)
	c.Entra.JWKSURL = strings.TrimSpace(c.Entra.JWKSURL)
	c.DevAuth.Secret = strings.TrimSpace(c.DevAuth.Secret)
	for i, o := range c.HTTP.CORSOrigins {
		c.HTTP.CORSOrigins[i] = strings.TrimSpace(o)
	}

	var errs []error
	if !c.Entra.Enabled() && c.DevAuth.Secret == "" {
		errs = append(errs, errors.New("no token verifier configured: set TRACKURE_ENTRA_TENANT_ID or TRACKURE_DEV_AUTH_SECRET"))
	}
	if c.Entra.Enabled() && c.Entra.ClientID == "" {
		errs = append(errs, errors.New("TRACKURE_ENTRA_CLIENT_ID is required with Entra verification"))
	}
	if c.Entra.Enabled() && c.DevAuth.Secret != "" {
		errs = append(errs, errors.New("TRACKURE_DEV_AUTH_SECRET cannot be combined with Entra verification"))
	}
	if c.DevAuth.Secret != "" && len(c.DevAuth.Secret) < 16 {
		errs = append(errs, errors.New("TRACKURE_DEV_AUTH_SECRET must be at least 16 characters"))
	}
	if c.HTTP.RateLimitRPS < 0 || c.HTTP.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rate limit values must not be negative"))
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("TRACKURE_HTTP_MAX_BODY_BYTES must be positive"))
	}
	if c.Archive.Enabled() && strings.TrimSpace(c.Archive.Schedule) == "" {
		errs = append(errs, errors.New("TRACKURE_ARCHIVE_SCHEDULE is required when archiving is enabled"))
	}
	return errors.Join(errs...)
}
