package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the VoxDesk console plane.
type Config struct {
	Port      int
	Version   string
	Store     StoreConfig
	Upstream  UpstreamConfig
	IDP       IDPConfig
	Session   SessionConfig
	Janitor   JanitorConfig
	Telemetry TelemetryConfig
}

// StoreConfig selects and configures the console store backend.
type StoreConfig struct {
	// Driver is one of "memory", "sqlite", "postgres".
	Driver      string
	DataDir     string // sqlite file / memory snapshot location
	PostgresURL string
}

// UpstreamConfig points at the voice platform API. ServiceToken is the bearer
// credential the console plane authenticates with; impersonation never
// changes it.
type UpstreamConfig struct {
	BaseURL      string
	ServiceToken string
	Timeout      time.Duration
}

// IDPConfig points at the identity provider used for sign-in/sign-up.
type IDPConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// SessionConfig controls console session lifetime and sign-in throttling.
type SessionConfig struct {
	TTL          time.Duration
	SignInPerMin float64
	SignInBurst  int
}

// JanitorConfig controls the background sweep of expired sessions and
// unreleased secret references.
type JanitorConfig struct {
	Enabled  bool
	Schedule string // cron expression
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("VOXDESK_PORT", 8080),
		Version: envStr("VOXDESK_VERSION", "0.2.0"),
		Store: StoreConfig{
			Driver:      envStr("VOXDESK_STORE_DRIVER", "memory"),
			DataDir:     envStr("VOXDESK_DATA_DIR", ""),
			PostgresURL: envStr("VOXDESK_POSTGRES_URL", ""),
		},
		Upstream: UpstreamConfig{
			BaseURL:      envStr("VOXDESK_UPSTREAM_URL", "http://localhost:9090"),
			ServiceToken: envStr("VOXDESK_UPSTREAM_TOKEN", ""),
			Timeout:      envDuration("VOXDESK_UPSTREAM_TIMEOUT", 30*time.Second),
		},
		IDP: IDPConfig{
			BaseURL: envStr("VOXDESK_IDP_URL", "http://localhost:9099"),
			APIKey:  envStr("VOXDESK_IDP_API_KEY", ""),
			Timeout: envDuration("VOXDESK_IDP_TIMEOUT", 15*time.Second),
		},
		Session: SessionConfig{
			TTL:          envDuration("VOXDESK_SESSION_TTL", 24*time.Hour),
			SignInPerMin: envFloat("VOXDESK_SIGNIN_PER_MIN", 10),
			SignInBurst:  envInt("VOXDESK_SIGNIN_BURST", 5),
		},
		Janitor: JanitorConfig{
			Enabled:  envBool("VOXDESK_JANITOR_ENABLED", true),
			Schedule: envStr("VOXDESK_JANITOR_SCHEDULE", "@every 10m"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "voxdesk-console-plane"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
