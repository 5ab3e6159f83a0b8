// Package config loads talosd configuration from TALOS_* environment
// variables, with a best-effort .env file for development.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/talos-license/talos/internal/licensing"
)

// Database selects and addresses the backing store.
type Database struct {
	Type string // "sqlite" or "postgres"
	URL  string // file path for sqlite, DSN for postgres
}

// Auth configures the admin authentication layer.
type Auth struct {
	Enabled         bool
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	TokenExpiration time.Duration
	BootstrapToken  string
}

// RateLimit holds per-IP request budgets for the client endpoints,
// in requests per minute per endpoint class.
type RateLimit struct {
	ValidateRPM  int
	HeartbeatRPM int
	BindRPM      int
	Burst        int
}

// Jobs holds the cron schedules for the background sweeps.
type Jobs struct {
	LicenseExpirationCron     string
	GracePeriodCron           string
	StaleDeviceCron           string
	StaleDeviceCleanupEnabled bool
	StaleDeviceDays           int
}

// License configures key generation.
type License struct {
	KeyPrefix        string
	KeySegments      int
	KeySegmentLength int
}

// Server holds the HTTP listener settings.
type Server struct {
	BindAddress string
	Port        int
}

// Log holds the logging settings.
type Log struct {
	Level  string
	Format string
}

// Config is the full talosd configuration.
type Config struct {
	Database  Database
	Auth      Auth
	RateLimit RateLimit
	Jobs      Jobs
	License   License
	Tiers     map[string]licensing.Tier
	Server    Server
	Log       Log
}

// DefaultTiers are the built-in tier definitions, used when TALOS_TIERS
// is unset.
func DefaultTiers() map[string]licensing.Tier {
	return map[string]licensing.Tier{
		"basic": {
			Features:    []string{"core"},
			BandwidthGB: 100,
		},
		"pro": {
			Features:    []string{"core", "analytics", "priority-support"},
			BandwidthGB: 1000,
		},
		"enterprise": {
			Features:    []string{"core", "analytics", "priority-support", "sso", "audit-log"},
			BandwidthGB: 0, // unmetered
		},
	}
}

// Load reads configuration from the environment. A .env file is loaded
// if present but not required.
func Load() (*Config, error) {
	// Best-effort .env loading (not required)
	_ = godotenv.Load()

	port, err := envOrDefaultInt("TALOS_PORT", 8710)
	if err != nil {
		return nil, err
	}
	validateRPM, err := envOrDefaultInt("TALOS_RATE_VALIDATE_RPM", 120)
	if err != nil {
		return nil, err
	}
	heartbeatRPM, err := envOrDefaultInt("TALOS_RATE_HEARTBEAT_RPM", 60)
	if err != nil {
		return nil, err
	}
	bindRPM, err := envOrDefaultInt("TALOS_RATE_BIND_RPM", 30)
	if err != nil {
		return nil, err
	}
	burst, err := envOrDefaultInt("TALOS_RATE_BURST", 10)
	if err != nil {
		return nil, err
	}
	staleDays, err := envOrDefaultInt("TALOS_STALE_DEVICE_DAYS", 90)
	if err != nil {
		return nil, err
	}
	keySegments, err := envOrDefaultInt("TALOS_KEY_SEGMENTS", 4)
	if err != nil {
		return nil, err
	}
	keySegmentLength, err := envOrDefaultInt("TALOS_KEY_SEGMENT_LENGTH", 4)
	if err != nil {
		return nil, err
	}
	tokenExpiration, err := envOrDefaultDuration("TALOS_TOKEN_EXPIRATION", time.Hour)
	if err != nil {
		return nil, err
	}

	tiers, err := loadTiers()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: Database{
			Type: envOrDefault("TALOS_DB_TYPE", "sqlite"),
			URL:  envOrDefault("TALOS_DB_URL", "talos.db"),
		},
		Auth: Auth{
			Enabled:         envOrDefaultBool("TALOS_AUTH_ENABLED", true),
			JWTSecret:       strings.TrimSpace(os.Getenv("TALOS_JWT_SECRET")),
			JWTIssuer:       envOrDefault("TALOS_JWT_ISSUER", "talosd"),
			JWTAudience:     envOrDefault("TALOS_JWT_AUDIENCE", "talos-admin"),
			TokenExpiration: tokenExpiration,
			BootstrapToken:  strings.TrimSpace(os.Getenv("TALOS_BOOTSTRAP_TOKEN")),
		},
		RateLimit: RateLimit{
			ValidateRPM:  validateRPM,
			HeartbeatRPM: heartbeatRPM,
			BindRPM:      bindRPM,
			Burst:        burst,
		},
		Jobs: Jobs{
			LicenseExpirationCron:     envOrDefault("TALOS_JOB_EXPIRATION_CRON", "15 * * * *"),
			GracePeriodCron:           envOrDefault("TALOS_JOB_GRACE_CRON", "0 * * * *"),
			StaleDeviceCron:           envOrDefault("TALOS_JOB_STALE_CRON", "0 3 * * *"),
			StaleDeviceCleanupEnabled: envOrDefaultBool("TALOS_STALE_DEVICE_CLEANUP", false),
			StaleDeviceDays:           staleDays,
		},
		License: License{
			KeyPrefix:        envOrDefault("TALOS_KEY_PREFIX", "LIC"),
			KeySegments:      keySegments,
			KeySegmentLength: keySegmentLength,
		},
		Tiers: tiers,
		Server: Server{
			BindAddress: envOrDefault("TALOS_BIND_ADDRESS", "0.0.0.0"),
			Port:        port,
		},
		Log: Log{
			Level:  envOrDefault("TALOS_LOG_LEVEL", "info"),
			Format: envOrDefault("TALOS_LOG_FORMAT", "auto"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// loadTiers parses TALOS_TIERS as a JSON object mapping tier name to
// definition, falling back to the built-in tiers when unset.
func loadTiers() (map[string]licensing.Tier, error) {
	raw := strings.TrimSpace(os.Getenv("TALOS_TIERS"))
	if raw == "" {
		return DefaultTiers(), nil
	}
	tiers := make(map[string]licensing.Tier)
	if err := json.Unmarshal([]byte(raw), &tiers); err != nil {
		return nil, fmt.Errorf("TALOS_TIERS must be a valid JSON object: %w", err)
	}
	if len(tiers) == 0 {
		return nil, fmt.Errorf("TALOS_TIERS must define at least one tier")
	}
	return tiers, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		missing = append(missing, "TALOS_JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	switch c.Database.Type {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("TALOS_DB_TYPE must be sqlite or postgres, got %q", c.Database.Type)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("TALOS_DB_URL must not be empty")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("TALOS_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	for _, rpm := range []struct {
		name  string
		value int
	}{
		{"TALOS_RATE_VALIDATE_RPM", c.RateLimit.ValidateRPM},
		{"TALOS_RATE_HEARTBEAT_RPM", c.RateLimit.HeartbeatRPM},
		{"TALOS_RATE_BIND_RPM", c.RateLimit.BindRPM},
		{"TALOS_RATE_BURST", c.RateLimit.Burst},
	} {
		if rpm.value <= 0 {
			return fmt.Errorf("%s must be greater than 0, got %d", rpm.name, rpm.value)
		}
	}
	if c.Jobs.StaleDeviceDays <= 0 {
		return fmt.Errorf("TALOS_STALE_DEVICE_DAYS must be greater than 0, got %d", c.Jobs.StaleDeviceDays)
	}
	if _, err := (licensing.KeyGenerator{
		Prefix:        c.License.KeyPrefix,
		Segments:      c.License.KeySegments,
		SegmentLength: c.License.KeySegmentLength,
	}).Generate(); err != nil {
		return fmt.Errorf("invalid key layout: %w", err)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) (int, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
		}
		return n, nil
	}
	return fallback, nil
}

func envOrDefaultBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envOrDefaultDuration(key string, fallback time.Duration) (time.Duration, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}
