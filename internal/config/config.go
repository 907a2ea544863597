// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// DirectorySystemConfig holds the connection settings for one external
// system's REST surface.
type DirectorySystemConfig struct {
	BaseURL string // REST base URL ending in /rest/
	Token   string // bearer token
}

// DirectoryConfig holds settings for the external directory gateway.
type DirectoryConfig struct {
	Jira       DirectorySystemConfig
	Confluence DirectorySystemConfig

	RequestTimeout    time.Duration // per-request deadline (default 15s)
	MaxPages          int           // pagination safety cap (default 500)
	RequestsPerSecond float64       // per-system rate limit (default 1)
	EmailMapTTL       time.Duration // Confluence email map cache (default 10m)
}

// Config holds configuration for the ownership service.
type Config struct {
	DBPath     string // path to the SQLite file (default "delegated_groups.sqlite")
	ListenAddr string // HTTP listen address (default ":8080")
	LogLevel   string // log level: debug, info, warn, error (default "info")
	Env        string // environment: "development" (default) or "production"

	JWTSecret string // HS256 shared secret for caller tokens

	// Rate limiting for the inbound HTTP API.
	RateLimitRPS   float64 // sustained requests per second (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	// CORS
	CORSAllowedOrigins []string // allowed origins (default: ["*"])

	// Background jobs. Empty disables the job.
	SyncSchedule    string // cron spec for the membership sync (default "0 * * * *")
	PruneSchedule   string // cron spec for the stale-group prune (default "30 3 * * *")
	SyncConcurrency int    // reconciler worker bound (default 4)

	Directory DirectoryConfig

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables. Directory
// credentials are optional at load time so the CLI's local subcommands can
// run without them; the gateway refuses requests for an unconfigured system.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		DBPath:        os.Getenv("DB_PATH"),
		ListenAddr:    os.Getenv("LISTEN_ADDR"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		Env:           os.Getenv("ENV"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		SyncSchedule:  os.Getenv("SYNC_SCHEDULE"),
		PruneSchedule: os.Getenv("PRUNE_SCHEDULE"),
		Directory: DirectoryConfig{
			Jira: DirectorySystemConfig{
				BaseURL: os.Getenv("JIRA_BASE_URL"),
				Token:   os.Getenv("JIRA_TOKEN"),
			},
			Confluence: DirectorySystemConfig{
				BaseURL: os.Getenv("CONFLUENCE_BASE_URL"),
				Token:   os.Getenv("CONFLUENCE_TOKEN"),
			},
		},
	}

	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}
	if v := os.Getenv("SYNC_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SyncConcurrency = n
		}
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = origins
	}

	if v := os.Getenv("DIRECTORY_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Directory.RequestTimeout = d
		}
	}
	if v := os.Getenv("DIRECTORY_MAX_PAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Directory.MaxPages = n
		}
	}
	if v := os.Getenv("DIRECTORY_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Directory.RequestsPerSecond = f
		}
	}
	if v := os.Getenv("EMAIL_MAP_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Directory.EmailMapTTL = d
		}
	}

	// Defaults
	if cfg.DBPath == "" {
		cfg.DBPath = "delegated_groups.sqlite"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 200
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.SyncSchedule == "" {
		cfg.SyncSchedule = "0 * * * *"
	}
	if cfg.PruneSchedule == "" {
		cfg.PruneSchedule = "30 3 * * *"
	}
	if cfg.SyncConcurrency == 0 {
		cfg.SyncConcurrency = 4
	}
	if cfg.Directory.RequestTimeout == 0 {
		cfg.Directory.RequestTimeout = 15 * time.Second
	}
	if cfg.Directory.MaxPages == 0 {
		cfg.Directory.MaxPages = 500
	}
	if cfg.Directory.RequestsPerSecond == 0 {
		cfg.Directory.RequestsPerSecond = 1
	}
	if cfg.Directory.EmailMapTTL == 0 {
		cfg.Directory.EmailMapTTL = 10 * time.Minute
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret"
		cfg.Warnings = append(cfg.Warnings, "JWT_SECRET not set — using insecure default. Set JWT_SECRET in production!")
	}
	if cfg.Directory.Jira.BaseURL == "" {
		cfg.Warnings = append(cfg.Warnings, "JIRA_BASE_URL not set — jira sync and prune will be skipped")
	}
	if cfg.Directory.Confluence.BaseURL == "" {
		cfg.Warnings = append(cfg.Warnings, "CONFLUENCE_BASE_URL not set — confluence sync and prune will be skipped")
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if cfg.JWTSecret == "dev-secret" {
			return nil, fmt.Errorf("JWT_SECRET must be set in production (ENV=production)")
		}
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
	}

	return cfg, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = stripQuotes(value)
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
