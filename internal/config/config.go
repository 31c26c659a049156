// Package config loads server configuration from command-line flags, environment
// variables and an optional .env file.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Backend drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverREST     = "rest"
)

// Counter modes.
const (
	CounterReadModifyWrite = "read-modify-write"
	CounterAtomic          = "atomic"
)

// Config holds the application configuration.
type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	Server  ServerConfig
	Auth    AuthConfig
	Backend BackendConfig
	Cache   CacheConfig
	Events  EventsConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
	DataPath    string // keys, sqlite file and snapshots live here
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	AccessTokenKey      []byte // set by auth.LoadOrGenerateKey during bootstrap
	AccessTokenDuration time.Duration
	LoginPerMinute      int
	LoginBurst          int
	AdminEmail          string // bootstrap admin; empty disables
	AdminPassword       string
}

// BackendConfig selects and configures the remote data store.
type BackendConfig struct {
	Driver         string
	SQLitePath     string
	PostgresURL    string
	RESTURL        string
	RESTAPIKey     string
	RESTRate       float64 // requests per second, 0 disables limiting
	RequestTimeout time.Duration
	CounterMode    string
}

// CacheConfig holds per-user workspace and snapshot settings.
type CacheConfig struct {
	WorkspaceTTL  time.Duration
	MaxWorkspaces int
	SnapshotPath  string // empty disables offline snapshots
}

// EventsConfig holds domain event publishing settings.
type EventsConfig struct {
	NATSURL       string // empty disables publishing
	SubjectPrefix string
}

// LoadConfig loads configuration from the process arguments.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load loads configuration with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("townsquare", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Directory for keys, database and snapshots")

	serverPort := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	corsOrigins := fs.String("cors-origins", "", "Comma separated allowed origins (default: *)")

	accessTokenDuration := fs.String("access-token-duration", "", "Access token lifetime (default: 24h)")
	loginPerMinute := fs.String("login-per-minute", "", "Login attempts per minute per client (default: 10)")
	adminEmail := fs.String("admin-email", "", "Bootstrap admin email")
	adminPassword := fs.String("admin-password", "", "Bootstrap admin password")

	driver := fs.String("backend", "", "Backend driver (memory, sqlite, postgres, rest)")
	sqlitePath := fs.String("sqlite-path", "", "SQLite database file (default: {data}/townsquare.db)")
	postgresURL := fs.String("postgres-url", "", "Postgres connection URL")
	restURL := fs.String("rest-url", "", "REST backend base URL")
	restKey := fs.String("rest-api-key", "", "REST backend API key")
	restRate := fs.String("rest-rate", "", "REST requests per second (default: 20)")
	requestTimeout := fs.String("request-timeout", "", "Remote request timeout (default: 10s)")
	counterMode := fs.String("counter-mode", "", "Counter update mode (read-modify-write, atomic)")

	workspaceTTL := fs.String("workspace-ttl", "", "Idle lifetime of a user workspace (default: 30m)")
	maxWorkspaces := fs.String("max-workspaces", "", "Maximum cached workspaces (default: 1024)")
	snapshotPath := fs.String("snapshot-path", "", "Offline snapshot directory (default: {data}/snapshots)")

	natsURL := fs.String("nats-url", "", "NATS server URL for domain events")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// A missing .env file is fine.
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
			DataPath:    getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port:        getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			CORSOrigins: splitList(getConfigValue(*corsOrigins, "CORS_ORIGINS", "*")),
		},
		Auth: AuthConfig{
			LoginPerMinute: getIntConfigValue(*loginPerMinute, "LOGIN_PER_MINUTE", 10),
			LoginBurst:     getIntConfigValue("", "LOGIN_BURST", 5),
			AdminEmail:     getConfigValue(*adminEmail, "ADMIN_EMAIL", ""),
			AdminPassword:  getConfigValue(*adminPassword, "ADMIN_PASSWORD", ""),
		},
		Backend: BackendConfig{
			Driver:      strings.ToLower(getConfigValue(*driver, "BACKEND", DriverSQLite)),
			SQLitePath:  getConfigValue(*sqlitePath, "SQLITE_PATH", ""),
			PostgresURL: getConfigValue(*postgresURL, "POSTGRES_URL", ""),
			RESTURL:     getConfigValue(*restURL, "REST_URL", ""),
			RESTAPIKey:  getConfigValue(*restKey, "REST_API_KEY", ""),
			CounterMode: getConfigValue(*counterMode, "COUNTER_MODE", CounterReadModifyWrite),
		},
		Cache: CacheConfig{
			MaxWorkspaces: getIntConfigValue(*maxWorkspaces, "MAX_WORKSPACES", 1024),
			SnapshotPath:  getConfigValue(*snapshotPath, "SNAPSHOT_PATH", ""),
		},
		Events: EventsConfig{
			NATSURL:       getConfigValue(*natsURL, "NATS_URL", ""),
			SubjectPrefix: getConfigValue("", "NATS_SUBJECT_PREFIX", "townsquare"),
		},
	}

	durations := []struct {
		flag, env, def, name string
		dst                  *time.Duration
	}{
		{*readTimeout, "SERVER_READ_TIMEOUT", "15s", "read timeout", &cfg.Server.ReadTimeout},
		{*writeTimeout, "SERVER_WRITE_TIMEOUT", "15s", "write timeout", &cfg.Server.WriteTimeout},
		{*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s", "idle timeout", &cfg.Server.IdleTimeout},
		{*accessTokenDuration, "ACCESS_TOKEN_DURATION", "24h", "access token duration", &cfg.Auth.AccessTokenDuration},
		{*requestTimeout, "REQUEST_TIMEOUT", "10s", "request timeout", &cfg.Backend.RequestTimeout},
		{*workspaceTTL, "WORKSPACE_TTL", "30m", "workspace ttl", &cfg.Cache.WorkspaceTTL},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flag, d.env, d.def)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.name, raw, err)
		}
		*d.dst = parsed
	}

	rawRate := getConfigValue(*restRate, "REST_RATE", "20")
	rate, err := strconv.ParseFloat(rawRate, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid rest rate %q: %w", rawRate, err)
	}
	cfg.Backend.RESTRate = rate

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	switch c.App.Environment {
	case "development", "staging", "production":
	case "":
		return errors.New("ENV is required")
	default:
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	switch strings.ToLower(c.Logger.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	switch c.Backend.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Backend.SQLitePath == "" {
			return errors.New("sqlite path cannot be empty")
		}
	case DriverPostgres:
		if c.Backend.PostgresURL == "" {
			return errors.New("POSTGRES_URL is required for the postgres backend")
		}
	case DriverREST:
		if c.Backend.RESTURL == "" {
			return errors.New("REST_URL is required for the rest backend")
		}
	default:
		return fmt.Errorf("invalid backend: %s (must be memory, sqlite, postgres, or rest)", c.Backend.Driver)
	}

	switch c.Backend.CounterMode {
	case CounterReadModifyWrite, CounterAtomic:
	default:
		return fmt.Errorf("invalid counter mode: %s", c.Backend.CounterMode)
	}

	if c.Backend.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}

	if c.Auth.AdminEmail != "" && len(c.Auth.AdminPassword) < 8 {
		return errors.New("ADMIN_PASSWORD must be at least 8 characters when ADMIN_EMAIL is set")
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is returned unchanged.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = abs
	}

	return filepath.Clean(path), nil
}

func (c *Config) expandPaths() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	if c.App.DataPath, err = expandPath(c.App.DataPath, filepath.Join(home, "Townsquare")); err != nil {
		return err
	}
	if c.Backend.SQLitePath, err = expandPath(c.Backend.SQLitePath, filepath.Join(c.App.DataPath, "townsquare.db")); err != nil {
		return err
	}
	if c.Cache.SnapshotPath == "off" {
		c.Cache.SnapshotPath = ""
		return nil
	}
	c.Cache.SnapshotPath, err = expandPath(c.Cache.SnapshotPath, filepath.Join(c.App.DataPath, "snapshots"))
	return err
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	raw := getConfigValue(flagValue, envKey, "")
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads KEY=value lines from path without overriding existing
// environment variables.
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- config file path is operator supplied
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}
