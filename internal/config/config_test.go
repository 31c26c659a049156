package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:    AppConfig{Environment: "development"},
		Logger: LoggerConfig{Level: "info"},
		Backend: BackendConfig{
			Driver:         DriverSQLite,
			SQLitePath:     "/tmp/townsquare.db",
			RequestTimeout: 10 * time.Second,
			CounterMode:    CounterReadModifyWrite,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Environments(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"development", true},
		{"staging", true},
		{"production", true},
		{"test", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := validConfig()
			cfg.App.Environment = tt.env
			if tt.valid {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestValidate_Backends(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"memory", func(c *Config) { c.Backend.Driver = DriverMemory }, true},
		{"postgres without url", func(c *Config) { c.Backend.Driver = DriverPostgres }, false},
		{"postgres with url", func(c *Config) {
			c.Backend.Driver = DriverPostgres
			c.Backend.PostgresURL = "postgres://localhost/town"
		}, true},
		{"rest without url", func(c *Config) { c.Backend.Driver = DriverREST }, false},
		{"unknown driver", func(c *Config) { c.Backend.Driver = "mongo" }, false},
		{"unknown counter mode", func(c *Config) { c.Backend.CounterMode = "eventual" }, false},
		{"zero timeout", func(c *Config) { c.Backend.RequestTimeout = 0 }, false},
		{"short admin password", func(c *Config) {
			c.Auth.AdminEmail = "admin@town.gov"
			c.Auth.AdminPassword = "short"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if tt.valid {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load([]string{"-data-path", dir, "-env-file", filepath.Join(dir, "missing.env")})
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, DriverSQLite, cfg.Backend.Driver)
	assert.Equal(t, filepath.Join(dir, "townsquare.db"), cfg.Backend.SQLitePath)
	assert.Equal(t, filepath.Join(dir, "snapshots"), cfg.Cache.SnapshotPath)
	assert.Equal(t, 10*time.Second, cfg.Backend.RequestTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Cache.WorkspaceTTL)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, CounterReadModifyWrite, cfg.Backend.CounterMode)
}

func TestLoad_FlagBeatsEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("REQUEST_TIMEOUT", "3s")
	t.Setenv("BACKEND", "memory")

	cfg, err := Load([]string{"-data-path", dir, "-request-timeout", "7s"})
	require.NoError(t, err)

	assert.Equal(t, 7*time.Second, cfg.Backend.RequestTimeout)
	assert.Equal(t, DriverMemory, cfg.Backend.Driver)
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load([]string{"-data-path", t.TempDir(), "-request-timeout", "soon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request timeout")
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "test.env")
	content := "# comment\nNATS_SUBJECT_PREFIX=\"civic\"\nCORS_ORIGINS=https://a.example, https://b.example\n"
	require.NoError(t, os.WriteFile(envPath, []byte(content), 0o600))
	t.Setenv("NATS_SUBJECT_PREFIX", "")
	t.Setenv("CORS_ORIGINS", "")

	cfg, err := Load([]string{"-data-path", dir, "-env-file", envPath, "-snapshot-path", "off"})
	require.NoError(t, err)

	assert.Equal(t, "civic", cfg.Events.SubjectPrefix)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Empty(t, cfg.Cache.SnapshotPath)
}

func TestLoadEnvFile_InvalidLine(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), "bad.env")
	require.NoError(t, os.WriteFile(envPath, []byte("NOT_A_PAIR\n"), 0o600))

	assert.Error(t, loadEnvFile(envPath))
}
