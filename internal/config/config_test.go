package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leasecheck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "paddle", cfg.Checkout.Provider)
	assert.Equal(t, 5*time.Minute, cfg.Session.GracePeriod)
	assert.Equal(t, 2*time.Second, cfg.Session.SettleDelay)
	assert.Equal(t, 10*time.Second, cfg.Checkout.ReadyTimeout)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	path := writeFile(t, `
api:
  baseURL: https://api.leasecheck.app
  timeout: 45s
session:
  profile: work
  gracePeriod: 1m
storage:
  driver: memory
checkout:
  provider: midtrans
  midtrans:
    serverKey: SB-Mid-server-abc
    monthlyPrice: 99000
server:
  allowedOrigins: ["https://app.leasecheck.app"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.leasecheck.app", cfg.API.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.API.Timeout)
	assert.Equal(t, "work", cfg.Session.Profile)
	assert.Equal(t, time.Minute, cfg.Session.GracePeriod)
	assert.Equal(t, 2*time.Second, cfg.Session.SettleDelay, "untouched keys keep defaults")
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "midtrans", cfg.Checkout.Provider)
	assert.Equal(t, int64(99000), cfg.Checkout.Midtrans.MonthlyPrice)
	assert.Equal(t, []string{"https://app.leasecheck.app"}, cfg.Server.AllowedOrigins)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "storage:\n  driver: memory\n")
	t.Setenv("LEASECHECK_API_BASE_URL", "https://staging.leasecheck.app")
	t.Setenv("LEASECHECK_STORAGE_DRIVER", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/2")
	t.Setenv("LEASECHECK_PORT", "9091")
	t.Setenv("MIDTRANS_IS_PRODUCTION", "true")
	t.Setenv("GO_ENV", "production")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://staging.leasecheck.app", cfg.API.BaseURL)
	assert.Equal(t, "redis", cfg.Storage.Driver)
	assert.Equal(t, "redis://localhost:6379/2", cfg.Storage.RedisURL)
	assert.Equal(t, 9091, cfg.Server.Port)
	assert.True(t, cfg.Checkout.Midtrans.Production)
	assert.True(t, cfg.Log.Production)
}

func TestLoadBadInput(t *testing.T) {
	_, err := Load(writeFile(t, "api: [unclosed"))
	assert.Error(t, err)

	t.Setenv("LEASECHECK_PORT", "not-a-number")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "empty base url", mutate: func(c *Config) { c.API.BaseURL = " " }, errMsg: "api.baseURL is required"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Driver = "etcd" }, errMsg: `unknown storage driver "etcd"`},
		{name: "redis without url", mutate: func(c *Config) { c.Storage.Driver = "redis" }, errMsg: "storage.redisURL is required"},
		{name: "openai without key", mutate: func(c *Config) { c.Analyzer.Driver = "openai" }, errMsg: "analyzer.apiKey is required"},
		{name: "sql archive on memory", mutate: func(c *Config) {
			c.Archive.Driver = "sql"
			c.Storage.Driver = "memory"
		}, errMsg: "archive driver sql needs a sql storage driver"},
		{name: "unknown checkout", mutate: func(c *Config) { c.Checkout.Provider = "stripe" }, errMsg: `unknown checkout provider "stripe"`},
		{name: "unknown paddle env", mutate: func(c *Config) { c.Checkout.Paddle.Env = "staging" }, errMsg: `unknown paddle env "staging"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestMySQLDSN(t *testing.T) {
	c := Default()
	c.Database.User = "lease"
	c.Database.Password = "secret"
	c.Database.Host = "db"
	c.Database.Name = "leasecheck"
	assert.Equal(t, "lease:secret@tcp(db:3306)/leasecheck?parseTime=true&charset=utf8mb4&loc=UTC", c.MySQLDSN())
}
