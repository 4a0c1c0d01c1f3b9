package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
server:
  port: 9090
database:
  driver: sqlite
  path: shop.db
security:
  jwt:
    secret: file-secret
  encryption:
    key: "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
purchase:
  max_cart_items: 10
rate_limit:
  checkout:
    limit: 30
    window: 2m
`

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("GAMESHOP_ENV", "dev")

	t.Run("FileAndDefaults", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "config.yaml", baseYAML)

		cfg, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, 10, cfg.Purchase.MaxCartItems)
		assert.Equal(t, 30, cfg.RateLimit.Checkout.Limit)
		assert.Equal(t, 2*time.Minute, cfg.RateLimit.Checkout.Window)

		assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, "\n", cfg.Purchase.StockSeparator)
		assert.Equal(t, "5000", cfg.Tiers.VIPTopup)
		assert.Same(t, cfg, GetConfig())
	})

	t.Run("EnvironmentWins", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "config.yaml", baseYAML)
		t.Setenv("GAMESHOP_SECURITY_JWT_SECRET", "env-secret")
		t.Setenv("GAMESHOP_SERVER_PORT", "7070")

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "env-secret", cfg.Security.JWT.Secret)
		assert.Equal(t, 7070, cfg.Server.Port)
	})

	t.Run("EnvOverlayFile", func(t *testing.T) {
		dir := t.TempDir()
		path := writeConfig(t, dir, "config.yaml", baseYAML)
		writeConfig(t, dir, "config.staging.yaml", "purchase:\n  max_cart_items: 3\n")
		t.Setenv("GAMESHOP_ENV", "staging")

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.Purchase.MaxCartItems)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.False(t, IsProduction())
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Database.Driver = "sqlite"
		cfg.Database.Path = "shop.db"
		cfg.Security.JWT.Secret = "s"
		cfg.Security.Encryption.Key = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
		cfg.SetDefaults()
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "postgres" }, "unsupported database driver"},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }, "database path"},
		{"redis without host", func(c *Config) { c.Redis.Enabled = true; c.Redis.Host = "" }, "redis host"},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }, "kafka brokers"},
		{"no jwt secret", func(c *Config) { c.Security.JWT.Secret = "" }, "JWT secret"},
		{"short key", func(c *Config) { c.Security.Encryption.Key = "abcd" }, "encryption key"},
		{"negative reward", func(c *Config) { c.Rewards.PointsPerTHB = -1 }, "points_per_thb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
