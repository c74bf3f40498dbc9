package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Driver: "sqlite", Path: ":memory:"},
		Vault: VaultConfig{
			StaticKeys:  map[string]string{"v1": "a-key"},
			ActiveKeyID: "v1",
		},
		JWT:    JWTConfig{Secret: "secret"},
		Device: DeviceConfig{Mode: "sim", SimSuccessRate: 0.9},
	}
}

func TestValidateOK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"unknown device mode", func(c *Config) { c.Device.Mode = "usb" }, "device.mode"},
		{"success rate below zero", func(c *Config) { c.Device.SimSuccessRate = -0.1 }, "sim_success_rate"},
		{"success rate above one", func(c *Config) { c.Device.SimSuccessRate = 1.5 }, "sim_success_rate"},
		{"no keys without vault", func(c *Config) { c.Vault.StaticKeys = nil }, "static_keys"},
		{"missing active key id", func(c *Config) { c.Vault.ActiveKeyID = "" }, "active_key_id"},
		{"missing jwt secret", func(c *Config) { c.JWT.Secret = "" }, "jwt.secret"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tc.wantMsg),
				"error %q should mention %q", err, tc.wantMsg)
		})
	}
}

func TestVaultEnabledSkipsStaticKeys(t *testing.T) {
	cfg := validConfig()
	cfg.Vault.Enabled = true
	cfg.Vault.StaticKeys = nil
	assert.NoError(t, cfg.Validate())
}

func TestPostgresDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Driver:   "postgres",
		Host:     "db.internal",
		Port:     5432,
		User:     "presentio",
		Password: "hunter2",
		Database: "presentio",
		SSLMode:  "require",
	}
	dsn := cfg.DSN()
	assert.Contains(t, dsn, "host=db.internal")
	assert.Contains(t, dsn, "dbname=presentio")
	assert.Contains(t, dsn, "sslmode=require")
}

func TestSQLiteDSN(t *testing.T) {
	cfg := DatabaseConfig{Driver: "sqlite", Path: "/var/lib/presentio/dev.db"}
	assert.Equal(t, "/var/lib/presentio/dev.db", cfg.DSN())
}
