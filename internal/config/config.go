package config

import (
	"fmt"
	"time"
)

// Config holds the application's configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Vault      VaultConfig      `mapstructure:"vault"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Device     DeviceConfig     `mapstructure:"device"`
	Enrollment EnrollmentConfig `mapstructure:"enrollment"`
	Log        LogConfig        `mapstructure:"log"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // "postgres" or "sqlite"
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	SSLMode         string `mapstructure:"ssl_mode"`
	Path            string `mapstructure:"path"` // sqlite file path
	MaxConns        int    `mapstructure:"max_conns"`
	MaxConnLifetime int    `mapstructure:"max_conn_lifetime"` // in minutes
}

func (c *DatabaseConfig) DSN() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type RedisConfig struct {
	// Enabled turns on the redis-backed liveness cache and device lease.
	// A single-instance deployment is correct without it.
	Enabled      bool   `mapstructure:"enabled"`
	Address      string `mapstructure:"address"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type VaultConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	MountPath string `mapstructure:"mount_path"`
	// StaticKeys maps key version ids to base64-encoded 32-byte AES keys,
	// used when Vault is disabled (dev and test deployments).
	StaticKeys map[string]string `mapstructure:"static_keys"`
	// ActiveKeyID selects the key version used for new encryptions.
	ActiveKeyID string `mapstructure:"active_key_id"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type JWTConfig struct {
	// Secret signs and verifies the HS256 caller tokens.
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type DeviceConfig struct {
	// Mode selects the link implementation: "net" or "sim".
	Mode           string        `mapstructure:"mode"`
	CommSecret     string        `mapstructure:"comm_secret"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	// Simulator settings, used when Mode is "sim".
	SimLatency     time.Duration `mapstructure:"sim_latency"`
	SimSuccessRate float64       `mapstructure:"sim_success_rate"`
}

type EnrollmentConfig struct {
	StageTimeout      time.Duration `mapstructure:"stage_timeout"`
	CancelGracePeriod time.Duration `mapstructure:"cancel_grace_period"`
	AcquireTimeout    time.Duration `mapstructure:"acquire_timeout"`
	LeaseTTL          time.Duration `mapstructure:"lease_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	ServiceName    string `mapstructure:"service_name"`
}

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	switch c.Device.Mode {
	case "net", "sim":
	default:
		return fmt.Errorf("device.mode must be net or sim, got %q", c.Device.Mode)
	}
	if c.Device.Mode == "sim" && (c.Device.SimSuccessRate < 0 || c.Device.SimSuccessRate > 1) {
		return fmt.Errorf("device.sim_success_rate must be in [0,1], got %f", c.Device.SimSuccessRate)
	}
	if !c.Vault.Enabled && len(c.Vault.StaticKeys) == 0 {
		return fmt.Errorf("vault.static_keys required when vault is disabled")
	}
	if c.Vault.ActiveKeyID == "" {
		return fmt.Errorf("vault.active_key_id is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	return nil
}
