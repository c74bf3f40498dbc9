package config

import (
	"context"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/errors"
	"github.com/presentio/presentio/pkg/logger"
)

// LoadConfig loads the configuration from file and environment variables.
func LoadConfig(log logger.Logger) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/presentio/")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to read config file")
		}
	}

	v.SetEnvPrefix("PRESENTIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "invalid configuration")
	}

	// Hot-reload of the log level only; structural settings require a restart.
	v.OnConfigChange(func(e fsnotify.Event) {
		level := constants.LogLevel(v.GetString("log.level"))
		log.Info(context.Background(), "config file changed, applying log level",
			logger.String("file", e.Name),
			logger.String("level", string(level)),
		)
		log.SetLevel(level)
	})
	v.WatchConfig()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 15)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.max_conn_lifetime", 30)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.mount_path", "secret")
	v.SetDefault("vault.active_key_id", "v1")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "enrollment-events")

	v.SetDefault("jwt.issuer", "presentio")

	v.SetDefault("device.mode", "sim")
	v.SetDefault("device.connect_timeout", constants.DeviceConnectTimeout)
	v.SetDefault("device.command_timeout", constants.DeviceCommandTimeout)
	v.SetDefault("device.idle_timeout", constants.LinkIdleTimeout)
	v.SetDefault("device.sim_latency", "50ms")
	v.SetDefault("device.sim_success_rate", 1.0)

	v.SetDefault("enrollment.stage_timeout", constants.CaptureStageTimeout)
	v.SetDefault("enrollment.cancel_grace_period", constants.CancelGracePeriod)
	v.SetDefault("enrollment.acquire_timeout", constants.PoolAcquireTimeout)
	v.SetDefault("enrollment.lease_ttl", constants.DeviceLeaseTTL)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "presentio")
}
