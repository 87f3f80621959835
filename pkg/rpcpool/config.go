package rpcpool

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

// Config holds the wire-visible defaults and tunables for a Pool, loadable
// from a YAML file and RPCPOOL_-prefixed environment variables layered
// file -> env -> defaults.
type Config struct {
	PoolSize          int           `mapstructure:"pool_size"`
	GRPCTimeout       time.Duration `mapstructure:"grpc_timeout"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	Retries           int           `mapstructure:"retries"`
	Backoff           time.Duration `mapstructure:"backoff"`
	SmartConnect      time.Duration `mapstructure:"smart_connect_interval"`
	HealthCheckWindow time.Duration `mapstructure:"health_check_timeout"`
	ChannelTTL        time.Duration `mapstructure:"channel_ttl"`
	TLS               TLSConfig     `mapstructure:"tls"`
	Logging           LoggingConfig `mapstructure:"logging"`
}

// TLSConfig names where to source TLS material from. The pool never reads
// these files itself; sourcing TLS material is left to the caller, which
// only carries the paths through to whatever credentials.TransportCredentials
// it builds from them.
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
	CAFile   string `mapstructure:"ca_file"`
}

// LoggingConfig controls the pool's Logger.
type LoggingConfig struct {
	Level        string `mapstructure:"level"`
	Format       string `mapstructure:"format"`
	TraceEnabled bool   `mapstructure:"trace_enabled"`
}

// LoadConfig loads a Config from the given YAML file (optional) layered
// over RPCPOOL_-prefixed environment variables and the package defaults.
// A configPath that does not exist, or no file on the search path, leaves
// the environment and defaults in effect.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setConfigDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("rpcpool")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/rpcpool")
	}

	v.SetEnvPrefix("RPCPOOL")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// ToOptions converts a loaded Config into Options for New. TLSConfig material
// sourcing and Retries (a per-call, not per-Pool, knob handled by
// WithChannelTimeout) are deliberately left to the caller.
func (c *Config) ToOptions() Options {
	return Options{
		PoolSize:             c.PoolSize,
		GRPCTimeout:          c.GRPCTimeout,
		ConnectTimeout:       c.ConnectTimeout,
		SmartConnectInterval: c.SmartConnect,
		HealthCheckTimeout:   c.HealthCheckWindow,
		ChannelTTL:           c.ChannelTTL,
		Backoff:              c.Backoff,
		Logger:               NewLogger(c.Logging),
	}
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("pool_size", DefaultPoolSize)
	v.SetDefault("grpc_timeout", DefaultGRPCTimeout)
	v.SetDefault("connect_timeout", DefaultConnectTimeout)
	v.SetDefault("retries", DefaultRetries)
	v.SetDefault("backoff", DefaultBackoff)
	v.SetDefault("smart_connect_interval", SmartConnectInterval)
	v.SetDefault("health_check_timeout", HealthCheckTimeout)
	v.SetDefault("channel_ttl", ChannelTTL)

	v.SetDefault("tls.enabled", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.trace_enabled", false)
}
