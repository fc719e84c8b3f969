package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete server configuration
type Config struct {
	Server ServerConfig              `mapstructure:"server"`
	Log    LogConfig                 `mapstructure:"log"`
	Pools  map[string]DatabaseConfig `mapstructure:"pools"`
}

// ServerConfig represents the snapshot API server configuration
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	MetricsPath     string        `mapstructure:"metrics_path"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoadConfig loads server configuration from file.
// An empty path searches the standard locations for config.yaml.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(InDot)
		v.AddConfigPath(InEtc)
		v.AddConfigPath(InHome)
		v.AddConfigPath(InHomeDot)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set defaults
	setDefaults(&config)

	// Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default values for configuration
func setDefaults(config *Config) {
	if config.Server.Address == "" {
		config.Server.Address = ":8080"
	}

	if config.Server.MetricsPath == "" {
		config.Server.MetricsPath = "/metrics"
	}

	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = 30 * time.Second
	}

	if config.Server.WriteTimeout == 0 {
		config.Server.WriteTimeout = 30 * time.Second
	}

	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = 30 * time.Second
	}

	config.Log = *config.Log.SetDefaults()

	for name, pool := range config.Pools {
		pool.SetDefaults()
		config.Pools[name] = pool
	}
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if err := config.Log.Validate(); err != nil {
		return fmt.Errorf("invalid log config: %w", err)
	}

	if len(config.Pools) == 0 {
		return errors.New("at least one pool must be configured")
	}

	for name, pool := range config.Pools {
		if err := pool.Validate(); err != nil {
			return fmt.Errorf("pool %q: %w", name, err)
		}
		config.Pools[name] = pool
	}

	return nil
}
