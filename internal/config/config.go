package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Set defaults
	config := GetDefaults()

	// Configure viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/mqtap/")
	viper.AddConfigPath("$HOME/.mqtap/")

	// Environment variable overrides
	viper.SetEnvPrefix("MQTAP")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Use specific config file if provided
	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	// Read configuration
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Broker.URL == "" {
		return fmt.Errorf("broker url must not be empty")
	}

	switch config.Broker.Mode {
	case "stream":
		if config.Broker.Stream == "" || config.Broker.Group == "" {
			return fmt.Errorf("stream mode requires both stream and group names")
		}
	case "pubsub":
		if len(config.Broker.Channels) == 0 {
			return fmt.Errorf("pubsub mode requires at least one channel")
		}
	default:
		return fmt.Errorf("invalid broker mode: %s (must be stream or pubsub)", config.Broker.Mode)
	}

	if config.Broker.BatchSize <= 0 {
		return fmt.Errorf("invalid broker batch size: %d", config.Broker.BatchSize)
	}

	if config.Broker.RateLimit < 0 {
		return fmt.Errorf("invalid broker rate limit: %f", config.Broker.RateLimit)
	}

	if config.Capture.MaxEvents <= 0 {
		return fmt.Errorf("invalid capture max events: %d", config.Capture.MaxEvents)
	}

	if config.Archive.Enabled && config.Archive.DatabaseURL == "" {
		return fmt.Errorf("archive is enabled but database_url is empty")
	}

	if config.LoadTest.Threads <= 0 || config.LoadTest.LoopCount <= 0 {
		return fmt.Errorf("loadtest threads and loop_count must be positive")
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	return nil
}

// Watch starts watching the configuration file for changes
func Watch(config *Config, callback func(*Config)) error {
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		newConfig := &Config{}
		if err := viper.Unmarshal(newConfig); err != nil {
			// Log error but don't crash
			return
		}

		if err := validateConfig(newConfig); err != nil {
			// Log error but don't crash
			return
		}

		callback(newConfig)
	})

	return nil
}
