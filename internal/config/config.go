package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/seawire/vela/internal/core/constants"
)

const (
	DefaultPort = 19480
	DefaultHost = "localhost"
)

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0, // streaming responses must not be cut off
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RequestLogging:  true,
			RateLimits: ServerRateLimits{
				GlobalRequestsPerMinute: 0, // disabled
				PerIPRequestsPerMinute:  60,
				BurstSize:               10,
				CleanupInterval:         5 * time.Minute,
			},
			RequestLimits: ServerRequestLimits{
				MaxBodySize:   20 << 20, // prompts with pasted context get big
				MaxHeaderSize: 32 << 10,
			},
		},
		Upstream: UpstreamConfig{
			Endpoint:          constants.DefaultUpstreamEndpoint,
			UserAgent:         constants.DefaultUserAgent,
			Timezone:          constants.DefaultTimezone,
			ConnectionTimeout: 30 * time.Second,
			ResponseTimeout:   10 * time.Minute, // long generations
			ReadTimeout:       120 * time.Second,
			Models: []string{
				"claude-3-7-sonnet-20250219",
				"claude-3-5-sonnet-20241022",
				"claude-3-5-haiku-20241022",
				"claude-3-opus-20240229",
			},
		},
		Settings: SettingsConfig{
			RenewAlways:     true,
			RetryRegenerate: false,
			MaxTokens:       4096,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Theme:      "default",
			Dir:        "./logs",
			FileOutput: true,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
	}
}

// Load loads configuration from file and environment variables. The reload
// callback fires whenever viper observes a config file change.
func Load(onReload func()) (*Config, error) {
	config := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("VELA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// It's okay if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, check if we have VELA_CONFIG_FILE env var
		if configFile := os.Getenv("VELA_CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	config.Filename = viper.ConfigFileUsed()

	if onReload != nil {
		viper.OnConfigChange(func(fsnotify.Event) { onReload() })
	}
	viper.WatchConfig()

	return config, nil
}

// Reload re-reads the watched config file into a fresh Config
func Reload() (*Config, error) {
	config := DefaultConfig()
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error re-reading config file: %w", err)
	}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.Filename = viper.ConfigFileUsed()
	return config, nil
}
