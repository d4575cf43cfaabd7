package config

import (
	"fmt"
	"net"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Filename string         `yaml:"-"`
	Logging  LoggingConfig  `yaml:"logging"`
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Cookies  []string       `yaml:"cookies"`
	Settings SettingsConfig `yaml:"settings"`
	Auth     AuthConfig     `yaml:"auth"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string              `yaml:"host"`
	RateLimits      ServerRateLimits    `yaml:"rate_limits"`
	RequestLimits   ServerRequestLimits `yaml:"request_limits"`
	Port            int                 `yaml:"port"`
	ReadTimeout     time.Duration       `yaml:"read_timeout"`
	WriteTimeout    time.Duration       `yaml:"write_timeout"`
	IdleTimeout     time.Duration       `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration       `yaml:"shutdown_timeout"`
	RequestLogging  bool                `yaml:"request_logging"`
}

// GetAddress returns the server address in host:port format
func (s *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ServerRequestLimits defines request size limits
type ServerRequestLimits struct {
	MaxBodySize   int64 `yaml:"max_body_size"`
	MaxHeaderSize int64 `yaml:"max_header_size"`
}

// ServerRateLimits defines rate limiting configuration
type ServerRateLimits struct {
	TrustedProxyCIDRs       []string      `yaml:"trusted_proxy_cidrs"`
	TrustedProxyCIDRsParsed []*net.IPNet  // parsed once at load
	GlobalRequestsPerMinute int           `yaml:"global_requests_per_minute"`
	PerIPRequestsPerMinute  int           `yaml:"per_ip_requests_per_minute"`
	BurstSize               int           `yaml:"burst_size"`
	CleanupInterval         time.Duration `yaml:"cleanup_interval"`
	TrustProxyHeaders       bool          `yaml:"trust_proxy_headers"`
}

// UpstreamConfig holds claude.ai upstream configuration
type UpstreamConfig struct {
	// Endpoint overrides the claude.ai base URL (reverse-proxy front)
	Endpoint          string        `yaml:"endpoint"`
	UserAgent         string        `yaml:"user_agent"`
	Timezone          string        `yaml:"timezone"`
	Models            []string      `yaml:"models"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
	ResponseTimeout   time.Duration `yaml:"response_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
}

// SettingsConfig holds conversation-handling toggles
type SettingsConfig struct {
	// RenewAlways forces a fresh conversation for every request
	RenewAlways bool `yaml:"renew_always"`
	// RetryRegenerate asks upstream to regenerate instead of resending
	// when the client retries the same prompt set
	RetryRegenerate bool `yaml:"retry_regenerate"`
	// MaxTokens is the default max_tokens_to_sample when the client omits it
	MaxTokens int64 `yaml:"max_tokens"`
	// PreserveChats skips conversation deletion after each request
	PreserveChats bool `yaml:"preserve_chats"`
}

// AuthConfig holds inbound credential checking
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// Authenticate checks a client-supplied key against the configured set.
// An empty key set disables auth.
func (a *AuthConfig) Authenticate(key string) bool {
	if len(a.APIKeys) == 0 {
		return true
	}
	for _, k := range a.APIKeys {
		if k != "" && k == key {
			return true
		}
	}
	return false
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Theme      string `yaml:"theme"`
	Dir        string `yaml:"dir"`
	FileOutput bool   `yaml:"file_output"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Validate checks config invariants that would otherwise surface as
// confusing runtime failures
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Settings.MaxTokens <= 0 {
		return fmt.Errorf("settings.max_tokens must be positive, got %d", c.Settings.MaxTokens)
	}
	for _, cidr := range c.Server.RateLimits.TrustedProxyCIDRs {
		parsed, err := parseCIDR(cidr)
		if err != nil {
			return fmt.Errorf("invalid trusted proxy CIDR %q: %w", cidr, err)
		}
		c.Server.RateLimits.TrustedProxyCIDRsParsed = append(c.Server.RateLimits.TrustedProxyCIDRsParsed, parsed)
	}
	return nil
}

func parseCIDR(cidr string) (*net.IPNet, error) {
	_, network, err := net.ParseCIDR(cidr)
	return network, err
}
