package config

import (
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Host != DefaultHost {
		t.Errorf("Expected host %s, got %s", DefaultHost, cfg.Server.Host)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("Expected port %d, got %d", DefaultPort, cfg.Server.Port)
	}

	if cfg.Upstream.Endpoint != "https://claude.ai" {
		t.Errorf("Expected claude.ai endpoint, got %s", cfg.Upstream.Endpoint)
	}
	if len(cfg.Upstream.Models) == 0 {
		t.Error("Expected a default model list")
	}

	if !cfg.Settings.RenewAlways {
		t.Error("Expected renew_always on by default")
	}
	if cfg.Settings.RetryRegenerate {
		t.Error("Expected retry_regenerate off by default")
	}
	if cfg.Settings.MaxTokens != 4096 {
		t.Errorf("Expected default max_tokens 4096, got %d", cfg.Settings.MaxTokens)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Expected log level 'info', got %s", cfg.Logging.Level)
	}
}

func TestValidate_RejectsBadPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = -1
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for negative port")
	}
}

func TestValidate_RejectsBadCIDR(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.RateLimits.TrustedProxyCIDRs = []string{"not-a-cidr"}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for malformed CIDR")
	}
}

func TestValidate_ParsesCIDRs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.RateLimits.TrustedProxyCIDRs = []string{"10.0.0.0/8", "192.168.0.0/16"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if len(cfg.Server.RateLimits.TrustedProxyCIDRsParsed) != 2 {
		t.Errorf("Expected 2 parsed CIDRs, got %d", len(cfg.Server.RateLimits.TrustedProxyCIDRsParsed))
	}
}

func TestAuthenticate(t *testing.T) {
	auth := AuthConfig{}
	if !auth.Authenticate("anything") {
		t.Error("Expected open auth when no keys configured")
	}

	auth = AuthConfig{APIKeys: []string{"sk-vela-1", "sk-vela-2"}}
	if !auth.Authenticate("sk-vela-2") {
		t.Error("Expected configured key to authenticate")
	}
	if auth.Authenticate("sk-wrong") {
		t.Error("Expected unknown key to be rejected")
	}
	if auth.Authenticate("") {
		t.Error("Expected empty key to be rejected when keys are configured")
	}
}
