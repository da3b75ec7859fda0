package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("token.signing_secret", "unit-test-secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.HTTPAddress != "0.0.0.0:8080" {
		t.Fatalf("unexpected http address: %q", cfg.HTTPAddress)
	}
	if cfg.DatabasePath != "beacon.db" {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath)
	}
	if cfg.TokenTTL != 30*time.Minute {
		t.Fatalf("unexpected token ttl: %v", cfg.TokenTTL)
	}
	if cfg.CorsAllowAll {
		t.Fatalf("cors.allow_all must default to false")
	}
	if cfg.ExternalEnabled {
		t.Fatalf("external login must be disabled without a provider")
	}
}

func TestLoadRequiresSigningSecret(t *testing.T) {
	if _, err := Load(NewViper()); err == nil {
		t.Fatalf("expected missing signing secret to fail validation")
	}
}

func TestLoadValidatesExternalProvider(t *testing.T) {
	configViper := NewViper()
	configViper.Set("token.signing_secret", "unit-test-secret")
	configViper.Set("external.provider", "Google")

	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected incomplete external config to fail validation")
	}

	configViper.Set("external.audience", "beacon-client")
	configViper.Set("external.jwks_url", "https://www.googleapis.com/oauth2/v3/certs")
	configViper.Set("external.issuers", []string{"https://accounts.google.com"})

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !cfg.ExternalEnabled {
		t.Fatalf("expected external login to be enabled")
	}
	if len(cfg.ExternalConfig.Issuers) != 1 {
		t.Fatalf("unexpected issuers: %v", cfg.ExternalConfig.Issuers)
	}
}
