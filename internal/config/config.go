package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "BEACON"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabasePath    = "beacon.db"
	defaultLogLevel        = "info"
	defaultTokenIssuer     = "beacon-idp"
	defaultTokenAudience   = "beacon-api"
	defaultTokenTTLMinutes = 30
)

// AppConfig captures runtime configuration for the identity provider backend.
type AppConfig struct {
	HTTPAddress     string
	DatabasePath    string
	LogLevel        string
	SigningSecret   string
	TokenIssuer     string
	TokenAudience   string
	TokenTTL        time.Duration
	CorsAllowAll    bool
	ExternalEnabled bool
	ExternalConfig  ExternalProviderConfig
}

// ExternalProviderConfig describes one trusted federated identity provider.
type ExternalProviderConfig struct {
	Provider string
	Audience string
	JWKSURL  string
	Issuers  []string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("token.issuer", defaultTokenIssuer)
	configViper.SetDefault("token.audience", defaultTokenAudience)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("cors.allow_all", false)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		DatabasePath:  configViper.GetString("database.path"),
		LogLevel:      configViper.GetString("log.level"),
		SigningSecret: configViper.GetString("token.signing_secret"),
		TokenIssuer:   configViper.GetString("token.issuer"),
		TokenAudience: configViper.GetString("token.audience"),
		TokenTTL:      time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		CorsAllowAll:  configViper.GetBool("cors.allow_all"),
		ExternalConfig: ExternalProviderConfig{
			Provider: configViper.GetString("external.provider"),
			Audience: configViper.GetString("external.audience"),
			JWKSURL:  configViper.GetString("external.jwks_url"),
			Issuers:  configViper.GetStringSlice("external.issuers"),
		},
	}
	cfg.ExternalEnabled = strings.TrimSpace(cfg.ExternalConfig.Provider) != ""

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("token.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.ExternalEnabled {
		if strings.TrimSpace(c.ExternalConfig.Audience) == "" {
			return fmt.Errorf("external.audience is required when external.provider is set")
		}
		if strings.TrimSpace(c.ExternalConfig.JWKSURL) == "" {
			return fmt.Errorf("external.jwks_url is required when external.provider is set")
		}
		if len(c.ExternalConfig.Issuers) == 0 {
			return fmt.Errorf("external.issuers is required when external.provider is set")
		}
	}
	return nil
}
