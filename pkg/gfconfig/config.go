// Package gfconfig loads Gafaelfawr's settings file: YAML on disk,
// overlaid with viper for environment and flag binding, in the pattern
// cmd/thv-registry-api/app/serve.go uses for its own flag-to-viper
// wiring.
package gfconfig

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

// SettingsPathEnv is the environment variable naming the settings file.
const SettingsPathEnv = "GAFAELFAWR_SETTINGS_PATH"

// UsernamePattern, BotUsernamePattern, and CursorPattern are the default
// validation patterns; they live on the token package since the token
// service validates against them regardless of how configuration was
// loaded, and are referenced here under their spec.md §6 config names.
var (
	UsernamePattern    = token.UsernamePattern
	BotUsernamePattern = token.BotUsernamePattern
	CursorPattern      = token.CursorPattern
)

// OIDCClient is one statically configured federation relying party.
type OIDCClient struct {
	ClientID          string `yaml:"client_id"`
	ClientSecret      string `yaml:"client_secret"`
	RedirectURIPrefix string `yaml:"redirect_uri_prefix"`
}

// ServiceTokenSpec names one service token the "update-service-tokens" CLI
// command keeps materialized into a Kubernetes Secret: Owner must match the
// bot-user pattern, Scopes are the token's granted scopes, and
// Namespace/SecretName/DataKey identify where the wire token is written.
type ServiceTokenSpec struct {
	Owner      string   `yaml:"owner"`
	Scopes     []string `yaml:"scopes"`
	Namespace  string   `yaml:"namespace"`
	SecretName string   `yaml:"secret_name"`
	DataKey    string   `yaml:"data_key"`
}

// raw is the on-disk YAML shape; fields are decoded here and then
// normalized (parsed durations, decoded PEM) into Config.
type raw struct {
	DatabaseURL          string              `yaml:"database_url"`
	RedisURL             string              `yaml:"redis_url"`
	Issuer               string              `yaml:"issuer"`
	SessionLifetime      string              `yaml:"session_lifetime"`
	MinimumLifetime      string              `yaml:"minimum_lifetime"`
	DerivedLifetime      string              `yaml:"derived_lifetime"`
	IDTokenLifetime      string              `yaml:"id_token_lifetime"`
	HistoryRetention     string              `yaml:"history_retention"`
	SigningKeyPEM        string              `yaml:"signing_key_pem"`
	SigningAlgorithm     string              `yaml:"signing_algorithm"`
	KnownScopes          map[string]string   `yaml:"known_scopes"`
	GroupScopeMapping    map[string][]string `yaml:"group_mapping"`
	OIDCClients          []OIDCClient        `yaml:"oidc_clients"`
	InitialAdmins        []string            `yaml:"initial_admins"`
	BootstrapToken       string              `yaml:"bootstrap_token"`
	CookieName           string              `yaml:"cookie_name"`
	TokenCacheSize       int                 `yaml:"token_cache_size"`
	ServiceTokens        []ServiceTokenSpec  `yaml:"service_tokens"`
}

// Config is the normalized, fully-decoded runtime configuration.
type Config struct {
	DatabaseURL       string
	RedisURL          string
	Issuer            string
	SessionLifetime   time.Duration
	MinimumLifetime   time.Duration
	DerivedLifetime   time.Duration
	IDTokenLifetime   time.Duration
	HistoryRetention  time.Duration
	SigningKey        *rsa.PrivateKey
	SigningAlgorithm  string
	KnownScopes       map[string]string
	GroupScopeMapping map[string][]string
	OIDCClients       []OIDCClient
	InitialAdmins     []string
	BootstrapToken    string
	CookieName        string
	TokenCacheSize    int
	ServiceTokens     []ServiceTokenSpec
}

func defaultDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}

// Load reads the settings file named by GAFAELFAWR_SETTINGS_PATH (or path,
// if non-empty, overriding the environment variable), applies the
// viper-bound overrides GAFAELFAWR_DATABASE_URL, GAFAELFAWR_REDIS_URL and
// GAFAELFAWR_BOOTSTRAP_TOKEN (each, when set, takes precedence over the
// file value; no other setting is read from the environment), and returns
// the normalized Config.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(SettingsPathEnv)
	}
	if path == "" {
		return nil, fmt.Errorf("gfconfig: %s is not set and no path was given", SettingsPathEnv)
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gfconfig: reading settings file: %w", err)
	}

	var r raw
	if err := yaml.Unmarshal(blob, &r); err != nil {
		return nil, fmt.Errorf("gfconfig: parsing settings file: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("gafaelfawr")
	v.AutomaticEnv()
	if dbURL := v.GetString("database_url"); dbURL != "" {
		r.DatabaseURL = dbURL
	}
	if redisURL := v.GetString("redis_url"); redisURL != "" {
		r.RedisURL = redisURL
	}
	if bootstrap := v.GetString("bootstrap_token"); bootstrap != "" {
		r.BootstrapToken = bootstrap
	}

	cfg := &Config{
		DatabaseURL:       r.DatabaseURL,
		RedisURL:          r.RedisURL,
		Issuer:            r.Issuer,
		KnownScopes:       r.KnownScopes,
		GroupScopeMapping: r.GroupScopeMapping,
		OIDCClients:       r.OIDCClients,
		InitialAdmins:     r.InitialAdmins,
		BootstrapToken:    r.BootstrapToken,
		CookieName:        r.CookieName,
		TokenCacheSize:    r.TokenCacheSize,
		SigningAlgorithm:  r.SigningAlgorithm,
		ServiceTokens:     r.ServiceTokens,
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "gafaelfawr"
	}
	if cfg.SigningAlgorithm == "" {
		cfg.SigningAlgorithm = "RS256"
	}

	var derr error
	if cfg.SessionLifetime, derr = defaultDuration(r.SessionLifetime, 7*24*time.Hour); derr != nil {
		return nil, fmt.Errorf("gfconfig: parsing session_lifetime: %w", derr)
	}
	if cfg.MinimumLifetime, derr = defaultDuration(r.MinimumLifetime, 5*time.Minute); derr != nil {
		return nil, fmt.Errorf("gfconfig: parsing minimum_lifetime: %w", derr)
	}
	if cfg.DerivedLifetime, derr = defaultDuration(r.DerivedLifetime, 24*time.Hour); derr != nil {
		return nil, fmt.Errorf("gfconfig: parsing derived_lifetime: %w", derr)
	}
	if cfg.IDTokenLifetime, derr = defaultDuration(r.IDTokenLifetime, time.Hour); derr != nil {
		return nil, fmt.Errorf("gfconfig: parsing id_token_lifetime: %w", derr)
	}
	if cfg.HistoryRetention, derr = defaultDuration(r.HistoryRetention, 365*24*time.Hour); derr != nil {
		return nil, fmt.Errorf("gfconfig: parsing history_retention: %w", derr)
	}

	if r.SigningKeyPEM != "" {
		key, err := parseRSAPrivateKeyPEM(r.SigningKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("gfconfig: parsing signing_key_pem: %w", err)
		}
		cfg.SigningKey = key
	}

	return cfg, nil
}

func parseRSAPrivateKeyPEM(s string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing PKCS8 key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("PEM block does not contain an RSA private key")
	}
	return key, nil
}

// KnownScope reports whether scope is a member of the configured
// known-scope set, used by audit step 7.
func (c *Config) KnownScope(scope string) bool {
	_, ok := c.KnownScopes[scope]
	return ok
}

// WatchReload re-reads the settings file at path on every SIGHUP until ctx
// is done, calling onReload with each successfully parsed Config. A parse
// failure is reported through onError and leaves the previous Config in
// place, since a broken settings file must not take a running server down.
func WatchReload(ctx context.Context, path string, onReload func(*Config), onError func(error)) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP)
	defer signal.Stop(sig)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			cfg, err := Load(path)
			if err != nil {
				onError(fmt.Errorf("reloading settings: %w", err))
				continue
			}
			onReload(cfg)
		}
	}
}
