package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is the config file read when no --config flag is given.
const DefaultPath = "config.yaml"

// Engine provider kinds. Each maps to one client implementation.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderAzure     = "azure"
)

// Config holds all configuration for ekaya-visibility.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Checks    ChecksConfig    `yaml:"checks"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Engines   EnginesConfig   `yaml:"engines"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:"https://auth.ekaya.ai=https://auth.ekaya.ai/.well-known/jwks.json"`

	// Audience is the "aud" value every accepted token must carry.
	Audience string `yaml:"audience" env:"AUTH_AUDIENCE" env-default:"visibility"`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_visibility"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds the optional dashboard cache settings.
// Leaving Host empty disables caching.
type RedisConfig struct {
	Host        string        `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port        int           `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password    string        `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB          int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	OverviewTTL time.Duration `yaml:"overview_ttl" env:"REDIS_OVERVIEW_TTL" env-default:"5m"`
}

// ChecksConfig controls how pending checks are resolved.
type ChecksConfig struct {
	// DispatchDelay is how long a batch waits before its checks start.
	DispatchDelay time.Duration `yaml:"dispatch_delay" env:"CHECKS_DISPATCH_DELAY" env-default:"1s"`
	// QueryTimeout bounds a single engine call attempt.
	QueryTimeout time.Duration `yaml:"query_timeout" env:"CHECKS_QUERY_TIMEOUT" env-default:"60s"`
	// MaxRetries is the number of extra attempts after a retryable failure.
	MaxRetries int `yaml:"max_retries" env:"CHECKS_MAX_RETRIES" env-default:"2"`
	// Concurrency caps simultaneous engine calls across all batches.
	Concurrency int `yaml:"concurrency" env:"CHECKS_CONCURRENCY" env-default:"4"`
	// StaleAfter is the age at which a pending check is considered abandoned on startup.
	StaleAfter time.Duration `yaml:"stale_after" env:"CHECKS_STALE_AFTER" env-default:"15m"`
	// BreakerThreshold consecutive failures open an engine's circuit for BreakerReset.
	BreakerThreshold int           `yaml:"breaker_threshold" env:"CHECKS_BREAKER_THRESHOLD" env-default:"5"`
	BreakerReset     time.Duration `yaml:"breaker_reset" env:"CHECKS_BREAKER_RESET" env-default:"30s"`
}

// RateLimitConfig limits API requests per client IP.
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled" env:"RATE_LIMIT_ENABLED" env-default:"true"`
	Requests int           `yaml:"requests" env:"RATE_LIMIT_REQUESTS" env-default:"100"`
	Window   time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW" env-default:"15m"`
}

// EnginesConfig holds one client configuration per monitored engine.
type EnginesConfig struct {
	ChatGPT    EngineConfig `yaml:"chatgpt" env-prefix:"CHATGPT_"`
	Gemini     EngineConfig `yaml:"gemini" env-prefix:"GEMINI_"`
	Claude     EngineConfig `yaml:"claude" env-prefix:"CLAUDE_"`
	Perplexity EngineConfig `yaml:"perplexity" env-prefix:"PERPLEXITY_"`
	Copilot    EngineConfig `yaml:"copilot" env-prefix:"COPILOT_"`
}

// EngineConfig describes how to reach one engine.
// An engine without an API key is left unconfigured and its checks fail.
type EngineConfig struct {
	Provider string `yaml:"provider" env:"PROVIDER"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL"`
	Model    string `yaml:"model" env:"MODEL"`
	APIKey   string `yaml:"-" env:"API_KEY"` // Secret - not in YAML
}

// Enabled reports whether the engine has enough configuration to be queried.
func (e *EngineConfig) Enabled() bool {
	return e.APIKey != "" && e.Provider != ""
}

// ByName returns the engine configurations keyed by engine name.
func (e *EnginesConfig) ByName() map[string]*EngineConfig {
	return map[string]*EngineConfig{
		"chatgpt":    &e.ChatGPT,
		"gemini":     &e.Gemini,
		"claude":     &e.Claude,
		"perplexity": &e.Perplexity,
		"copilot":    &e.Copilot,
	}
}

// engineDefaults are applied to fields left empty after loading.
var engineDefaults = map[string]EngineConfig{
	"chatgpt":    {Provider: ProviderOpenAI, BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini"},
	"gemini":     {Provider: ProviderGemini, Model: "gemini-2.5-flash"},
	"claude":     {Provider: ProviderAnthropic, Model: "claude-sonnet-4-5"},
	"perplexity": {Provider: ProviderOpenAI, BaseURL: "https://api.perplexity.ai", Model: "sonar"},
	"copilot":    {Provider: ProviderAzure, Model: "gpt-4o"},
}

// Load reads configuration from the YAML file at path with environment
// variable overrides. A missing file is not an error: configuration then
// comes from environment variables and defaults alone.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if path == "" {
		path = DefaultPath
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.Auth.JWKSEndpoints = parseJWKSEndpoints(cfg.Auth.JWKSEndpointsStr)
	cfg.applyEngineDefaults()
	cfg.Database.Host = ResolveHostForDocker(cfg.Database.Host)
	cfg.Redis.Host = ResolveHostForDocker(cfg.Redis.Host)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	if err := c.validateTLS(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}

	if c.Checks.QueryTimeout <= 0 {
		return fmt.Errorf("checks.query_timeout must be positive")
	}
	if c.Checks.DispatchDelay < 0 {
		return fmt.Errorf("checks.dispatch_delay must not be negative")
	}
	if c.Checks.MaxRetries < 0 {
		return fmt.Errorf("checks.max_retries must not be negative")
	}
	if c.Checks.Concurrency < 1 {
		return fmt.Errorf("checks.concurrency must be at least 1")
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests < 1 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate_limit requires positive requests and window")
	}

	for name, e := range c.Engines.ByName() {
		switch e.Provider {
		case ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderAzure:
		default:
			return fmt.Errorf("engines.%s.provider %q is not one of openai, anthropic, gemini, azure", name, e.Provider)
		}
		if e.Enabled() && (e.Provider == ProviderOpenAI || e.Provider == ProviderAzure) && e.BaseURL == "" {
			return fmt.Errorf("engines.%s.base_url is required for the %s provider", name, e.Provider)
		}
	}

	return nil
}

func (c *Config) applyEngineDefaults() {
	for name, e := range c.Engines.ByName() {
		def := engineDefaults[name]
		if e.Provider == "" {
			e.Provider = def.Provider
		}
		if e.BaseURL == "" {
			e.BaseURL = def.BaseURL
		}
		if e.Model == "" {
			e.Model = def.Model
		}
	}
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	for _, pair := range strings.Split(value, ",") {
		issuer, jwksURL, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		endpoints[strings.TrimSpace(issuer)] = strings.TrimSpace(jwksURL)
	}
	return endpoints
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the connection settings as a postgres:// URL, the form
// golang-migrate expects.
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// Addr returns the Redis host:port address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
