// Package config holds the service configuration, its defaults and its
// environment variable bindings.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/teemow/tenantmail/internal/analytics"
	"github.com/teemow/tenantmail/internal/credstore"
	"github.com/teemow/tenantmail/internal/gmail"
	"github.com/teemow/tenantmail/internal/tokens"
)

// Environments accepted in Config.Environment.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

const (
	DefaultHTTPAddr        = ":8001"
	DefaultMetricsAddr     = ":9090"
	DefaultShutdownTimeout = 30 * time.Second
)

// OAuthConfig holds the Google OAuth client settings.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string

	// DefaultRedirectURI is used when callers do not pass a redirect URI.
	DefaultRedirectURI string

	// RefreshLeadTime is subtracted from the token expiry in freshness checks.
	RefreshLeadTime time.Duration

	// Timeout bounds each token endpoint call.
	Timeout time.Duration

	// RevokeOnDisconnect revokes the grant at Google before deleting it.
	RevokeOnDisconnect bool

	// SuccessRedirectURL and ErrorRedirectURL receive the browser after the
	// public callback. Empty means a JSON response.
	SuccessRedirectURL string
	ErrorRedirectURL   string
}

// AnalyticsConfig selects the analytics backend.
type AnalyticsConfig struct {
	// Backend is memory or firestore (default: memory).
	Backend string

	// ProjectID is the Firestore project.
	ProjectID string

	Timeout time.Duration
}

// MetricsConfig configures the dedicated metrics server.
type MetricsConfig struct {
	Enabled bool
	Addr    string
}

// RateLimitConfig configures the per-client limiter on the API listener.
type RateLimitConfig struct {
	// RPS is the sustained requests per second per client (0 disables).
	RPS   int
	Burst int

	// TrustProxy takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that sets them.
	TrustProxy bool
}

// Config is the complete service configuration.
type Config struct {
	Environment string
	LogLevel    string
	LogFormat   string

	HTTPAddr        string
	ShutdownTimeout time.Duration

	// APIKeys are the bearer keys accepted on protected routes.
	APIKeys []string

	OAuth           OAuthConfig
	DeliveryTimeout time.Duration
	CredentialStore credstore.Config
	Analytics       AnalyticsConfig
	Metrics         MetricsConfig
	RateLimit       RateLimitConfig
}

// Default returns the development defaults.
func Default() Config {
	return Config{
		Environment:     EnvDevelopment,
		LogLevel:        "info",
		LogFormat:       "text",
		HTTPAddr:        DefaultHTTPAddr,
		ShutdownTimeout: DefaultShutdownTimeout,
		OAuth: OAuthConfig{
			DefaultRedirectURI: "http://localhost:8001/v1/oauth/callback",
			RefreshLeadTime:    tokens.DefaultLeadTime,
			Timeout:            tokens.DefaultTimeout,
		},
		DeliveryTimeout: gmail.DefaultTimeout,
		CredentialStore: credstore.Config{
			Backend: credstore.BackendMemory,
			Timeout: credstore.DefaultTimeout,
			GCP:     credstore.GCPConfig{SecretPrefix: credstore.DefaultSecretPrefix},
			AWS:     credstore.AWSConfig{SecretPrefix: credstore.DefaultSecretPrefix},
			Redis:   credstore.RedisConfig{Addr: "localhost:6379", KeyPrefix: "tenantmail:"},
		},
		Analytics: AnalyticsConfig{
			Backend: analytics.BackendMemory,
			Timeout: analytics.DefaultTimeout,
		},
		Metrics:   MetricsConfig{Enabled: true, Addr: DefaultMetricsAddr},
		RateLimit: RateLimitConfig{RPS: 10, Burst: 20},
	}
}

// Load returns the defaults overlaid with the environment. When envFile
// names an existing file it is loaded first; variables already set in the
// process environment take precedence over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays every variable that is set onto c.
func (c *Config) ApplyEnv() error {
	e := &envReader{}

	e.str("ENVIRONMENT", &c.Environment)
	e.str("LOG_LEVEL", &c.LogLevel)
	e.str("LOG_FORMAT", &c.LogFormat)
	e.str("HTTP_ADDR", &c.HTTPAddr)
	e.duration("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout)
	e.list("API_KEYS", &c.APIKeys)

	e.str("GOOGLE_CLIENT_ID", &c.OAuth.ClientID)
	e.str("GOOGLE_CLIENT_SECRET", &c.OAuth.ClientSecret)
	e.str("OAUTH_DEFAULT_REDIRECT_URI", &c.OAuth.DefaultRedirectURI)
	e.seconds("REFRESH_LEAD_TIME_SECONDS", &c.OAuth.RefreshLeadTime)
	e.duration("OAUTH_TIMEOUT", &c.OAuth.Timeout)
	e.boolean("OAUTH_REVOKE_ON_DISCONNECT", &c.OAuth.RevokeOnDisconnect)
	e.str("OAUTH_SUCCESS_REDIRECT_URL", &c.OAuth.SuccessRedirectURL)
	e.str("OAUTH_ERROR_REDIRECT_URL", &c.OAuth.ErrorRedirectURL)

	e.duration("DELIVERY_TIMEOUT", &c.DeliveryTimeout)

	store := &c.CredentialStore
	e.str("CREDENTIAL_STORE", &store.Backend)
	e.duration("CREDENTIAL_STORE_TIMEOUT", &store.Timeout)
	e.str("GCP_PROJECT_ID", &store.GCP.ProjectID)
	e.str("SECRET_PREFIX", &store.GCP.SecretPrefix)
	e.str("SECRET_PREFIX", &store.AWS.SecretPrefix)
	e.str("AWS_REGION", &store.AWS.Region)
	e.str("AWS_ENDPOINT_URL", &store.AWS.Endpoint)
	e.str("REDIS_ADDR", &store.Redis.Addr)
	e.str("REDIS_PASSWORD", &store.Redis.Password)
	e.integer("REDIS_DB", &store.Redis.DB)
	e.boolean("REDIS_TLS_ENABLED", &store.Redis.TLSEnabled)
	e.str("REDIS_KEY_PREFIX", &store.Redis.KeyPrefix)
	e.integer("REDIS_HISTORY_SIZE", &store.Redis.HistorySize)

	e.str("ANALYTICS_BACKEND", &c.Analytics.Backend)
	if c.Analytics.ProjectID == "" {
		c.Analytics.ProjectID = store.GCP.ProjectID
	}
	e.str("FIRESTORE_PROJECT_ID", &c.Analytics.ProjectID)
	e.duration("ANALYTICS_TIMEOUT", &c.Analytics.Timeout)

	e.boolean("METRICS_ENABLED", &c.Metrics.Enabled)
	e.str("METRICS_ADDR", &c.Metrics.Addr)

	e.integer("RATE_LIMIT_RPS", &c.RateLimit.RPS)
	e.integer("RATE_LIMIT_BURST", &c.RateLimit.Burst)
	e.boolean("TRUST_PROXY", &c.RateLimit.TrustProxy)

	return errors.Join(e.errs...)
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}

// Validate checks the configuration at startup.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Environment) {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("invalid environment %q, must be one of: development, staging, production", c.Environment))
	}

	if c.OAuth.ClientID == "" || c.OAuth.ClientSecret == "" {
		errs = append(errs, errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required"))
	}
	if c.OAuth.RefreshLeadTime < 0 {
		errs = append(errs, fmt.Errorf("refresh lead time must not be negative, got %s", c.OAuth.RefreshLeadTime))
	}
	if c.OAuth.DefaultRedirectURI != "" {
		if err := validateURL(c.OAuth.DefaultRedirectURI); err != nil {
			errs = append(errs, fmt.Errorf("invalid default redirect URI: %w", err))
		}
	}
	for name, raw := range map[string]string{
		"success redirect URL": c.OAuth.SuccessRedirectURL,
		"error redirect URL":   c.OAuth.ErrorRedirectURL,
	} {
		if raw != "" {
			if err := validateURL(raw); err != nil {
				errs = append(errs, fmt.Errorf("invalid %s: %w", name, err))
			}
		}
	}

	if c.IsProduction() && len(c.APIKeys) == 0 {
		errs = append(errs, errors.New("at least one API key is required in production"))
	}
	if slices.Contains(c.APIKeys, "") {
		errs = append(errs, errors.New("API keys must not be empty"))
	}

	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate limit values must not be negative"))
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst == 0 {
		errs = append(errs, errors.New("RATE_LIMIT_BURST must be positive when rate limiting is enabled"))
	}

	switch c.CredentialStore.Backend {
	case credstore.BackendMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("the memory credential store is not allowed in production"))
		}
	case credstore.BackendGCP:
		if c.CredentialStore.GCP.ProjectID == "" {
			errs = append(errs, errors.New("GCP_PROJECT_ID is required for the gcp credential store"))
		}
	case credstore.BackendAWS, credstore.BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("invalid credential store %q, must be one of: memory, gcp, aws, redis", c.CredentialStore.Backend))
	}

	switch c.Analytics.Backend {
	case analytics.BackendMemory:
	case analytics.BackendFirestore:
		if c.Analytics.ProjectID == "" {
			errs = append(errs, errors.New("FIRESTORE_PROJECT_ID or GCP_PROJECT_ID is required for the firestore analytics backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid analytics backend %q, must be one of: memory, firestore", c.Analytics.Backend))
	}

	return errors.Join(errs...)
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}

// envReader assigns set variables and collects parse errors.
type envReader struct {
	errs []error
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = ParseList(v)
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s value %q: expected true or false", key, v))
		return
	}
	*dst = parsed
}

func (e *envReader) integer(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s value %q: expected an integer", key, v))
		return
	}
	*dst = parsed
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s value %q: expected a duration like 10s", key, v))
		return
	}
	*dst = parsed
}

func (e *envReader) seconds(key string, dst *time.Duration) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s value %q: expected whole seconds", key, v))
		return
	}
	*dst = time.Duration(parsed) * time.Second
}

// ParseList splits a comma-separated value, trimming blanks.
func ParseList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
