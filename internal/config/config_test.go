package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable ApplyEnv reads so host settings do not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENVIRONMENT", "LOG_LEVEL", "LOG_FORMAT", "HTTP_ADDR", "SHUTDOWN_TIMEOUT", "API_KEYS",
		"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "OAUTH_DEFAULT_REDIRECT_URI",
		"REFRESH_LEAD_TIME_SECONDS", "OAUTH_TIMEOUT", "OAUTH_REVOKE_ON_DISCONNECT",
		"OAUTH_SUCCESS_REDIRECT_URL", "OAUTH_ERROR_REDIRECT_URL", "DELIVERY_TIMEOUT",
		"CREDENTIAL_STORE", "CREDENTIAL_STORE_TIMEOUT", "GCP_PROJECT_ID", "SECRET_PREFIX",
		"AWS_REGION", "AWS_ENDPOINT_URL", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"REDIS_TLS_ENABLED", "REDIS_KEY_PREFIX", "REDIS_HISTORY_SIZE",
		"ANALYTICS_BACKEND", "FIRESTORE_PROJECT_ID", "ANALYTICS_TIMEOUT",
		"METRICS_ENABLED", "METRICS_ADDR", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "TRUST_PROXY",
	} {
		t.Setenv(key, "")
	}
}

func validConfig() Config {
	cfg := Default()
	cfg.OAuth.ClientID = "id"
	cfg.OAuth.ClientSecret = "secret"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, ":8001", cfg.HTTPAddr)
	assert.Equal(t, 60*time.Second, cfg.OAuth.RefreshLeadTime)
	assert.Equal(t, "memory", cfg.CredentialStore.Backend)
	assert.Equal(t, "emailmcp", cfg.CredentialStore.GCP.SecretPrefix)
	assert.Equal(t, "memory", cfg.Analytics.Backend)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("API_KEYS", "k1, k2")
	t.Setenv("GOOGLE_CLIENT_ID", "id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")
	t.Setenv("REFRESH_LEAD_TIME_SECONDS", "120")
	t.Setenv("OAUTH_TIMEOUT", "3s")
	t.Setenv("OAUTH_REVOKE_ON_DISCONNECT", "true")
	t.Setenv("CREDENTIAL_STORE", "gcp")
	t.Setenv("GCP_PROJECT_ID", "proj")
	t.Setenv("SECRET_PREFIX", "mail")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("ANALYTICS_BACKEND", "firestore")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("RATE_LIMIT_RPS", "5")
	t.Setenv("TRUST_PROXY", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"k1", "k2"}, cfg.APIKeys)
	assert.Equal(t, 120*time.Second, cfg.OAuth.RefreshLeadTime)
	assert.Equal(t, 3*time.Second, cfg.OAuth.Timeout)
	assert.True(t, cfg.OAuth.RevokeOnDisconnect)
	assert.Equal(t, "gcp", cfg.CredentialStore.Backend)
	assert.Equal(t, "mail", cfg.CredentialStore.GCP.SecretPrefix)
	assert.Equal(t, "mail", cfg.CredentialStore.AWS.SecretPrefix)
	assert.Equal(t, 3, cfg.CredentialStore.Redis.DB)
	assert.Equal(t, "proj", cfg.Analytics.ProjectID, "firestore project falls back to GCP_PROJECT_ID")
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, RateLimitConfig{RPS: 5, Burst: 20, TrustProxy: true}, cfg.RateLimit)
	require.NoError(t, cfg.Validate())
}

func TestLoad_InvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("REFRESH_LEAD_TIME_SECONDS", "soon")
	t.Setenv("OAUTH_TIMEOUT", "ten")
	t.Setenv("REDIS_TLS_ENABLED", "maybe")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REFRESH_LEAD_TIME_SECONDS")
	assert.Contains(t, err.Error(), "OAUTH_TIMEOUT")
	assert.Contains(t, err.Error(), "REDIS_TLS_ENABLED")
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("GOOGLE_CLIENT_ID=from-file\nHTTP_ADDR=:9999\n"), 0o600))
	t.Setenv("HTTP_ADDR", ":7000")
	// godotenv never overrides a variable that exists, even when empty.
	// t.Setenv in clearEnv restores it afterwards.
	require.NoError(t, os.Unsetenv("GOOGLE_CLIENT_ID"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.OAuth.ClientID)
	assert.Equal(t, ":7000", cfg.HTTPAddr, "process environment wins over the file")
}

func TestLoad_MissingEnvFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid development", mutate: func(*Config) {}},
		{name: "unknown environment", mutate: func(c *Config) { c.Environment = "qa" }, wantErr: "invalid environment"},
		{name: "missing client", mutate: func(c *Config) { c.OAuth.ClientSecret = "" }, wantErr: "GOOGLE_CLIENT_ID"},
		{name: "negative lead", mutate: func(c *Config) { c.OAuth.RefreshLeadTime = -time.Second }, wantErr: "lead time"},
		{name: "bad redirect", mutate: func(c *Config) { c.OAuth.DefaultRedirectURI = "ftp://x/cb" }, wantErr: "redirect URI"},
		{name: "bad error redirect", mutate: func(c *Config) { c.OAuth.ErrorRedirectURL = "/relative" }, wantErr: "error redirect URL"},
		{
			name:    "production without api key",
			mutate:  func(c *Config) { c.Environment = EnvProduction; c.CredentialStore.Backend = "aws" },
			wantErr: "API key",
		},
		{
			name:    "production with memory store",
			mutate:  func(c *Config) { c.Environment = EnvProduction; c.APIKeys = []string{"k"} },
			wantErr: "memory credential store",
		},
		{name: "gcp without project", mutate: func(c *Config) { c.CredentialStore.Backend = "gcp" }, wantErr: "GCP_PROJECT_ID"},
		{name: "unknown store", mutate: func(c *Config) { c.CredentialStore.Backend = "vault" }, wantErr: "invalid credential store"},
		{name: "firestore without project", mutate: func(c *Config) { c.Analytics.Backend = "firestore" }, wantErr: "FIRESTORE_PROJECT_ID"},
		{name: "negative rate", mutate: func(c *Config) { c.RateLimit.RPS = -1 }, wantErr: "rate limit"},
		{name: "rate without burst", mutate: func(c *Config) { c.RateLimit.Burst = 0 }, wantErr: "RATE_LIMIT_BURST"},
		{name: "rate limiting disabled", mutate: func(c *Config) { c.RateLimit = RateLimitConfig{} }},
		{name: "unknown analytics", mutate: func(c *Config) { c.Analytics.Backend = "bigquery" }, wantErr: "invalid analytics backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseList(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{input: "", expected: nil},
		{input: "a", expected: []string{"a"}},
		{input: "a,b", expected: []string{"a", "b"}},
		{input: " a , b ,", expected: []string{"a", "b"}},
		{input: " , ", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseList(tt.input))
		})
	}
}
