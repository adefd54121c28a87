package cmd

import (
	"github.com/spf13/cobra"

	"github.com/teemow/tenantmail/internal/config"
)

// commonFlags are shared by every command that loads the configuration.
type commonFlags struct {
	envFile            string
	debug              bool
	logLevel           string
	logFormat          string
	googleClientID     string
	googleClientSecret string
	redirectURI        string
}

func (f *commonFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.envFile, "env-file", ".env", "Load environment variables from this file if it exists. Variables already set take precedence.")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn or error. Can also use LOG_LEVEL env var.")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "text", "Log format: text or json. Can also use LOG_FORMAT env var.")
	cmd.Flags().StringVar(&f.googleClientID, "google-client-id", "", "Google OAuth client id. Can also use GOOGLE_CLIENT_ID env var.")
	cmd.Flags().StringVar(&f.googleClientSecret, "google-client-secret", "", "Google OAuth client secret. Can also use GOOGLE_CLIENT_SECRET env var.")
	cmd.Flags().StringVar(&f.redirectURI, "redirect-uri", "", "OAuth redirect URI used when callers pass none. Can also use OAUTH_DEFAULT_REDIRECT_URI env var.")
}

// loadConfig reads the env file and the environment, then applies the
// flags the user set explicitly. Flags left at their defaults never
// override the environment.
func (f *commonFlags) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(f.envFile)
	if err != nil {
		return config.Config{}, err
	}
	f.apply(cmd, &cfg)
	return cfg, nil
}

func (f *commonFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if f.debug {
		cfg.LogLevel = "debug"
	}
	if changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	if changed("google-client-id") {
		cfg.OAuth.ClientID = f.googleClientID
	}
	if changed("google-client-secret") {
		cfg.OAuth.ClientSecret = f.googleClientSecret
	}
	if changed("redirect-uri") {
		cfg.OAuth.DefaultRedirectURI = f.redirectURI
	}
}
