package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/tenantmail/internal/analytics"
	"github.com/teemow/tenantmail/internal/config"
	"github.com/teemow/tenantmail/internal/credstore"
	"github.com/teemow/tenantmail/internal/gateway"
	"github.com/teemow/tenantmail/internal/gmail"
	"github.com/teemow/tenantmail/internal/google"
	"github.com/teemow/tenantmail/internal/instrumentation"
	"github.com/teemow/tenantmail/internal/logging"
	"github.com/teemow/tenantmail/internal/server"
	"github.com/teemow/tenantmail/internal/tokens"
)

const startupTimeout = 5 * time.Second

type serveFlags struct {
	commonFlags

	httpAddr           string
	environment        string
	apiKeys            []string
	credentialStore    string
	analyticsBackend   string
	refreshLeadTime    time.Duration
	revokeOnDisconnect bool
	metricsEnabled     bool
	metricsAddr        string
	rateLimitRPS       int
	trustProxy         bool
}

func newServeCmd() *cobra.Command {
	return newServeCmdWith(&serveFlags{})
}

func newServeCmdWith(f *serveFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tenant mail HTTP API",
		Long: `Start the HTTP API.

Configuration comes from the environment (optionally loaded from --env-file)
and from flags. A flag only overrides the environment when it is set on the
command line.

The service shuts down gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.loadConfig(cmd)
			if err != nil {
				return err
			}
			f.applyServe(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return runServe(cfg)
		},
	}

	f.register(cmd)
	cmd.Flags().StringVar(&f.httpAddr, "http-addr", config.DefaultHTTPAddr, "HTTP listen address. Can also use HTTP_ADDR env var.")
	cmd.Flags().StringVar(&f.environment, "environment", config.EnvDevelopment, "Deployment environment: development, staging or production. Can also use ENVIRONMENT env var.")
	cmd.Flags().StringSliceVar(&f.apiKeys, "api-keys", nil, "API keys accepted as Bearer tokens (comma-separated). Can also use API_KEYS env var.")
	cmd.Flags().StringVar(&f.credentialStore, "credential-store", credstore.BackendMemory, "Credential store: memory, gcp, aws or redis. Can also use CREDENTIAL_STORE env var.")
	cmd.Flags().StringVar(&f.analyticsBackend, "analytics-backend", analytics.BackendMemory, "Analytics backend: memory or firestore. Can also use ANALYTICS_BACKEND env var.")
	cmd.Flags().DurationVar(&f.refreshLeadTime, "refresh-lead-time", tokens.DefaultLeadTime, "Refresh access tokens this long before they expire. Can also use REFRESH_LEAD_TIME_SECONDS env var.")
	cmd.Flags().BoolVar(&f.revokeOnDisconnect, "revoke-on-disconnect", false, "Revoke the Google grant when a user disconnects. Can also use OAUTH_REVOKE_ON_DISCONNECT env var.")
	cmd.Flags().BoolVar(&f.metricsEnabled, "metrics-enabled", true, "Serve Prometheus metrics on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", config.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")
	cmd.Flags().IntVar(&f.rateLimitRPS, "rate-limit-rps", 10, "Requests per second allowed per client, 0 disables. Can also use RATE_LIMIT_RPS env var.")
	cmd.Flags().BoolVar(&f.trustProxy, "trust-proxy", false, "Take client addresses from X-Forwarded-For. Can also use TRUST_PROXY env var.")

	return cmd
}

func (f *serveFlags) applyServe(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("http-addr") {
		cfg.HTTPAddr = f.httpAddr
	}
	if changed("environment") {
		cfg.Environment = f.environment
	}
	if changed("api-keys") {
		cfg.APIKeys = f.apiKeys
	}
	if changed("credential-store") {
		cfg.CredentialStore.Backend = f.credentialStore
	}
	if changed("analytics-backend") {
		cfg.Analytics.Backend = f.analyticsBackend
	}
	if changed("refresh-lead-time") {
		cfg.OAuth.RefreshLeadTime = f.refreshLeadTime
	}
	if changed("revoke-on-disconnect") {
		cfg.OAuth.RevokeOnDisconnect = f.revokeOnDisconnect
	}
	if changed("metrics-enabled") {
		cfg.Metrics.Enabled = f.metricsEnabled
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
	if changed("rate-limit-rps") {
		cfg.RateLimit.RPS = f.rateLimitRPS
	}
	if changed("trust-proxy") {
		cfg.RateLimit.TrustProxy = f.trustProxy
	}
}

func runServe(cfg config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if err := instrConfig.Validate(); err != nil {
		return fmt.Errorf("invalid instrumentation configuration: %w", err)
	}
	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error during instrumentation shutdown", logging.Err(err))
		}
	}()

	metricsServer, err := startMetricsServer(cfg, provider, logger)
	if err != nil {
		return err
	}
	if metricsServer != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("error during metrics server shutdown", logging.Err(err))
			}
		}()
	}

	metrics := provider.Metrics()
	audit := instrumentation.NewAuditLogger(logger, instrConfig.Audit)

	store, err := credstore.Open(ctx, cfg.CredentialStore, logger)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	defer closeQuietly(logger, "credential store", store)
	store = credstore.WithRecorder(store, cfg.CredentialStore.Backend, metrics)

	mail := gmail.NewClient(gmail.Options{
		Timeout:  cfg.DeliveryTimeout,
		Recorder: metrics,
		Logger:   logger,
	})
	manager, err := newTokenManager(cfg, store, mail, metrics, audit, logger)
	if err != nil {
		return err
	}
	gw := gateway.New(manager, mail, metrics, audit, logger)

	analyticsStore, err := openAnalyticsStore(ctx, cfg.Analytics, logger)
	if err != nil {
		return err
	}
	defer closeQuietly(logger, "analytics store", analyticsStore)

	var limiter *server.RateLimiter
	if cfg.RateLimit.RPS > 0 {
		limiter = server.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.TrustProxy)
		go limiter.Run(ctx)
	}

	srv, err := server.New(server.Options{
		Addr:               cfg.HTTPAddr,
		Tokens:             manager,
		Sender:             gw,
		Analytics:          analytics.NewService(analyticsStore, logger),
		APIKeys:            cfg.APIKeys,
		SuccessRedirectURL: cfg.OAuth.SuccessRedirectURL,
		ErrorRedirectURL:   cfg.OAuth.ErrorRedirectURL,
		DefaultRedirectURI: cfg.OAuth.DefaultRedirectURI,
		TrustProxy:         cfg.RateLimit.TrustProxy,
		Metrics:            metrics,
		Health:             server.NewHealthChecker(version),
		RateLimiter:        limiter,
		Logger:             logger,
	})
	if err != nil {
		return err
	}
	if len(cfg.APIKeys) == 0 {
		logger.Warn("no API keys configured, protected routes are open")
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start()
	}()

	logger.Info("tenantmail started",
		"version", version,
		"environment", cfg.Environment,
		"credential_store", cfg.CredentialStore.Backend,
		"analytics_backend", cfg.Analytics.Backend)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	logger.Info("HTTP server gracefully stopped")
	return nil
}

// startMetricsServer starts the dedicated metrics listener when metrics
// are enabled and exported through Prometheus. It returns nil otherwise.
func startMetricsServer(cfg config.Config, provider *instrumentation.Provider, logger *slog.Logger) (*server.MetricsServer, error) {
	if !cfg.Metrics.Enabled || !provider.Enabled() {
		return nil, nil
	}
	if provider.MetricsHandler() == nil {
		logger.Info("metrics are not exported through prometheus, metrics server disabled")
		return nil, nil
	}

	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    cfg.Metrics.Addr,
		InstrumentationProvider: provider,
		Logger:                  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	ready := make(chan struct{})
	startErr := make(chan error, 1)
	go func() {
		if err := metricsServer.StartWithReadySignal(ready); err != nil && !errors.Is(err, http.ErrServerClosed) {
			startErr <- err
		}
		close(startErr)
	}()

	select {
	case <-ready:
		return metricsServer, nil
	case err := <-startErr:
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(startupTimeout):
		return nil, errors.New("metrics server startup timed out")
	}
}

func newTokenManager(cfg config.Config, store credstore.Store, resolver tokens.EmailResolver, recorder tokens.Recorder, audit *instrumentation.AuditLogger, logger *slog.Logger) (*tokens.Manager, error) {
	manager, err := tokens.NewManager(tokens.Config{
		ClientID:           cfg.OAuth.ClientID,
		ClientSecret:       cfg.OAuth.ClientSecret,
		DefaultRedirectURI: cfg.OAuth.DefaultRedirectURI,
		LeadTime:           cfg.OAuth.RefreshLeadTime,
		Timeout:            cfg.OAuth.Timeout,
		RevokeOnDisconnect: cfg.OAuth.RevokeOnDisconnect,
	}, tokens.Options{
		Store:    store,
		Resolver: resolver,
		Revoker:  &google.Revoker{},
		Recorder: recorder,
		Audit:    audit,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token manager: %w", err)
	}
	return manager, nil
}

func openAnalyticsStore(ctx context.Context, cfg config.AnalyticsConfig, logger *slog.Logger) (analytics.Store, error) {
	switch cfg.Backend {
	case "", analytics.BackendMemory:
		return analytics.NewMemoryStore(), nil
	case analytics.BackendFirestore:
		store, err := analytics.NewFirestoreStore(ctx, cfg.ProjectID, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to open firestore analytics store: %w", err)
		}
		logger.Info("using firestore analytics store", "project_id", cfg.ProjectID)
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported analytics backend: %s", cfg.Backend)
	}
}

func closeQuietly(logger *slog.Logger, name string, v any) {
	c, ok := v.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		logger.Warn("failed to close "+name, logging.Err(err))
	}
}
