package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/teemow/tenantmail/internal/analytics"
	"github.com/teemow/tenantmail/internal/credstore"
	"github.com/teemow/tenantmail/internal/gateway"
	"github.com/teemow/tenantmail/internal/gmail"
	"github.com/teemow/tenantmail/internal/logging"
)

const (
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultReadTimeout       = 30 * time.Second
	DefaultWriteTimeout      = 60 * time.Second
	DefaultIdleTimeout       = 120 * time.Second

	maxBodyBytes = 1 << 20
)

// Tokens is the part of tokens.Manager the API uses.
type Tokens interface {
	GenerateAuthorizationURL(userID, redirectURI string) string
	CompleteAuthorization(ctx context.Context, code, state, redirectURI string) (*credstore.UserCredential, error)
	Lookup(ctx context.Context, userID string) (*credstore.UserCredential, error)
	Disconnect(ctx context.Context, userID string) error
}

// Sender sends mail on behalf of a user.
type Sender interface {
	SendAsUser(ctx context.Context, userID string, msg *gmail.Message) (*gateway.DeliveryResult, error)
}

// Analytics records sends and serves reports.
type Analytics interface {
	RecordSend(ctx context.Context, outcome analytics.SendOutcome)
	Stats(ctx context.Context, userID string) (*analytics.UserStats, error)
	Now() time.Time
	UserAnalytics(ctx context.Context, userID string, days, limit int) (*analytics.UserAnalytics, error)
	PlatformSummary(ctx context.Context, days int) (*analytics.PlatformSummary, error)
}

// Options configures a Server.
type Options struct {
	Addr string

	Tokens    Tokens
	Sender    Sender
	Analytics Analytics

	// APIKeys protect every /v1 route except the GET callback.
	APIKeys []string

	// SuccessRedirectURL and ErrorRedirectURL turn the public callback into
	// a browser redirect. Empty means a JSON reply.
	SuccessRedirectURL string
	ErrorRedirectURL   string

	// DefaultRedirectURI is the configured OAuth redirect URI. The public
	// callback uses it when it names the host and path that was hit.
	DefaultRedirectURI string

	// TrustProxy takes the callback scheme and host from X-Forwarded-Proto
	// and X-Forwarded-Host.
	TrustProxy bool

	Metrics     HTTPRecorder
	Health      *HealthChecker
	RateLimiter *RateLimiter
	Logger      *slog.Logger
}

// Server is the HTTP API.
type Server struct {
	opts       Options
	logger     *slog.Logger
	health     *HealthChecker
	handler    http.Handler
	httpServer *http.Server
	addr       string
}

// New validates opts and builds the route table.
func New(opts Options) (*Server, error) {
	if opts.Tokens == nil {
		return nil, errors.New("server: token manager is required")
	}
	if opts.Sender == nil {
		return nil, errors.New("server: sender is required")
	}
	if opts.Analytics == nil {
		return nil, errors.New("server: analytics is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Health == nil {
		opts.Health = NewHealthChecker("")
	}

	s := &Server{
		opts:   opts,
		logger: logging.WithComponent(opts.Logger, "http"),
		health: opts.Health,
		addr:   opts.Addr,
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	s.health.RegisterHealthEndpoints(mux)

	public := func(h http.HandlerFunc) http.Handler {
		return s.opts.RateLimiter.Middleware(h)
	}
	protected := func(h http.HandlerFunc) http.Handler {
		return s.opts.RateLimiter.Middleware(apiKeyAuth(s.opts.APIKeys, h))
	}

	mux.Handle("POST /v1/oauth/authorize", protected(s.handleAuthorize))
	mux.Handle("GET /v1/oauth/callback", public(s.handleCallback))
	mux.Handle("POST /v1/oauth/callback", protected(s.handleCallbackBridge))
	mux.Handle("POST /v1/users/{user_id}/messages", protected(s.handleSend))
	mux.Handle("GET /v1/users/{user_id}/profile", protected(s.handleProfile))
	mux.Handle("DELETE /v1/users/{user_id}/gmail", protected(s.handleDisconnect))
	mux.Handle("GET /v1/reports/users/{user_id}", protected(s.handleUserReport))
	mux.Handle("GET /v1/reports/summary", protected(s.handleSummary))

	var h http.Handler = mux
	h = accessLog(s.logger, s.opts.Metrics, h)
	h = securityHeaders(h)
	h = requestID(h)
	h = recoverPanics(s.logger, h)
	return h
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the listen address, or the bound address once started.
func (s *Server) Addr() string {
	return s.addr
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	return s.StartWithReadySignal(nil)
}

// StartWithReadySignal binds the listener, closes ready once it accepts
// connections and serves until Shutdown is called.
func (s *Server) StartWithReadySignal(ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	s.logger.Info("starting http server", "addr", s.addr)
	if ready != nil {
		close(ready)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown fails readiness and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetShuttingDown()
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
