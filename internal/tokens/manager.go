package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/tenantmail/internal/apperr"
	"github.com/teemow/tenantmail/internal/credstore"
	"github.com/teemow/tenantmail/internal/google"
	"github.com/teemow/tenantmail/internal/instrumentation"
	"github.com/teemow/tenantmail/internal/logging"
)

const (
	// DefaultLeadTime is how long before the literal expiry a token is
	// already treated as expired.
	DefaultLeadTime = 60 * time.Second

	// DefaultTimeout bounds a single call to the token endpoint.
	DefaultTimeout = 10 * time.Second
)

// EmailResolver resolves the mailbox address that owns an access token.
type EmailResolver interface {
	EmailAddress(ctx context.Context, accessToken string) (string, error)
}

// Revoker invalidates a token at the provider.
type Revoker interface {
	Revoke(ctx context.Context, token string) error
}

// Recorder receives OAuth outcome counters.
type Recorder interface {
	RecordOAuthAuthorization(ctx context.Context, result string)
	RecordOAuthTokenRefresh(ctx context.Context, result string)
}

// Config holds the OAuth client settings.
type Config struct {
	ClientID     string
	ClientSecret string

	// DefaultRedirectURI is used when a caller does not pass one.
	DefaultRedirectURI string

	// LeadTime is subtracted from expires_at in the freshness check.
	// Zero means tokens are used until their literal expiry.
	LeadTime time.Duration

	// Timeout bounds each token endpoint call (default: DefaultTimeout).
	Timeout time.Duration

	// Endpoint overrides Google's OAuth endpoints.
	Endpoint oauth2.Endpoint

	// HTTPClient is used for token endpoint calls when set.
	HTTPClient *http.Client

	// RevokeOnDisconnect revokes the grant at the provider before the
	// credential is deleted.
	RevokeOnDisconnect bool
}

// Options carries the Manager's collaborators.
type Options struct {
	Store    credstore.Store
	Resolver EmailResolver

	// Revoker is required only when RevokeOnDisconnect is set.
	Revoker  Revoker
	Recorder Recorder
	Audit    *instrumentation.AuditLogger
	Logger   *slog.Logger

	// Now replaces time.Now in freshness checks and timestamps.
	Now func() time.Time
}

// Manager implements the OAuth token lifecycle for tenant users.
type Manager struct {
	config   Config
	oauth    *oauth2.Config
	store    credstore.Store
	resolver EmailResolver
	revoker  Revoker
	recorder Recorder
	audit    *instrumentation.AuditLogger
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager creates a Manager.
func NewManager(config Config, opts Options) (*Manager, error) {
	if config.ClientID == "" || config.ClientSecret == "" {
		return nil, fmt.Errorf("OAuth client id and secret are required")
	}
	if config.LeadTime < 0 {
		return nil, fmt.Errorf("lead time must not be negative, got %s", config.LeadTime)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("email resolver is required")
	}
	if config.RevokeOnDisconnect && opts.Revoker == nil {
		return nil, fmt.Errorf("revoker is required when revoke on disconnect is enabled")
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Manager{
		config:   config,
		oauth:    google.OAuthConfig(config.ClientID, config.ClientSecret, config.DefaultRedirectURI, config.Endpoint),
		store:    opts.Store,
		resolver: opts.Resolver,
		revoker:  opts.Revoker,
		recorder: opts.Recorder,
		audit:    opts.Audit,
		logger:   logging.WithComponent(opts.Logger, "tokens"),
		now:      opts.Now,
	}, nil
}

// LeadTime returns the configured freshness lead time.
func (m *Manager) LeadTime() time.Duration {
	return m.config.LeadTime
}

func (m *Manager) oauthConfig(redirectURI string) *oauth2.Config {
	cfg := *m.oauth
	if redirectURI != "" {
		cfg.RedirectURL = redirectURI
	}
	return &cfg
}

// oauthContext bounds ctx by the token endpoint timeout and attaches the
// configured HTTP client for golang.org/x/oauth2.
func (m *Manager) oauthContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	if m.config.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.config.HTTPClient)
	}
	return ctx, cancel
}

// GenerateAuthorizationURL returns the provider consent URL for userID.
// The user id travels as the OAuth state. An empty redirectURI selects the
// configured default.
func (m *Manager) GenerateAuthorizationURL(userID, redirectURI string) string {
	return m.oauthConfig(redirectURI).AuthCodeURL(userID, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// CompleteAuthorization exchanges code for tokens, resolves the mailbox
// address and stores the credential for the user named by state.
func (m *Manager) CompleteAuthorization(ctx context.Context, code, state, redirectURI string) (*credstore.UserCredential, error) {
	const op = "tokens.complete_authorization"

	if strings.TrimSpace(code) == "" {
		return nil, apperr.New(apperr.KindInvalidInput, op, "authorization code is required")
	}
	if err := credstore.ValidateUserID(state); err != nil {
		return nil, apperr.New(apperr.KindInvalidInput, op, "state must carry a valid user id")
	}
	if redirectURI == "" {
		redirectURI = m.config.DefaultRedirectURI
	}
	if redirectURI == "" {
		return nil, apperr.New(apperr.KindInvalidInput, op, "redirect_uri is required")
	}

	ctx, span := instrumentation.StartSpan(ctx, "oauth.complete_authorization", instrumentation.UserAttr(state))
	defer span.End()

	cred, err := m.completeAuthorization(ctx, op, code, state, redirectURI)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		m.recordAuthorization(ctx, instrumentation.OAuthResultFailure)
		m.logger.Warn("authorization failed",
			logging.UserID(state), logging.ErrKind(string(apperr.KindOf(err))), logging.Err(err))
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	m.recordAuthorization(ctx, instrumentation.OAuthResultSuccess)
	m.audit.Record(ctx, instrumentation.AuditEvent{
		Type:   instrumentation.EventAccountConnected,
		UserID: state,
		Email:  cred.EmailAddress,
	})
	m.logger.Info("account connected", logging.UserID(state), logging.Domain(cred.EmailAddress))
	return cred, nil
}

func (m *Manager) completeAuthorization(ctx context.Context, op, code, userID, redirectURI string) (*credstore.UserCredential, error) {
	exchangeCtx, cancel := m.oauthContext(ctx)
	tok, err := m.oauthConfig(redirectURI).Exchange(exchangeCtx, code)
	if err != nil {
		err = classifyTokenError(exchangeCtx, op, err, apperr.KindInvalidGrant)
		cancel()
		return nil, err
	}
	cancel()

	email, err := m.resolver.EmailAddress(ctx, tok.AccessToken)
	if err != nil {
		if apperr.IsKind(err, apperr.KindTimeout) || apperr.IsKind(err, apperr.KindCanceled) {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.KindProviderUnavailable, op, fmt.Errorf("failed to resolve email address: %w", err))
	}

	now := m.now()
	cred := &credstore.UserCredential{
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		EmailAddress: email,
		Scopes:       grantedScopes(tok, m.oauth.Scopes),
		ConnectedAt:  now,
		UpdatedAt:    now,
	}

	// Re-consent may omit the refresh token; keep the one already stored.
	if cred.RefreshToken == "" {
		existing, err := m.store.Get(ctx, userID)
		switch {
		case err == nil:
			cred.RefreshToken = existing.RefreshToken
		case !apperr.IsKind(err, apperr.KindNotFound):
			return nil, err
		}
		if cred.RefreshToken == "" {
			m.logger.Warn("provider returned no refresh token", logging.UserID(userID))
		}
	}

	if err := m.store.Put(ctx, userID, cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// Lookup returns the stored credential without checking freshness.
func (m *Manager) Lookup(ctx context.Context, userID string) (*credstore.UserCredential, error) {
	cred, err := m.store.Get(ctx, userID)
	if err != nil {
		return nil, notConnected("tokens.lookup", err)
	}
	return cred, nil
}

// GetValidCredential returns a credential whose access token is usable for
// at least the lead time, refreshing it first when needed.
func (m *Manager) GetValidCredential(ctx context.Context, userID string) (*credstore.UserCredential, error) {
	const op = "tokens.get_valid_credential"

	cred, err := m.store.Get(ctx, userID)
	if err != nil {
		return nil, notConnected(op, err)
	}
	if !cred.ExpiredAt(m.now(), m.config.LeadTime) {
		return cred, nil
	}

	m.logger.Debug("access token expired, refreshing",
		logging.UserID(userID), slog.Time("expires_at", cred.ExpiresAt))
	return m.refresh(ctx, cred)
}

// ForceRefresh refreshes the stored credential regardless of its expiry.
func (m *Manager) ForceRefresh(ctx context.Context, userID string) (*credstore.UserCredential, error) {
	cred, err := m.store.Get(ctx, userID)
	if err != nil {
		return nil, notConnected("tokens.force_refresh", err)
	}
	return m.refresh(ctx, cred)
}

func (m *Manager) refresh(ctx context.Context, cred *credstore.UserCredential) (*credstore.UserCredential, error) {
	const op = "tokens.refresh"

	ctx, span := instrumentation.StartSpan(ctx, "oauth.refresh", instrumentation.UserAttr(cred.UserID))
	defer span.End()

	updated, err := m.refreshAndStore(ctx, op, cred)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		m.recordRefresh(ctx, string(apperr.KindOf(err)))
		if apperr.IsKind(err, apperr.KindRefreshFailed) {
			m.audit.Record(ctx, instrumentation.AuditEvent{
				Type:      instrumentation.EventRefreshFailed,
				UserID:    cred.UserID,
				Email:     cred.EmailAddress,
				ErrorKind: string(apperr.KindRefreshFailed),
			})
		}
		m.logger.Warn("token refresh failed",
			logging.UserID(cred.UserID), logging.ErrKind(string(apperr.KindOf(err))), logging.Err(err))
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	m.recordRefresh(ctx, instrumentation.OAuthResultSuccess)
	m.logger.Info("token refreshed", logging.UserID(cred.UserID), slog.Time("expires_at", updated.ExpiresAt))
	return updated, nil
}

func (m *Manager) refreshAndStore(ctx context.Context, op string, cred *credstore.UserCredential) (*credstore.UserCredential, error) {
	if cred.RefreshToken == "" {
		return nil, apperr.New(apperr.KindRefreshFailed, op, "no refresh token stored")
	}

	refreshCtx, cancel := m.oauthContext(ctx)
	defer cancel()

	// An empty access token forces the token source to hit the endpoint.
	tok, err := m.oauth.TokenSource(refreshCtx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		return nil, classifyTokenError(refreshCtx, op, err, apperr.KindRefreshFailed)
	}

	updated := cred.Clone()
	updated.AccessToken = tok.AccessToken
	updated.ExpiresAt = tok.Expiry
	if tok.RefreshToken != "" {
		updated.RefreshToken = tok.RefreshToken
	}
	updated.UpdatedAt = m.now()

	if err := m.store.Put(ctx, cred.UserID, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// Disconnect deletes the stored credential. Disconnecting a user without a
// credential succeeds.
func (m *Manager) Disconnect(ctx context.Context, userID string) error {
	if err := credstore.ValidateUserID(userID); err != nil {
		return err
	}

	var email string
	if m.config.RevokeOnDisconnect {
		email = m.revoke(ctx, userID)
	}

	if err := m.store.Delete(ctx, userID); err != nil {
		return err
	}

	m.audit.Record(ctx, instrumentation.AuditEvent{
		Type:   instrumentation.EventAccountDisconnected,
		UserID: userID,
		Email:  email,
	})
	m.logger.Info("account disconnected", logging.UserID(userID))
	return nil
}

// revoke invalidates the stored grant at the provider. Failures are logged
// and never block the delete.
func (m *Manager) revoke(ctx context.Context, userID string) string {
	cred, err := m.store.Get(ctx, userID)
	if err != nil {
		if !apperr.IsKind(err, apperr.KindNotFound) {
			m.logger.Warn("could not load credential for revocation", logging.UserID(userID), logging.Err(err))
		}
		return ""
	}

	token := cred.RefreshToken
	if token == "" {
		token = cred.AccessToken
	}
	if token == "" {
		return cred.EmailAddress
	}

	revokeCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()
	if err := m.revoker.Revoke(revokeCtx, token); err != nil {
		m.logger.Warn("token revocation failed", logging.UserID(userID), logging.Err(err))
	}
	return cred.EmailAddress
}

func (m *Manager) recordAuthorization(ctx context.Context, result string) {
	if m.recorder != nil {
		m.recorder.RecordOAuthAuthorization(ctx, result)
	}
}

func (m *Manager) recordRefresh(ctx context.Context, result string) {
	if m.recorder != nil {
		m.recorder.RecordOAuthTokenRefresh(ctx, result)
	}
}

func notConnected(op string, err error) error {
	if apperr.IsKind(err, apperr.KindNotFound) {
		return apperr.New(apperr.KindUserNotConnected, op, "user has not connected a Gmail account")
	}
	return err
}

// grantedScopes returns the scopes the provider reports, falling back to
// the requested set.
func grantedScopes(tok *oauth2.Token, requested []string) []string {
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		return strings.Fields(scope)
	}
	return slices.Clone(requested)
}

// classifyTokenError maps a token endpoint failure onto the error taxonomy.
// rejected is the kind used when the provider refuses the grant. Other 4xx
// answers (invalid_client, unauthorized_client) point at the OAuth client
// configuration and stay unclassified.
func classifyTokenError(ctx context.Context, op string, err error, rejected apperr.Kind) error {
	if ierr := apperr.Interrupted(ctx, op, err); ierr != nil {
		return ierr
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		status := 0
		if rerr.Response != nil {
			status = rerr.Response.StatusCode
		}
		switch {
		case status >= http.StatusInternalServerError || status == http.StatusTooManyRequests:
			return apperr.Wrap(apperr.KindProviderUnavailable, op, err)
		case rerr.ErrorCode == "invalid_grant":
			return apperr.Wrap(rejected, op, err)
		case status >= http.StatusBadRequest:
			return apperr.Wrap(apperr.KindUnknown, op, err)
		}
	}
	return apperr.Unavailable(apperr.KindProviderUnavailable, op, err)
}
