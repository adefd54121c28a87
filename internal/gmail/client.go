package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/tenantmail/internal/apperr"
	"github.com/teemow/tenantmail/internal/instrumentation"
	"github.com/teemow/tenantmail/internal/logging"
)

// DefaultTimeout bounds a single Gmail API call.
const DefaultTimeout = 15 * time.Second

// APIRecorder receives one observation per Gmail API call.
type APIRecorder interface {
	RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration)
}

// Options configures a Client.
type Options struct {
	// Endpoint overrides the Gmail API base URL.
	Endpoint string

	// HTTPClient supplies the base transport. Auth is added per call.
	HTTPClient *http.Client

	// Timeout bounds each call (default: DefaultTimeout).
	Timeout time.Duration

	Recorder APIRecorder
	Logger   *slog.Logger
}

// Client talks to the Gmail API on behalf of a tenant, one access token per call.
type Client struct {
	endpoint string
	base     http.RoundTripper
	timeout  time.Duration
	recorder APIRecorder
	logger   *slog.Logger
}

// NewClient creates a Client. The zero Options value is usable.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	var base http.RoundTripper = http.DefaultTransport
	if opts.HTTPClient != nil && opts.HTTPClient.Transport != nil {
		base = opts.HTTPClient.Transport
	}
	return &Client{
		endpoint: opts.Endpoint,
		base:     base,
		timeout:  opts.Timeout,
		recorder: opts.Recorder,
		logger:   logging.WithComponent(opts.Logger, "gmail"),
	}
}

func (c *Client) service(ctx context.Context, accessToken string) (*gmail.Service, error) {
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   c.base,
		},
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return svc, nil
}

// Send delivers msg as the owner of accessToken and returns the Gmail message id.
func (c *Client) Send(ctx context.Context, accessToken string, msg *Message) (string, error) {
	const op = "gmail.send"

	if err := msg.Validate(); err != nil {
		return "", apperr.Wrap(apperr.KindInvalidInput, op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, "send")
	defer span.End()
	start := time.Now()

	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return "", apperr.Wrap(apperr.KindProviderUnavailable, op, err)
	}

	raw := base64.URLEncoding.EncodeToString(msg.Build(""))
	sent, err := svc.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		err = classify(ctx, op, err)
		c.observe(ctx, "send", start, err)
		instrumentation.SetSpanError(span, err)
		c.logger.Debug("gmail send failed", logging.ErrKind(string(apperr.KindOf(err))), logging.Err(err))
		return "", err
	}

	c.observe(ctx, "send", start, nil)
	instrumentation.SetSpanSuccess(span)
	return sent.Id, nil
}

// EmailAddress resolves the mailbox address of the owner of accessToken
// through users.getProfile.
func (c *Client) EmailAddress(ctx context.Context, accessToken string) (string, error) {
	const op = "gmail.profile"

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, "get_profile")
	defer span.End()
	start := time.Now()

	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return "", apperr.Wrap(apperr.KindProviderUnavailable, op, err)
	}

	profile, err := svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		err = classify(ctx, op, err)
		c.observe(ctx, "get_profile", start, err)
		instrumentation.SetSpanError(span, err)
		return "", err
	}

	c.observe(ctx, "get_profile", start, nil)
	instrumentation.SetSpanSuccess(span)
	return profile.EmailAddress, nil
}

func (c *Client) observe(ctx context.Context, operation string, start time.Time, err error) {
	if c.recorder == nil {
		return
	}
	status := instrumentation.StatusSuccess
	if err != nil {
		status = string(apperr.KindOf(err))
	}
	c.recorder.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, operation, status, time.Since(start))
}

// classify maps a Gmail API failure onto the error taxonomy.
func classify(ctx context.Context, op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusUnauthorized:
			return apperr.Wrap(apperr.KindDeliveryUnauthorized, op, err)
		case gerr.Code == http.StatusTooManyRequests || gerr.Code >= http.StatusInternalServerError:
			return apperr.Wrap(apperr.KindProviderUnavailable, op, err)
		default:
			return apperr.Wrap(apperr.KindDeliveryRejected, op, err)
		}
	}
	if ierr := apperr.Interrupted(ctx, op, err); ierr != nil {
		return ierr
	}
	return apperr.Unavailable(apperr.KindProviderUnavailable, op, err)
}
