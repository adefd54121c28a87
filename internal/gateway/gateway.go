// Package gateway sends email as a tenant user through their own Gmail
// account.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/tenantmail/internal/apperr"
	"github.com/teemow/tenantmail/internal/credstore"
	"github.com/teemow/tenantmail/internal/gmail"
	"github.com/teemow/tenantmail/internal/instrumentation"
	"github.com/teemow/tenantmail/internal/logging"
)

// MaxAttempts bounds delivery attempts per SendAsUser call.
const MaxAttempts = 2

// Deliverer sends a message with an access token.
type Deliverer interface {
	Send(ctx context.Context, accessToken string, msg *gmail.Message) (string, error)
}

// Credentials hands out usable access tokens.
type Credentials interface {
	GetValidCredential(ctx context.Context, userID string) (*credstore.UserCredential, error)
	ForceRefresh(ctx context.Context, userID string) (*credstore.UserCredential, error)
}

// Recorder receives one observation per SendAsUser call.
type Recorder interface {
	RecordDelivery(ctx context.Context, status, senderEmail string, attempts int)
}

// DeliveryResult describes a successful send.
type DeliveryResult struct {
	MessageID string `json:"message_id"`
	Attempts  int    `json:"attempts"`
	From      string `json:"from"`
}

// Gateway is the tenant email gateway.
type Gateway struct {
	credentials Credentials
	deliverer   Deliverer
	recorder    Recorder
	audit       *instrumentation.AuditLogger
	logger      *slog.Logger
}

// New creates a Gateway. recorder and audit may be nil.
func New(credentials Credentials, deliverer Deliverer, recorder Recorder, audit *instrumentation.AuditLogger, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		credentials: credentials,
		deliverer:   deliverer,
		recorder:    recorder,
		audit:       audit,
		logger:      logging.WithComponent(logger, "gateway"),
	}
}

// SendAsUser delivers msg from userID's mailbox. When delivery is rejected
// for authentication, the credential is refreshed once and delivery is
// retried once.
func (g *Gateway) SendAsUser(ctx context.Context, userID string, msg *gmail.Message) (*DeliveryResult, error) {
	const op = "gateway.send_as_user"

	if err := msg.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, op, err)
	}

	ctx, span := instrumentation.StartSpan(ctx, "gateway.send_as_user", instrumentation.UserAttr(userID))
	defer span.End()
	start := time.Now()

	result, sender, attempts, err := g.send(ctx, userID, msg)

	ev := instrumentation.AuditEvent{
		UserID:    userID,
		Email:     sender,
		Attempts:  attempts,
		Duration:  time.Since(start),
		RequestID: logging.RequestIDFrom(ctx),
	}

	if err != nil {
		instrumentation.SetSpanError(span, err)
		g.record(ctx, string(apperr.KindOf(err)), sender, attempts)
		ev.Type = instrumentation.EventEmailFailed
		ev.ErrorKind = string(apperr.KindOf(err))
		g.audit.Record(ctx, ev)
		g.logger.Warn("send failed",
			logging.UserID(userID), logging.Attempt(attempts),
			logging.ErrKind(ev.ErrorKind), logging.Err(err))
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	g.record(ctx, instrumentation.StatusSuccess, sender, attempts)
	ev.Type = instrumentation.EventEmailSent
	ev.MessageID = result.MessageID
	g.audit.Record(ctx, ev)
	g.logger.Info("email sent",
		logging.UserID(userID), logging.Attempt(attempts),
		slog.Int("recipients", len(msg.Recipients())), logging.Duration(ev.Duration))
	return result, nil
}

// send returns the result, the sender address when known and the number
// of delivery attempts made.
func (g *Gateway) send(ctx context.Context, userID string, msg *gmail.Message) (*DeliveryResult, string, int, error) {
	cred, err := g.credentials.GetValidCredential(ctx, userID)
	if err != nil {
		return nil, "", 0, err
	}
	sender := cred.EmailAddress

	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if attempt > 1 {
			g.logger.Info("delivery unauthorized, forcing token refresh", logging.UserID(userID))
			cred, err = g.credentials.ForceRefresh(ctx, userID)
			if err != nil {
				return nil, sender, attempt - 1, err
			}
		}

		id, err := g.deliverer.Send(ctx, cred.AccessToken, msg)
		if err == nil {
			return &DeliveryResult{MessageID: id, Attempts: attempt, From: cred.EmailAddress}, sender, attempt, nil
		}
		lastErr = err
		if !apperr.IsKind(err, apperr.KindDeliveryUnauthorized) {
			return nil, sender, attempt, err
		}
	}

	return nil, sender, MaxAttempts, fmt.Errorf("delivery still unauthorized after token refresh: %w", lastErr)
}

func (g *Gateway) record(ctx context.Context, status, sender string, attempts int) {
	if g.recorder != nil {
		g.recorder.RecordDelivery(ctx, status, sender, attempts)
	}
}
