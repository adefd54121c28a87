package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"github.com/teemow/tenantmail/internal/logging"
)

// AuditEventType names a tenant-visible state change.
type AuditEventType string

const (
	EventAccountConnected    AuditEventType = "account_connected"
	EventAccountDisconnected AuditEventType = "account_disconnected"
	EventEmailSent           AuditEventType = "email_sent"
	EventEmailFailed         AuditEventType = "email_failed"
	EventRefreshFailed       AuditEventType = "token_refresh_failed"
)

// AuditEvent describes one audited operation.
//
// UserID and Email are PII. Unless the logger is configured with IncludePII
// they are written as hashes only.
type AuditEvent struct {
	Type      AuditEventType
	UserID    string
	Email     string
	RequestID string
	MessageID string
	Attempts  int
	ErrorKind string
	Duration  time.Duration
}

// Success reports whether the event represents a successful operation.
func (e *AuditEvent) Success() bool {
	return e.ErrorKind == ""
}

func (e *AuditEvent) attrs(ctx context.Context, includePII bool) []any {
	args := []any{slog.String("event", string(e.Type))}

	if includePII {
		args = append(args, slog.String("user_id", e.UserID))
		if e.Email != "" {
			args = append(args, slog.String("email", e.Email))
		}
	} else {
		args = append(args, logging.UserID(e.UserID))
		if e.Email != "" {
			args = append(args, logging.Domain(e.Email))
		}
	}

	if e.RequestID != "" {
		args = append(args, logging.RequestID(e.RequestID))
	}
	if e.MessageID != "" {
		args = append(args, slog.String("message_id", e.MessageID))
	}
	if e.Attempts > 0 {
		args = append(args, logging.Attempt(e.Attempts))
	}
	if e.ErrorKind != "" {
		args = append(args, logging.ErrKind(e.ErrorKind))
	}
	if e.Duration > 0 {
		args = append(args, logging.Duration(e.Duration))
	}
	if traceID := GetTraceID(ctx); traceID != "" {
		args = append(args, slog.String("trace_id", traceID), slog.String("span_id", GetSpanID(ctx)))
	}
	return args
}

// AuditLogger writes audit events through slog.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an AuditLogger. A nil logger uses slog.Default.
func NewAuditLogger(logger *slog.Logger, config AuditConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger.With(slog.String("log_type", "audit")),
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// Record writes ev. Failed operations are logged at warn level.
// Safe to call on a nil *AuditLogger.
func (al *AuditLogger) Record(ctx context.Context, ev AuditEvent) {
	if al == nil || !al.enabled {
		return
	}

	args := ev.attrs(ctx, al.includePII)
	if ev.Success() {
		al.logger.InfoContext(ctx, "audit", args...)
	} else {
		al.logger.WarnContext(ctx, "audit", args...)
	}
}
