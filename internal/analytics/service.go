package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/tenantmail/internal/apperr"
	"github.com/teemow/tenantmail/internal/gmail"
	"github.com/teemow/tenantmail/internal/logging"
)

// Report defaults and bounds.
const (
	DefaultUserDays    = 30
	DefaultSummaryDays = 7
	MaxDays            = 365
	DefaultLimit       = 1000
	MaxLimit           = 1000
)

// SendOutcome is what the caller knows after one send.
type SendOutcome struct {
	UserID    string
	From      string
	Message   *gmail.Message
	MessageID string
	Attempts  int
	Err       error
}

// Service records sends and builds reports.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a Service over store.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logging.WithComponent(logger, "analytics"),
		now:    time.Now,
	}
}

// RecordSend stores a log entry for the outcome and, for successful sends,
// bumps the user's counters. Failures are logged and never returned so
// that analytics cannot fail a send.
func (s *Service) RecordSend(ctx context.Context, outcome SendOutcome) {
	now := s.now().UTC()
	msg := outcome.Message
	if msg == nil {
		msg = &gmail.Message{}
	}

	entry := &EmailLog{
		ID:          uuid.NewString(),
		UserID:      outcome.UserID,
		From:        outcome.From,
		To:          slices.Clone(msg.To),
		Cc:          slices.Clone(msg.Cc),
		Bcc:         slices.Clone(msg.Bcc),
		Subject:     msg.Subject,
		BodyPreview: msg.Preview(PreviewLength),
		BodyType:    bodyType(msg),
		MessageID:   outcome.MessageID,
		Status:      StatusSent,
		Attempts:    outcome.Attempts,
		SentAt:      now,
	}
	if outcome.Err != nil {
		entry.Status = StatusFailed
		entry.ErrorMessage = outcome.Err.Error()
	}

	if err := s.store.AppendLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record email log", logging.UserID(outcome.UserID), logging.Err(err))
	}
	if outcome.Err != nil {
		return
	}
	if err := s.store.IncrementStats(ctx, outcome.UserID, now); err != nil {
		s.logger.Warn("failed to update user stats", logging.UserID(outcome.UserID), logging.Err(err))
	}
}

func bodyType(msg *gmail.Message) string {
	if msg.IsHTML() {
		return gmail.BodyTypeHTML
	}
	return gmail.BodyTypeText
}

// Stats returns the user's counters.
func (s *Service) Stats(ctx context.Context, userID string) (*UserStats, error) {
	return s.store.UserStats(ctx, userID)
}

// Now returns the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

// UserAnalytics reports on userID's sends over the last days days, looking
// at no more than limit logs.
func (s *Service) UserAnalytics(ctx context.Context, userID string, days, limit int) (*UserAnalytics, error) {
	const op = "analytics.user_analytics"

	days, err := normalizeDays(op, days, DefaultUserDays)
	if err != nil {
		return nil, err
	}
	limit, err = normalizeLimit(op, limit)
	if err != nil {
		return nil, err
	}

	end := s.now().UTC()
	r := DateRange{Start: end.Add(-time.Duration(days) * 24 * time.Hour), End: end}
	logs, err := s.store.ListLogs(ctx, LogQuery{UserID: userID, Since: r.Start, Until: r.End, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to list email logs: %w", err)
	}
	return ComputeUserAnalytics(userID, logs, r), nil
}

// PlatformSummary reports on all tenants over the last days days.
func (s *Service) PlatformSummary(ctx context.Context, days int) (*PlatformSummary, error) {
	const op = "analytics.platform_summary"

	days, err := normalizeDays(op, days, DefaultSummaryDays)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	logs, err := s.store.ListLogs(ctx, LogQuery{Since: now.Add(-time.Duration(days) * 24 * time.Hour), Until: now})
	if err != nil {
		return nil, fmt.Errorf("failed to list email logs: %w", err)
	}
	users, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	return ComputePlatformSummary(logs, users, days, now), nil
}

func normalizeDays(op string, days, def int) (int, error) {
	switch {
	case days == 0:
		return def, nil
	case days < 0 || days > MaxDays:
		return 0, apperr.New(apperr.KindInvalidInput, op, fmt.Sprintf("days must be between 1 and %d", MaxDays))
	}
	return days, nil
}

func normalizeLimit(op string, limit int) (int, error) {
	switch {
	case limit == 0:
		return DefaultLimit, nil
	case limit < 0 || limit > MaxLimit:
		return 0, apperr.New(apperr.KindInvalidInput, op, fmt.Sprintf("limit must be between 1 and %d", MaxLimit))
	}
	return limit, nil
}
