package analytics

import "time"

// Delivery status values stored in EmailLog.Status.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// PreviewLength is the number of body characters kept in a log entry.
const PreviewLength = 100

// EmailLog is one send attempt as seen by the caller.
type EmailLog struct {
	ID           string    `json:"id" firestore:"id"`
	UserID       string    `json:"user_id" firestore:"user_id"`
	From         string    `json:"from_email,omitempty" firestore:"from_email"`
	To           []string  `json:"to_emails" firestore:"to_emails"`
	Cc           []string  `json:"cc_emails,omitempty" firestore:"cc_emails"`
	Bcc          []string  `json:"bcc_emails,omitempty" firestore:"bcc_emails"`
	Subject      string    `json:"subject" firestore:"subject"`
	BodyPreview  string    `json:"body_preview" firestore:"body_preview"`
	BodyType     string    `json:"body_type" firestore:"body_type"`
	MessageID    string    `json:"message_id,omitempty" firestore:"message_id"`
	Status       string    `json:"status" firestore:"status"`
	ErrorMessage string    `json:"error_message,omitempty" firestore:"error_message"`
	Attempts     int       `json:"attempts,omitempty" firestore:"attempts"`
	SentAt       time.Time `json:"sent_at" firestore:"sent_at"`
}

// UserStats holds the running counters of one user.
type UserStats struct {
	UserID            string           `json:"user_id" firestore:"user_id"`
	TotalEmailsSent   int64            `json:"total_emails_sent" firestore:"total_emails_sent"`
	MonthlyEmailCount map[string]int64 `json:"monthly_email_count,omitempty" firestore:"monthly_email_count"`
	LastEmailSentAt   time.Time        `json:"last_email_sent_at,omitzero" firestore:"last_email_sent_at"`
}

// ThisMonth returns the counter for the calendar month containing now.
func (s *UserStats) ThisMonth(now time.Time) int64 {
	if s == nil {
		return 0
	}
	return s.MonthlyEmailCount[MonthKey(now)]
}

// MonthKey formats the monthly counter key for t, e.g. "2026-03".
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// DayKey formats the daily bucket key for t, e.g. "2026-03-01".
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// LogQuery selects email logs. Results are ordered newest first.
type LogQuery struct {
	// UserID restricts the query to one user when set.
	UserID string
	Since  time.Time
	Until  time.Time
	// Limit caps the result size. Zero means no cap.
	Limit int
}

// DailyCount is the number of logs on one UTC day.
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// RecipientCount counts sends to one address.
type RecipientCount struct {
	Email string `json:"email"`
	Count int    `json:"count"`
}

// SenderCount counts sends by one user.
type SenderCount struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

// RecentEmail is the summary of a log entry shown in reports.
type RecentEmail struct {
	ID        string    `json:"id"`
	To        []string  `json:"to_emails"`
	Subject   string    `json:"subject"`
	Status    string    `json:"status"`
	SentAt    time.Time `json:"sent_at"`
	MessageID string    `json:"message_id,omitempty"`
}

// DateRange bounds a report.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// UserAnalytics is the per-user report.
type UserAnalytics struct {
	UserID           string           `json:"user_id"`
	DateRange        DateRange        `json:"date_range"`
	TotalEmails      int              `json:"total_emails"`
	SuccessfulEmails int              `json:"successful_emails"`
	FailedEmails     int              `json:"failed_emails"`
	SuccessRate      float64          `json:"success_rate"`
	EmailsByDay      []DailyCount     `json:"emails_by_day"`
	TopRecipients    []RecipientCount `json:"top_recipients"`
	RecentEmails     []RecentEmail    `json:"recent_emails"`
}

// PlatformSummary is the cross-tenant report.
type PlatformSummary struct {
	PeriodDays         int           `json:"period_days"`
	TotalUsers         int           `json:"total_users"`
	ActiveUsers        int           `json:"active_users"`
	TotalEmailsSent    int           `json:"total_emails_sent"`
	EmailsToday        int           `json:"emails_today"`
	EmailsThisWeek     int           `json:"emails_this_week"`
	OverallSuccessRate float64       `json:"overall_success_rate"`
	TopSenders         []SenderCount `json:"top_senders"`
	UsageTrends        []DailyCount  `json:"usage_trends"`
}
