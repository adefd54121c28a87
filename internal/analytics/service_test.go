package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/tenantmail/internal/apperr"
	"github.com/teemow/tenantmail/internal/gmail"
)

func newTestService(now time.Time) (*Service, *MemoryStore) {
	store := NewMemoryStore()
	svc := NewService(store, nil)
	svc.now = func() time.Time { return now }
	return svc, store
}

func testMessage(body string) *gmail.Message {
	return &gmail.Message{To: []string{"bob@example.com"}, Cc: []string{"carol@example.com"}, Subject: "Hi", Body: body}
}

func TestService_RecordSend(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, store := newTestService(now)
	ctx := context.Background()

	long := make([]rune, 150)
	for i := range long {
		long[i] = 'é'
	}

	svc.RecordSend(ctx, SendOutcome{UserID: "u1", From: "u1@gmail.com", Message: testMessage(string(long)), MessageID: "m1", Attempts: 1})
	svc.RecordSend(ctx, SendOutcome{UserID: "u1", Message: testMessage("x"), Err: errors.New("delivery rejected")})

	logs, err := store.ListLogs(ctx, LogQuery{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, logs, 2)

	var sent, failed *EmailLog
	for _, l := range logs {
		if l.Status == StatusSent {
			sent = l
		} else {
			failed = l
		}
	}
	require.NotNil(t, sent)
	require.NotNil(t, failed)
	assert.Equal(t, "m1", sent.MessageID)
	assert.Len(t, []rune(sent.BodyPreview), PreviewLength)
	assert.Equal(t, gmail.BodyTypeText, sent.BodyType)
	assert.Equal(t, []string{"carol@example.com"}, sent.Cc)
	assert.NotEmpty(t, sent.ID)
	assert.Equal(t, "delivery rejected", failed.ErrorMessage)

	stats, err := svc.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.TotalEmailsSent, "failed sends are not counted")
	assert.EqualValues(t, 1, stats.ThisMonth(now))
	assert.Equal(t, now, stats.LastEmailSentAt)
}

func TestService_StatsUnknownUser(t *testing.T) {
	svc, _ := newTestService(time.Now())
	stats, err := svc.Stats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, stats.TotalEmailsSent)
	assert.Zero(t, stats.ThisMonth(time.Now()))
}

func TestService_UserAnalytics(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	svc, store := newTestService(now)
	ctx := context.Background()

	for _, l := range []*EmailLog{
		{ID: "recent", UserID: "u1", To: []string{"a@x.com"}, Status: StatusSent, SentAt: now.Add(-24 * time.Hour)},
		{ID: "old", UserID: "u1", To: []string{"a@x.com"}, Status: StatusSent, SentAt: now.Add(-40 * 24 * time.Hour)},
		{ID: "other", UserID: "u2", To: []string{"a@x.com"}, Status: StatusSent, SentAt: now.Add(-time.Hour)},
	} {
		require.NoError(t, store.AppendLog(ctx, l))
	}

	a, err := svc.UserAnalytics(ctx, "u1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, a.TotalEmails)
	assert.Equal(t, now, a.DateRange.End)
	assert.Equal(t, now.Add(-30*24*time.Hour), a.DateRange.Start)

	a, err = svc.UserAnalytics(ctx, "u1", 60, 1)
	require.NoError(t, err)
	require.Len(t, a.RecentEmails, 1)
	assert.Equal(t, "recent", a.RecentEmails[0].ID)
}

func TestService_Bounds(t *testing.T) {
	svc, _ := newTestService(time.Now())
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{name: "negative days", call: func() error { _, err := svc.UserAnalytics(ctx, "u1", -1, 0); return err }},
		{name: "too many days", call: func() error { _, err := svc.UserAnalytics(ctx, "u1", MaxDays+1, 0); return err }},
		{name: "limit too large", call: func() error { _, err := svc.UserAnalytics(ctx, "u1", 0, MaxLimit+1); return err }},
		{name: "summary negative days", call: func() error { _, err := svc.PlatformSummary(ctx, -7); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
		})
	}
}

func TestService_PlatformSummary(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, store := newTestService(now)
	ctx := context.Background()

	require.NoError(t, store.IncrementStats(ctx, "u1", now))
	require.NoError(t, store.IncrementStats(ctx, "u2", now))
	require.NoError(t, store.AppendLog(ctx, &EmailLog{UserID: "u1", Status: StatusSent, SentAt: now.Add(-time.Hour)}))
	require.NoError(t, store.AppendLog(ctx, &EmailLog{UserID: "u2", Status: StatusSent, SentAt: now.Add(-10 * 24 * time.Hour)}))

	s, err := svc.PlatformSummary(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultSummaryDays, s.PeriodDays)
	assert.Equal(t, 2, s.TotalUsers)
	assert.Equal(t, 1, s.ActiveUsers)
	assert.Equal(t, 1, s.TotalEmailsSent)
	assert.Equal(t, 100.0, s.OverallSuccessRate)
}
