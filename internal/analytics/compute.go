package analytics

import (
	"cmp"
	"math"
	"slices"
	"time"
)

const (
	topRecipientsLimit = 10
	topSendersLimit    = 10
	recentEmailsLimit  = 10
)

// successRate returns successful/total as a percentage rounded to two
// decimals. Zero total yields zero.
func successRate(successful, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(successful)/float64(total)*100*100) / 100
}

func dailyCounts(logs []*EmailLog) []DailyCount {
	byDay := make(map[string]int)
	for _, l := range logs {
		byDay[DayKey(l.SentAt)]++
	}
	out := make([]DailyCount, 0, len(byDay))
	for day, n := range byDay {
		out = append(out, DailyCount{Date: day, Count: n})
	}
	slices.SortFunc(out, func(a, b DailyCount) int { return cmp.Compare(a.Date, b.Date) })
	return out
}

// ComputeUserAnalytics builds the per-user report from logs in the range.
func ComputeUserAnalytics(userID string, logs []*EmailLog, r DateRange) *UserAnalytics {
	a := &UserAnalytics{
		UserID:        userID,
		DateRange:     r,
		TotalEmails:   len(logs),
		EmailsByDay:   dailyCounts(logs),
		TopRecipients: []RecipientCount{},
		RecentEmails:  []RecentEmail{},
	}

	recipients := make(map[string]int)
	for _, l := range logs {
		if l.Status == StatusSent {
			a.SuccessfulEmails++
		}
		for _, to := range l.To {
			recipients[to]++
		}
	}
	a.FailedEmails = a.TotalEmails - a.SuccessfulEmails
	a.SuccessRate = successRate(a.SuccessfulEmails, a.TotalEmails)

	for email, n := range recipients {
		a.TopRecipients = append(a.TopRecipients, RecipientCount{Email: email, Count: n})
	}
	slices.SortFunc(a.TopRecipients, func(x, y RecipientCount) int {
		if c := cmp.Compare(y.Count, x.Count); c != 0 {
			return c
		}
		return cmp.Compare(x.Email, y.Email)
	})
	if len(a.TopRecipients) > topRecipientsLimit {
		a.TopRecipients = a.TopRecipients[:topRecipientsLimit]
	}

	recent := slices.Clone(logs)
	sortNewestFirst(recent)
	for _, l := range recent[:min(len(recent), recentEmailsLimit)] {
		a.RecentEmails = append(a.RecentEmails, RecentEmail{
			ID:        l.ID,
			To:        l.To,
			Subject:   l.Subject,
			Status:    l.Status,
			SentAt:    l.SentAt,
			MessageID: l.MessageID,
		})
	}
	return a
}

// ComputePlatformSummary builds the cross-tenant report from logs of the
// last days days ending at now.
func ComputePlatformSummary(logs []*EmailLog, totalUsers, days int, now time.Time) *PlatformSummary {
	s := &PlatformSummary{
		PeriodDays:      days,
		TotalUsers:      totalUsers,
		TotalEmailsSent: len(logs),
		TopSenders:      []SenderCount{},
		UsageTrends:     dailyCounts(logs),
	}

	today := DayKey(now)
	weekStart := now.Add(-7 * 24 * time.Hour)
	senders := make(map[string]int)
	successful := 0
	for _, l := range logs {
		senders[l.UserID]++
		if l.Status == StatusSent {
			successful++
		}
		if DayKey(l.SentAt) == today {
			s.EmailsToday++
		}
		if !l.SentAt.Before(weekStart) {
			s.EmailsThisWeek++
		}
	}
	s.ActiveUsers = len(senders)
	s.OverallSuccessRate = successRate(successful, len(logs))

	for userID, n := range senders {
		s.TopSenders = append(s.TopSenders, SenderCount{UserID: userID, Count: n})
	}
	slices.SortFunc(s.TopSenders, func(x, y SenderCount) int {
		if c := cmp.Compare(y.Count, x.Count); c != 0 {
			return c
		}
		return cmp.Compare(x.UserID, y.UserID)
	})
	if len(s.TopSenders) > topSendersLimit {
		s.TopSenders = s.TopSenders[:topSendersLimit]
	}
	return s
}

func sortNewestFirst(logs []*EmailLog) {
	slices.SortStableFunc(logs, func(a, b *EmailLog) int { return b.SentAt.Compare(a.SentAt) })
}
