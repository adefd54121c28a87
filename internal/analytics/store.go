package analytics

import (
	"context"
	"time"
)

// Store persists email logs and user counters.
type Store interface {
	AppendLog(ctx context.Context, log *EmailLog) error

	// IncrementStats bumps the total and monthly counters of userID and sets
	// the last sent time to at.
	IncrementStats(ctx context.Context, userID string, at time.Time) error

	// UserStats returns the counters of userID. A user without any recorded
	// send has zero stats, not an error.
	UserStats(ctx context.Context, userID string) (*UserStats, error)

	ListLogs(ctx context.Context, q LogQuery) ([]*EmailLog, error)

	// CountUsers returns the number of users with stats.
	CountUsers(ctx context.Context) (int, error)
}

// Backend names accepted by the configuration.
const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
)
