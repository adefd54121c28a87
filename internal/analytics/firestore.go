package analytics

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/teemow/tenantmail/internal/apperr"
)

// Firestore collection names.
const (
	UsersCollection     = "users"
	EmailLogsCollection = "email_logs"
)

// DefaultTimeout bounds one Firestore call.
const DefaultTimeout = 5 * time.Second

// FirestoreStore keeps analytics in Cloud Firestore. The users collection
// holds one document per user with the counters, email_logs holds one
// document per send.
type FirestoreStore struct {
	client  *firestore.Client
	timeout time.Duration
}

// NewFirestoreStore connects to Firestore. The emulator is used when
// FIRESTORE_EMULATOR_HOST is set.
func NewFirestoreStore(ctx context.Context, projectID string, timeout time.Duration, opts ...option.ClientOption) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("firestore project id is required")
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &FirestoreStore{client: client, timeout: timeout}, nil
}

func (s *FirestoreStore) AppendLog(ctx context.Context, log *EmailLog) error {
	const op = "analytics.firestore.append_log"
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.client.Collection(EmailLogsCollection).Doc(log.ID).Set(ctx, log); err != nil {
		return classify(op, err)
	}
	return nil
}

func (s *FirestoreStore) IncrementStats(ctx context.Context, userID string, at time.Time) error {
	const op = "analytics.firestore.increment_stats"
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.Collection(UsersCollection).Doc(userID).Set(ctx, map[string]any{
		"user_id":             userID,
		"total_emails_sent":   firestore.Increment(1),
		"monthly_email_count": map[string]any{MonthKey(at): firestore.Increment(1)},
		"last_email_sent_at":  at,
	}, firestore.MergeAll)
	if err != nil {
		return classify(op, err)
	}
	return nil
}

func (s *FirestoreStore) UserStats(ctx context.Context, userID string) (*UserStats, error) {
	const op = "analytics.firestore.user_stats"
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	snap, err := s.client.Collection(UsersCollection).Doc(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return &UserStats{UserID: userID}, nil
	}
	if err != nil {
		return nil, classify(op, err)
	}

	var st UserStats
	if err := snap.DataTo(&st); err != nil {
		return nil, fmt.Errorf("failed to decode user stats: %w", err)
	}
	st.UserID = userID
	return &st, nil
}

func (s *FirestoreStore) ListLogs(ctx context.Context, q LogQuery) ([]*EmailLog, error) {
	const op = "analytics.firestore.list_logs"
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := s.client.Collection(EmailLogsCollection).Query
	if q.UserID != "" {
		query = query.Where("user_id", "==", q.UserID)
	}
	if !q.Since.IsZero() {
		query = query.Where("sent_at", ">=", q.Since)
	}
	if !q.Until.IsZero() {
		query = query.Where("sent_at", "<=", q.Until)
	}
	query = query.OrderBy("sent_at", firestore.Desc)
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, classify(op, err)
	}

	logs := make([]*EmailLog, 0, len(docs))
	for _, doc := range docs {
		var l EmailLog
		if err := doc.DataTo(&l); err != nil {
			return nil, fmt.Errorf("failed to decode email log %s: %w", doc.Ref.ID, err)
		}
		if l.ID == "" {
			l.ID = doc.Ref.ID
		}
		logs = append(logs, &l)
	}
	return logs, nil
}

func (s *FirestoreStore) CountUsers(ctx context.Context) (int, error) {
	const op = "analytics.firestore.count_users"
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	refs, err := s.client.Collection(UsersCollection).DocumentRefs(ctx).GetAll()
	if err != nil {
		return 0, classify(op, err)
	}
	return len(refs), nil
}

// Close releases the Firestore client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func classify(op string, err error) error {
	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return apperr.Wrap(apperr.KindTimeout, op, err)
	case codes.Canceled:
		return apperr.Wrap(apperr.KindCanceled, op, err)
	}
	return apperr.Unavailable(apperr.KindStoreUnavailable, op, err)
}
