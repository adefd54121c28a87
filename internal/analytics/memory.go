package analytics

import (
	"context"
	"maps"
	"sync"
	"time"
)

// MemoryStore keeps analytics in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	logs  []*EmailLog
	stats map[string]*UserStats
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stats: make(map[string]*UserStats)}
}

func (s *MemoryStore) AppendLog(_ context.Context, log *EmailLog) error {
	cp := *log
	s.mu.Lock()
	s.logs = append(s.logs, &cp)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) IncrementStats(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stats[userID]
	if !ok {
		st = &UserStats{UserID: userID, MonthlyEmailCount: make(map[string]int64)}
		s.stats[userID] = st
	}
	st.TotalEmailsSent++
	st.MonthlyEmailCount[MonthKey(at)]++
	st.LastEmailSentAt = at
	return nil
}

func (s *MemoryStore) UserStats(_ context.Context, userID string) (*UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stats[userID]
	if !ok {
		return &UserStats{UserID: userID}, nil
	}
	cp := *st
	cp.MonthlyEmailCount = maps.Clone(st.MonthlyEmailCount)
	return &cp, nil
}

func (s *MemoryStore) ListLogs(_ context.Context, q LogQuery) ([]*EmailLog, error) {
	s.mu.RLock()
	var out []*EmailLog
	for _, l := range s.logs {
		if q.UserID != "" && l.UserID != q.UserID {
			continue
		}
		if !q.Since.IsZero() && l.SentAt.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && l.SentAt.After(q.Until) {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) CountUsers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stats), nil
}
