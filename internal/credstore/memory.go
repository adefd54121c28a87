package credstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/tenantmail/internal/logging"
)

// MemoryStore keeps credentials in process memory. Each Put appends to a
// per-user version history.
type MemoryStore struct {
	mu       sync.RWMutex
	current  map[string]*UserCredential
	versions map[string]int
	logger   *slog.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		current:  make(map[string]*UserCredential),
		versions: make(map[string]int),
		logger:   logging.WithComponent(logger, "credstore.memory"),
	}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, userID string) (*UserCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.current[userID]
	if !ok {
		return nil, notFound("credstore.memory.get")
	}
	return cred.Clone(), nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, userID string, cred *UserCredential) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}

	stored := cred.Clone()
	stored.UserID = userID
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now()
	}

	s.mu.Lock()
	s.current[userID] = stored
	s.versions[userID]++
	version := s.versions[userID]
	s.mu.Unlock()

	s.logger.Debug("stored credential", logging.UserID(userID), slog.Int("version", version))
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	delete(s.current, userID)
	delete(s.versions, userID)
	s.mu.Unlock()

	s.logger.Debug("deleted credential", logging.UserID(userID))
	return nil
}

// Versions returns how many times Put was called for userID since the last Delete.
func (s *MemoryStore) Versions(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[userID]
}
