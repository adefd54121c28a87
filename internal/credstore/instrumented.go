package credstore

import (
	"context"
	"time"

	"github.com/teemow/tenantmail/internal/apperr"
)

// OperationRecorder receives one observation per store call.
type OperationRecorder interface {
	RecordStoreOperation(ctx context.Context, backend, operation, status string, duration time.Duration)
}

// instrumentedStore reports the outcome of every call to a recorder.
type instrumentedStore struct {
	next     Store
	backend  string
	recorder OperationRecorder
}

// WithRecorder wraps store so each call is reported to recorder.
// NotFound results count as success. A nil recorder returns store unchanged.
func WithRecorder(store Store, backend string, recorder OperationRecorder) Store {
	if recorder == nil {
		return store
	}
	return &instrumentedStore{next: store, backend: backend, recorder: recorder}
}

func (s *instrumentedStore) observe(ctx context.Context, op string, start time.Time, err error) {
	status := "success"
	if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
		status = string(apperr.KindOf(err))
	}
	s.recorder.RecordStoreOperation(ctx, s.backend, op, status, time.Since(start))
}

func (s *instrumentedStore) Get(ctx context.Context, userID string) (*UserCredential, error) {
	start := time.Now()
	cred, err := s.next.Get(ctx, userID)
	s.observe(ctx, "get", start, err)
	return cred, err
}

func (s *instrumentedStore) Put(ctx context.Context, userID string, cred *UserCredential) error {
	start := time.Now()
	err := s.next.Put(ctx, userID, cred)
	s.observe(ctx, "put", start, err)
	return err
}

func (s *instrumentedStore) Delete(ctx context.Context, userID string) error {
	start := time.Now()
	err := s.next.Delete(ctx, userID)
	s.observe(ctx, "delete", start, err)
	return err
}

// Close forwards to the wrapped store when it can be closed.
func (s *instrumentedStore) Close() error {
	if c, ok := s.next.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
