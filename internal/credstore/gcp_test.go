package credstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/teemow/tenantmail/internal/apperr"
)

// fakeSecretManager keeps secret versions in memory, keyed by secret name.
type fakeSecretManager struct {
	secrets   map[string][][]byte
	created   []*secretmanagerpb.CreateSecretRequest
	failWith  error
	closeHits int
}

func newFakeSecretManager() *fakeSecretManager {
	return &fakeSecretManager{secrets: make(map[string][][]byte)}
}

func (f *fakeSecretManager) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	name := strings.TrimSuffix(req.GetName(), "/versions/latest")
	versions, ok := f.secrets[name]
	if !ok || len(versions) == 0 {
		return nil, status.Error(codes.NotFound, "secret not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: versions[len(versions)-1]},
	}, nil
}

func (f *fakeSecretManager) AddSecretVersion(_ context.Context, req *secretmanagerpb.AddSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.SecretVersion, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	versions, ok := f.secrets[req.GetParent()]
	if !ok {
		return nil, status.Error(codes.NotFound, "secret not found")
	}
	f.secrets[req.GetParent()] = append(versions, req.GetPayload().GetData())
	return &secretmanagerpb.SecretVersion{}, nil
}

func (f *fakeSecretManager) CreateSecret(_ context.Context, req *secretmanagerpb.CreateSecretRequest, _ ...gax.CallOption) (*secretmanagerpb.Secret, error) {
	name := req.GetParent() + "/secrets/" + req.GetSecretId()
	if _, ok := f.secrets[name]; ok {
		return nil, status.Error(codes.AlreadyExists, "exists")
	}
	f.created = append(f.created, req)
	f.secrets[name] = nil
	return &secretmanagerpb.Secret{Name: name}, nil
}

func (f *fakeSecretManager) DeleteSecret(_ context.Context, req *secretmanagerpb.DeleteSecretRequest, _ ...gax.CallOption) error {
	if f.failWith != nil {
		return f.failWith
	}
	if _, ok := f.secrets[req.GetName()]; !ok {
		return status.Error(codes.NotFound, "secret not found")
	}
	delete(f.secrets, req.GetName())
	return nil
}

func (f *fakeSecretManager) Close() error {
	f.closeHits++
	return nil
}

func TestSecretManagerStore_PutCreatesSecretThenAddsVersions(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSecretManager()
	store := newSecretManagerStore(fake, GCPConfig{ProjectID: "proj"}, time.Second, nil)

	require.NoError(t, store.Put(ctx, "u1", &UserCredential{UserID: "u1", AccessToken: "a1"}))
	require.NoError(t, store.Put(ctx, "u1", &UserCredential{UserID: "u1", AccessToken: "a2"}))

	require.Len(t, fake.created, 1)
	assert.Equal(t, "projects/proj", fake.created[0].GetParent())
	assert.Equal(t, "emailmcp-user-u1-gmail", fake.created[0].GetSecretId())
	assert.NotNil(t, fake.created[0].GetSecret().GetReplication().GetAutomatic())
	assert.Len(t, fake.secrets["projects/proj/secrets/emailmcp-user-u1-gmail"], 2)

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a2", got.AccessToken)
}

func TestSecretManagerStore_GetNotFound(t *testing.T) {
	store := newSecretManagerStore(newFakeSecretManager(), GCPConfig{ProjectID: "proj"}, time.Second, nil)

	_, err := store.Get(context.Background(), "u1")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestSecretManagerStore_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSecretManager()
	store := newSecretManagerStore(fake, GCPConfig{ProjectID: "proj"}, time.Second, nil)

	require.NoError(t, store.Put(ctx, "u1", &UserCredential{}))
	require.NoError(t, store.Delete(ctx, "u1"))
	require.NoError(t, store.Delete(ctx, "u1"))

	_, err := store.Get(ctx, "u1")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestSecretManagerStore_BackendErrors(t *testing.T) {
	tests := []struct {
		name     string
		failWith error
		want     error
	}{
		{"unavailable", status.Error(codes.Unavailable, "down"), apperr.ErrStoreUnavailable},
		{"permission denied", status.Error(codes.PermissionDenied, "no"), apperr.ErrStoreUnavailable},
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), apperr.ErrTimeout},
		{"canceled", status.Error(codes.Canceled, "gone"), apperr.ErrCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeSecretManager()
			fake.failWith = tt.failWith
			store := newSecretManagerStore(fake, GCPConfig{ProjectID: "proj"}, time.Second, nil)

			_, err := store.Get(context.Background(), "u1")
			assert.True(t, errors.Is(err, tt.want), "get: %v", err)

			err = store.Put(context.Background(), "u1", &UserCredential{})
			assert.True(t, errors.Is(err, tt.want), "put: %v", err)

			err = store.Delete(context.Background(), "u1")
			assert.True(t, errors.Is(err, tt.want), "delete: %v", err)
		})
	}
}

func TestSecretManagerStore_UsersDifferingInPunctuationAreIsolated(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSecretManager()
	store := newSecretManagerStore(fake, GCPConfig{ProjectID: "proj"}, time.Second, nil)

	require.NoError(t, store.Put(ctx, "alice.smith", &UserCredential{UserID: "alice.smith", AccessToken: "alice-token"}))

	for _, other := range []string{"alice_smith", "alice@smith"} {
		_, err := store.Get(ctx, other)
		assert.True(t, errors.Is(err, apperr.ErrNotFound), "get %s: %v", other, err)

		require.NoError(t, store.Delete(ctx, other))
	}

	got, err := store.Get(ctx, "alice.smith")
	require.NoError(t, err)
	assert.Equal(t, "alice-token", got.AccessToken)
	assert.Len(t, fake.created, 1)
}

func TestNewSecretManagerStore_RejectsOversizedPrefix(t *testing.T) {
	_, err := NewSecretManagerStore(context.Background(), GCPConfig{
		ProjectID:    "proj",
		SecretPrefix: strings.Repeat("p", maxGCPPrefixLength+1),
	}, time.Second, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prefix")
}

func TestSecretManagerStore_Close(t *testing.T) {
	fake := newFakeSecretManager()
	store := newSecretManagerStore(fake, GCPConfig{ProjectID: "proj"}, time.Second, nil)
	require.NoError(t, store.Close())
	assert.Equal(t, 1, fake.closeHits)
}
