package credstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/teemow/tenantmail/internal/apperr"
	"github.com/teemow/tenantmail/internal/logging"
)

// secretManagerClient is the subset of *secretmanager.Client used by the store.
type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.SecretVersion, error)
	CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error)
	DeleteSecret(ctx context.Context, req *secretmanagerpb.DeleteSecretRequest, opts ...gax.CallOption) error
	Close() error
}

// GCPConfig configures the Secret Manager backend.
type GCPConfig struct {
	// ProjectID is the Google Cloud project holding the secrets.
	ProjectID string

	// SecretPrefix prefixes every secret id (default: "emailmcp").
	SecretPrefix string
}

// SecretManagerStore stores one Secret Manager secret per user. Each Put adds
// a secret version, so the version list doubles as an audit trail.
type SecretManagerStore struct {
	client  secretManagerClient
	project string
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewSecretManagerStore dials Secret Manager with application default credentials.
func NewSecretManagerStore(ctx context.Context, cfg GCPConfig, timeout time.Duration, logger *slog.Logger) (*SecretManagerStore, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("gcp project id is required for the secret manager store")
	}
	if err := validateGCPPrefix(cfg.SecretPrefix); err != nil {
		return nil, err
	}

	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}
	return newSecretManagerStore(client, cfg, timeout, logger), nil
}

func newSecretManagerStore(client secretManagerClient, cfg GCPConfig, timeout time.Duration, logger *slog.Logger) *SecretManagerStore {
	if cfg.SecretPrefix == "" {
		cfg.SecretPrefix = DefaultSecretPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SecretManagerStore{
		client:  client,
		project: cfg.ProjectID,
		prefix:  cfg.SecretPrefix,
		timeout: timeout,
		logger:  logging.WithComponent(logger, "credstore.gcp"),
	}
}

func (s *SecretManagerStore) secretName(userID string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", s.project, gcpSecretID(s.prefix, userID))
}

// Get implements Store.
func (s *SecretManagerStore) Get(ctx context.Context, userID string) (*UserCredential, error) {
	const op = "credstore.gcp.get"

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: s.secretName(userID) + "/versions/latest",
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, notFound(op)
		}
		return nil, classifyGRPC(ctx, op, err)
	}

	cred, err := decodeCredential(resp.GetPayload().GetData())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreUnavailable, op, err)
	}
	return cred, nil
}

// Put implements Store. The secret is created with automatic replication on
// first write.
func (s *SecretManagerStore) Put(ctx context.Context, userID string, cred *UserCredential) error {
	const op = "credstore.gcp.put"

	if err := ValidateUserID(userID); err != nil {
		return err
	}
	data, err := encodeCredential(cred)
	if err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, op, err)
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	err = s.addVersion(ctx, userID, data)
	if status.Code(err) == codes.NotFound {
		if err := s.createSecret(ctx, userID); err != nil {
			return classifyGRPC(ctx, op, err)
		}
		err = s.addVersion(ctx, userID, data)
	}
	if err != nil {
		return classifyGRPC(ctx, op, err)
	}

	s.logger.Debug("stored credential version", logging.UserID(userID))
	return nil
}

func (s *SecretManagerStore) addVersion(ctx context.Context, userID string, data []byte) error {
	_, err := s.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  s.secretName(userID),
		Payload: &secretmanagerpb.SecretPayload{Data: data},
	})
	return err
}

func (s *SecretManagerStore) createSecret(ctx context.Context, userID string) error {
	_, err := s.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
		Parent:   "projects/" + s.project,
		SecretId: gcpSecretID(s.prefix, userID),
		Secret: &secretmanagerpb.Secret{
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_Automatic_{
					Automatic: &secretmanagerpb.Replication_Automatic{},
				},
			},
			Labels: map[string]string{"app": "tenantmail", "provider": "gmail"},
		},
	})
	// A concurrent first write may have created it already.
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	return err
}

// Delete implements Store.
func (s *SecretManagerStore) Delete(ctx context.Context, userID string) error {
	const op = "credstore.gcp.delete"

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	err := s.client.DeleteSecret(ctx, &secretmanagerpb.DeleteSecretRequest{Name: s.secretName(userID)})
	if err != nil && status.Code(err) != codes.NotFound {
		return classifyGRPC(ctx, op, err)
	}

	s.logger.Debug("deleted credential secret", logging.UserID(userID))
	return nil
}

// Close releases the underlying gRPC connection.
func (s *SecretManagerStore) Close() error {
	return s.client.Close()
}

// classifyGRPC maps a gRPC failure to StoreUnavailable or Timeout.
func classifyGRPC(ctx context.Context, op string, err error) error {
	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return apperr.Wrap(apperr.KindTimeout, op, err)
	case codes.Canceled:
		return apperr.Wrap(apperr.KindCanceled, op, err)
	}
	return classify(ctx, op, err)
}
