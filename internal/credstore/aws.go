package credstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/teemow/tenantmail/internal/apperr"
	"github.com/teemow/tenantmail/internal/logging"
)

// secretsManagerAPI is the subset of *secretsmanager.Client used by the store.
type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, in *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	CreateSecret(ctx context.Context, in *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	DeleteSecret(ctx context.Context, in *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
}

// AWSConfig configures the Secrets Manager backend.
type AWSConfig struct {
	// Region is the AWS region. Empty uses the SDK default chain.
	Region string

	// Endpoint overrides the service endpoint (for LocalStack and similar).
	Endpoint string

	// SecretPrefix prefixes every secret name (default: "emailmcp").
	SecretPrefix string
}

// AWSStore stores one Secrets Manager secret per user. PutSecretValue
// creates a new secret version on every write.
type AWSStore struct {
	client  secretsManagerAPI
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewAWSStore loads the default AWS configuration and builds the store.
func NewAWSStore(ctx context.Context, cfg AWSConfig, timeout time.Duration, logger *slog.Logger) (*AWSStore, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newAWSStore(client, cfg, timeout, logger), nil
}

func newAWSStore(client secretsManagerAPI, cfg AWSConfig, timeout time.Duration, logger *slog.Logger) *AWSStore {
	if cfg.SecretPrefix == "" {
		cfg.SecretPrefix = DefaultSecretPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AWSStore{
		client:  client,
		prefix:  cfg.SecretPrefix,
		timeout: timeout,
		logger:  logging.WithComponent(logger, "credstore.aws"),
	}
}

// Get implements Store.
func (s *AWSStore) Get(ctx context.Context, userID string) (*UserCredential, error) {
	const op = "credstore.aws.get"

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(awsSecretName(s.prefix, userID)),
	})
	if err != nil {
		if isAWSNotFound(err) {
			return nil, notFound(op)
		}
		return nil, classify(ctx, op, err)
	}

	cred, err := decodeCredential([]byte(aws.ToString(out.SecretString)))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreUnavailable, op, err)
	}
	return cred, nil
}

// Put implements Store.
func (s *AWSStore) Put(ctx context.Context, userID string, cred *UserCredential) error {
	const op = "credstore.aws.put"

	if err := ValidateUserID(userID); err != nil {
		return err
	}
	data, err := encodeCredential(cred)
	if err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, op, err)
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	name := awsSecretName(s.prefix, userID)
	_, err = s.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(string(data)),
	})
	if isAWSNotFound(err) {
		_, err = s.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
			Name:         aws.String(name),
			SecretString: aws.String(string(data)),
			Tags: []types.Tag{
				{Key: aws.String("app"), Value: aws.String("tenantmail")},
				{Key: aws.String("provider"), Value: aws.String("gmail")},
			},
		})
	}
	if err != nil {
		return classify(ctx, op, err)
	}

	s.logger.Debug("stored credential version", logging.UserID(userID))
	return nil
}

// Delete implements Store.
func (s *AWSStore) Delete(ctx context.Context, userID string) error {
	const op = "credstore.aws.delete"

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(awsSecretName(s.prefix, userID)),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil && !isAWSNotFound(err) {
		return classify(ctx, op, err)
	}

	s.logger.Debug("deleted credential secret", logging.UserID(userID))
	return nil
}

func isAWSNotFound(err error) bool {
	var nf *types.ResourceNotFoundException
	return errors.As(err, &nf)
}
