package credstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teemow/tenantmail/internal/apperr"
	"github.com/teemow/tenantmail/internal/logging"
)

// redisClient is the subset of *redis.Client used by the store.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	// Addr is host:port of the Redis server (default: "localhost:6379").
	Addr string

	// Password is the optional AUTH password.
	Password string

	// DB is the database number.
	DB int

	// TLSEnabled enables TLS for the connection.
	TLSEnabled bool

	// KeyPrefix prefixes every key (default: "tenantmail:").
	KeyPrefix string

	// HistorySize is how many previous versions are kept per user (default: 10).
	HistorySize int
}

// DefaultRedisHistory is the number of retained credential versions.
const DefaultRedisHistory = 10

// RedisStore keeps the current credential under one key and previous
// versions in a capped list next to it.
type RedisStore struct {
	client  redisClient
	prefix  string
	history int
	timeout time.Duration
	logger  *slog.Logger
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(ctx context.Context, cfg RedisConfig, timeout time.Duration, logger *slog.Logger) (*RedisStore, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}

	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := withTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return newRedisStore(client, cfg, timeout, logger), nil
}

func newRedisStore(client redisClient, cfg RedisConfig, timeout time.Duration, logger *slog.Logger) *RedisStore {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "tenantmail:"
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultRedisHistory
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{
		client:  client,
		prefix:  cfg.KeyPrefix,
		history: cfg.HistorySize,
		timeout: timeout,
		logger:  logging.WithComponent(logger, "credstore.redis"),
	}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, userID string) (*UserCredential, error) {
	const op = "credstore.redis.get"

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.client.Get(ctx, redisKey(s.prefix, userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound(op)
		}
		return nil, classify(ctx, op, err)
	}

	cred, err := decodeCredential(data)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreUnavailable, op, err)
	}
	return cred, nil
}

// Put implements Store. The history list is best effort: a failure to
// record the version is logged, the write itself still succeeds.
func (s *RedisStore) Put(ctx context.Context, userID string, cred *UserCredential) error {
	const op = "credstore.redis.put"

	if err := ValidateUserID(userID); err != nil {
		return err
	}
	data, err := encodeCredential(cred)
	if err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, op, err)
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	key := redisKey(s.prefix, userID)
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return classify(ctx, op, err)
	}

	historyKey := key + ":versions"
	if err := s.client.LPush(ctx, historyKey, data).Err(); err != nil {
		s.logger.Warn("failed to record credential version", logging.UserID(userID), logging.Err(err))
	} else if err := s.client.LTrim(ctx, historyKey, 0, int64(s.history-1)).Err(); err != nil {
		s.logger.Warn("failed to trim credential history", logging.UserID(userID), logging.Err(err))
	}

	s.logger.Debug("stored credential", logging.UserID(userID))
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	const op = "credstore.redis.delete"

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	key := redisKey(s.prefix, userID)
	if err := s.client.Del(ctx, key, key+":versions").Err(); err != nil {
		return classify(ctx, op, err)
	}

	s.logger.Debug("deleted credential", logging.UserID(userID))
	return nil
}

// Close closes the underlying client when it supports closing.
func (s *RedisStore) Close() error {
	if c, ok := s.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
