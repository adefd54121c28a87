package credstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Config selects and configures a backend.
type Config struct {
	// Backend is one of memory, gcp, aws or redis (default: memory).
	Backend string

	// Timeout bounds each backend call (default: DefaultTimeout).
	Timeout time.Duration

	GCP   GCPConfig
	AWS   AWSConfig
	Redis RedisConfig
}

// Open builds the configured backend.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(logger), nil
	case BackendGCP:
		return NewSecretManagerStore(ctx, cfg.GCP, cfg.Timeout, logger)
	case BackendAWS:
		return NewAWSStore(ctx, cfg.AWS, cfg.Timeout, logger)
	case BackendRedis:
		return NewRedisStore(ctx, cfg.Redis, cfg.Timeout, logger)
	default:
		return nil, fmt.Errorf("unsupported credential store backend: %s", cfg.Backend)
	}
}
