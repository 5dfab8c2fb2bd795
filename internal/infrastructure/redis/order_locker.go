package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pharmacy-platform/pharmacy-service/internal/domain"
	"github.com/pharmacy-platform/pharmacy-service/pkg/logging"
)

// Config holds the order lock settings
type Config struct {
	Addr       string
	Password   string
	DB         int
	KeyPrefix  string
	TTL        time.Duration
	RetryEvery time.Duration
	MaxRetries int
}

// DefaultConfig returns the lock settings used by the service
func DefaultConfig(addr string) *Config {
	return &Config{
		Addr:       addr,
		KeyPrefix:  "pharmacy:order-lock:",
		TTL:        10 * time.Second,
		RetryEvery: 100 * time.Millisecond,
		MaxRetries: 30,
	}
}

// NewClient connects to Redis and verifies the connection with a ping
func NewClient(ctx context.Context, config *Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// OrderLocker serialises status changes of one order across instances
type OrderLocker struct {
	locker *redislock.Client
	config *Config
	logger *logging.Logger
}

// NewOrderLocker creates an OrderLocker on top of client
func NewOrderLocker(client goredis.UniversalClient, config *Config, logger *logging.Logger) *OrderLocker {
	return &OrderLocker{
		locker: redislock.New(client),
		config: config,
		logger: logger.WithComponent("order-locker"),
	}
}

// Lock blocks until the order lock is held or the retries run out. The
// returned func releases it.
func (l *OrderLocker) Lock(ctx context.Context, orderID string) (func(), error) {
	key := l.config.KeyPrefix + orderID
	lock, err := l.locker.Obtain(ctx, key, l.config.TTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.config.RetryEvery), l.config.MaxRetries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		l.logger.Warn("Could not obtain order lock", "orderId", orderID)
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrOrderLocked)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain order lock: %w", err)
	}

	return func() {
		// Release with a fresh context so a cancelled request still frees the key
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.WithError(err).Warn("Failed to release order lock", "orderId", orderID)
		}
	}, nil
}
