package idempotency

import (
	"context"
)

// KeyRepository stores idempotency keys. Implementations must make
// AcquireLock atomic.
type KeyRepository interface {
	// AcquireLock inserts key locked when no key with the same service, user
	// and key string exists, and reports true. Otherwise it returns the
	// stored key untouched and false.
	AcquireLock(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error)

	// ReleaseLock removes the key so the request can be retried
	ReleaseLock(ctx context.Context, key *IdempotencyKey) error

	// RefreshLock takes over an abandoned key
	RefreshLock(ctx context.Context, key *IdempotencyKey) error

	// StoreResponse marks the key completed with the response to replay
	StoreResponse(ctx context.Context, key *IdempotencyKey, responseCode int, responseBody []byte, headers map[string]string) error

	EnsureIndexes(ctx context.Context) error
}
