package testing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// SkipIfShort skips container backed tests under -short
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

// StartMongoDB starts a MongoDB container for the test and terminates it on cleanup
func StartMongoDB(t *testing.T) *MongoDBContainer {
	t.Helper()
	SkipIfShort(t)

	ctx, cancel := CreateTestContext(2 * time.Minute)
	defer cancel()

	container, err := NewMongoDBContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Close(context.Background())
	})
	return container
}

// StartRedis starts a Redis container for the test and terminates it on cleanup
func StartRedis(t *testing.T) *RedisContainer {
	t.Helper()
	SkipIfShort(t)

	ctx, cancel := CreateTestContext(time.Minute)
	defer cancel()

	container, err := NewRedisContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Close(context.Background())
	})
	return container
}

// CreateTestContext creates a context with a timeout for tests
func CreateTestContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
