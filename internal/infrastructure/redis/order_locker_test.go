package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmacy-platform/pharmacy-service/internal/domain"
	"github.com/pharmacy-platform/pharmacy-service/pkg/logging"
	ptesting "github.com/pharmacy-platform/pharmacy-service/pkg/testing"
)

func TestOrderLocker_Integration(t *testing.T) {
	container := ptesting.StartRedis(t)
	ctx := context.Background()

	config := DefaultConfig(container.Addr)
	config.RetryEvery = 20 * time.Millisecond
	config.MaxRetries = 3

	client, err := NewClient(ctx, config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	locker := NewOrderLocker(client, config, logging.NewNop())

	unlock, err := locker.Lock(ctx, "ORD1")
	require.NoError(t, err)

	t.Run("second holder is rejected", func(t *testing.T) {
		_, err := locker.Lock(ctx, "ORD1")
		assert.ErrorIs(t, err, domain.ErrOrderLocked)
	})

	t.Run("other orders are independent", func(t *testing.T) {
		unlockOther, err := locker.Lock(ctx, "ORD2")
		require.NoError(t, err)
		unlockOther()
	})

	unlock()

	t.Run("released lock can be taken again", func(t *testing.T) {
		again, err := locker.Lock(ctx, "ORD1")
		require.NoError(t, err)
		again()
	})

	t.Run("waiting caller gets the lock after release", func(t *testing.T) {
		config.MaxRetries = 30
		held, err := locker.Lock(ctx, "ORD3")
		require.NoError(t, err)

		go func() {
			time.Sleep(100 * time.Millisecond)
			held()
		}()

		waited, err := locker.Lock(ctx, "ORD3")
		require.NoError(t, err)
		waited()
	})
}
