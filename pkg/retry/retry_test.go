package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestDoStopsAtMaxAttempts(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return errBoom
	})

	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestDoPermanentErrorStopsImmediately(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return Permanent(errBoom)
	})

	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestDoAppliesPerAttemptTimeout(t *testing.T) {
	attempts, err := Do(context.Background(), Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, PerAttemptTimeout: 10 * time.Millisecond}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, attempts)
}

func TestDoHonoursParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, Policy{MaxAttempts: 3, BaseDelay: time.Second}, func(ctx context.Context) error {
		return errBoom
	})

	require.Error(t, err)
}

func TestDoZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), Policy{}, func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}
