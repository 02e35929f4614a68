package handlers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreationLimiter_EnforcesDailyCap(t *testing.T) {
	limiter := NewCreationLimiter(nil, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		reserved, err := limiter.Reserve(ctx, "user-a")
		require.NoError(t, err)
		assert.True(t, reserved, "creation %d should be allowed", i+1)
	}

	reserved, err := limiter.Reserve(ctx, "user-a")
	require.NoError(t, err)
	assert.False(t, reserved)
}

func TestCreationLimiter_CountersArePerUser(t *testing.T) {
	limiter := NewCreationLimiter(nil, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := limiter.Reserve(ctx, "user-a")
		require.NoError(t, err)
	}

	reserved, err := limiter.Reserve(ctx, "user-a")
	require.NoError(t, err)
	assert.False(t, reserved)

	reserved, err = limiter.Reserve(ctx, "user-b")
	require.NoError(t, err)
	assert.True(t, reserved)
}

func TestCreationLimiter_ResetsAtMidnight(t *testing.T) {
	limiter := NewCreationLimiter(nil, 5)
	ctx := context.Background()

	current := time.Date(2025, time.March, 10, 23, 50, 0, 0, time.UTC)
	limiter.now = func() time.Time { return current }

	for i := 0; i < 5; i++ {
		_, err := limiter.Reserve(ctx, "user-a")
		require.NoError(t, err)
	}

	reserved, err := limiter.Reserve(ctx, "user-a")
	require.NoError(t, err)
	assert.False(t, reserved)

	// Past midnight the window is fresh
	current = time.Date(2025, time.March, 11, 0, 5, 0, 0, time.UTC)

	reserved, err = limiter.Reserve(ctx, "user-a")
	require.NoError(t, err)
	assert.True(t, reserved)
}

func TestCreationLimiter_ReleaseRefundsQuota(t *testing.T) {
	limiter := NewCreationLimiter(nil, 5)
	ctx := context.Background()

	// A creation that fails downstream hands its slot back, so rejected
	// attempts never consume quota
	for i := 0; i < 20; i++ {
		reserved, err := limiter.Reserve(ctx, "user-a")
		require.NoError(t, err)
		assert.True(t, reserved)
		require.NoError(t, limiter.Release(ctx, "user-a"))
	}

	for i := 0; i < 5; i++ {
		reserved, err := limiter.Reserve(ctx, "user-a")
		require.NoError(t, err)
		assert.True(t, reserved)
	}

	reserved, err := limiter.Reserve(ctx, "user-a")
	require.NoError(t, err)
	assert.False(t, reserved)

	// Releasing below zero does not mint extra quota
	require.NoError(t, limiter.Release(ctx, "user-b"))
	reserved, err = limiter.Reserve(ctx, "user-a")
	require.NoError(t, err)
	assert.False(t, reserved)
}

func TestCreationLimiter_ConcurrentReservationsNeverOvershoot(t *testing.T) {
	limiter := NewCreationLimiter(nil, 5)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reserved, err := limiter.Reserve(ctx, "user-a")
			require.NoError(t, err)
			if reserved {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, granted)
}
