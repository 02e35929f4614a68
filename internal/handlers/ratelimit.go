package handlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// windowTTL keeps Redis counters around one extra day past their window
const windowTTL = 48 * time.Hour

type dayCounter struct {
	count   int
	resetAt time.Time
}

// CreationLimiter bounds successful endorsement creations per user per
// calendar day. With Redis configured the counter is a fixed-window key
// shared by every server instance; without it the limiter degrades to a
// per-process counter that resets at the next local midnight.
type CreationLimiter struct {
	redis *redis.Client
	limit int

	mu       sync.Mutex
	counters map[string]*dayCounter

	now func() time.Time
}

func NewCreationLimiter(redisClient *redis.Client, limit int) *CreationLimiter {
	return &CreationLimiter{
		redis:    redisClient,
		limit:    limit,
		counters: make(map[string]*dayCounter),
		now:      time.Now,
	}
}

func (l *CreationLimiter) key(userID string) string {
	return fmt.Sprintf("endorsements:daily:%s:%s", userID, l.now().Format("2006-01-02"))
}

// Reserve claims one slot of today's creation quota. The increment and the
// cap comparison happen on the same INCR result, so concurrent requests from
// one user cannot overshoot the cap; a rejected reservation is handed back
// immediately. Callers must Release the slot if the creation later fails.
func (l *CreationLimiter) Reserve(ctx context.Context, userID string) (bool, error) {
	if l.redis != nil {
		key := l.key(userID)
		count, err := l.redis.Incr(ctx, key).Result()
		if err != nil {
			return false, err
		}
		// TTL is re-asserted on every reservation so a crash between the
		// two calls cannot leave the key immortal
		if err := l.redis.ExpireNX(ctx, key, windowTTL).Err(); err != nil {
			return false, err
		}
		if count > int64(l.limit) {
			if err := l.redis.Decr(ctx, key).Err(); err != nil {
				return false, err
			}
			return false, nil
		}
		return true, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	counter, ok := l.counters[userID]
	if !ok || !now.Before(counter.resetAt) {
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
		counter = &dayCounter{resetAt: midnight}
		l.counters[userID] = counter
	}
	if counter.count >= l.limit {
		return false, nil
	}
	counter.count++
	return true, nil
}

// Release refunds a reserved slot after a failed creation, so rejected
// attempts never consume quota
func (l *CreationLimiter) Release(ctx context.Context, userID string) error {
	if l.redis != nil {
		return l.redis.Decr(ctx, l.key(userID)).Err()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	counter, ok := l.counters[userID]
	if ok && l.now().Before(counter.resetAt) && counter.count > 0 {
		counter.count--
	}
	return nil
}
