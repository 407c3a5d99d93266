package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// orderLockTTL bounds how long a crashed handler can hold an order hostage.
const orderLockTTL = 90 * time.Second

// RedisOrderLocker implements per-order mutual exclusion using Redis SETNX,
// so duplicate feed deliveries racing across handler goroutines (or service
// replicas) settle an order at most once.
type RedisOrderLocker struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisOrderLocker(client redis.UniversalClient, prefix string) *RedisOrderLocker {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "dlycop:order_lock"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisOrderLocker{
		client: client,
		prefix: trimmedPrefix,
	}
}

func (l *RedisOrderLocker) key(orderID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", l.prefix, orderID.String())
}

// AcquireOrderLock returns true when this handler owns the order for the
// lock window. false means a concurrent handler is already settling it.
func (l *RedisOrderLocker) AcquireOrderLock(ctx context.Context, orderID uuid.UUID) (bool, error) {
	if l == nil || l.client == nil {
		return true, nil
	}
	return l.client.SetNX(ctx, l.key(orderID), "1", orderLockTTL).Result()
}

// ReleaseOrderLock frees the order for later events (e.g. a rejected
// duplicate arriving after the settled row is visible).
func (l *RedisOrderLocker) ReleaseOrderLock(ctx context.Context, orderID uuid.UUID) {
	if l == nil || l.client == nil {
		return
	}
	l.client.Del(ctx, l.key(orderID))
}
