package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// CycleLease serializes matching-cycle execution across replicas with a
// redis SET NX lease. Two concurrent cycles over the same snapshot would
// both write match documents for the same participant sets, so exactly one
// holder runs at a time; the TTL releases a lease whose holder died.
type CycleLease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

const cycleLeaseKey = "matching:cycle:lease"

// NewCycleLease creates a lease guard. ttl should comfortably exceed the
// longest expected cycle.
func NewCycleLease(client *redis.Client, ttl time.Duration) *CycleLease {
	return &CycleLease{client: client, key: cycleLeaseKey, ttl: ttl}
}

// Acquire attempts to take the lease. Returns false when another cycle
// holds it.
func (l *CycleLease) Acquire(ctx context.Context) (bool, error) {
	token := time.Now().UTC().Format(time.RFC3339Nano)
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release frees the lease if this holder still owns it. Compare-and-delete
// runs as a Lua script so an expired-and-reacquired lease is never deleted
// out from under the new holder.
func (l *CycleLease) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	const script = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`
	err := l.client.Eval(ctx, script, []string{l.key}, l.token).Err()
	l.token = ""
	if err == redis.Nil {
		return nil
	}
	return err
}
