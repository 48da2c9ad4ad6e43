package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TierLock is a redis-backed ticketing.TierLocker for multi-instance
// deployments: SetNX with a TTL so a crashed holder cannot wedge a tier
// forever, polled acquisition, delete on release.
type TierLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewTierLock(client *redis.Client, ttl time.Duration) *TierLock {
	return &TierLock{client: client, ttl: ttl}
}

func (l *TierLock) Lock(ctx context.Context, eventID uuid.UUID, tierName string) (func(), error) {
	key := "tierlock:" + eventID.String() + ":" + tierName
	token := uuid.New().String()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}

	release := func() {
		// Delete only our own token; if the TTL expired and someone else
		// holds the lock, leave it alone.
		const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
		l.client.Eval(context.Background(), script, []string{key}, token)
	}
	return release, nil
}
