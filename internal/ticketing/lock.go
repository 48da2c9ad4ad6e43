package ticketing

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// TierLocker serializes the check-then-decrement sequence per tier. Purchase
// and refund hold the lock for the tier they touch; operations on different
// tiers proceed in parallel.
type TierLocker interface {
	Lock(ctx context.Context, eventID uuid.UUID, tierName string) (release func(), err error)
}

// KeyedMutex is an in-process TierLocker. Sufficient for a single instance;
// multi-instance deployments use the redis-backed locker instead.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *KeyedMutex) Lock(ctx context.Context, eventID uuid.UUID, tierName string) (func(), error) {
	key := eventID.String() + ":" + tierName

	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}
