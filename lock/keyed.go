package lock

import (
	"sync"
	"time"
)

// Keyed hands out one Lock per key, created on first use. Agents never
// contend with each other: each portfolio serializes only its own
// mutations.
type Keyed struct {
	mu    sync.Mutex
	locks map[string]*Lock
}

func NewKeyed() *Keyed {
	return &Keyed{locks: make(map[string]*Lock)}
}

// Get returns the lock for key, creating it if needed. Locks are never
// removed; the population is bounded by the number of agents.
func (k *Keyed) Get(key string) *Lock {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		l = New()
		k.locks[key] = l
	}
	return l
}

// With runs fn while holding key's lock.
func (k *Keyed) With(key string, timeout time.Duration, fn func() error) error {
	return k.Get(key).With(timeout, fn)
}

// ForceRelease clears key's lock and reports how many waiters were failed.
func (k *Keyed) ForceRelease(key string) int {
	return k.Get(key).ForceRelease()
}
