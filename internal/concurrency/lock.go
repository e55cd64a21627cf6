package concurrency

import "sync"

// KeyedMutex serializes work per key. Entries are dropped once nobody holds
// or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *KeyedMutex) Lock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases key. Unlocking a key that is not held is a no-op.
func (k *KeyedMutex) Unlock(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.locks[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(k.locks, key)
	}
	e.mu.Unlock()
}

// Do runs fn while holding key.
func (k *KeyedMutex) Do(key string, fn func() error) error {
	k.Lock(key)
	defer k.Unlock(key)
	return fn()
}

// Held reports how many callers hold or wait for key.
func (k *KeyedMutex) Held(key string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	if e, ok := k.locks[key]; ok {
		return e.refs
	}
	return 0
}
