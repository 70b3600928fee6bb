package keylock

import "sync"

// KeyLock serializes work per string key. Import and calculation for the
// same (supplier, period) must not interleave; there is no distributed
// locking, so callers in this process lock the key around the critical
// section.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New() *KeyLock {
	return &KeyLock{locks: make(map[string]*sync.Mutex)}
}

func (k *KeyLock) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// Lock blocks until the key is free and returns the unlock function.
func (k *KeyLock) Lock(key string) func() {
	m := k.get(key)
	m.Lock()
	return m.Unlock
}
