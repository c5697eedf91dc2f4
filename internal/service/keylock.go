package service

import "sync"

// keyLock hands out one mutex per key and forgets keys nobody holds.
type keyLock struct {
	mu    sync.Mutex
	locks map[uint]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyLock() *keyLock { return &keyLock{locks: make(map[uint]*refMutex)} }

// Lock blocks until key is free and returns its unlock func.
func (k *keyLock) Lock(key uint) func() {
	k.mu.Lock()
	m := k.locks[key]
	if m == nil {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
