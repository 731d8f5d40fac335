package ledger

import (
	"sync"

	"github.com/nkiryanov/pointledger/internal/models"
)

// keyLocker hands out one mutex per balance key
// Entries are removed once nobody holds or waits for them
type keyLocker struct {
	mu    sync.Mutex
	locks map[models.BalanceKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocker() *keyLocker {
	return &keyLocker{locks: make(map[models.BalanceKey]*keyLock)}
}

// Lock blocks until the key is free and returns the unlock func
func (l *keyLocker) Lock(key models.BalanceKey) (unlock func()) {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &keyLock{}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()

	return func() {
		lk.mu.Unlock()

		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// number of keys currently tracked
func (l *keyLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
