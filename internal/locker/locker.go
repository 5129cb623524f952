package locker

import "sync"

// AccountLocker serializes all timeline mutation and invoice generation for a
// given account. Different accounts proceed fully in parallel; concurrent
// work for the same account queues behind the exclusive section.
type AccountLocker struct {
	mu    sync.Mutex
	locks map[string]*accountLock
}

type accountLock struct {
	mu   sync.Mutex
	refs int
}

func NewAccountLocker() *AccountLocker {
	return &AccountLocker{
		locks: make(map[string]*accountLock),
	}
}

// Lock acquires the exclusive section for the account and returns the unlock
// function. Unlock must be called exactly once.
func (l *AccountLocker) Lock(accountID string) func() {
	l.mu.Lock()
	al, ok := l.locks[accountID]
	if !ok {
		al = &accountLock{}
		l.locks[accountID] = al
	}
	al.refs++
	l.mu.Unlock()

	al.mu.Lock()

	return func() {
		al.mu.Unlock()

		l.mu.Lock()
		al.refs--
		if al.refs == 0 {
			delete(l.locks, accountID)
		}
		l.mu.Unlock()
	}
}
