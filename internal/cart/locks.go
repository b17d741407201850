package cart

import "sync"

// UserLocks serializes cart mutations per user. The chat stream is already
// ordered, but the checkout HTTP path and the payment webhook run
// concurrently against the same pending order.
type UserLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func NewUserLocks() *UserLocks {
	return &UserLocks{m: make(map[string]*sync.Mutex)}
}

func (l *UserLocks) Lock(userID string) (unlock func()) {
	l.mu.Lock()
	um, ok := l.m[userID]
	if !ok {
		um = &sync.Mutex{}
		l.m[userID] = um
	}
	l.mu.Unlock()

	um.Lock()
	return um.Unlock
}
