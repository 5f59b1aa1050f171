package services

import "sync"

// syncLock serializes syncs per connection id. TryAcquire never blocks: a
// second sync against a busy connection fails fast instead of queueing up
// overlapping statement requests.
type syncLock struct {
	mu     sync.Mutex
	active map[string]bool
}

func newSyncLock() *syncLock {
	return &syncLock{active: make(map[string]bool)}
}

func (l *syncLock) TryAcquire(connectionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active[connectionID] {
		return false
	}
	l.active[connectionID] = true
	return true
}

func (l *syncLock) Release(connectionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, connectionID)
}
