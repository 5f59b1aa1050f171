package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncLockTryAcquire(t *testing.T) {
	l := newSyncLock()

	assert.True(t, l.TryAcquire("conn-1"))
	assert.False(t, l.TryAcquire("conn-1"))
	// Other connections are independent.
	assert.True(t, l.TryAcquire("conn-2"))

	l.Release("conn-1")
	assert.True(t, l.TryAcquire("conn-1"))
}

func TestSyncLockConcurrent(t *testing.T) {
	l := newSyncLock()

	const goroutines = 50
	var wins int32
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire("conn-race") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins)
}
