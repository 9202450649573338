package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceLocks_SerializesSameSource(t *testing.T) {
	locks := newSourceLocks()

	const workers = 8
	const iterations = 100

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				unlock := locks.lock("same-doc")
				counter++
				unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*iterations, counter)
}

func TestSourceLocks_IndependentSources(t *testing.T) {
	locks := newSourceLocks()

	unlockA := locks.lock("doc-a")
	defer unlockA()

	// A held lock on one source must not block another source.
	done := make(chan struct{})
	go func() {
		unlockB := locks.lock("doc-b")
		unlockB()
		close(done)
	}()
	<-done
}

func TestSourceLocks_Reentry(t *testing.T) {
	locks := newSourceLocks()

	unlock := locks.lock("doc")
	unlock()
	unlock = locks.lock("doc")
	unlock()
}
