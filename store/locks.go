package store

import "sync"

// sourceLocks serializes replace/update operations per source name.
// Two concurrent replaces of the same document would otherwise race on
// the delete-then-insert sequence.
type sourceLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSourceLocks() *sourceLocks {
	return &sourceLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for name and returns its release func.
func (l *sourceLocks) lock(name string) func() {
	l.mu.Lock()
	m, ok := l.locks[name]
	if !ok {
		m = &sync.Mutex{}
		l.locks[name] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
