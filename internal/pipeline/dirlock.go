package pipeline

import (
	"path/filepath"
	"sync"
)

// DirectoryLocks serialises pipelines that write to the same soundboard
// directory. A pipeline holds the lock from reconcile until it finishes,
// so a second run for the same directory reconciles against the files the
// first one wrote.
type DirectoryLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewDirectoryLocks returns an empty lock set.
func NewDirectoryLocks() *DirectoryLocks {
	return &DirectoryLocks{locks: make(map[string]*sync.Mutex)}
}

// sharedDirectoryLocks is used by pipelines built without an explicit set.
var sharedDirectoryLocks = NewDirectoryLocks()

// Lock blocks until dir is free and returns the function releasing it.
func (l *DirectoryLocks) Lock(dir string) func() {
	key := filepath.Clean(dir)

	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return sync.OnceFunc(m.Unlock)
}
