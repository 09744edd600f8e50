// Package lock provides per-key mutual exclusion. Callers holding different
// keys never wait on each other.
package lock

import (
	"context"
	"sync"
)

// Locker grants exclusive ownership of a key until the returned release func
// is called. Acquire returns ctx.Err() if ctx ends while waiting; in that case
// nothing is held and release must not be called.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type entry struct {
	sem  chan struct{}
	refs int
}

// Keyed is an in-process Locker. Each key gets a one-slot semaphore that is
// created on first use and dropped when nobody holds or waits on it.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

var _ Locker = (*Keyed)(nil)

func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*entry)}
}

func (k *Keyed) Acquire(ctx context.Context, key string) (func(), error) {
	e := k.ref(key)

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		k.unref(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			<-e.sem
			k.unref(key, e)
		})
	}
	// select picks randomly when both cases are ready.
	if err := ctx.Err(); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

// Len reports how many keys are currently held or awaited.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func (k *Keyed) ref(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *Keyed) unref(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}
