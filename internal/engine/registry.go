package engine

import "sync"

// lockRegistry hands out one mutex per participant ID so operations on the
// same participant run one at a time while different participants proceed
// in parallel. Entries are reference counted and dropped when unused.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{
		locks: make(map[string]*keyedLock),
	}
}

// lock blocks until the caller holds the lock for id. The returned func
// releases it and must be called exactly once.
func (r *lockRegistry) lock(id string) (unlock func()) {
	r.mu.Lock()
	l := r.locks[id]
	if l == nil {
		l = &keyedLock{}
		r.locks[id] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, id)
		}
		r.mu.Unlock()
	}
}

// size reports how many IDs currently have a lock allocated.
func (r *lockRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
