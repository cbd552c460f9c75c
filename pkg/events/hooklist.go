package events

import (
	"sync"
	"sync/atomic"
)

type entry[T any] struct {
	id      uint64
	handler T
}

// hookList is a copy-on-write list. Writers build a new slice under mu and
// swap it in; readers load the current snapshot without locking.
type hookList[T any] struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[[]entry[T]]
}

func (l *hookList[T]) add(id uint64, handler T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.load()
	next := make([]entry[T], len(current), len(current)+1)
	copy(next, current)
	next = append(next, entry[T]{id: id, handler: handler})
	l.snapshot.Store(&next)
}

func (l *hookList[T]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.load()
	next := make([]entry[T], 0, len(current))
	for _, e := range current {
		if e.id != id {
			next = append(next, e)
		}
	}
	l.snapshot.Store(&next)
}

func (l *hookList[T]) load() []entry[T] {
	if p := l.snapshot.Load(); p != nil {
		return *p
	}
	return nil
}

func (l *hookList[T]) len() int {
	return len(l.load())
}
