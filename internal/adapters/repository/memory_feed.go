package repository

import (
	"sync"
)

// mailbox delivers values to fn in push order from a single goroutine.
// Pushing never blocks, so writers may hold their own locks while pushing.
type mailbox[T any] struct {
	fn     func(T)
	mu     sync.Mutex
	queue  []T
	closed bool
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newMailbox[T any](fn func(T)) *mailbox[T] {
	m := &mailbox[T]{
		fn:     fn,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *mailbox[T]) push(v T) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, v)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox[T]) close() {
	m.once.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.queue = nil
		m.mu.Unlock()
		close(m.done)
	})
}

func (m *mailbox[T]) run() {
	for {
		select {
		case <-m.done:
			return
		case <-m.signal:
		}

		for {
			m.mu.Lock()
			if m.closed || len(m.queue) == 0 {
				m.mu.Unlock()
				break
			}
			v := m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()

			m.fn(v)
		}
	}
}

// watcherSet fans pushes for a document path out to its mailboxes.
// Callers serialize access with their own lock.
type watcherSet[T any] struct {
	nextID uint64
	byPath map[string]map[uint64]*mailbox[T]
}

func newWatcherSet[T any]() *watcherSet[T] {
	return &watcherSet[T]{byPath: make(map[string]map[uint64]*mailbox[T])}
}

func (w *watcherSet[T]) add(path string, fn func(T)) (uint64, *mailbox[T]) {
	id := w.nextID
	w.nextID++
	mb := newMailbox(fn)
	if w.byPath[path] == nil {
		w.byPath[path] = make(map[uint64]*mailbox[T])
	}
	w.byPath[path][id] = mb
	return id, mb
}

func (w *watcherSet[T]) remove(path string, id uint64) {
	set := w.byPath[path]
	if mb, ok := set[id]; ok {
		mb.close()
		delete(set, id)
	}
	if len(set) == 0 {
		delete(w.byPath, path)
	}
}

func (w *watcherSet[T]) push(path string, v T) {
	for _, mb := range w.byPath[path] {
		mb.push(v)
	}
}

func (w *watcherSet[T]) count(path string) int {
	return len(w.byPath[path])
}
