package cache

import (
	"context"
	"sync"
)

// MemoryChangeFeed is an in-process change feed with Pub/Sub semantics:
// messages published while nobody listens are dropped.
type MemoryChangeFeed struct {
	mu     sync.Mutex
	nextID uint64
	topics map[string]map[uint64]*memorySubscription
}

func NewMemoryChangeFeed() *MemoryChangeFeed {
	return &MemoryChangeFeed{topics: make(map[string]map[uint64]*memorySubscription)}
}

func (f *MemoryChangeFeed) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, sub := range f.topics[topic] {
		sub.enqueue(append([]byte(nil), payload...))
	}
	return nil
}

func (f *MemoryChangeFeed) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	sub := &memorySubscription{
		messages: make(chan []byte),
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	sub.close = func() {
		f.mu.Lock()
		delete(f.topics[topic], id)
		f.mu.Unlock()
	}
	if f.topics[topic] == nil {
		f.topics[topic] = make(map[uint64]*memorySubscription)
	}
	f.topics[topic][id] = sub

	go sub.pump()
	return sub, nil
}

// Disconnect ends every subscription of a topic as a dropped connection would.
func (f *MemoryChangeFeed) Disconnect(topic string) {
	f.mu.Lock()
	subs := f.topics[topic]
	delete(f.topics, topic)
	f.mu.Unlock()

	for _, sub := range subs {
		sub.shutdown()
	}
}

type memorySubscription struct {
	mu       sync.Mutex
	queue    [][]byte
	messages chan []byte
	signal   chan struct{}
	done     chan struct{}
	once     sync.Once
	close    func()
}

func (s *memorySubscription) Messages() <-chan []byte {
	return s.messages
}

func (s *memorySubscription) Close() error {
	s.close()
	s.shutdown()
	return nil
}

func (s *memorySubscription) shutdown() {
	s.once.Do(func() { close(s.done) })
}

func (s *memorySubscription) enqueue(payload []byte) {
	s.mu.Lock()
	s.queue = append(s.queue, payload)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *memorySubscription) pump() {
	defer close(s.messages)
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			next := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case s.messages <- next:
				continue
			case <-s.done:
				return
			}
		}
		s.mu.Unlock()

		select {
		case <-s.signal:
		case <-s.done:
			return
		}
	}
}
