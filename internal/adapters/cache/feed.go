package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Subscription is one topic subscription of a change feed.
type Subscription interface {
	// Messages is closed when the subscription ends, normally or not.
	Messages() <-chan []byte
	Close() error
}

// RedisChangeFeed carries document change notifications over Redis Pub/Sub.
type RedisChangeFeed struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisChangeFeed(rdb *redis.Client, logger *zap.Logger) *RedisChangeFeed {
	return &RedisChangeFeed{rdb: rdb, logger: logger}
}

func (f *RedisChangeFeed) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := f.rdb.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so no
// message published afterwards can be missed.
func (f *RedisChangeFeed) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := f.rdb.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	out := make(chan []byte)
	done := make(chan struct{})
	sub := &redisSubscription{ps: ps, messages: out, done: done}

	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-done:
				return
			}
		}
	}()

	return sub, nil
}

type redisSubscription struct {
	ps       *redis.PubSub
	messages chan []byte
	done     chan struct{}
	once     sync.Once
}

func (s *redisSubscription) Messages() <-chan []byte {
	return s.messages
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
