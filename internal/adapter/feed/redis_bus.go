package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/duka/internal/port"
)

// RedisBus fans change notices out over Redis pub/sub so every server
// instance sees writes made by the others.
type RedisBus struct {
	client *redis.Client
}

var _ port.ChangeBus = (*RedisBus)(nil)

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Publish(ctx context.Context, topic string) error {
	if err := b.client.Publish(ctx, topic, "changed").Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so a Publish
// issued after it returns is never missed.
func (b *RedisBus) Subscribe(ctx context.Context, topic string) (port.ChangeStream, error) {
	ps := b.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	s := &redisStream{
		ps:      ps,
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go s.run()
	return s, nil
}

type redisStream struct {
	ps      *redis.PubSub
	changes chan struct{}
	done    chan struct{}
	once    sync.Once
	err     error
}

func (s *redisStream) run() {
	defer close(s.changes)
	msgs := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case _, ok := <-msgs:
			if !ok {
				return
			}
			// coalesce: a pending notice already covers this one
			select {
			case s.changes <- struct{}{}:
			default:
			}
		}
	}
}

func (s *redisStream) Changes() <-chan struct{} {
	return s.changes
}

func (s *redisStream) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.ps.Close()
	})
	return s.err
}
