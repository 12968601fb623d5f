package handoff

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Notifier tells waiters that a session's slot has been filled. Subscribe
// returns a channel that receives at most one pending signal at a time and a
// function that releases the subscription.
type Notifier interface {
	Notify(ctx context.Context, session string) error
	Subscribe(ctx context.Context, session string) (<-chan struct{}, func(), error)
}

type LocalNotifier struct {
	mu      sync.Mutex
	nextID  uint64
	waiters map[string]map[uint64]chan struct{}
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{waiters: make(map[string]map[uint64]chan struct{})}
}

func (n *LocalNotifier) Notify(_ context.Context, session string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.waiters[session] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (n *LocalNotifier) Subscribe(_ context.Context, session string) (<-chan struct{}, func(), error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan struct{}, 1)
	id := n.nextID
	n.nextID++

	if n.waiters[session] == nil {
		n.waiters[session] = make(map[uint64]chan struct{})
	}
	n.waiters[session][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.waiters[session], id)
			if len(n.waiters[session]) == 0 {
				delete(n.waiters, session)
			}
		})
	}
	return ch, cancel, nil
}

// RedisNotifier fans slot notifications out over Redis pub/sub so that an
// order placed through one storefront instance reaches a resolver waiting on
// another.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) Notify(ctx context.Context, session string) error {
	if err := n.client.Publish(ctx, channelName(session), "filled").Err(); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

func (n *RedisNotifier) Subscribe(ctx context.Context, session string) (<-chan struct{}, func(), error) {
	pubsub := n.client.Subscribe(ctx, channelName(session))

	// Wait for the subscription to be confirmed so a publish right after
	// Subscribe returns is not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("redis subscribe failed: %w", err)
	}

	out := make(chan struct{}, 1)
	done := make(chan struct{})
	messages := pubsub.Channel()

	go func() {
		for {
			select {
			case <-done:
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}

func channelName(session string) string {
	return "handoff:" + session
}
