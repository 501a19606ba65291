// Package redisnotify broadcasts document change notices between processes
// sharing one document database.
package redisnotify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/fieldstore/internal/ports/secondary"
)

const channelPrefix = "fieldstore:changes:"

// Notifier implements secondary.ChangeNotifier over Redis pub/sub.
type Notifier struct {
	client  *redis.Client
	channel string

	mu   sync.Mutex
	subs []*redis.PubSub
}

// New connects to redisURL. environment scopes the channel so databases of
// different environments do not wake each other.
func New(redisURL, environment string) (*Notifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewWithClient(client, environment), nil
}

// NewWithClient creates a notifier from an existing Redis client.
func NewWithClient(client *redis.Client, environment string) *Notifier {
	return &Notifier{
		client:  client,
		channel: channelPrefix + environment,
	}
}

// Publish announces that docID changed.
func (n *Notifier) Publish(ctx context.Context, docID string) error {
	if err := n.client.Publish(ctx, n.channel, docID).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

// Subscribe returns the ids announced by any process after the call returns.
// The channel closes when ctx is done or the notifier is closed.
func (n *Notifier) Subscribe(ctx context.Context) (<-chan string, error) {
	pubsub := n.client.Subscribe(ctx, n.channel)
	// wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to changes: %w", err)
	}

	n.mu.Lock()
	n.subs = append(n.subs, pubsub)
	n.mu.Unlock()

	out := make(chan string, 16)
	go func() {
		defer close(out)
		defer n.release(pubsub)

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				default:
					// consumer is behind; its next poll picks the change up
				}
			}
		}
	}()

	return out, nil
}

func (n *Notifier) release(pubsub *redis.PubSub) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, s := range n.subs {
		if s == pubsub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}
	pubsub.Close()
}

// Ping checks if Redis is reachable.
func (n *Notifier) Ping(ctx context.Context) error {
	return n.client.Ping(ctx).Err()
}

// Close ends all subscriptions and closes the Redis connection.
func (n *Notifier) Close() error {
	n.mu.Lock()
	subs := n.subs
	n.subs = nil
	n.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	return n.client.Close()
}

var _ secondary.ChangeNotifier = (*Notifier)(nil)
