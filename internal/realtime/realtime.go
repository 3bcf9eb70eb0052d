// Package realtime fans notification events out to connected clients over
// Redis pub/sub. Each user has one channel; any API instance may publish and
// every instance holding an open stream for that user relays the message.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pkordes/carrymatch/internal/domain"
)

const channelPrefix = "notifications:user:"

// Channel returns the pub/sub channel for userID.
func Channel(userID uuid.UUID) string {
	return channelPrefix + userID.String()
}

// NewRedis returns a client for addr. Connection errors surface on first use.
func NewRedis(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// Hub publishes and subscribes to per-user channels on Redis.
type Hub struct {
	redis *redis.Client
}

func NewHub(client *redis.Client) *Hub {
	return &Hub{redis: client}
}

// Publish sends ev to every stream open for userID.
func (h *Hub) Publish(ctx context.Context, userID uuid.UUID, ev domain.NotificationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("realtime.Hub.Publish: encode: %w", err)
	}
	if err := h.redis.Publish(ctx, Channel(userID), data).Err(); err != nil {
		return fmt.Errorf("realtime.Hub.Publish: %w", err)
	}
	return nil
}

// Subscribe opens a subscription on userID's channel. The subscription is
// confirmed before Subscribe returns, so no message published afterwards is
// missed. Callers must Close it.
func (h *Hub) Subscribe(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	ps := h.redis.Subscribe(ctx, Channel(userID))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("realtime.Hub.Subscribe: %w", err)
	}

	out := make(chan []byte)
	done := make(chan struct{})
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

	return newSubscription(out, done, ps.Close), nil
}

// Subscription delivers raw JSON events for one user.
type Subscription struct {
	c       <-chan []byte
	done    chan struct{}
	closer  func() error
	closeMu sync.Once
}

func newSubscription(c <-chan []byte, done chan struct{}, closer func() error) *Subscription {
	return &Subscription{c: c, done: done, closer: closer}
}

// FromChannel wraps c as a Subscription with nothing to release on Close.
// The caller owns c and decides when to close it.
func FromChannel(c <-chan []byte) *Subscription {
	return newSubscription(c, make(chan struct{}), nil)
}

// C yields encoded domain.NotificationEvent values. It is closed after Close.
func (s *Subscription) C() <-chan []byte {
	return s.c
}

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() error {
	var err error
	s.closeMu.Do(func() {
		close(s.done)
		if s.closer != nil {
			err = s.closer()
		}
	})
	return err
}

// Nop discards published events and hands out subscriptions that never
// deliver. It stands in for Hub when no Redis address is configured.
type Nop struct{}

func (Nop) Publish(context.Context, uuid.UUID, domain.NotificationEvent) error { return nil }

func (Nop) Subscribe(context.Context, uuid.UUID) (*Subscription, error) {
	c := make(chan []byte)
	done := make(chan struct{})
	s := newSubscription(c, done, nil)
	go func() {
		<-done
		close(c)
	}()
	return s, nil
}
