package notify

import (
	"context"
	"sync"
	"sync/atomic"
)

// Broadcaster fans notifications out to in-process subscribers, such as the
// HTTP alert streams held open by guard clients.
type Broadcaster struct {
	subscribers map[uint64]subscriber
	nextID      atomic.Uint64
	mu          sync.RWMutex
}

type subscriber struct {
	guardID string // empty receives every notification
	ch      chan Notification
}

const subscriberBuffer = 32

var _ Notifier = (*Broadcaster)(nil)

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]subscriber),
	}
}

func (b *Broadcaster) Subscribe(guardID string) (uint64, <-chan Notification) {
	id := b.nextID.Add(1)
	ch := make(chan Notification, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[id] = subscriber{guardID: guardID, ch: ch}
	b.mu.Unlock()

	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if sub, ok := b.subscribers[id]; ok {
		close(sub.ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

// Notify never blocks and never fails; a subscriber with a full buffer misses
// the notification.
func (b *Broadcaster) Notify(_ context.Context, n Notification) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if sub.guardID != "" && sub.guardID != n.GuardID {
			continue
		}
		select {
		case sub.ch <- n:
		default:
			// Skip slow subscribers
		}
	}
	return nil
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels, causing streams to exit gracefully
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}
