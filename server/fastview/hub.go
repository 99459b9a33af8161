package fastview

import (
	"sync"

	channerics "github.com/niceyeti/channerics/channels"
)

// subscriberBuffer is the number of updates held for a slow subscriber before dropping.
const subscriberBuffer = 8

// Hub fans a single update stream out to any number of websocket clients.
// Updates are expected to be idempotent: a subscriber that falls behind drops
// updates rather than blocking the others.
type Hub[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	nextId int
	closed bool
}

// NewHub starts forwarding updates to subscribers until done is closed or updates is drained.
func NewHub[T any](done <-chan struct{}, updates <-chan T) *Hub[T] {
	hub := &Hub[T]{subs: map[int]chan T{}}
	go func() {
		defer hub.close()
		for update := range channerics.OrDone(done, updates) {
			hub.forward(update)
		}
	}()
	return hub
}

// Subscribe returns a chan of updates and a func to cancel the subscription.
// The chan is closed when the hub stops or the subscription is cancelled.
func (hub *Hub[T]) Subscribe() (<-chan T, func()) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	sub := make(chan T, subscriberBuffer)
	if hub.closed {
		close(sub)
		return sub, func() {}
	}

	id := hub.nextId
	hub.nextId++
	hub.subs[id] = sub

	var once sync.Once
	return sub, func() {
		once.Do(func() {
			hub.mu.Lock()
			defer hub.mu.Unlock()
			if ch, ok := hub.subs[id]; ok {
				delete(hub.subs, id)
				close(ch)
			}
		})
	}
}

// Subscribers returns the number of current subscriptions.
func (hub *Hub[T]) Subscribers() int {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	return len(hub.subs)
}

func (hub *Hub[T]) forward(update T) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	for _, sub := range hub.subs {
		select {
		case sub <- update:
		default:
			// Slow consumer; the next update supersedes this one.
		}
	}
}

func (hub *Hub[T]) close() {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.closed = true
	for id, sub := range hub.subs {
		delete(hub.subs, id)
		close(sub)
	}
}
