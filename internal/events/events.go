// Package events carries storage change notifications between the consumers of one
// browser tab and, through crosstab, between tabs.
package events

import (
	"context"
	"sync"
)

// Notification names.
const (
	// StorageUpdated is raised in-page by the key set store after every save.
	StorageUpdated = "storage-updated"
	// Storage mirrors the native cross-tab storage event. It never reaches the
	// tab that made the change and carries only the key.
	Storage = "storage"
)

// Event is a storage change notification. Data is the saved id list for
// StorageUpdated and nil for Storage.
type Event struct {
	Name   string   `json:"-"`
	Key    string   `json:"key"`
	Data   []string `json:"data,omitempty"`
	Origin string   `json:"-"`
}

// Handler receives events synchronously on the publishing goroutine.
type Handler func(Event)

type subscription struct {
	id      uint64
	name    string
	handler Handler
}

// Bus is a synchronous in-process notification bus. Handlers run in subscription
// order; they may subscribe or publish again without deadlocking.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers handler for events named name and returns its cancel func.
func (b *Bus) Subscribe(name string, handler Handler) func() {
	if b == nil || handler == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, name: name, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, sub := range b.subs {
				if sub.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers e to every handler subscribed to e.Name.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	targets := make([]Handler, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.name == e.Name {
			targets = append(targets, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, handler := range targets {
		handler(e)
	}
}

// Len reports the number of live subscriptions.
func (b *Bus) Len() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

type originKey struct{}

// WithOrigin tags ctx with the consumer making a change so its own notification
// can be told apart from changes made by other consumers on the same bus.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFrom returns the consumer recorded by WithOrigin.
func OriginFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(originKey{}).(string)
	return v
}
