package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversByNameInOrder(t *testing.T) {
	bus := NewBus()
	var got []string
	bus.Subscribe(StorageUpdated, func(e Event) { got = append(got, "first:"+e.Key) })
	bus.Subscribe(Storage, func(e Event) { got = append(got, "native:"+e.Key) })
	bus.Subscribe(StorageUpdated, func(e Event) { got = append(got, "second:"+e.Key) })

	bus.Publish(Event{Name: StorageUpdated, Key: "favorites", Data: []string{"1"}})
	bus.Publish(Event{Name: Storage, Key: "cartItems"})

	assert.Equal(t, []string{"first:favorites", "second:favorites", "native:cartItems"}, got)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0
	cancel := bus.Subscribe(Storage, func(Event) { calls++ })
	require.Equal(t, 1, bus.Len())

	cancel()
	cancel()
	bus.Publish(Event{Name: Storage, Key: "favorites"})

	assert.Zero(t, calls)
	assert.Zero(t, bus.Len())
}

func TestBusHandlersMayPublish(t *testing.T) {
	bus := NewBus()
	var seen []string
	bus.Subscribe(StorageUpdated, func(e Event) {
		seen = append(seen, e.Name)
		bus.Publish(Event{Name: Storage, Key: e.Key})
	})
	bus.Subscribe(Storage, func(e Event) { seen = append(seen, e.Name) })

	bus.Publish(Event{Name: StorageUpdated, Key: "comparisons"})
	assert.Equal(t, []string{StorageUpdated, Storage}, seen)
}

func TestNilBusIsInert(t *testing.T) {
	var bus *Bus
	cancel := bus.Subscribe(Storage, func(Event) { t.Fatal("unexpected delivery") })
	cancel()
	bus.Publish(Event{Name: Storage})
	assert.Zero(t, bus.Len())
}

func TestOrigin(t *testing.T) {
	ctx := WithOrigin(context.Background(), "tab-a")
	assert.Equal(t, "tab-a", OriginFrom(ctx))
	assert.Empty(t, OriginFrom(context.Background()))
}
