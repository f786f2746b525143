// Package crosstab delivers storage notifications between the open tabs of one
// visitor, the way a browser fires storage events in every other window.
package crosstab

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"finitefield.org/storefront/internal/events"
)

const defaultQueueSize = 256

var tracer = otel.Tracer("finitefield.org/storefront/internal/crosstab")

// Message is one cross-tab change. Instance identifies the server that produced it.
type Message struct {
	Instance string `json:"instance"`
	Visitor  string `json:"visitor"`
	Origin   string `json:"origin"`
	Key      string `json:"key"`
}

// Relay fans messages out to other server instances.
type Relay interface {
	Publish(ctx context.Context, msg Message) error
	// Subscribe streams messages from every instance until ctx is done.
	Subscribe(ctx context.Context) (<-chan Message, error)
}

// Hub tracks the tabs each visitor has open and delivers events.Storage to all of
// them except the one that made the change. Delivery happens on the Run goroutine.
type Hub struct {
	instance  string
	relay     Relay
	logger    *zap.Logger
	queueSize int

	mu    sync.RWMutex
	tabs  map[string]map[string]*events.Bus
	queue chan Message
}

// Option configures a Hub.
type Option func(*Hub)

// WithRelay enables fan-out to other instances.
func WithRelay(relay Relay) Option {
	return func(h *Hub) { h.relay = relay }
}

// WithLogger sets the hub logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithInstanceID overrides the generated instance id.
func WithInstanceID(id string) Option {
	return func(h *Hub) {
		if id != "" {
			h.instance = id
		}
	}
}

// WithQueueSize bounds the number of undelivered local messages.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// NewHub constructs a hub. Call Run to start delivery.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		instance:  ulid.Make().String(),
		logger:    zap.NewNop(),
		queueSize: defaultQueueSize,
		tabs:      make(map[string]map[string]*events.Bus),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.queue = make(chan Message, h.queueSize)
	return h
}

// Instance returns the id stamped on relayed messages.
func (h *Hub) Instance() string { return h.instance }

// Join registers a tab's bus and returns the func that removes it.
func (h *Hub) Join(visitor, tab string, bus *events.Bus) func() {
	if visitor == "" || tab == "" || bus == nil {
		return func() {}
	}
	h.mu.Lock()
	visitorTabs, ok := h.tabs[visitor]
	if !ok {
		visitorTabs = make(map[string]*events.Bus)
		h.tabs[visitor] = visitorTabs
	}
	visitorTabs[tab] = bus
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if current, ok := h.tabs[visitor][tab]; ok && current == bus {
				delete(h.tabs[visitor], tab)
			}
			if len(h.tabs[visitor]) == 0 {
				delete(h.tabs, visitor)
			}
		})
	}
}

// Tabs reports how many tabs visitor has joined on this instance.
func (h *Hub) Tabs(visitor string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tabs[visitor])
}

// Broadcast queues a storage notification for every tab of visitor except origin
// and forwards it to the relay. It never blocks: a full queue drops the message.
func (h *Hub) Broadcast(ctx context.Context, visitor, origin, key string) {
	if visitor == "" || key == "" {
		return
	}
	msg := Message{Instance: h.instance, Visitor: visitor, Origin: origin, Key: key}
	select {
	case h.queue <- msg:
	default:
		h.logger.Warn("crosstab: queue full, dropping notification",
			zap.String("visitor_id", visitor),
			zap.String("key", key),
		)
	}
	if h.relay != nil {
		if err := h.relay.Publish(ctx, msg); err != nil {
			h.logger.Warn("crosstab: relay publish failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// Run delivers queued and relayed messages until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	var remote <-chan Message
	if h.relay != nil {
		ch, err := h.relay.Subscribe(ctx)
		if err != nil {
			h.logger.Error("crosstab: relay subscribe failed, continuing locally", zap.Error(err))
		} else {
			remote = ch
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-h.queue:
			h.deliver(msg)
		case msg, ok := <-remote:
			if !ok {
				remote = nil
				continue
			}
			if msg.Instance == h.instance {
				continue
			}
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg Message) {
	h.mu.RLock()
	targets := make([]*events.Bus, 0, len(h.tabs[msg.Visitor]))
	for tab, bus := range h.tabs[msg.Visitor] {
		if tab == msg.Origin {
			continue
		}
		targets = append(targets, bus)
	}
	h.mu.RUnlock()

	_, span := tracer.Start(context.Background(), "crosstab.deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("storefront.key", msg.Key),
		attribute.Bool("storefront.remote", msg.Instance != h.instance),
		attribute.Int("storefront.targets", len(targets)),
	)
	for _, bus := range targets {
		bus.Publish(events.Event{Name: events.Storage, Key: msg.Key, Origin: msg.Origin})
	}
}
