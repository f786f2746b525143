// Package interactions holds the per-tab product interaction state: the visitor's
// favorite, cart and comparison sets, the loaded catalog and the active category.
package interactions

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"finitefield.org/storefront/internal/events"
	"finitefield.org/storefront/internal/keyset"
	"finitefield.org/storefront/internal/product"
)

// Transition is the visual state a toggle button should settle into.
type Transition string

const (
	// Pressed means the product is now in the set.
	Pressed Transition = "pressed"
	// Idle means the product is no longer in the set.
	Idle Transition = "idle"
)

func transitionFor(member bool) Transition {
	if member {
		return Pressed
	}
	return Idle
}

// Broadcaster tells a visitor's other tabs that a bucket changed.
type Broadcaster interface {
	Broadcast(ctx context.Context, visitor, origin, key string)
}

// Counts are the badge counters shown in the header.
type Counts struct {
	Favorites   int `json:"favorites"`
	Cart        int `json:"cart"`
	Comparisons int `json:"comparisons"`
}

// Snapshot is a consistent read of everything a page render needs.
type Snapshot struct {
	ActiveCategory string            `json:"activeCategory"`
	Categories     []string          `json:"categories"`
	Products       []product.Product `json:"products"`
	Loading        bool              `json:"isLoading"`
	Counts         Counts            `json:"counts"`
}

// State is one tab's interaction state. Toggles are serialized so each one is
// computed from the latest in-memory sets.
type State struct {
	id          string
	visitor     string
	store       *keyset.Store
	broadcaster Broadcaster
	logger      *zap.Logger
	clock       func() time.Time

	writeMu sync.Mutex

	mu       sync.RWMutex
	sets     map[keyset.Bucket]keyset.KeySet
	index    product.Index
	category string
	loading  bool
	lastSeen time.Time
	detach   []func()

	nextWatch uint64
	watchers  map[uint64]chan string
	done      chan struct{}
	closed    bool
}

var tracer = otel.Tracer("finitefield.org/storefront/internal/interactions")

// Option configures a State.
type Option func(*State)

// WithID names the tab. Notifications this tab caused are not reloaded by it.
// A random id is used when none is given.
func WithID(id string) Option {
	return func(s *State) { s.id = id }
}

// WithVisitor records the visitor the tab belongs to.
func WithVisitor(visitor string) Option {
	return func(s *State) { s.visitor = visitor }
}

// WithBroadcaster forwards every saved change to the visitor's other tabs.
func WithBroadcaster(b Broadcaster) Option {
	return func(s *State) { s.broadcaster = b }
}

// WithLogger sets the state logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *State) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now for idle tracking.
func WithClock(clock func() time.Time) Option {
	return func(s *State) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New loads the three key sets from store and listens on the store's bus.
func New(ctx context.Context, store *keyset.Store, opts ...Option) *State {
	s := &State{
		store:    store,
		logger:   zap.NewNop(),
		clock:    time.Now,
		sets:     make(map[keyset.Bucket]keyset.KeySet, len(keyset.Buckets)),
		watchers: make(map[uint64]chan string),
		done:     make(chan struct{}),
		index:    product.NewIndex(nil),
		category: product.All,
		loading:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = ulid.Make().String()
	}
	for _, bucket := range keyset.Buckets {
		s.sets[bucket] = store.Load(ctx, bucket)
	}
	s.lastSeen = s.clock()
	if store != nil && store.Bus() != nil {
		s.Attach(store.Bus())
	}
	return s
}

// ID returns the tab id.
func (s *State) ID() string { return s.id }

// Visitor returns the visitor id.
func (s *State) Visitor() string { return s.visitor }

// Attach reloads buckets named by storage notifications on bus. Notifications
// this tab caused itself are ignored.
func (s *State) Attach(bus *events.Bus) func() {
	handler := func(e events.Event) {
		if e.Origin == s.id {
			return
		}
		bucket, ok := keyset.ParseBucket(e.Key)
		if !ok {
			return
		}
		s.Reload(context.Background(), bucket)
		s.notify(e.Key)
	}
	cancelNative := bus.Subscribe(events.Storage, handler)
	cancelUpdated := bus.Subscribe(events.StorageUpdated, handler)
	detach := func() {
		cancelNative()
		cancelUpdated()
	}
	s.mu.Lock()
	s.detach = append(s.detach, detach)
	s.mu.Unlock()
	return detach
}

// Watch streams the keys of buckets reloaded because another consumer or tab
// changed them. The channel closes when ctx ends or the state is closed; on a
// closed state it is returned already closed. Slow readers miss keys rather than
// block reloads.
func (s *State) Watch(ctx context.Context) <-chan string {
	ch := make(chan string, 8)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch
	}
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = ch
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if current, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(current)
		}
	}()
	return ch
}

func (s *State) notify(key string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.watchers {
		select {
		case ch <- key:
		default:
		}
	}
}

// Close detaches every listener and closes every watch channel. Calling it
// again is a no-op.
func (s *State) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	detach := s.detach
	s.detach = nil
	for id, ch := range s.watchers {
		delete(s.watchers, id)
		close(ch)
	}
	s.mu.Unlock()
	for _, fn := range detach {
		fn()
	}
}

// Reload replaces bucket's in-memory set with the persisted one. It waits for an
// in-flight toggle, so a bus must not be shared by states that toggle concurrently.
func (s *State) Reload(ctx context.Context, bucket keyset.Bucket) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	set := s.store.Load(ctx, bucket)
	s.mu.Lock()
	s.sets[bucket] = set
	s.mu.Unlock()
	s.logger.Debug("interactions: bucket reloaded",
		zap.String("tab_id", s.id),
		zap.String("bucket", string(bucket)),
		zap.Int("ids", set.Len()),
	)
}

// ToggleFavorite flips id in the favorites set.
func (s *State) ToggleFavorite(ctx context.Context, id string) Transition {
	return s.toggle(ctx, keyset.Favorites, id)
}

// ToggleCart flips id in the cart set.
func (s *State) ToggleCart(ctx context.Context, id string) Transition {
	return s.toggle(ctx, keyset.Cart, id)
}

// ToggleComparison flips id in the comparison set.
func (s *State) ToggleComparison(ctx context.Context, id string) Transition {
	return s.toggle(ctx, keyset.Comparisons, id)
}

// Toggle flips id in bucket.
func (s *State) Toggle(ctx context.Context, bucket keyset.Bucket, id string) Transition {
	return s.toggle(ctx, bucket, id)
}

// toggle keeps the in-memory flip even when persisting fails. An empty id is
// never stored, so it settles as Idle without saving or broadcasting.
func (s *State) toggle(ctx context.Context, bucket keyset.Bucket, id string) Transition {
	if id == "" {
		return Idle
	}
	ctx, span := tracer.Start(ctx, "interactions.toggle")
	defer span.End()
	span.SetAttributes(
		attribute.String("storefront.bucket", string(bucket)),
		attribute.String("storefront.tab_id", s.id),
	)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	next, member := s.sets[bucket].Toggle(id)
	s.sets[bucket] = next
	s.lastSeen = s.clock()
	s.mu.Unlock()

	ctx = events.WithOrigin(ctx, s.id)
	s.store.Save(ctx, bucket, next)
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(ctx, s.visitor, s.id, string(bucket))
	}
	span.SetAttributes(attribute.Bool("storefront.member", member))
	return transitionFor(member)
}

// Has reports whether id is in bucket.
func (s *State) Has(bucket keyset.Bucket, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sets[bucket].Has(id)
}

// IDs returns the ids in bucket in insertion order.
func (s *State) IDs(bucket keyset.Bucket) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sets[bucket].IDs()
}

// SetProducts replaces the raw catalog and clears the loading flag.
func (s *State) SetProducts(raws []product.Raw) {
	index := product.NewIndex(raws)
	s.mu.Lock()
	s.index = index
	s.loading = false
	s.mu.Unlock()
}

// ChangeCategory selects category without validating it.
func (s *State) ChangeCategory(category string) {
	s.mu.Lock()
	s.category = category
	s.mu.Unlock()
}

// ActiveCategory returns the selected category.
func (s *State) ActiveCategory() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.category
}

// Categories returns the known categories, All first.
func (s *State) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Categories()
}

// IsLoading reports whether products have not been set yet.
func (s *State) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Products returns every raw product.
func (s *State) Products() []product.Raw {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Products(product.All)
}

// FilteredProducts returns the raw products of the active category.
func (s *State) FilteredProducts() []product.Raw {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Products(s.category)
}

// NormalizedProducts returns the active category's products with membership flags.
func (s *State) NormalizedProducts() []product.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return product.NormalizeAll(s.index.Products(s.category), s.setsLocked())
}

// Product normalizes the product with id regardless of the active category.
func (s *State) Product(id string) (product.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sets := s.setsLocked()
	for _, raw := range s.index.Products(product.All) {
		if product.ProductID(raw) == id {
			return product.Normalize(raw, sets), true
		}
	}
	return product.Product{}, false
}

// Counts returns the size of each set.
func (s *State) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countsLocked()
}

// Snapshot reads everything a render needs under one lock.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ActiveCategory: s.category,
		Categories:     s.index.Categories(),
		Products:       product.NormalizeAll(s.index.Products(s.category), s.setsLocked()),
		Loading:        s.loading,
		Counts:         s.countsLocked(),
	}
}

// FormatPrice renders a price with two decimals.
func (s *State) FormatPrice(v any) string { return product.FormatPrice(v) }

// ImageURL resolves a catalog image reference.
func (s *State) ImageURL(image string) string { return product.ImageURL(image) }

// Touch marks the tab as active.
func (s *State) Touch() {
	s.mu.Lock()
	s.lastSeen = s.clock()
	s.mu.Unlock()
}

// LastSeen returns when the tab was last active.
func (s *State) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

func (s *State) setsLocked() product.Sets {
	return product.Sets{
		Favorites:   s.sets[keyset.Favorites],
		Cart:        s.sets[keyset.Cart],
		Comparisons: s.sets[keyset.Comparisons],
	}
}

func (s *State) countsLocked() Counts {
	return Counts{
		Favorites:   s.sets[keyset.Favorites].Len(),
		Cart:        s.sets[keyset.Cart].Len(),
		Comparisons: s.sets[keyset.Comparisons].Len(),
	}
}
