package interactions

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"finitefield.org/storefront/internal/events"
	"finitefield.org/storefront/internal/keyset"
	"finitefield.org/storefront/internal/kv"
	"finitefield.org/storefront/internal/product"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// flakyBackend fails saves while failing is set.
type flakyBackend struct {
	*kv.MemoryStore
	failing atomic.Bool
}

func (f *flakyBackend) Save(ctx context.Context, key string, value []byte) error {
	if f.failing.Load() {
		return errors.New("quota exceeded")
	}
	return f.MemoryStore.Save(ctx, key, value)
}

type broadcastCall struct {
	visitor, origin, key string
}

type recordingBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, visitor, origin, key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, broadcastCall{visitor, origin, key})
}

func newState(t *testing.T, backend kv.Store, opts ...Option) (*State, *events.Bus) {
	t.Helper()
	bus := events.NewBus()
	s := New(context.Background(), keyset.NewStore(backend, keyset.WithBus(bus)), opts...)
	t.Cleanup(s.Close)
	return s, bus
}

func sampleProducts() []product.Raw {
	return []product.Raw{
		{ID: "1", Title: "TV", Category: "Electronics", Price: product.NumberOf(500)},
		{ID: "2", Title: "Sofa", Category: "Furniture", Price: product.NumberOf(300)},
		{ID: "3", Title: "Gift card", Price: product.NumberOf(50)},
	}
}

func TestToggleFavoriteTwiceRestoresMembership(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemoryStore()
	require.NoError(t, backend.Save(ctx, "favorites", []byte(`["9"]`)))
	s, _ := newState(t, backend)

	for _, id := range []string{"9", "10"} {
		before := s.Has(keyset.Favorites, id)
		s.ToggleFavorite(ctx, id)
		require.NotEqual(t, before, s.Has(keyset.Favorites, id))
		s.ToggleFavorite(ctx, id)
		assert.Equal(t, before, s.Has(keyset.Favorites, id), "id %s", id)
	}

	raw, err := backend.Load(ctx, "favorites")
	require.NoError(t, err)
	assert.JSONEq(t, `["9"]`, string(raw))
}

func TestToggleReturnsTransition(t *testing.T) {
	ctx := context.Background()
	s, _ := newState(t, kv.NewMemoryStore())

	assert.Equal(t, Pressed, s.ToggleCart(ctx, "5"))
	assert.Equal(t, Idle, s.ToggleCart(ctx, "5"))
	assert.Equal(t, Pressed, s.ToggleComparison(ctx, "5"))
	assert.Equal(t, Pressed, s.Toggle(ctx, keyset.Favorites, "5"))
	assert.Equal(t, Counts{Favorites: 1, Cart: 0, Comparisons: 1}, s.Counts())
}

func TestConcurrentTogglesAreNotLost(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemoryStore()
	s, _ := newState(t, backend)

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.ToggleCart(ctx, "7")
		}()
	}
	wg.Wait()

	assert.False(t, s.Has(keyset.Cart, "7"), "an even number of toggles must cancel out")
	raw, err := backend.Load(ctx, "cartItems")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestToggleBroadcastsToOtherTabs(t *testing.T) {
	b := &recordingBroadcaster{}
	s, _ := newState(t, kv.NewMemoryStore(), WithID("tab-a"), WithVisitor("visitor-1"), WithBroadcaster(b))

	s.ToggleComparison(context.Background(), "3")

	require.Len(t, b.calls, 1)
	assert.Equal(t, broadcastCall{"visitor-1", "tab-a", "comparisons"}, b.calls[0])
}

func TestFailedSaveKeepsInMemoryState(t *testing.T) {
	backend := &flakyBackend{MemoryStore: kv.NewMemoryStore()}
	backend.failing.Store(true)
	s, bus := newState(t, backend)
	var seen []events.Event
	bus.Subscribe(events.StorageUpdated, func(e events.Event) { seen = append(seen, e) })

	assert.Equal(t, Pressed, s.ToggleFavorite(context.Background(), "1"))

	assert.True(t, s.Has(keyset.Favorites, "1"))
	require.Len(t, seen, 1)
	assert.Equal(t, []string{"1"}, seen[0].Data)
}

func TestNativeNotificationReloadsFromStorage(t *testing.T) {
	ctx := context.Background()
	backend := &flakyBackend{MemoryStore: kv.NewMemoryStore()}
	require.NoError(t, backend.Save(ctx, "cartItems", []byte(`["1"]`)))
	s, bus := newState(t, backend, WithID("tab-b"))
	require.True(t, s.Has(keyset.Cart, "1"))

	backend.failing.Store(true)
	s.ToggleCart(ctx, "2")
	require.Equal(t, []string{"1", "2"}, s.IDs(keyset.Cart))
	backend.failing.Store(false)

	require.NoError(t, backend.Save(ctx, "cartItems", []byte(`["4","5"]`)))
	bus.Publish(events.Event{Name: events.Storage, Key: "cartItems", Origin: "tab-a"})

	assert.Equal(t, []string{"4", "5"}, s.IDs(keyset.Cart))
	assert.False(t, s.Has(keyset.Cart, "2"))
}

func TestDoubleNotificationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemoryStore()
	s, bus := newState(t, backend, WithID("tab-b"))

	require.NoError(t, backend.Save(ctx, "favorites", []byte(`["8"]`)))
	bus.Publish(events.Event{Name: events.StorageUpdated, Key: "favorites", Data: []string{"8"}, Origin: "tab-a"})
	bus.Publish(events.Event{Name: events.Storage, Key: "favorites", Origin: "tab-a"})

	assert.Equal(t, []string{"8"}, s.IDs(keyset.Favorites))
}

func TestNotificationsForUnknownKeysAreIgnored(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemoryStore()
	s, bus := newState(t, backend)
	s.ToggleFavorite(ctx, "1")

	bus.Publish(events.Event{Name: events.Storage, Key: "theme"})

	assert.True(t, s.Has(keyset.Favorites, "1"))
}

func TestSameTabConsumersSeeEachOthersSaves(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemoryStore()
	bus := events.NewBus()
	header := New(ctx, keyset.NewStore(backend, keyset.WithBus(bus)), WithID("header"))
	grid := New(ctx, keyset.NewStore(backend, keyset.WithBus(bus)), WithID("grid"))
	t.Cleanup(header.Close)
	t.Cleanup(grid.Close)

	grid.ToggleFavorite(ctx, "42")

	assert.True(t, header.Has(keyset.Favorites, "42"))
	assert.Equal(t, 1, header.Counts().Favorites)
}

func TestCloseDetachesListeners(t *testing.T) {
	s, bus := newState(t, kv.NewMemoryStore())
	require.Equal(t, 2, bus.Len())
	s.Close()
	assert.Zero(t, bus.Len())
}

func TestCategoryFiltering(t *testing.T) {
	s, _ := newState(t, kv.NewMemoryStore())
	require.True(t, s.IsLoading())
	assert.Equal(t, product.All, s.ActiveCategory())
	assert.Empty(t, s.NormalizedProducts())

	s.SetProducts(sampleProducts())
	assert.False(t, s.IsLoading())
	assert.Equal(t, []string{"all", "Electronics", "Furniture"}, s.Categories())
	assert.Len(t, s.NormalizedProducts(), 3)
	assert.Len(t, s.Products(), 3)

	s.ChangeCategory("Furniture")
	got := s.NormalizedProducts()
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)
	assert.Len(t, s.FilteredProducts(), 1)

	s.ChangeCategory("Toys")
	assert.Equal(t, "Toys", s.ActiveCategory())
	assert.NotNil(t, s.NormalizedProducts())
	assert.Empty(t, s.NormalizedProducts())
}

func TestSnapshotCarriesMembership(t *testing.T) {
	ctx := context.Background()
	s, _ := newState(t, kv.NewMemoryStore())
	s.SetProducts(sampleProducts())
	s.ToggleFavorite(ctx, "1")
	s.ToggleCart(ctx, "3")

	snap := s.Snapshot()
	require.Len(t, snap.Products, 3)
	assert.True(t, snap.Products[0].IsFavorite)
	assert.False(t, snap.Products[0].IsInCart)
	assert.True(t, snap.Products[2].IsInCart)
	assert.Equal(t, Counts{Favorites: 1, Cart: 1}, snap.Counts)

	p, ok := s.Product("3")
	require.True(t, ok)
	assert.True(t, p.IsInCart)
	_, ok = s.Product("missing")
	assert.False(t, ok)
}

func TestHelpersDelegate(t *testing.T) {
	s, _ := newState(t, nil)
	assert.Equal(t, "12.50", s.FormatPrice(12.5))
	assert.Equal(t, "0.00", s.FormatPrice("12.5"))
	assert.Equal(t, "https://api.b-e.az/a.png", s.ImageURL("/a.png"))
}

func TestStateWithoutBackend(t *testing.T) {
	s, _ := newState(t, nil)
	assert.Equal(t, Pressed, s.ToggleFavorite(context.Background(), "1"))
	assert.True(t, s.Has(keyset.Favorites, "1"))
	assert.NotEmpty(t, s.ID())
}

func TestContextScope(t *testing.T) {
	s, _ := newState(t, kv.NewMemoryStore())
	ctx := WithState(context.Background(), s)

	got, ok := From(ctx)
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Same(t, s, MustFrom(ctx))

	_, ok = From(context.Background())
	assert.False(t, ok)
	assert.PanicsWithValue(t, ErrNoState, func() { MustFrom(context.Background()) })
	assert.Panics(t, func() { MustFrom(WithState(context.Background(), nil)) })
}

func TestWatchReportsReloadedBuckets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, bus := newState(t, kv.NewMemoryStore(), WithID("tab-b"))
	changes := s.Watch(ctx)

	s.ToggleFavorite(context.Background(), "1")
	bus.Publish(events.Event{Name: events.Storage, Key: "comparisons", Origin: "tab-a"})
	bus.Publish(events.Event{Name: events.Storage, Key: "theme", Origin: "tab-a"})

	select {
	case key := <-changes:
		assert.Equal(t, "comparisons", key)
	default:
		t.Fatal("expected a change notification")
	}
	select {
	case key := <-changes:
		t.Fatalf("unexpected notification %q", key)
	default:
	}

	cancel()
	for range changes {
	}
}

func TestCloseEndsWatchers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, _ := newState(t, kv.NewMemoryStore())
	changes := s.Watch(ctx)

	s.Close()

	_, open := <-changes
	assert.False(t, open)
}

func TestCloseReleasesWatchGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := New(context.Background(), keyset.NewStore(kv.NewMemoryStore(), keyset.WithBus(events.NewBus())))
	changes := s.Watch(context.Background())
	s.Close()
	s.Close()

	_, open := <-changes
	assert.False(t, open)
}

func TestWatchAfterCloseIsClosed(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := New(context.Background(), keyset.NewStore(kv.NewMemoryStore()))
	s.Close()

	changes := s.Watch(context.Background())
	_, open := <-changes
	assert.False(t, open)
}

func TestToggleIgnoresEmptyID(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemoryStore()
	b := &recordingBroadcaster{}
	s, _ := newState(t, backend, WithBroadcaster(b))

	for _, bucket := range keyset.Buckets {
		assert.Equal(t, Idle, s.Toggle(ctx, bucket, ""), "bucket %s", bucket)
	}

	assert.Equal(t, Counts{}, s.Counts())
	assert.Empty(t, b.calls)
	assert.Zero(t, backend.Len())
}
