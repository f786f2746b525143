package interactions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"finitefield.org/storefront/internal/crosstab"
	"finitefield.org/storefront/internal/events"
	"finitefield.org/storefront/internal/keyset"
	"finitefield.org/storefront/internal/kv"
)

const (
	defaultIdleTTL = 30 * time.Minute
	defaultMaxTabs = 20
)

// NewTabID returns a fresh tab identifier.
func NewTabID() string {
	return ulid.Make().String()
}

type tabKey struct {
	visitor string
	tab     string
}

type tabEntry struct {
	state *State
	leave func()
}

// Registry owns the open tab states of every visitor on this instance. Each tab
// gets its own bus; the visitor's key sets live under the visitor's namespace in
// the shared backend.
type Registry struct {
	backend kv.Store
	hub     *crosstab.Hub
	logger  *zap.Logger
	idleTTL time.Duration
	maxTabs int
	clock   func() time.Time

	mu        sync.Mutex
	tabs      map[tabKey]*tabEntry
	byVisitor map[string]map[string]*tabEntry

	cron *cron.Cron
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the registry logger, also handed to every state.
func WithRegistryLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithIdleTTL sets how long a tab may stay untouched before Sweep drops it.
func WithIdleTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		if ttl > 0 {
			r.idleTTL = ttl
		}
	}
}

// WithMaxTabs caps the open tabs per visitor. Opening one more closes the
// visitor's least recently seen tab.
func WithMaxTabs(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.maxTabs = n
		}
	}
}

// WithRegistryClock overrides time.Now.
func WithRegistryClock(clock func() time.Time) RegistryOption {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewRegistry builds a registry over backend. hub may be nil for a single tab setup.
func NewRegistry(backend kv.Store, hub *crosstab.Hub, opts ...RegistryOption) *Registry {
	r := &Registry{
		backend: backend,
		hub:     hub,
		logger:  zap.NewNop(),
		idleTTL:   defaultIdleTTL,
		maxTabs:   defaultMaxTabs,
		clock:     time.Now,
		tabs:      make(map[tabKey]*tabEntry),
		byVisitor: make(map[string]map[string]*tabEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open returns the state of (visitor, tab), creating it on first use.
func (r *Registry) Open(ctx context.Context, visitor, tab string) *State {
	key := tabKey{visitor: visitor, tab: tab}

	r.mu.Lock()
	if entry, ok := r.tabs[key]; ok {
		r.mu.Unlock()
		entry.state.Touch()
		return entry.state
	}
	r.mu.Unlock()

	bus := events.NewBus()
	var backend kv.Store
	if r.backend != nil && visitor != "" {
		backend = kv.Prefixed(r.backend, visitor)
	}
	store := keyset.NewStore(backend, keyset.WithBus(bus), keyset.WithLogger(r.logger))
	opts := []Option{
		WithID(tab),
		WithVisitor(visitor),
		WithLogger(r.logger),
		WithClock(r.clock),
	}
	if r.hub != nil {
		opts = append(opts, WithBroadcaster(r.hub))
	}
	state := New(ctx, store, opts...)

	r.mu.Lock()
	if entry, ok := r.tabs[key]; ok {
		r.mu.Unlock()
		state.Close()
		return entry.state
	}
	evicted := r.evictLocked(visitor)
	entry := &tabEntry{state: state, leave: func() {}}
	if r.hub != nil {
		entry.leave = r.hub.Join(visitor, tab, bus)
	}
	r.addLocked(key, entry)
	r.mu.Unlock()

	if evicted != nil {
		evicted.leave()
		evicted.state.Close()
		r.logger.Info("interactions: tab limit reached, closed least recent tab",
			zap.String("visitor_id", visitor),
			zap.String("tab_id", evicted.state.ID()),
			zap.Int("max_tabs", r.maxTabs),
		)
	}
	r.logger.Debug("interactions: tab opened",
		zap.String("visitor_id", visitor),
		zap.String("tab_id", tab),
	)
	return state
}

// evictLocked removes and returns the visitor's least recently seen tab when
// the visitor is at the tab limit.
func (r *Registry) evictLocked(visitor string) *tabEntry {
	tabs := r.byVisitor[visitor]
	if len(tabs) < r.maxTabs {
		return nil
	}
	var (
		oldestID string
		oldest   *tabEntry
	)
	for id, entry := range tabs {
		if oldest == nil || entry.state.LastSeen().Before(oldest.state.LastSeen()) {
			oldestID, oldest = id, entry
		}
	}
	r.removeLocked(tabKey{visitor: visitor, tab: oldestID})
	return oldest
}

func (r *Registry) addLocked(key tabKey, entry *tabEntry) {
	r.tabs[key] = entry
	tabs := r.byVisitor[key.visitor]
	if tabs == nil {
		tabs = make(map[string]*tabEntry)
		r.byVisitor[key.visitor] = tabs
	}
	tabs[key.tab] = entry
}

func (r *Registry) removeLocked(key tabKey) {
	delete(r.tabs, key)
	tabs := r.byVisitor[key.visitor]
	delete(tabs, key.tab)
	if len(tabs) == 0 {
		delete(r.byVisitor, key.visitor)
	}
}

// Lookup returns an already open tab.
func (r *Registry) Lookup(visitor, tab string) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.tabs[tabKey{visitor: visitor, tab: tab}]
	if !ok {
		return nil, false
	}
	return entry.state, true
}

// Close drops a tab.
func (r *Registry) Close(visitor, tab string) {
	r.mu.Lock()
	key := tabKey{visitor: visitor, tab: tab}
	entry, ok := r.tabs[key]
	if ok {
		r.removeLocked(key)
	}
	r.mu.Unlock()
	if ok {
		entry.leave()
		entry.state.Close()
	}
}

// Len reports the number of open tabs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tabs)
}

// Sweep closes every tab idle since before now minus the idle TTL.
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.idleTTL)

	r.mu.Lock()
	var stale []*tabEntry
	for key, entry := range r.tabs {
		if entry.state.LastSeen().Before(cutoff) {
			stale = append(stale, entry)
			r.removeLocked(key)
		}
	}
	r.mu.Unlock()

	for _, entry := range stale {
		entry.leave()
		entry.state.Close()
	}
	if len(stale) > 0 {
		r.logger.Info("interactions: swept idle tabs", zap.Int("closed", len(stale)))
	}
	return len(stale)
}

// Start schedules Sweep on spec, a robfig/cron expression such as "@every 1m".
func (r *Registry) Start(spec string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return fmt.Errorf("interactions: sweeper already running")
	}
	logger := cronLogger{logger: r.logger}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(spec, func() { r.Sweep(r.clock()) }); err != nil {
		return fmt.Errorf("interactions: invalid sweep schedule %q: %w", spec, err)
	}
	c.Start()
	r.cron = c
	return nil
}

// Stop halts the sweeper and waits for a running sweep to finish or ctx to end.
func (r *Registry) Stop(ctx context.Context) {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
