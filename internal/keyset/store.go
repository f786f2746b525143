package keyset

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"finitefield.org/storefront/internal/events"
	"finitefield.org/storefront/internal/kv"
)

// Store reads and writes key sets through a kv.Store. It never returns errors:
// read failures load as empty sets and write failures are logged, matching how a
// browser storefront treats local storage.
type Store struct {
	backend kv.Store
	bus     *events.Bus
	logger  *zap.Logger
}

// Option customises a Store.
type Option func(*Store)

// WithBus sets the bus StorageUpdated notifications are published on.
func WithBus(bus *events.Bus) Option {
	return func(s *Store) { s.bus = bus }
}

// WithLogger sets the logger used for swallowed failures.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore wraps backend. A nil backend yields a store that loads empty sets and
// skips saves, which is what rendering without a visitor needs.
func NewStore(backend kv.Store, opts ...Option) *Store {
	s := &Store{backend: backend, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bus returns the bus notifications are published on.
func (s *Store) Bus() *events.Bus { return s.bus }

// Load reads bucket. Absent, unreadable or malformed values load as an empty set.
func (s *Store) Load(ctx context.Context, bucket Bucket) KeySet {
	if s == nil || s.backend == nil {
		return KeySet{}
	}
	raw, err := s.backend.Load(ctx, string(bucket))
	if err != nil {
		s.logger.Error("keyset: load failed", zap.String("bucket", string(bucket)), zap.Error(err))
		return KeySet{}
	}
	if len(raw) == 0 {
		return KeySet{}
	}
	set, ok := decode(raw)
	if !ok {
		s.logger.Error("keyset: stored value is not an id array", zap.String("bucket", string(bucket)), zap.ByteString("value", truncate(raw, 256)))
		return KeySet{}
	}
	return set
}

// Save writes the set as a JSON array of ids and publishes StorageUpdated. A failed
// write is logged and the notification is still sent; there is no rollback.
func (s *Store) Save(ctx context.Context, bucket Bucket, set KeySet) {
	if s == nil || s.backend == nil {
		return
	}
	ids := set.IDs()
	payload, err := json.Marshal(ids)
	if err != nil {
		s.logger.Error("keyset: encode failed", zap.String("bucket", string(bucket)), zap.Error(err))
		return
	}
	if err := s.backend.Save(ctx, string(bucket), payload); err != nil {
		s.logger.Error("keyset: save failed", zap.String("bucket", string(bucket)), zap.Int("ids", len(ids)), zap.Error(err))
	}
	s.bus.Publish(events.Event{
		Name:   events.StorageUpdated,
		Key:    string(bucket),
		Data:   ids,
		Origin: events.OriginFrom(ctx),
	})
}

// decode accepts a JSON array whose elements are strings or numbers; every id is
// kept in its string form.
func decode(raw []byte) (KeySet, bool) {
	if !gjson.ValidBytes(raw) {
		return KeySet{}, false
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsArray() {
		return KeySet{}, false
	}
	var ids []string
	parsed.ForEach(func(_, value gjson.Result) bool {
		switch value.Type {
		case gjson.String:
			ids = append(ids, value.Str)
		case gjson.Number:
			ids = append(ids, value.Raw)
		case gjson.True, gjson.False:
			ids = append(ids, value.Raw)
		}
		return true
	})
	return New(ids...), true
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
