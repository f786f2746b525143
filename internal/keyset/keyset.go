// Package keyset persists the visitor's favorite, cart and comparison product ids.
package keyset

// Bucket names one persisted id collection. The names are part of the stored format.
type Bucket string

const (
	Favorites   Bucket = "favorites"
	Cart        Bucket = "cartItems"
	Comparisons Bucket = "comparisons"
)

// Buckets lists every bucket in a stable order.
var Buckets = []Bucket{Favorites, Cart, Comparisons}

// ParseBucket maps a stored key back to its bucket.
func ParseBucket(name string) (Bucket, bool) {
	for _, b := range Buckets {
		if string(b) == name {
			return b, true
		}
	}
	return "", false
}

// KeySet is an immutable set of product ids that remembers insertion order so the
// persisted array stays stable. The zero value is an empty set.
type KeySet struct {
	ids   []string
	index map[string]struct{}
}

// New builds a set from ids, dropping empties and duplicates.
func New(ids ...string) KeySet {
	var s KeySet
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := s.index[id]; ok {
			continue
		}
		if s.index == nil {
			s.index = make(map[string]struct{}, len(ids))
		}
		s.index[id] = struct{}{}
		s.ids = append(s.ids, id)
	}
	return s
}

// Has reports membership of id.
func (s KeySet) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Len returns the number of ids.
func (s KeySet) Len() int { return len(s.ids) }

// IDs returns the ids in insertion order. The result is never nil.
func (s KeySet) IDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Toggle returns a copy of s with id's membership flipped, and the new membership.
func (s KeySet) Toggle(id string) (KeySet, bool) {
	if s.Has(id) {
		next := make([]string, 0, len(s.ids)-1)
		for _, existing := range s.ids {
			if existing != id {
				next = append(next, existing)
			}
		}
		return New(next...), false
	}
	next := make([]string, 0, len(s.ids)+1)
	next = append(next, s.ids...)
	next = append(next, id)
	return New(next...), true
}

// Equal reports whether both sets hold the same ids in the same order.
func (s KeySet) Equal(other KeySet) bool {
	if len(s.ids) != len(other.ids) {
		return false
	}
	for i := range s.ids {
		if s.ids[i] != other.ids[i] {
			return false
		}
	}
	return true
}
