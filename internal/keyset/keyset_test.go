package keyset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggleTwiceRestoresMembership(t *testing.T) {
	for _, start := range []KeySet{{}, New("1"), New("2", "1", "3")} {
		wasMember := start.Has("1")

		once, member := start.Toggle("1")
		require.Equal(t, !wasMember, member)
		require.Equal(t, !wasMember, once.Has("1"))

		twice, member := once.Toggle("1")
		assert.Equal(t, wasMember, member)
		assert.Equal(t, wasMember, twice.Has("1"))
		assert.Equal(t, start.Len(), twice.Len())
	}
}

func TestToggleKeepsInsertionOrder(t *testing.T) {
	set := New("a", "b")
	set, _ = set.Toggle("c")
	set, _ = set.Toggle("a")
	set, _ = set.Toggle("a")

	assert.Equal(t, []string{"b", "c", "a"}, set.IDs())
}

func TestToggleDoesNotMutateReceiver(t *testing.T) {
	original := New("a")
	_, _ = original.Toggle("b")
	_, _ = original.Toggle("a")

	assert.Equal(t, []string{"a"}, original.IDs())
}

func TestNewDropsEmptyAndDuplicateIDs(t *testing.T) {
	set := New("7", "", "9", "7")
	assert.Equal(t, []string{"7", "9"}, set.IDs())
	assert.True(t, set.Equal(New("7", "9")))
	assert.False(t, set.Equal(New("9", "7")))
}

func TestZeroValueIDsIsEmptySlice(t *testing.T) {
	var set KeySet
	ids := set.IDs()
	require.NotNil(t, ids)
	assert.Empty(t, ids)
	assert.False(t, set.Has(""))
}

func TestParseBucket(t *testing.T) {
	b, ok := ParseBucket("cartItems")
	require.True(t, ok)
	assert.Equal(t, Cart, b)

	_, ok = ParseBucket("theme")
	assert.False(t, ok)
}
