package ids

import (
	"errors"
	"testing"
	"testing/iotest"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChildTradeIDDeterministic(t *testing.T) {
	a := ChildTradeID("master-1", "user-1")
	b := ChildTradeID("master-1", "user-1")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, ChildTradeID("master-1", "user-2"))
	assert.NotEqual(t, a, ChildTradeID("master-2", "user-1"))
}

func TestChildTradeIDNoSeparatorCollision(t *testing.T) {
	assert.NotEqual(t, ChildTradeID("ab", "c"), ChildTradeID("a", "bc"))
}

func TestNewMasterTradeIDMonotonic(t *testing.T) {
	prev, err := NewMasterTradeID()
	require.NoError(t, err)

	for range 100 {
		next, err := NewMasterTradeID()
		require.NoError(t, err)
		_, err = ulid.Parse(next)
		require.NoError(t, err)
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestNewMasterTradeIDEntropyFailure(t *testing.T) {
	errEntropy := errors.New("entropy exhausted")

	id, err := newMasterTradeID(time.Now(), iotest.ErrReader(errEntropy))
	require.ErrorIs(t, err, errEntropy)
	assert.Empty(t, id)
}

func TestMasterTradeIDForKey(t *testing.T) {
	a := MasterTradeIDForKey("order-42")

	assert.Equal(t, a, MasterTradeIDForKey("order-42"))
	assert.NotEqual(t, a, MasterTradeIDForKey("order-43"))
	assert.NotEqual(t, a, ChildTradeID("order-42", ""))
}
