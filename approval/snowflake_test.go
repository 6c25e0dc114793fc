package approval

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDGeneratorRanges(t *testing.T) {
	_, err := NewIDGenerator(32, 0)
	assert.Error(t, err)
	_, err = NewIDGenerator(0, 32)
	assert.Error(t, err)
	_, err = NewIDGenerator(-1, 0)
	assert.Error(t, err)
	_, err = NewIDGenerator(31, 31)
	assert.NoError(t, err)
}

func TestIDGeneratorMonotonicAndUnique(t *testing.T) {
	gen, err := NewIDGenerator(1, 2)
	require.NoError(t, err)

	seen := make(map[string]bool)
	var prev int64
	for i := 0; i < 5000; i++ {
		id, err := gen.Next()
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true

		n, err := strconv.ParseInt(id, 10, 64)
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, prev)
		prev = n
	}
}

func TestIDGeneratorLayout(t *testing.T) {
	gen, err := NewIDGenerator(3, 7)
	require.NoError(t, err)
	fixed := time.UnixMilli(epochMillis + 1000)
	gen.now = func() time.Time { return fixed }

	id, err := gen.Next()
	require.NoError(t, err)
	n, err := strconv.ParseInt(id, 10, 64)
	require.NoError(t, err)

	assert.Equal(t, int64(1000), n>>timestampShift)
	assert.Equal(t, int64(3), (n>>datacenterShift)&maxDatacenter)
	assert.Equal(t, int64(7), (n>>workerShift)&maxWorker)
	assert.Equal(t, int64(0), n&maxSequence)
}

func TestIDGeneratorClockRewind(t *testing.T) {
	gen, err := NewIDGenerator(0, 0)
	require.NoError(t, err)

	current := time.UnixMilli(epochMillis + 5000)
	gen.now = func() time.Time { return current }
	_, err = gen.Next()
	require.NoError(t, err)

	current = time.UnixMilli(epochMillis + 4000)
	_, err = gen.Next()
	assert.ErrorIs(t, err, ErrClockRewind)
}
