package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueFixed(t *testing.T) {
	q := NewRingQueue[int](2)
	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))
	assert.ErrorIs(t, q.Enqueue(3), ErrQueueFull)

	v, err := q.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	require.NoError(t, q.Enqueue(3))

	v, _ = q.Peek()
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, q.Len())
}

func TestRingQueueGrowKeepsOrder(t *testing.T) {
	q := NewGrowableRingQueue[int](2)
	// wrap the indices before growing
	require.NoError(t, q.Enqueue(0))
	_, _ = q.Dequeue()
	for i := 1; i <= 10; i++ {
		require.NoError(t, q.Enqueue(i))
	}
	for i := 1; i <= 10; i++ {
		v, err := q.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	_, err := q.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestArena(t *testing.T) {
	a := NewArena[int](4)
	items, off, ok := a.Alloc(3)
	require.True(t, ok)
	assert.Equal(t, 0, off)
	items[0], items[1], items[2] = 1, 2, 3

	_, _, ok = a.Alloc(2)
	assert.False(t, ok)

	off, ok = a.Push(4)
	require.True(t, ok)
	assert.Equal(t, 3, off)
	assert.Equal(t, []int{1, 2, 3, 4}, a.Items())

	a.Reset()
	assert.Equal(t, 0, a.Len())
	items, _, ok = a.Alloc(2)
	require.True(t, ok)
	assert.Equal(t, []int{0, 0}, items)
}
