package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifierPoolGenerations(t *testing.T) {
	p := NewIdentifierPool(4)

	a := p.Acquire()
	b := p.Acquire()
	assert.Equal(t, uint32(0), a.Index)
	assert.Equal(t, uint32(1), b.Index)
	assert.True(t, p.Alive(a))

	require.NoError(t, p.Retire(a))
	assert.False(t, p.Alive(a))
	assert.Error(t, p.Retire(a))

	// retired but not recycled: index is not handed out again
	c := p.Acquire()
	assert.Equal(t, uint32(2), c.Index)

	p.Recycle(a.Index)
	d := p.Acquire()
	assert.Equal(t, a.Index, d.Index)
	assert.NotEqual(t, a.Generation, d.Generation)
	assert.False(t, p.Alive(a))
	assert.True(t, p.Alive(d))
}

func TestIdentifierPoolZeroIsNeverAlive(t *testing.T) {
	p := NewIdentifierPool(0)
	p.Acquire()
	assert.False(t, p.Alive(Identifier{}))
	assert.False(t, p.Alive(Identifier{Index: 10, Generation: 1}))
}
