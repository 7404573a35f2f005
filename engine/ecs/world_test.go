package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-render/engine/math"
)

func TestWorldAddGetRemove(t *testing.T) {
	w := NewWorld()
	a := w.Create()
	b := w.Create()

	require.NoError(t, Add(w, a, NewTransform(math.NewVec3(1, 0, 0))))
	require.NoError(t, Add(w, b, NewTransform(math.NewVec3(2, 0, 0))))

	tr, ok := Get[Transform](w, a)
	require.True(t, ok)
	assert.Equal(t, float32(1), tr.Position.X)

	Remove[Transform](w, a)
	_, ok = Get[Transform](w, a)
	assert.False(t, ok)

	// b moved into a's dense slot and is still reachable
	tr, ok = Get[Transform](w, b)
	require.True(t, ok)
	assert.Equal(t, float32(2), tr.Position.X)
}

func TestWorldDestroyInvalidatesEntity(t *testing.T) {
	w := NewWorld()
	e := w.Create()
	require.NoError(t, Add(w, e, Lifecycle{State: LifecycleActive}))
	require.NoError(t, w.Destroy(e))

	assert.False(t, w.Alive(e))
	assert.Error(t, w.Destroy(e))
	assert.Error(t, Add(w, e, Lifecycle{}))

	// the index is reused with a new generation; the old id does not alias it
	n := w.Create()
	assert.Equal(t, e.Index, n.Index)
	assert.NotEqual(t, e.Generation, n.Generation)
	_, ok := Get[Lifecycle](w, n)
	assert.False(t, ok)
	_, ok = Get[Lifecycle](w, e)
	assert.False(t, ok)
}

func TestEach2(t *testing.T) {
	w := NewWorld()
	var both []Entity
	for i := 0; i < 5; i++ {
		e := w.Create()
		require.NoError(t, Add(w, e, NewTransform(math.NewVec3(float32(i), 0, 0))))
		if i%2 == 0 {
			require.NoError(t, Add(w, e, Renderable{}))
			both = append(both, e)
		}
	}
	var seen []Entity
	Each2(w, func(e Entity, tr *Transform, r *Renderable) bool {
		seen = append(seen, e)
		return true
	})
	assert.ElementsMatch(t, both, seen)
}
