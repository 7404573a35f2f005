package systems

import (
	"fmt"

	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

// resourcePool stores one resource type behind generational handles.
type resourcePool[T any] struct {
	kind  metadata.ResourceKind
	ids   *core.IdentifierPool
	items []T
}

func newResourcePool[T any](kind metadata.ResourceKind, capacity int) *resourcePool[T] {
	return &resourcePool[T]{
		kind:  kind,
		ids:   core.NewIdentifierPool(capacity),
		items: make([]T, 0, capacity),
	}
}

func (p *resourcePool[T]) insert(value T) metadata.Handle {
	id := p.ids.Acquire()
	if int(id.Index) == len(p.items) {
		p.items = append(p.items, value)
	} else {
		p.items[id.Index] = value
	}
	return metadata.Handle{Index: id.Index, Generation: id.Generation, Kind: p.kind}
}

func (p *resourcePool[T]) alive(h metadata.Handle) bool {
	return h.Kind == p.kind && p.ids.Alive(core.Identifier{Index: h.Index, Generation: h.Generation})
}

func (p *resourcePool[T]) get(h metadata.Handle) (*T, error) {
	if !p.alive(h) {
		return nil, core.NewStaleHandle(core.StageRegistry, h.String())
	}
	return &p.items[h.Index], nil
}

// retire makes h stale at once and returns the value still to be destroyed.
func (p *resourcePool[T]) retire(h metadata.Handle) (T, error) {
	var zero T
	if !p.alive(h) {
		return zero, core.NewStaleHandle(core.StageRegistry, h.String())
	}
	if err := p.ids.Retire(core.Identifier{Index: h.Index, Generation: h.Generation}); err != nil {
		return zero, fmt.Errorf("retire %s: %w", h, err)
	}
	return p.items[h.Index], nil
}

// recycle frees the slot of a destroyed resource.
func (p *resourcePool[T]) recycle(index uint32) {
	var zero T
	p.items[index] = zero
	p.ids.Recycle(index)
}

// each visits live entries.
func (p *resourcePool[T]) each(fn func(h metadata.Handle, value *T)) {
	for i := range p.items {
		id, ok := p.ids.Current(uint32(i))
		if !ok {
			continue
		}
		fn(metadata.Handle{Index: id.Index, Generation: id.Generation, Kind: p.kind}, &p.items[i])
	}
}
