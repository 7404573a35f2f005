package core

import "fmt"

// Identifier is an index paired with the generation it was issued under.
type Identifier struct {
	Index      uint32
	Generation uint32
}

// IdentifierPool hands out reusable indices with generation counters so that
// an identifier kept after release can be told apart from its successor.
type IdentifierPool struct {
	generations []uint32
	live        []bool
	pooled      []bool
	free        []uint32
}

func NewIdentifierPool(capacity int) *IdentifierPool {
	return &IdentifierPool{
		generations: make([]uint32, 0, capacity),
		live:        make([]bool, 0, capacity),
		pooled:      make([]bool, 0, capacity),
	}
}

// Acquire returns a fresh identifier, reusing a free index when one exists.
func (p *IdentifierPool) Acquire() Identifier {
	if n := len(p.free); n > 0 {
		idx := p.free[n-1]
		p.free = p.free[:n-1]
		p.live[idx] = true
		p.pooled[idx] = false
		return Identifier{Index: idx, Generation: p.generations[idx]}
	}
	p.generations = append(p.generations, 1)
	p.live = append(p.live, true)
	p.pooled = append(p.pooled, false)
	return Identifier{Index: uint32(len(p.generations) - 1), Generation: 1}
}

// Alive reports whether id is the current generation of a live index.
func (p *IdentifierPool) Alive(id Identifier) bool {
	if id.Generation == 0 || int(id.Index) >= len(p.generations) {
		return false
	}
	return p.live[id.Index] && p.generations[id.Index] == id.Generation
}

// Retire invalidates id without making the index reusable yet.
func (p *IdentifierPool) Retire(id Identifier) error {
	if !p.Alive(id) {
		return fmt.Errorf("identifier %d/%d is not alive", id.Index, id.Generation)
	}
	p.live[id.Index] = false
	p.generations[id.Index]++
	if p.generations[id.Index] == 0 {
		p.generations[id.Index] = 1
	}
	return nil
}

// Recycle makes a retired index available to Acquire again.
func (p *IdentifierPool) Recycle(index uint32) {
	if int(index) >= len(p.live) || p.live[index] || p.pooled[index] {
		return
	}
	p.pooled[index] = true
	p.free = append(p.free, index)
}

// Release retires id and recycles its index at once.
func (p *IdentifierPool) Release(id Identifier) error {
	if err := p.Retire(id); err != nil {
		return err
	}
	p.Recycle(id.Index)
	return nil
}

// Available returns the number of recycled indices waiting to be reused.
func (p *IdentifierPool) Available() int {
	return len(p.free)
}

// Len returns the number of indices ever issued.
func (p *IdentifierPool) Len() int {
	return len(p.generations)
}

// Current returns the live identifier at index, if any.
func (p *IdentifierPool) Current(index uint32) (Identifier, bool) {
	if int(index) >= len(p.live) || !p.live[index] {
		return Identifier{}, false
	}
	return Identifier{Index: index, Generation: p.generations[index]}, true
}
