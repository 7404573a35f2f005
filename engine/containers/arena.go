package containers

// Arena is a bump allocator over a fixed capacity slice. Reset reclaims
// everything at once; allocations never move.
type Arena[T any] struct {
	data []T
}

func NewArena[T any](capacity int) *Arena[T] {
	return &Arena[T]{data: make([]T, 0, capacity)}
}

// Alloc reserves n zeroed elements and returns them with their offset.
// ok is false when the arena cannot hold n more elements.
func (a *Arena[T]) Alloc(n int) (items []T, offset int, ok bool) {
	offset = len(a.data)
	if offset+n > cap(a.data) {
		return nil, offset, false
	}
	a.data = a.data[:offset+n]
	items = a.data[offset : offset+n : offset+n]
	var zero T
	for i := range items {
		items[i] = zero
	}
	return items, offset, true
}

// Push appends one element.
func (a *Arena[T]) Push(v T) (offset int, ok bool) {
	items, offset, ok := a.Alloc(1)
	if !ok {
		return offset, false
	}
	items[0] = v
	return offset, true
}

// Items returns everything allocated since the last Reset.
func (a *Arena[T]) Items() []T {
	return a.data
}

func (a *Arena[T]) Len() int {
	return len(a.data)
}

func (a *Arena[T]) Cap() int {
	return cap(a.data)
}

func (a *Arena[T]) Reset() {
	a.data = a.data[:0]
}
