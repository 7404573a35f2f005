package ecs

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/spaghettifunk/anima-render/engine/core"
)

// Entity is a generational entity id.
type Entity struct {
	Index      uint32
	Generation uint32
}

// ID packs the entity into one integer.
func (e Entity) ID() uint64 {
	return uint64(e.Generation)<<32 | uint64(e.Index)
}

func (e Entity) String() string {
	return fmt.Sprintf("entity#%d.%d", e.Index, e.Generation)
}

type storage interface {
	remove(e Entity)
	len() int
}

// World owns entities and one typed storage table per component type.
type World struct {
	mu       sync.RWMutex
	ids      *core.IdentifierPool
	storages map[reflect.Type]storage
}

func NewWorld() *World {
	return &World{
		ids:      core.NewIdentifierPool(256),
		storages: make(map[reflect.Type]storage),
	}
}

func (w *World) Create() Entity {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.ids.Acquire()
	return Entity{Index: id.Index, Generation: id.Generation}
}

// Destroy removes the entity and all of its components.
func (w *World) Destroy(e Entity) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ids.Release(core.Identifier{Index: e.Index, Generation: e.Generation}); err != nil {
		return fmt.Errorf("destroy %s: %w", e, err)
	}
	for _, s := range w.storages {
		s.remove(e)
	}
	return nil
}

func (w *World) Alive(e Entity) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ids.Alive(core.Identifier{Index: e.Index, Generation: e.Generation})
}

// Storage is a sparse set of T keyed by entity index.
type Storage[T any] struct {
	dense    []T
	entities []Entity
	sparse   map[uint32]int
}

func newStorage[T any]() *Storage[T] {
	return &Storage[T]{sparse: make(map[uint32]int)}
}

// StorageOf returns the table for T, creating it on first use.
func StorageOf[T any](w *World) *Storage[T] {
	key := reflect.TypeOf((*T)(nil)).Elem()
	w.mu.RLock()
	s, ok := w.storages[key]
	w.mu.RUnlock()
	if ok {
		return s.(*Storage[T])
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.storages[key]; ok {
		return s.(*Storage[T])
	}
	st := newStorage[T]()
	w.storages[key] = st
	return st
}

// Add sets the T component of e, replacing any previous value.
func Add[T any](w *World, e Entity, value T) error {
	if !w.Alive(e) {
		return fmt.Errorf("add %T to %s: entity is not alive", value, e)
	}
	StorageOf[T](w).set(e, value)
	return nil
}

// Get returns a pointer to the T component of e. The pointer is valid until
// the next structural change of the table.
func Get[T any](w *World, e Entity) (*T, bool) {
	return StorageOf[T](w).Get(e)
}

func Remove[T any](w *World, e Entity) {
	StorageOf[T](w).remove(e)
}

func (s *Storage[T]) set(e Entity, value T) {
	if i, ok := s.sparse[e.Index]; ok {
		s.dense[i] = value
		s.entities[i] = e
		return
	}
	s.sparse[e.Index] = len(s.dense)
	s.dense = append(s.dense, value)
	s.entities = append(s.entities, e)
}

func (s *Storage[T]) Get(e Entity) (*T, bool) {
	i, ok := s.sparse[e.Index]
	if !ok || s.entities[i] != e {
		return nil, false
	}
	return &s.dense[i], true
}

func (s *Storage[T]) remove(e Entity) {
	i, ok := s.sparse[e.Index]
	if !ok || s.entities[i] != e {
		return
	}
	last := len(s.dense) - 1
	if i != last {
		s.dense[i] = s.dense[last]
		s.entities[i] = s.entities[last]
		s.sparse[s.entities[i].Index] = i
	}
	var zero T
	s.dense[last] = zero
	s.dense = s.dense[:last]
	s.entities = s.entities[:last]
	delete(s.sparse, e.Index)
}

func (s *Storage[T]) len() int {
	return len(s.dense)
}

func (s *Storage[T]) Len() int {
	return len(s.dense)
}

// Each visits every component in storage order until fn returns false.
func (s *Storage[T]) Each(fn func(e Entity, value *T) bool) {
	for i := range s.dense {
		if !fn(s.entities[i], &s.dense[i]) {
			return
		}
	}
}

// Each2 visits entities having both A and B, driven by the smaller table.
func Each2[A, B any](w *World, fn func(e Entity, a *A, b *B) bool) {
	sa := StorageOf[A](w)
	sb := StorageOf[B](w)
	if sa.Len() <= sb.Len() {
		sa.Each(func(e Entity, a *A) bool {
			if b, ok := sb.Get(e); ok {
				return fn(e, a, b)
			}
			return true
		})
		return
	}
	sb.Each(func(e Entity, b *B) bool {
		if a, ok := sa.Get(e); ok {
			return fn(e, a, b)
		}
		return true
	})
}
