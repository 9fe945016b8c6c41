package engine

import (
	"iter"
	"slices"
)

// registry is a string-keyed map that iterates in insertion order.
//
// Desired state is replayed onto the target in the order it was declared;
// Go map iteration order would make passes non-deterministic.
type registry[V any] struct {
	keys []string
	m    map[string]V
}

func newRegistry[V any]() *registry[V] {
	return &registry[V]{m: make(map[string]V)}
}

func (r *registry[V]) Get(key string) (V, bool) {
	v, ok := r.m[key]
	return v, ok
}

func (r *registry[V]) Has(key string) bool {
	_, ok := r.m[key]
	return ok
}

// Set stores v. A new key goes to the end; an existing key keeps its place.
func (r *registry[V]) Set(key string, v V) {
	if _, ok := r.m[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.m[key] = v
}

// Delete removes key and reports whether it was present.
func (r *registry[V]) Delete(key string) bool {
	if _, ok := r.m[key]; !ok {
		return false
	}
	delete(r.m, key)
	r.keys = slices.DeleteFunc(r.keys, func(k string) bool { return k == key })
	return true
}

func (r *registry[V]) Len() int {
	return len(r.keys)
}

func (r *registry[V]) Keys() []string {
	return slices.Clone(r.keys)
}

func (r *registry[V]) Clear() {
	r.keys = nil
	r.m = make(map[string]V)
}

// All iterates over a snapshot of the keys, so the loop body may mutate the
// registry. Keys deleted during iteration are skipped.
func (r *registry[V]) All() iter.Seq2[string, V] {
	keys := r.Keys()
	return func(yield func(string, V) bool) {
		for _, k := range keys {
			v, ok := r.m[k]
			if !ok {
				continue
			}
			if !yield(k, v) {
				return
			}
		}
	}
}

// newIDSet builds an ordered set from ids, skipping the excluded ones.
func newIDSet(ids []string, exclude map[string]bool) *registry[struct{}] {
	s := newRegistry[struct{}]()
	for _, id := range ids {
		if !exclude[id] {
			s.Set(id, struct{}{})
		}
	}
	return s
}
