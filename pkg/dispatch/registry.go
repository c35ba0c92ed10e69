// Package dispatch maps integer codes to ordered listener lists.
//
// A peer keeps three registries: status, events and operation responses.
// Registries built from the same Sequence never hand out the same ID, so a
// single ID names one listener across all of them. Listeners for one code run
// in the order they were added; adding the same function twice registers it
// twice.
package dispatch

import (
	"slices"
	"sync"
	"sync/atomic"
)

// ID identifies a registered listener. IDs are never reused within a Sequence.
type ID uint64

// Sequence issues listener IDs. The zero value is ready to use.
type Sequence struct {
	n atomic.Uint64
}

func (s *Sequence) next() ID {
	return ID(s.n.Add(1))
}

type entry[H any] struct {
	id ID
	fn H
}

// Registry holds listeners of type H keyed by code.
// It is safe for concurrent use.
type Registry[H any] struct {
	mu        sync.RWMutex
	listeners map[int][]entry[H]
	seq       *Sequence
}

// New creates an empty registry with its own ID sequence.
func New[H any]() *Registry[H] {
	return NewWithSequence[H](new(Sequence))
}

// NewWithSequence creates an empty registry drawing IDs from seq.
func NewWithSequence[H any](seq *Sequence) *Registry[H] {
	return &Registry[H]{listeners: make(map[int][]entry[H]), seq: seq}
}

// Add appends a listener for code and returns its ID.
func (r *Registry[H]) Add(code int, fn H) ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.seq.next()
	r.listeners[code] = append(r.listeners[code], entry[H]{id: id, fn: fn})
	return id
}

// Remove drops the listener with the given ID. It reports whether one was found.
func (r *Registry[H]) Remove(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for code, list := range r.listeners {
		i := slices.IndexFunc(list, func(e entry[H]) bool { return e.id == id })
		if i < 0 {
			continue
		}
		list = slices.Delete(list, i, i+1)
		if len(list) == 0 {
			delete(r.listeners, code)
		} else {
			r.listeners[code] = list
		}
		return true
	}
	return false
}

// RemoveAll drops every listener registered for code.
func (r *Registry[H]) RemoveAll(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listeners, code)
}

// Clear drops every listener.
func (r *Registry[H]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = make(map[int][]entry[H])
}

// Listeners returns a snapshot of the listeners for code in dispatch order.
func (r *Registry[H]) Listeners(code int) []H {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.listeners[code]
	if len(list) == 0 {
		return nil
	}
	out := make([]H, len(list))
	for i, e := range list {
		out[i] = e.fn
	}
	return out
}

// Len returns the number of listeners registered for code.
func (r *Registry[H]) Len(code int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners[code])
}

// Dispatch calls every listener for code with call, in order, on a snapshot
// taken before the first call. It reports whether any listener was registered.
func (r *Registry[H]) Dispatch(code int, call func(H)) bool {
	list := r.Listeners(code)
	for _, fn := range list {
		call(fn)
	}
	return len(list) > 0
}
