// Package refs implements the intrusive reference counting that shared
// replication objects ride on. The count starts at zero, so a freshly
// constructed object must be retained immediately, either with Retain or by
// handing it to Adopt. There is no cycle detection: back-references must be
// modeled as lookup keys, never as owning references.
package refs

import (
	"sync/atomic"
)

// Object is satisfied by any type that embeds RefCounted and knows how to
// tear itself down once the last reference is gone.
type Object interface {
	counter() *atomic.Int32

	// Destroy is called exactly once, when a Release takes the count to
	// zero or below. Never call it directly; call Release.
	Destroy()
}

// Ref constrains the (pointer) types that can be retained and released.
type Ref interface {
	Object
	comparable
}

// RefCounted is embedded in shared objects to make them refcounted.
// The zero value is ready to use and carries a count of zero.
type RefCounted struct {
	count atomic.Int32
}

func (rc *RefCounted) counter() *atomic.Int32 { return &rc.count }

// Refs returns the current reference count. Diagnostic use only; the value
// may be stale by the time the caller looks at it.
func (rc *RefCounted) Refs() int32 { return rc.count.Load() }

// Retain increments o's reference count and returns o. No-op on nil.
func Retain[T Ref](o T) T {
	var zero T
	if o != zero {
		o.counter().Add(1)
	}
	return o
}

// Release decrements o's reference count and destroys o when the count
// reaches zero. No-op on nil. Safe to call concurrently with Retain from any
// goroutine; destruction happens exactly once.
func Release[T Ref](o T) {
	var zero T
	if o == zero {
		return
	}
	if o.counter().Add(-1) <= 0 {
		o.Destroy()
	}
}

// Retained is an owning handle: while it holds an object it holds one
// reference to it. Do not copy a Retained by assignment; use Clone, which
// retains, or Take, which moves ownership without touching the count.
type Retained[T Ref] struct {
	ref T
}

// Adopt takes ownership of a freshly constructed object, performing the
// initial retain. This is the safe hand-off from construction to first
// ownership that the zero-start convention requires.
func Adopt[T Ref](o T) Retained[T] {
	return Retained[T]{ref: Retain(o)}
}

// Get returns the held object, or the zero value if the handle is empty.
func (r *Retained[T]) Get() T { return r.ref }

// Set replaces the held object with o, retaining o before releasing the old
// target so that self-assignment and concurrent destruction stay safe.
func (r *Retained[T]) Set(o T) {
	Retain(o)
	old := r.ref
	r.ref = o
	Release(old)
}

// Clone returns a second owning handle to the same object.
func (r *Retained[T]) Clone() Retained[T] {
	return Retained[T]{ref: Retain(r.ref)}
}

// Take moves the object out of the handle without changing the count.
// The caller becomes responsible for the reference the handle held.
func (r *Retained[T]) Take() T {
	o := r.ref
	var zero T
	r.ref = zero
	return o
}

// Release drops the handle's reference and empties it. Safe to call on an
// empty handle.
func (r *Retained[T]) Release() {
	o := r.ref
	var zero T
	r.ref = zero
	Release(o)
}

// liveInstances counts constructed-but-not-destroyed leak-tracked objects.
// Purely diagnostic; it never affects destruction.
var liveInstances atomic.Int64

// TrackInstance records the construction of a leak-tracked object.
func TrackInstance() { liveInstances.Add(1) }

// UntrackInstance records its destruction.
func UntrackInstance() { liveInstances.Add(-1) }

// LiveInstances returns the number of leak-tracked objects currently alive.
func LiveInstances() int64 { return liveInstances.Load() }
