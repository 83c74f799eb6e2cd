package refs

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testObj struct {
	RefCounted
	destroyed atomic.Int32
}

func newTestObj() *testObj {
	TrackInstance()
	return &testObj{}
}

func (o *testObj) Destroy() {
	o.destroyed.Add(1)
	UntrackInstance()
}

func TestRetainReleaseDestroysOnce(t *testing.T) {
	o := newTestObj()
	Retain(o)
	require.Equal(t, int32(1), o.Refs())

	Release(o)
	assert.Equal(t, int32(1), o.destroyed.Load())

	// A second cycle on a fresh object; the first must not be destroyed again.
	o2 := newTestObj()
	Retain(o2)
	Retain(o2)
	Release(o2)
	assert.Equal(t, int32(0), o2.destroyed.Load())
	Release(o2)
	assert.Equal(t, int32(1), o2.destroyed.Load())
	assert.Equal(t, int32(1), o.destroyed.Load())
}

func TestConcurrentRetainRelease(t *testing.T) {
	const goroutines = 16
	const rounds = 1000

	before := LiveInstances()
	o := newTestObj()
	Retain(o) // the reference the main goroutine owns

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				Retain(o)
				Release(o)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(0), o.destroyed.Load(), "destroyed while still owned")
	require.Equal(t, int32(1), o.Refs())
	Release(o)
	assert.Equal(t, int32(1), o.destroyed.Load())
	assert.Equal(t, before, LiveInstances(), "leak-tracked count must return to baseline")
}

func TestRetainReleaseNil(t *testing.T) {
	var o *testObj
	assert.NotPanics(t, func() {
		Retain(o)
		Release(o)
	})
}

func TestRetainedAdoptAndRelease(t *testing.T) {
	o := newTestObj()
	h := Adopt(o)
	require.Equal(t, int32(1), o.Refs())
	assert.Same(t, o, h.Get())

	h.Release()
	assert.Equal(t, int32(1), o.destroyed.Load())
	assert.Nil(t, h.Get())

	// Releasing an empty handle is a no-op.
	assert.NotPanics(t, h.Release)
}

func TestRetainedSetRetainsBeforeReleasing(t *testing.T) {
	a := newTestObj()
	b := newTestObj()
	h := Adopt(a)

	h.Set(b)
	assert.Equal(t, int32(1), a.destroyed.Load())
	assert.Equal(t, int32(0), b.destroyed.Load())
	require.Equal(t, int32(1), b.Refs())

	// Self-assignment must not drop the object.
	h.Set(b)
	assert.Equal(t, int32(0), b.destroyed.Load())
	assert.Equal(t, int32(1), b.Refs())

	h.Release()
	assert.Equal(t, int32(1), b.destroyed.Load())
}

func TestRetainedCloneAndTake(t *testing.T) {
	o := newTestObj()
	h := Adopt(o)
	h2 := h.Clone()
	require.Equal(t, int32(2), o.Refs())

	h.Release()
	assert.Equal(t, int32(0), o.destroyed.Load())

	// Take moves ownership out without touching the count.
	moved := h2.Take()
	assert.Same(t, o, moved)
	assert.Nil(t, h2.Get())
	require.Equal(t, int32(1), o.Refs())

	Release(moved)
	assert.Equal(t, int32(1), o.destroyed.Load())
}
