package socket

import (
	"log"
	"sync"

	"peerwire/internal/config"
	"peerwire/internal/endpoint"
	"peerwire/internal/metrics"
	"peerwire/internal/refs"
)

// Registry holds the single transport factory serving the process. The first
// successful registration wins; when nothing is registered by the time the
// first connection is created, the wired fallback (the bundled websocket
// factory) is materialized and registered instead.
type Registry struct {
	mu           sync.Mutex
	factory      Factory
	cb           Callbacks // set when registered through Register
	hasCB        bool
	fromFallback bool
	fallback     func() Factory
}

// NewRegistry returns an empty registry. Most callers want Default.
func NewRegistry() *Registry { return &Registry{} }

// SetFallback wires the factory constructor used when nothing has been
// registered at first use. Only the first call takes effect.
func (r *Registry) SetFallback(fn func() Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fallback == nil {
		r.fallback = fn
	}
}

// Register validates and installs an application-supplied callback set.
// Incomplete sets are rejected and the existing registration, if any, stays
// untouched. Re-registering an equal set is idempotent; a different set
// fails with ErrAlreadyRegistered. This also loses to a fallback factory
// that has already been materialized by a prior connection.
func (r *Registry) Register(cb Callbacks) error {
	if err := cb.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.factory != nil {
		if r.hasCB && r.cb.equal(cb) {
			return nil
		}
		return ErrAlreadyRegistered
	}
	r.cb = cb
	r.hasCB = true
	r.factory = newCallbackFactory(cb)
	return nil
}

// RegisterFactory installs a linked-in Factory implementation. Equality is
// identity: registering the same instance again is idempotent.
func (r *Registry) RegisterFactory(f Factory) error {
	if f == nil {
		return ErrIncompleteFactory
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.factory != nil {
		if !r.hasCB && r.factory == f {
			return nil
		}
		return ErrAlreadyRegistered
	}
	r.factory = f
	return nil
}

// Factory returns the registered factory, materializing the fallback on
// first use. Callers never observe a partially initialized factory.
func (r *Registry) Factory() (Factory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.factory == nil {
		if r.fallback == nil {
			return nil, ErrNoFactory
		}
		r.factory = r.fallback()
		r.fromFallback = true
		log.Printf("socket: no transport factory registered, using bundled factory")
	}
	return r.factory, nil
}

// UsedFallback reports whether the registered factory came from the
// fallback. Diagnostic.
func (r *Registry) UsedFallback() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fromFallback
}

// NewConnection creates the outbound connection object for addr. The native
// side is not contacted until the engine calls Open on the returned socket.
// The socket carries one reference owned by the native correlation; callers
// take their own with refs.Adopt.
func (r *Registry) NewConnection(addr endpoint.Address, opts config.Options, d Delegate) (*Socket, error) {
	f, err := r.Factory()
	if err != nil {
		return nil, err
	}
	s := newSocket(f, addr, opts, d)
	refs.Retain(s)
	return s, nil
}

// AdoptConnection wraps an already-established native handle, such as an
// accepted inbound peer connection, in a new connection object served by f.
func (r *Registry) AdoptConnection(f Factory, native any, addr endpoint.Address, opts config.Options, d Delegate) *Socket {
	s := newSocket(f, addr, opts, d)
	s.SetNative(native)
	refs.Retain(s)
	return s
}

// The process-wide registry. Constructed on first access; ResetDefault is
// the explicit teardown used by tests and embedders that re-initialize.
var (
	defaultMu  sync.Mutex
	defaultReg *Registry
)

// Default returns the process-wide registry, constructing it exactly once
// even under concurrent first access.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultReg == nil {
		defaultReg = NewRegistry()
		metrics.SetLiveObjectsFunc(refs.LiveInstances)
	}
	return defaultReg
}

// ResetDefault discards the process-wide registry. Connections created from
// the old registry keep their factory; new ones see a clean slate.
func ResetDefault() {
	defaultMu.Lock()
	defaultReg = nil
	defaultMu.Unlock()
}
