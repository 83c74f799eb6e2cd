package socket

import (
	"log"
	"sync"

	"peerwire/internal/config"
	"peerwire/internal/endpoint"
	"peerwire/internal/metrics"
	"peerwire/internal/refs"
)

// Close codes reported through Delegate.OnClose. The values follow the
// websocket close-code space so bundled and application factories agree.
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	CloseProtocolError = 1002
	CloseAbnormal      = 1006
	ClosePolicyError   = 1008
)

// State is the per-connection lifecycle position. Transitions only move
// forward.
type State int32

const (
	StateCreated State = iota
	StateOpening
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// Delegate is the engine-side consumer of a connection: the framed-message
// layer above the bridge. Calls arrive on whatever goroutine the native
// transport delivers events on.
type Delegate interface {
	OnOpen()
	OnBytes(data []byte)
	OnClose(code int, reason string)
}

// WriteObserver is an optional Delegate extension notified when a buffer
// handed to Send has been fully written by the native side.
type WriteObserver interface {
	OnWriteComplete(n int)
}

// Socket correlates one opaque native transport handle with one engine-side
// connection for the whole life of the pair. It hosts the lifecycle state
// machine and the flow-control accounting; it never blocks on network I/O.
//
// Sockets are refcounted. One reference belongs to the native correlation
// and is dropped after Dispose; the engine holds its own through refs.Adopt.
// Calls that are illegal in the current state are logged and ignored.
type Socket struct {
	refs.RefCounted

	factory  Factory
	addr     endpoint.Address
	opts     config.Options
	delegate Delegate

	mu          sync.Mutex
	state       State
	native      any   // owned by the factory, opaque here
	pendingRecv int64 // bytes delivered to the delegate but not yet acked
}

func newSocket(f Factory, addr endpoint.Address, opts config.Options, d Delegate) *Socket {
	refs.TrackInstance()
	metrics.IncSockets()
	return &Socket{
		factory:  f,
		addr:     addr,
		opts:     opts.Clone(),
		delegate: d,
		state:    StateCreated,
	}
}

// Destroy implements refs.Object. Reached only through refs.Release.
func (s *Socket) Destroy() { refs.UntrackInstance() }

// Addr returns a copy of the resolved endpoint.
func (s *Socket) Addr() endpoint.Address { return s.addr }

// Options returns the pass-through options the connection was created with.
func (s *Socket) Options() config.Options { return s.opts }

// Factory returns the factory serving this connection.
func (s *Socket) Factory() Factory { return s.factory }

// Native returns the opaque per-connection handle owned by the factory.
func (s *Socket) Native() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.native
}

// SetNative stores the factory's per-connection handle.
func (s *Socket) SetNative(h any) {
	s.mu.Lock()
	s.native = h
	s.mu.Unlock()
}

// State returns the current lifecycle position.
func (s *Socket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PendingReceive returns the number of delivered-but-unacked bytes.
func (s *Socket) PendingReceive() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingRecv
}

// ---- engine → native ----

// Open begins the handshake. Legal exactly once, from the created state.
func (s *Socket) Open() {
	s.mu.Lock()
	if s.state != StateCreated {
		st := s.state
		s.mu.Unlock()
		s.misuse("Open", st)
		return
	}
	s.state = StateOpening
	s.mu.Unlock()
	s.factory.Open(s, s.addr.View(), s.opts)
}

// Send hands one message buffer to the native write slot. Ownership of data
// transfers with the call: the native side releases it by calling
// CompletedWrite exactly once, not the caller.
func (s *Socket) Send(data []byte) {
	s.mu.Lock()
	if s.state != StateOpen {
		st := s.state
		s.mu.Unlock()
		s.misuse("Send", st)
		return
	}
	s.mu.Unlock()
	metrics.AddSent(int64(len(data)))
	s.factory.Write(s, data)
}

// ReceiveComplete acknowledges n previously delivered bytes, letting the
// native transport read further ahead. Returns immediately.
func (s *Socket) ReceiveComplete(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return
	}
	s.pendingRecv -= int64(n)
	if s.pendingRecv < 0 {
		s.pendingRecv = 0
	}
	s.mu.Unlock()
	s.factory.CompletedReceive(s, n)
}

// RequestClose asks for a graceful shutdown with the given code and reason.
// Best effort: an in-flight Send may still be delivered. Falls back to an
// unconditional close when the factory has no request-close slot.
func (s *Socket) RequestClose(code int, reason string) {
	s.mu.Lock()
	if s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	s.mu.Unlock()
	if rc, ok := s.factory.(RequestCloser); ok {
		rc.RequestClose(s, code, reason)
		return
	}
	s.factory.Close(s)
}

// CloseSocket tears the connection down unconditionally. Idempotent: calling
// it again while closing or closed is a no-op.
func (s *Socket) CloseSocket() {
	s.mu.Lock()
	if s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	s.mu.Unlock()
	s.factory.Close(s)
}

// ---- native → engine ----
//
// The native transport must deliver these in event order for one connection:
// Opened before Received, Received before Closed. The bridge assumes that
// ordering; it does not repair a transport that violates it.

// Opened confirms the handshake finished.
func (s *Socket) Opened() {
	s.mu.Lock()
	if s.state != StateOpening {
		st := s.state
		s.mu.Unlock()
		s.misuse("Opened", st)
		return
	}
	s.state = StateOpen
	s.mu.Unlock()
	s.delegate.OnOpen()
}

// Received delivers one message payload inward. The delegate must copy
// anything it keeps and eventually acknowledge the bytes with
// ReceiveComplete.
func (s *Socket) Received(data []byte) {
	s.mu.Lock()
	if s.state != StateOpen {
		st := s.state
		s.mu.Unlock()
		s.misuse("Received", st)
		return
	}
	s.pendingRecv += int64(len(data))
	s.mu.Unlock()
	metrics.AddReceived(int64(len(data)))
	s.delegate.OnBytes(data)
}

// CompletedWrite reports that n bytes handed to Write have been written and
// the buffer is released.
func (s *Socket) CompletedWrite(n int) {
	if obs, ok := s.delegate.(WriteObserver); ok {
		obs.OnWriteComplete(n)
	}
}

// Closed finishes the lifecycle. Exactly one call wins; the rest are
// ignored. Native failures (handshake, read, write) arrive here as a code
// and reason rather than as faults crossing the boundary. After the close
// notification, the factory's Dispose slot runs once and the native
// correlation's reference is dropped.
func (s *Socket) Closed(code int, reason string) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()

	if code != CloseNormal && code != CloseGoingAway {
		metrics.IncErrors()
	}
	s.delegate.OnClose(code, reason)
	s.factory.Dispose(s)
	metrics.DecSockets()
	refs.Release(s)
}

// misuse records an out-of-order call from a misbehaving transport or
// engine layer. A silent no-op apart from the log line.
func (s *Socket) misuse(op string, st State) {
	log.Printf("socket %s: %s ignored in state %s", s.addr.String(), op, st)
}
