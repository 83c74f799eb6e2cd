// Package loopback is an in-process transport factory for device-to-device
// replication between databases open in the same process, and for tests.
// Published databases are looked up by logical name; dialing the peer
// address synthesized by endpoint.FromDatabase pairs two sockets through an
// in-memory pipe with byte-credit flow control.
package loopback

import (
	"strings"
	"sync"

	"peerwire/internal/config"
	"peerwire/internal/endpoint"
	"peerwire/internal/socket"
)

const defaultWindow = 64 << 10

// Acceptor builds the engine-side delegate for an inbound peer connection.
type Acceptor func(remote endpoint.Address, opts config.Options) socket.Delegate

// Binder is implemented by inbound delegates that need a reference to their
// connection. Bind runs after the connection object exists and before any
// other delegate notification.
type Binder interface {
	Bind(s *socket.Socket)
}

// Factory implements socket.Factory and socket.RequestCloser entirely
// in-process.
type Factory struct {
	reg    *socket.Registry
	Window int64

	mu        sync.Mutex
	published map[string]Acceptor
}

func NewFactory(reg *socket.Registry) *Factory {
	return &Factory{
		reg:       reg,
		Window:    defaultWindow,
		published: make(map[string]Acceptor),
	}
}

func (f *Factory) FramesMessages() bool { return true }

// Publish makes a locally open database reachable under its logical name.
func (f *Factory) Publish(db endpoint.Database, accept Acceptor) {
	f.mu.Lock()
	f.published[db.Name()] = accept
	f.mu.Unlock()
}

// Unpublish removes a database from the registry. Existing connections are
// unaffected.
func (f *Factory) Unpublish(name string) {
	f.mu.Lock()
	delete(f.published, name)
	f.mu.Unlock()
}

// pipe is one direction-owning half of a paired connection: it queues
// messages addressed to its local socket and delivers them as flow-control
// credit allows.
type pipe struct {
	local *socket.Socket
	peer  *pipe

	mu          sync.Mutex
	cond        *sync.Cond
	queue       [][]byte
	unacked     int64
	window      int64
	closed      bool
	closeCode   int
	closeReason string
}

func newPipe(local *socket.Socket, window int64) *pipe {
	p := &pipe{local: local, window: window}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (f *Factory) Open(s *socket.Socket, addr endpoint.View, opts config.Options) {
	// The inbound half arrives here already paired, via the in.Open() call
	// below; it only needs its open confirmed.
	if p, ok := s.Native().(*pipe); ok && p != nil {
		s.Opened()
		go p.run()
		return
	}

	a := endpoint.FromView(addr)
	name := strings.TrimPrefix(a.Path, "/")

	f.mu.Lock()
	accept, ok := f.published[name]
	f.mu.Unlock()
	if !ok {
		s.Closed(socket.ClosePolicyError, "no such peer database: "+name)
		return
	}

	remote := a
	remote.Name = name
	delegate := accept(remote, opts.Clone())
	in := f.reg.AdoptConnection(f, nil, remote, opts, delegate)
	if b, ok := delegate.(Binder); ok {
		b.Bind(in)
	}

	out := newPipe(s, f.Window)
	inp := newPipe(in, f.Window)
	out.peer = inp
	inp.peer = out
	s.SetNative(out)
	in.SetNative(inp)

	s.Opened()
	go out.run()
	in.Open()
}

// run delivers queued messages to the local socket, pausing while the
// delegate is behind on acks. A closed pipe drains its queue first, then
// reports the close.
func (p *pipe) run() {
	for {
		p.mu.Lock()
		for !p.deliverable() && !(p.closed && len(p.queue) == 0) {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.closed {
			code, reason := p.closeCode, p.closeReason
			p.mu.Unlock()
			p.local.Closed(code, reason)
			return
		}
		data := p.queue[0]
		p.queue = p.queue[1:]
		p.unacked += int64(len(data))
		p.mu.Unlock()
		p.local.Received(data)
	}
}

func (p *pipe) deliverable() bool {
	return len(p.queue) > 0 && p.unacked < p.window
}

func (p *pipe) enqueue(data []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.queue = append(p.queue, data)
	p.cond.Broadcast()
	return true
}

func (p *pipe) ack(n int64) {
	p.mu.Lock()
	p.unacked -= n
	if p.unacked < 0 {
		p.unacked = 0
	}
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *pipe) closeWith(code int, reason string) {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.closeCode = code
		p.closeReason = reason
		p.cond.Broadcast()
	}
	p.mu.Unlock()
}

func (f *Factory) Write(s *socket.Socket, data []byte) {
	if p, ok := s.Native().(*pipe); ok && p != nil {
		p.peer.enqueue(data)
	}
	// Delivered or dropped on a closed pipe, the buffer is released either way.
	s.CompletedWrite(len(data))
}

func (f *Factory) CompletedReceive(s *socket.Socket, n int) {
	if p, ok := s.Native().(*pipe); ok && p != nil {
		p.ack(int64(n))
	}
}

// RequestClose propagates the close code and reason to both ends; each side
// finishes delivering queued messages first.
func (f *Factory) RequestClose(s *socket.Socket, code int, reason string) {
	p, ok := s.Native().(*pipe)
	if !ok || p == nil {
		s.Closed(code, reason)
		return
	}
	p.peer.closeWith(code, reason)
	p.closeWith(code, reason)
}

func (f *Factory) Close(s *socket.Socket) {
	p, ok := s.Native().(*pipe)
	if !ok || p == nil {
		s.Closed(socket.CloseAbnormal, "closed before open")
		return
	}
	p.peer.closeWith(socket.CloseAbnormal, "peer tore down the connection")
	p.closeWith(socket.CloseAbnormal, "socket closed")
}

func (f *Factory) Dispose(s *socket.Socket) {
	s.SetNative(nil)
}

var (
	_ socket.Factory       = (*Factory)(nil)
	_ socket.RequestCloser = (*Factory)(nil)
)
