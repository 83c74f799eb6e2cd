package socket

import (
	"fmt"
	"reflect"
	"strings"

	"peerwire/internal/config"
	"peerwire/internal/endpoint"
)

// Factory supplies the raw I/O operations for connections. One factory
// serves every connection in the process; per-connection state hangs off the
// Socket's native handle. All operations are fire-and-forget: completion and
// failure come back later through the Socket's native-side entry points
// (Opened, Received, CompletedWrite, Closed).
type Factory interface {
	// Open starts connecting s to addr. addr's spans are only valid for
	// the duration of the call.
	Open(s *Socket, addr endpoint.View, opts config.Options)

	// Write sends one message. Ownership of data transfers to the factory;
	// it must call s.CompletedWrite exactly once when the buffer is done.
	Write(s *Socket, data []byte)

	// CompletedReceive tells the native side that n previously delivered
	// bytes have been consumed, bounding how far ahead it may read.
	CompletedReceive(s *Socket, n int)

	// Close tears the connection down unconditionally. The native side
	// confirms with s.Closed.
	Close(s *Socket)

	// Dispose releases per-connection native resources. Called exactly
	// once, after the close notification has been delivered.
	Dispose(s *Socket)

	// FramesMessages reports whether the factory exchanges pre-framed
	// messages (true) or a raw byte stream the engine frames itself.
	FramesMessages() bool
}

// RequestCloser is the optional graceful-shutdown slot. Factories that do
// not implement it get an unconditional Close instead.
type RequestCloser interface {
	RequestClose(s *Socket, code int, reason string)
}

// Callbacks is the embedder-facing shape of a transport factory: a set of
// operation slots supplied by the application. RequestClose is optional;
// every other slot is required.
type Callbacks struct {
	Open             func(s *Socket, addr endpoint.View, opts config.Options)
	Write            func(s *Socket, data []byte)
	CompletedReceive func(s *Socket, n int)
	RequestClose     func(s *Socket, code int, reason string)
	Close            func(s *Socket)
	Dispose          func(s *Socket)

	// FramesMessages mirrors Factory.FramesMessages.
	FramesMessages bool
}

func (c Callbacks) validate() error {
	var missing []string
	if c.Open == nil {
		missing = append(missing, "Open")
	}
	if c.Write == nil {
		missing = append(missing, "Write")
	}
	if c.CompletedReceive == nil {
		missing = append(missing, "CompletedReceive")
	}
	if c.Close == nil {
		missing = append(missing, "Close")
	}
	if c.Dispose == nil {
		missing = append(missing, "Dispose")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrIncompleteFactory, strings.Join(missing, ", "))
	}
	return nil
}

// equal implements the field-level exact-match test used to decide whether
// a re-registered factory is the same one: every slot must point at the same
// code and the framing flag must match.
func (c Callbacks) equal(o Callbacks) bool {
	return fnPtr(c.Open) == fnPtr(o.Open) &&
		fnPtr(c.Write) == fnPtr(o.Write) &&
		fnPtr(c.CompletedReceive) == fnPtr(o.CompletedReceive) &&
		fnPtr(c.RequestClose) == fnPtr(o.RequestClose) &&
		fnPtr(c.Close) == fnPtr(o.Close) &&
		fnPtr(c.Dispose) == fnPtr(o.Dispose) &&
		c.FramesMessages == o.FramesMessages
}

func fnPtr(fn any) uintptr {
	v := reflect.ValueOf(fn)
	if v.IsNil() {
		return 0
	}
	return v.Pointer()
}

// callbackFactory adapts a Callbacks value to the Factory interface.
type callbackFactory struct {
	cb Callbacks
}

// requestClosingFactory is the variant used when the optional RequestClose
// slot is present, so that capability probing via type assertion works.
type requestClosingFactory struct {
	callbackFactory
}

func newCallbackFactory(cb Callbacks) Factory {
	if cb.RequestClose != nil {
		return &requestClosingFactory{callbackFactory{cb: cb}}
	}
	return &callbackFactory{cb: cb}
}

func (f *callbackFactory) Open(s *Socket, addr endpoint.View, opts config.Options) {
	f.cb.Open(s, addr, opts)
}
func (f *callbackFactory) Write(s *Socket, data []byte)      { f.cb.Write(s, data) }
func (f *callbackFactory) CompletedReceive(s *Socket, n int) { f.cb.CompletedReceive(s, n) }
func (f *callbackFactory) Close(s *Socket)                   { f.cb.Close(s) }
func (f *callbackFactory) Dispose(s *Socket)                 { f.cb.Dispose(s) }
func (f *callbackFactory) FramesMessages() bool              { return f.cb.FramesMessages }

func (f *requestClosingFactory) RequestClose(s *Socket, code int, reason string) {
	f.cb.RequestClose(s, code, reason)
}
