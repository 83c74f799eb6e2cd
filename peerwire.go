// Package peerwire bridges a replication engine onto pluggable byte
// transports. The engine talks to connection objects; an application (or the
// bundled websocket factory) supplies the raw I/O underneath them.
//
// Applications that bring their own transport call RegisterFactory once at
// startup. Applications that do not get the bundled TCP/TLS websocket
// factory, registered lazily when the first connection is created.
package peerwire

import (
	"peerwire/internal/config"
	"peerwire/internal/endpoint"
	"peerwire/internal/socket"
	"peerwire/internal/transport/ws"
)

// Re-exported connection types. The engine-facing surface lives on
// socket.Socket; these aliases keep embedders out of internal paths.
type (
	Socket    = socket.Socket
	Delegate  = socket.Delegate
	Callbacks = socket.Callbacks
	Factory   = socket.Factory
	Address   = endpoint.Address
	Database  = endpoint.Database
	Options   = config.Options
	Option    = config.Option
)

// Close codes passed to Delegate.OnClose and RequestClose.
const (
	CloseNormal        = socket.CloseNormal
	CloseGoingAway     = socket.CloseGoingAway
	CloseProtocolError = socket.CloseProtocolError
	CloseAbnormal      = socket.CloseAbnormal
	ClosePolicyError   = socket.ClosePolicyError
)

var (
	ErrIncompleteFactory = socket.ErrIncompleteFactory
	ErrAlreadyRegistered = socket.ErrAlreadyRegistered
)

// registry returns the process-wide transport registry with the bundled
// websocket factory wired as its fallback.
func registry() *socket.Registry {
	r := socket.Default()
	r.SetFallback(func() socket.Factory { return ws.NewFactory() })
	return r
}

// Register installs the application's transport callbacks. Must run before
// the first connection is created; afterwards the bundled factory has already
// claimed the slot. Registering an equal set again is a no-op.
func Register(cb Callbacks) error {
	return registry().Register(cb)
}

// RegisterFactory installs a linked-in Factory implementation instead of a
// callback set.
func RegisterFactory(f Factory) error {
	return registry().RegisterFactory(f)
}

// NewConnection creates the connection object for addr. Nothing is dialed
// until the engine calls Open on the result.
func NewConnection(addr Address, opts Options, d Delegate) (*Socket, error) {
	return registry().NewConnection(addr, opts, d)
}

// AdoptConnection wraps an already-established native handle, such as an
// accepted inbound peer connection, in a connection object served by f.
func AdoptConnection(f Factory, native any, addr Address, opts Options, d Delegate) *Socket {
	return registry().AdoptConnection(f, native, addr, opts, d)
}

// PeerAddress synthesizes the dialable address of a database open on this
// device, for peer-to-peer replication between co-located databases.
func PeerAddress(db Database) Address {
	return endpoint.FromDatabase(db)
}

// ResetRegistry discards the process registry so a different factory can be
// registered. Existing connections keep the factory they were created with.
// Intended for tests and embedders that re-initialize.
func ResetRegistry() {
	socket.ResetDefault()
}
