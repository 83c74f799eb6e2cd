// Package endpoint describes replication connection endpoints and converts
// between the owned form used inside the engine and the borrowed form that
// crosses the embedding boundary. Conversions are pure field copies: no
// validation happens here. A malformed endpoint is only detected when a
// connection attempt is made.
package endpoint

import (
	"fmt"
	"strings"
)

// LocalScheme is the fixed scheme of peer addresses synthesized from a
// locally open database. Nothing ever dials it over the network; the
// loopback transport resolves it in-process.
const LocalScheme = "x-local"

// Database is the minimal view of a locally open database this package
// needs. The storage engine behind it lives elsewhere.
type Database interface {
	// Name returns the database's logical name.
	Name() string
}

// Address is the owned endpoint descriptor.
type Address struct {
	Scheme string
	Host   string
	Port   uint16 // 1-65535 for dialable endpoints; not checked here
	Path   string
	Name   string // logical target name, empty when unknown
}

// View is the borrowed form of an Address. Its byte fields alias memory
// owned by the caller and are valid only for the duration of the call they
// are passed to; copy anything that must outlive the call.
type View struct {
	Scheme []byte
	Host   []byte
	Port   uint16
	Path   []byte
}

// View returns the borrowed form of a. The string conversions copy, so the
// spans are independent of a; receivers must still treat them as valid only
// for the call they arrive on.
func (a *Address) View() View {
	return View{
		Scheme: []byte(a.Scheme),
		Host:   []byte(a.Host),
		Port:   a.Port,
		Path:   []byte(a.Path),
	}
}

// FromView copies v into an owned Address.
func FromView(v View) Address {
	return Address{
		Scheme: string(v.Scheme),
		Host:   string(v.Host),
		Port:   v.Port,
		Path:   string(v.Path),
	}
}

// FromViewNamed copies v into an owned Address with the path overridden by
// the logical target name. Used on accept, when the name only becomes known
// during the handshake.
func FromViewNamed(v View, name string) Address {
	a := FromView(v)
	a.Path = "/" + strings.TrimPrefix(name, "/")
	a.Name = name
	return a
}

// FromDatabase synthesizes the peer address of a locally open database, for
// device-to-device replication without a URL.
func FromDatabase(db Database) Address {
	name := db.Name()
	return Address{
		Scheme: LocalScheme,
		Host:   "localhost",
		Port:   1,
		Path:   "/" + name,
		Name:   name,
	}
}

// String renders a in URL-ish form for logs.
func (a *Address) String() string {
	return fmt.Sprintf("%s://%s:%d%s", a.Scheme, a.Host, a.Port, a.Path)
}
