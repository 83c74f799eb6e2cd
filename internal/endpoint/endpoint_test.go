package endpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDB string

func (d fakeDB) Name() string { return string(d) }

func TestViewRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		addr Address
	}{
		{"typical", Address{Scheme: "wss", Host: "sync.example.com", Port: 4984, Path: "/inventory"}},
		{"empty path", Address{Scheme: "ws", Host: "peer.local", Port: 4984}},
		{"non-default port", Address{Scheme: "ws", Host: "10.0.0.7", Port: 59840, Path: "/scratch"}},
		{"peer derived", FromDatabase(fakeDB("tasks"))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FromView(tc.addr.View())
			// Name does not cross the boundary; compare the shared fields.
			want := tc.addr
			want.Name = ""
			assert.Equal(t, want, got)
		})
	}
}

func TestViewIsACopyBoundary(t *testing.T) {
	buf := []byte("ws")
	v := View{Scheme: buf, Host: []byte("peer.local"), Port: 4984, Path: []byte("/db")}
	a := FromView(v)
	buf[0] = 'X' // caller reuses its buffer after the call returns
	assert.Equal(t, "ws", a.Scheme)
}

func TestFromViewNamedOverridesPath(t *testing.T) {
	v := View{Scheme: []byte("ws"), Host: []byte("peer.local"), Port: 4984, Path: []byte("/placeholder")}
	a := FromViewNamed(v, "inventory")
	assert.Equal(t, "/inventory", a.Path)
	assert.Equal(t, "inventory", a.Name)
	assert.Equal(t, "peer.local", a.Host)
}

func TestFromDatabase(t *testing.T) {
	a := FromDatabase(fakeDB("inventory"))
	require.Equal(t, LocalScheme, a.Scheme)
	assert.Equal(t, "localhost", a.Host)
	assert.Equal(t, "/inventory", a.Path)
	assert.Equal(t, "inventory", a.Name)
	assert.NotZero(t, a.Port)
}

func TestString(t *testing.T) {
	a := Address{Scheme: "wss", Host: "sync.example.com", Port: 443, Path: "/inventory"}
	assert.Equal(t, "wss://sync.example.com:443/inventory", a.String())
}
