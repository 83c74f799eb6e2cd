package loopback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerwire/internal/config"
	"peerwire/internal/endpoint"
	"peerwire/internal/refs"
	"peerwire/internal/socket"
)

type testDB string

func (d testDB) Name() string { return string(d) }

type closeEvent struct {
	code   int
	reason string
}

type chanDelegate struct {
	opened chan struct{}
	msgs   chan []byte
	closed chan closeEvent
}

func newChanDelegate() *chanDelegate {
	return &chanDelegate{
		opened: make(chan struct{}, 1),
		msgs:   make(chan []byte, 16),
		closed: make(chan closeEvent, 1),
	}
}

func (d *chanDelegate) OnOpen()             { d.opened <- struct{}{} }
func (d *chanDelegate) OnBytes(data []byte) { d.msgs <- data }
func (d *chanDelegate) OnClose(code int, reason string) {
	d.closed <- closeEvent{code, reason}
}

// echoDelegate serves the published side: acknowledge and send every message
// straight back.
type echoDelegate struct {
	sock   *socket.Socket
	closed chan closeEvent
}

func (d *echoDelegate) Bind(s *socket.Socket) { d.sock = s }
func (d *echoDelegate) OnOpen()               {}
func (d *echoDelegate) OnBytes(data []byte) {
	d.sock.ReceiveComplete(len(data))
	d.sock.Send(append([]byte(nil), data...))
}
func (d *echoDelegate) OnClose(code int, reason string) {
	d.closed <- closeEvent{code, reason}
}

func wait[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func pairWithEcho(t *testing.T, db testDB) (*Factory, *echoDelegate) {
	t.Helper()
	reg := socket.NewRegistry()
	f := NewFactory(reg)
	require.NoError(t, reg.RegisterFactory(f))

	echo := &echoDelegate{closed: make(chan closeEvent, 1)}
	f.Publish(db, func(remote endpoint.Address, opts config.Options) socket.Delegate {
		assert.Equal(t, string(db), remote.Name)
		return echo
	})
	return f, echo
}

func TestLoopbackEcho(t *testing.T) {
	f, echo := pairWithEcho(t, "inventory")

	d := newChanDelegate()
	s, err := f.reg.NewConnection(endpoint.FromDatabase(testDB("inventory")), nil, d)
	require.NoError(t, err)
	h := refs.Adopt(s)
	defer h.Release()

	s.Open()
	wait(t, d.opened, "open")
	require.Equal(t, socket.StateOpen, s.State())

	s.Send([]byte("hello"))
	got := wait(t, d.msgs, "echo")
	assert.Equal(t, []byte("hello"), got)
	s.ReceiveComplete(len(got))

	s.RequestClose(socket.CloseNormal, "done")
	ev := wait(t, d.closed, "dial-side close")
	assert.Equal(t, socket.CloseNormal, ev.code)
	assert.Equal(t, "done", ev.reason)

	// The published side sees the same code and reason.
	ev = wait(t, echo.closed, "publish-side close")
	assert.Equal(t, socket.CloseNormal, ev.code)
	assert.Equal(t, "done", ev.reason)
}

func TestLoopbackUnknownDatabase(t *testing.T) {
	reg := socket.NewRegistry()
	f := NewFactory(reg)
	require.NoError(t, reg.RegisterFactory(f))

	d := newChanDelegate()
	s, err := reg.NewConnection(endpoint.FromDatabase(testDB("nowhere")), nil, d)
	require.NoError(t, err)
	h := refs.Adopt(s)
	defer h.Release()

	s.Open()
	ev := wait(t, d.closed, "close")
	assert.Equal(t, socket.ClosePolicyError, ev.code)
	assert.Contains(t, ev.reason, "nowhere")
}

func TestLoopbackFlowControl(t *testing.T) {
	reg := socket.NewRegistry()
	f := NewFactory(reg)
	f.Window = 8 // smaller than two payloads, so delivery must wait on acks
	require.NoError(t, reg.RegisterFactory(f))

	received := make(chan []byte, 16)
	var inbound *socket.Socket
	f.Publish(testDB("queue"), func(endpoint.Address, config.Options) socket.Delegate {
		d := newChanDelegate()
		go func() {
			for {
				select {
				case data := <-d.msgs:
					received <- data
					inbound.ReceiveComplete(len(data))
				case <-d.closed:
					return
				}
			}
		}()
		return &bindingDelegate{chanDelegate: d, bind: func(s *socket.Socket) { inbound = s }}
	})

	d := newChanDelegate()
	s, err := reg.NewConnection(endpoint.FromDatabase(testDB("queue")), nil, d)
	require.NoError(t, err)
	h := refs.Adopt(s)
	defer h.Release()

	s.Open()
	wait(t, d.opened, "open")

	payloads := []string{"aaaaaa", "bbbbbb", "cccccc"}
	for _, p := range payloads {
		s.Send([]byte(p))
	}
	for _, p := range payloads {
		assert.Equal(t, []byte(p), wait(t, received, "delivery"))
	}

	s.RequestClose(socket.CloseNormal, "")
	wait(t, d.closed, "close")
}

type bindingDelegate struct {
	*chanDelegate
	bind func(*socket.Socket)
}

func (d *bindingDelegate) Bind(s *socket.Socket) { d.bind(s) }

func TestLoopbackUnpublish(t *testing.T) {
	f, _ := pairWithEcho(t, "books")
	f.Unpublish("books")

	d := newChanDelegate()
	s, err := f.reg.NewConnection(endpoint.FromDatabase(testDB("books")), nil, d)
	require.NoError(t, err)
	h := refs.Adopt(s)
	defer h.Release()

	s.Open()
	ev := wait(t, d.closed, "close")
	assert.Equal(t, socket.ClosePolicyError, ev.code)
}

func TestLoopbackNoLeakedSockets(t *testing.T) {
	baseline := refs.LiveInstances()

	f, echo := pairWithEcho(t, "inventory")

	d := newChanDelegate()
	s, err := f.reg.NewConnection(endpoint.FromDatabase(testDB("inventory")), nil, d)
	require.NoError(t, err)
	h := refs.Adopt(s)

	s.Open()
	wait(t, d.opened, "open")
	s.Send([]byte("ping"))
	s.ReceiveComplete(len(wait(t, d.msgs, "echo")))
	s.RequestClose(socket.CloseNormal, "done")
	wait(t, d.closed, "dial-side close")
	wait(t, echo.closed, "publish-side close")
	h.Release()

	assert.Eventually(t, func() bool {
		return refs.LiveInstances() == baseline
	}, 5*time.Second, 10*time.Millisecond)
}
