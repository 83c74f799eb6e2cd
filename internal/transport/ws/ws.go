// Package ws is the bundled TCP/TLS transport factory: a websocket client
// built on nhooyr.io/websocket. It is registered lazily by the root package
// when the first connection is created and no application factory has been
// registered; an explicit registration always wins.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/proxy"
	"nhooyr.io/websocket"

	"peerwire/internal/config"
	"peerwire/internal/endpoint"
	"peerwire/internal/socket"
	"peerwire/internal/tlsutil"
)

const (
	defaultDialTimeout = 15 * time.Second
	defaultReadWindow  = 256 << 10 // delivered-but-unacked bytes before reads pause
	maxMessageSize     = 16 << 20
)

// Factory implements socket.Factory and socket.RequestCloser over websocket
// connections. One Factory serves every connection; per-connection state
// lives in the socket's native handle.
type Factory struct {
	DialTimeout time.Duration
	ReadWindow  int
}

func NewFactory() *Factory {
	return &Factory{
		DialTimeout: defaultDialTimeout,
		ReadWindow:  defaultReadWindow,
	}
}

// FramesMessages is true: websocket delivers whole messages, the engine
// does not frame the stream itself.
func (f *Factory) FramesMessages() bool { return true }

// conn is the native handle correlated with one socket.
type conn struct {
	sock   *socket.Socket
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	cond    *sync.Cond
	ws      *websocket.Conn // nil until the dial finishes
	queue   [][]byte        // buffers owned by this factory until written
	unacked int64
	window  int64
	closed  bool
}

func (f *Factory) Open(s *socket.Socket, addr endpoint.View, opts config.Options) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		sock:   s,
		ctx:    ctx,
		cancel: cancel,
		window: int64(f.ReadWindow),
	}
	c.cond = sync.NewCond(&c.mu)
	if v := opts.Value(config.OptReadWindow); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.window = int64(n)
		}
	}
	s.SetNative(c)

	// The view is only valid for this call; copy before leaving it.
	a := endpoint.FromView(addr)
	go f.dial(c, a, opts.Clone())
}

func (f *Factory) dial(c *conn, addr endpoint.Address, opts config.Options) {
	url, dialOpts, err := f.dialOptions(addr, opts)
	if err != nil {
		c.sock.Closed(socket.CloseAbnormal, err.Error())
		return
	}

	dialCtx, cancel := context.WithTimeout(c.ctx, f.DialTimeout)
	defer cancel()
	ws, _, err := websocket.Dial(dialCtx, url, dialOpts)
	if err != nil {
		code, reason := closeInfo(err)
		c.sock.Closed(code, reason)
		return
	}
	ws.SetReadLimit(maxMessageSize)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = ws.Close(websocket.StatusGoingAway, "canceled")
		c.sock.Closed(socket.CloseAbnormal, "closed before open completed")
		return
	}
	c.ws = ws
	c.mu.Unlock()

	c.sock.Opened()
	go c.writeLoop()
	c.readLoop()
}

// dialOptions turns the resolved endpoint and pass-through options into a
// websocket dial target.
func (f *Factory) dialOptions(addr endpoint.Address, opts config.Options) (string, *websocket.DialOptions, error) {
	scheme := "ws"
	switch strings.ToLower(addr.Scheme) {
	case "wss", "https", "blips":
		scheme = "wss"
	}
	url := fmt.Sprintf("%s://%s:%d%s", scheme, addr.Host, addr.Port, addr.Path)

	header := http.Header{}
	for _, kv := range opts {
		if name, ok := strings.CutPrefix(kv.Key, config.OptHeaderPrefix); ok {
			header.Add(name, kv.Value)
		}
	}

	tlsCfg, err := tlsutil.FromOptions(opts)
	if err != nil {
		return "", nil, err
	}

	dialer := (&net.Dialer{Timeout: f.DialTimeout}).DialContext
	if socksAddr := opts.Value(config.OptProxySOCKS5); socksAddr != "" {
		var auth *proxy.Auth
		if u := opts.Value(config.OptProxyUsername); u != "" {
			auth = &proxy.Auth{User: u, Password: opts.Value(config.OptProxyPassword)}
		}
		socks, err := proxy.SOCKS5("tcp", socksAddr, auth, &net.Dialer{Timeout: f.DialTimeout})
		if err != nil {
			return "", nil, fmt.Errorf("socks5 dialer: %w", err)
		}
		dialer = func(ctx context.Context, network, address string) (net.Conn, error) {
			return socks.Dial(network, address)
		}
	}

	transport := &http.Transport{DialContext: dialer}
	if scheme == "wss" {
		transport.TLSClientConfig = tlsutil.EnsureServerName(tlsCfg, addr.Host)
	}
	dialOpts := &websocket.DialOptions{
		HTTPClient: &http.Client{Transport: transport},
		HTTPHeader: header,
	}
	return url, dialOpts, nil
}

func (c *conn) readLoop() {
	for {
		c.mu.Lock()
		for c.unacked >= c.window && !c.closed {
			c.cond.Wait()
		}
		done := c.closed
		c.mu.Unlock()
		if done {
			c.sock.Closed(socket.CloseAbnormal, "connection closed")
			return
		}

		_, data, err := c.ws.Read(c.ctx)
		if err != nil {
			code, reason := closeInfo(err)
			c.shutdown()
			c.sock.Closed(code, reason)
			return
		}
		c.mu.Lock()
		c.unacked += int64(len(data))
		c.mu.Unlock()
		c.sock.Received(data)
	}
}

func (c *conn) writeLoop() {
	for {
		c.mu.Lock()
		for len(c.queue) == 0 && !c.closed {
			c.cond.Wait()
		}
		if c.closed {
			c.mu.Unlock()
			return
		}
		data := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		err := c.ws.Write(c.ctx, websocket.MessageBinary, data)
		c.sock.CompletedWrite(len(data))
		if err != nil {
			c.shutdown()
			return
		}
	}
}

// shutdown cancels I/O and wakes both loops. Buffers still queued for write
// are released through CompletedWrite; they were never sent, but ownership
// returned to the engine all the same. Idempotent.
func (c *conn) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.queue
	c.queue = nil
	c.cond.Broadcast()
	c.mu.Unlock()
	c.cancel()
	for _, data := range pending {
		c.sock.CompletedWrite(len(data))
	}
}

func (f *Factory) Write(s *socket.Socket, data []byte) {
	c, ok := s.Native().(*conn)
	if !ok {
		s.CompletedWrite(len(data))
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		// Never sent, but the buffer is the factory's to release.
		s.CompletedWrite(len(data))
		return
	}
	c.queue = append(c.queue, data)
	c.cond.Broadcast()
	c.mu.Unlock()
}

func (f *Factory) CompletedReceive(s *socket.Socket, n int) {
	c, ok := s.Native().(*conn)
	if !ok {
		return
	}
	c.mu.Lock()
	c.unacked -= int64(n)
	if c.unacked < 0 {
		c.unacked = 0
	}
	c.cond.Broadcast()
	c.mu.Unlock()
}

// RequestClose starts the websocket close handshake; the read loop reports
// the resulting close status back through Closed.
func (f *Factory) RequestClose(s *socket.Socket, code int, reason string) {
	c, ok := s.Native().(*conn)
	if !ok || c == nil {
		s.Closed(code, reason)
		return
	}
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		// Still dialing; abort instead.
		c.shutdown()
		return
	}
	go func() {
		_ = ws.Close(websocket.StatusCode(code), reason)
	}()
}

func (f *Factory) Close(s *socket.Socket) {
	c, ok := s.Native().(*conn)
	if !ok || c == nil {
		// Closed before Open was ever called; nothing native to tear down.
		s.Closed(socket.CloseAbnormal, "closed before open")
		return
	}
	c.shutdown()
}

func (f *Factory) Dispose(s *socket.Socket) {
	if c, ok := s.Native().(*conn); ok && c != nil {
		c.shutdown()
		s.SetNative(nil)
	}
}

// closeInfo translates a read/dial error into a close code and reason.
func closeInfo(err error) (int, string) {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return int(ce.Code), ce.Reason
	}
	if errors.Is(err, context.Canceled) {
		return socket.CloseAbnormal, "connection aborted"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return socket.CloseAbnormal, "timed out"
	}
	return socket.CloseAbnormal, err.Error()
}

var (
	_ socket.Factory       = (*Factory)(nil)
	_ socket.RequestCloser = (*Factory)(nil)
)
