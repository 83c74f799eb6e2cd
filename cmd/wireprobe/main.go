// wireprobe dials a replication endpoint through the bundled transport and
// reports the connection lifecycle. It is a smoke-test tool: point it at a
// sync endpoint to verify reachability, TLS settings, and proxy options
// without a replication engine in the loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"peerwire"
	"peerwire/internal/config"
	"peerwire/internal/metrics"
	"peerwire/internal/refs"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	reloader, err := config.NewReloadable(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	defer reloader.Close()
	cfg := reloader.Get()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if cfg.Metrics.Listen != "" {
		go serveMetrics(cfg.Metrics)
	}

	redialCh := make(chan *config.Config, 1)
	reloader.Watch(func(old, next *config.Config) {
		select {
		case redialCh <- next:
		default:
		}
	})

	runCtx, runCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go runProbe(runCtx, cfg, errCh)

	for {
		select {
		case <-ctx.Done():
			runCancel()
			<-errCh
			return
		case next := <-redialCh:
			nextAddr := next.Address()
			log.Printf("config reloaded: redialing %s", nextAddr.String())
			runCancel()
			<-errCh
			runCtx, runCancel = context.WithCancel(ctx)
			errCh = make(chan error, 1)
			go runProbe(runCtx, next, errCh)
		case err := <-errCh:
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				log.Printf("probe failed: %v", err)
			}
			time.Sleep(2 * time.Second)
			runCtx, runCancel = context.WithCancel(ctx)
			errCh = make(chan error, 1)
			go runProbe(runCtx, reloader.Get(), errCh)
		}
	}
}

func handleSignals(cancel context.CancelFunc) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancel()
}

func serveMetrics(m config.Metrics) {
	h := metrics.Handler(metrics.NewRegistry(), m.Pprof)
	log.Printf("metrics listening on %s", m.Listen)
	if err := http.ListenAndServe(m.Listen, h); err != nil {
		log.Printf("metrics server: %v", err)
	}
}

// probeDelegate logs lifecycle events and surfaces the close outcome.
type probeDelegate struct {
	addr   peerwire.Address
	sock   *peerwire.Socket // set before Open
	opened chan struct{}
	closed chan error
}

func (d *probeDelegate) OnOpen() {
	log.Printf("connected to %s", d.addr.String())
	select {
	case d.opened <- struct{}{}:
	default:
	}
}

func (d *probeDelegate) OnBytes(data []byte) {
	log.Printf("received %d bytes", len(data))
	d.sock.ReceiveComplete(len(data))
}

func (d *probeDelegate) OnClose(code int, reason string) {
	log.Printf("closed: code=%d reason=%q", code, reason)
	var err error
	if code != peerwire.CloseNormal && code != peerwire.CloseGoingAway {
		err = &closeError{code: code, reason: reason}
	}
	select {
	case d.closed <- err:
	default:
	}
}

type closeError struct {
	code   int
	reason string
}

func (e *closeError) Error() string {
	return fmt.Sprintf("connection closed: code=%d reason=%q", e.code, e.reason)
}

func runProbe(ctx context.Context, cfg *config.Config, errCh chan<- error) {
	d := &probeDelegate{
		addr:   cfg.Address(),
		opened: make(chan struct{}, 1),
		closed: make(chan error, 1),
	}
	s, err := peerwire.NewConnection(cfg.Address(), cfg.Options, d)
	if err != nil {
		errCh <- err
		return
	}
	d.sock = s
	h := refs.Adopt(s)
	defer h.Release()

	addr := cfg.Address()
	log.Printf("dialing %s", addr.String())
	s.Open()

	for {
		select {
		case <-ctx.Done():
			s.RequestClose(peerwire.CloseGoingAway, "wireprobe shutting down")
			select {
			case err := <-d.closed:
				errCh <- err
			case <-time.After(5 * time.Second):
				s.CloseSocket()
				errCh <- <-d.closed
			}
			return
		case err := <-d.closed:
			errCh <- err
			return
		case <-d.opened:
			// Stay connected; acks keep the receive window open.
		}
	}
}
