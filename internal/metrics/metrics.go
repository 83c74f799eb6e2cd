// Package metrics keeps cheap process-wide counters for the transport
// bridge. Counters are plain atomics so the hot paths never take a lock;
// the Prometheus view in prom.go reads the same atomics.
package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot is the JSON shape served by the status endpoint.
type Snapshot struct {
	SocketsTotal     int64 `json:"sockets_total"`
	SocketsOpen      int64 `json:"sockets_open"`
	BytesReceived    int64 `json:"bytes_received_total"`
	BytesSent        int64 `json:"bytes_sent_total"`
	MessagesReceived int64 `json:"messages_received_total"`
	MessagesSent     int64 `json:"messages_sent_total"`
	TransportErrors  int64 `json:"transport_errors_total"`
	ObjectsLive      int64 `json:"objects_live"`
	UpdatedUnix      int64 `json:"updated_unix"`
}

var (
	socketsTotal     atomic.Int64
	socketsOpen      atomic.Int64
	bytesReceived    atomic.Int64
	bytesSent        atomic.Int64
	messagesReceived atomic.Int64
	messagesSent     atomic.Int64
	transportErrors  atomic.Int64

	// liveObjects is fed by the ownership core's leak-tracked count; the
	// bridge stores it here so the status page can show it. Held in an
	// atomic.Value because the hook is installed lazily, possibly after the
	// metrics handler has started serving.
	liveObjects atomic.Value // func() int64
)

func IncSockets() { socketsTotal.Add(1); socketsOpen.Add(1) }
func DecSockets() { socketsOpen.Add(-1) }
func IncErrors()  { transportErrors.Add(1) }

func AddReceived(n int64) {
	if n > 0 {
		bytesReceived.Add(n)
		messagesReceived.Add(1)
	}
}

func AddSent(n int64) {
	if n > 0 {
		bytesSent.Add(n)
		messagesSent.Add(1)
	}
}

// SetLiveObjectsFunc installs the source of the live-object diagnostic.
// Safe to call while snapshots are being served.
func SetLiveObjectsFunc(fn func() int64) { liveObjects.Store(fn) }

func liveObjectCount() int64 {
	if fn, ok := liveObjects.Load().(func() int64); ok && fn != nil {
		return fn()
	}
	return 0
}

// SnapshotData returns a point-in-time copy of all counters.
func SnapshotData() Snapshot {
	return Snapshot{
		SocketsTotal:     socketsTotal.Load(),
		SocketsOpen:      socketsOpen.Load(),
		BytesReceived:    bytesReceived.Load(),
		BytesSent:        bytesSent.Load(),
		MessagesReceived: messagesReceived.Load(),
		MessagesSent:     messagesSent.Load(),
		TransportErrors:  transportErrors.Load(),
		ObjectsLive:      liveObjectCount(),
		UpdatedUnix:      time.Now().Unix(),
	}
}

// Reset zeroes every counter. Test helper.
func Reset() {
	socketsTotal.Store(0)
	socketsOpen.Store(0)
	bytesReceived.Store(0)
	bytesSent.Store(0)
	messagesReceived.Store(0)
	messagesSent.Store(0)
	transportErrors.Store(0)
}
