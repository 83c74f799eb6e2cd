package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry builds a Prometheus registry exposing the bridge counters
// alongside the standard Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "peerwire_sockets_total", Help: "Connections created since start.",
	}, func() float64 { return float64(socketsTotal.Load()) }))
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "peerwire_sockets_open", Help: "Connections currently open.",
	}, func() float64 { return float64(socketsOpen.Load()) }))
	reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "peerwire_bytes_received_total", Help: "Message bytes delivered by native transports.",
	}, func() float64 { return float64(bytesReceived.Load()) }))
	reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "peerwire_bytes_sent_total", Help: "Message bytes handed to native transports.",
	}, func() float64 { return float64(bytesSent.Load()) }))
	reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "peerwire_transport_errors_total", Help: "Connections closed with a non-normal code.",
	}, func() float64 { return float64(transportErrors.Load()) }))
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "peerwire_objects_live", Help: "Leak-tracked refcounted objects alive.",
	}, func() float64 { return float64(liveObjectCount()) }))
	return reg
}

// Handler serves /metrics (Prometheus text format), /status.json and,
// when pprofEnabled, the /debug/pprof endpoints.
func Handler(reg *prometheus.Registry, pprofEnabled bool) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/status.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(SnapshotData())
	})
	if pprofEnabled {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}
