// Package metrics constructs the metrics the application will track.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// registry holds every collector of the service so the debug mux can expose
// them without touching the global default registry.
var registry = prometheus.NewRegistry()

var auto = promauto.With(registry)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Registry returns the registry holding the collectors of the service.
func Registry() *prometheus.Registry {
	return registry
}

// This holds the single instance of the metrics value needed for
// collecting metrics.
var m = struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	panics    prometheus.Counter
	durations *prometheus.HistogramVec
}{
	requests: auto.NewCounterVec(prometheus.CounterOpts{
		Name: "node_http_requests_total",
		Help: "Number of handled http requests",
	}, []string{"route"}),
	errors: auto.NewCounterVec(prometheus.CounterOpts{
		Name: "node_http_errors_total",
		Help: "Number of http requests that ended with an error",
	}, []string{"route"}),
	panics: auto.NewCounter(prometheus.CounterOpts{
		Name: "node_http_panics_total",
		Help: "Number of recovered panics in http handlers",
	}),
	durations: auto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "node_http_request_duration_seconds",
		Help:    "Duration of handled http requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"}),
}

// AddRequest increments the request count for the route.
func AddRequest(route string) {
	m.requests.WithLabelValues(route).Inc()
}

// AddError increments the error count for the route.
func AddError(route string) {
	m.errors.WithLabelValues(route).Inc()
}

// AddPanic increments the panic count.
func AddPanic() {
	m.panics.Inc()
}

// ObserveDuration records how long the route took in seconds.
func ObserveDuration(route string, seconds float64) {
	m.durations.WithLabelValues(route).Observe(seconds)
}

// =============================================================================

// ChainSource is the behavior required to report the state of the node.
type ChainSource interface {
	QueryChainLength() uint64
	QueryMempoolLength() int
}

// RegisterChain exposes the chain and mempool sizes of the node. The values
// are read from the source every time the metrics are scraped.
func RegisterChain(src ChainSource) {
	auto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "node_chain_length",
		Help: "Index the next block of the chain will have",
	}, func() float64 {
		return float64(src.QueryChainLength())
	})

	auto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "node_mempool_transactions",
		Help: "Number of transactions waiting to be mined",
	}, func() float64 {
		return float64(src.QueryMempoolLength())
	})
}

// Counters for the events of the consensus engine.
var (
	blocksAccepted = auto.NewCounter(prometheus.CounterOpts{
		Name: "node_blocks_accepted_total",
		Help: "Number of blocks accepted from peers",
	})
	blocksRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Name: "node_blocks_rejected_total",
		Help: "Number of blocks from peers that were rejected",
	}, []string{"reason"})
)

// AddBlockAccepted increments the number of blocks accepted from peers.
func AddBlockAccepted() {
	blocksAccepted.Inc()
}

// AddBlockRejected increments the number of rejected blocks for the reason.
func AddBlockRejected(reason string) {
	blocksRejected.WithLabelValues(reason).Inc()
}
