package flow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics exposes Flow's execution counters and gauges to a
// Prometheus registry, namespaced "flow":
//
//  1. resident_nodes (gauge): nodes currently holding initialized state.
//  2. node_init_total (counter): Init calls, labeled by node.
//  3. node_release_total (counter): Release calls, labeled by node.
//  4. cache_hit_total / cache_miss_total (counters): value store lookups.
//  5. process_latency_ms (histogram): Process call duration, labeled by
//     node and outcome.
//  6. batch_item_failures_total (counter): items a BatchRunner could not
//     complete, labeled by failing node.
type PrometheusMetrics struct {
	residentNodes prometheus.Gauge
	nodeInit      *prometheus.CounterVec
	nodeRelease   *prometheus.CounterVec
	cacheHit      *prometheus.CounterVec
	cacheMiss     *prometheus.CounterVec
	processLat    *prometheus.HistogramVec
	batchFailures *prometheus.CounterVec

	enabled bool
}

// NewPrometheusMetrics registers Flow's metrics with registry. Pass nil to
// use prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	pm := &PrometheusMetrics{enabled: true}

	pm.residentNodes = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "flow",
		Name:      "resident_nodes",
		Help:      "Number of nodes currently holding initialized internal state",
	})
	pm.nodeInit = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flow",
		Name:      "node_init_total",
		Help:      "Cumulative count of node Init calls",
	}, []string{"node"})
	pm.nodeRelease = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flow",
		Name:      "node_release_total",
		Help:      "Cumulative count of node Release calls",
	}, []string{"node"})
	pm.cacheHit = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flow",
		Name:      "cache_hit_total",
		Help:      "Value store lookups that matched the requested fingerprint",
	}, []string{"node"})
	pm.cacheMiss = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flow",
		Name:      "cache_miss_total",
		Help:      "Value store lookups that did not match the requested fingerprint",
	}, []string{"node"})
	pm.processLat = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "flow",
		Name:      "process_latency_ms",
		Help:      "Node Process call duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000},
	}, []string{"node", "status"})
	pm.batchFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flow",
		Name:      "batch_item_failures_total",
		Help:      "Batch items that failed to complete, labeled by the node that failed",
	}, []string{"node"})

	return pm
}

func (pm *PrometheusMetrics) setResidentNodes(n int) {
	if pm == nil || !pm.enabled {
		return
	}
	pm.residentNodes.Set(float64(n))
}

func (pm *PrometheusMetrics) recordInit(node string) {
	if pm == nil || !pm.enabled {
		return
	}
	pm.nodeInit.WithLabelValues(node).Inc()
}

func (pm *PrometheusMetrics) recordRelease(node string) {
	if pm == nil || !pm.enabled {
		return
	}
	pm.nodeRelease.WithLabelValues(node).Inc()
}

func (pm *PrometheusMetrics) recordCacheHit(node string) {
	if pm == nil || !pm.enabled {
		return
	}
	pm.cacheHit.WithLabelValues(node).Inc()
}

func (pm *PrometheusMetrics) recordCacheMiss(node string) {
	if pm == nil || !pm.enabled {
		return
	}
	pm.cacheMiss.WithLabelValues(node).Inc()
}

func (pm *PrometheusMetrics) recordProcessLatency(node string, d time.Duration, status string) {
	if pm == nil || !pm.enabled {
		return
	}
	pm.processLat.WithLabelValues(node, status).Observe(float64(d.Milliseconds()))
}

func (pm *PrometheusMetrics) recordBatchFailure(node string) {
	if pm == nil || !pm.enabled {
		return
	}
	pm.batchFailures.WithLabelValues(node).Inc()
}

// Disable stops metric recording without unregistering collectors.
func (pm *PrometheusMetrics) Disable() { pm.enabled = false }

// Enable resumes metric recording after Disable.
func (pm *PrometheusMetrics) Enable() { pm.enabled = true }
