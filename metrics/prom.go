package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"poolbench/pool"
)

// Exporter publishes live benchmark metrics for Prometheus scraping.
type Exporter struct {
	operationCounter *prometheus.CounterVec
	latencyHistogram *prometheus.HistogramVec
	waitHistogram    prometheus.Histogram
	poolGauge        *prometheus.GaugeVec
	utilizationGauge *prometheus.GaugeVec
	cpuGauge         prometheus.Gauge
	memoryGauge      prometheus.Gauge
}

// NewExporter creates and registers the poolbench metric families on the
// given registerer (prometheus.DefaultRegisterer when nil).
func NewExporter(reg prometheus.Registerer) *Exporter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	e := &Exporter{
		operationCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poolbench_operations_total",
				Help: "Total number of operations by kind and status",
			},
			[]string{"kind", "status"},
		),
		latencyHistogram: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "poolbench_operation_latency_ms",
				Help:    "End-to-end operation latency in milliseconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 18), // 0.1ms to ~13s
			},
			[]string{"kind"},
		),
		waitHistogram: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "poolbench_acquire_wait_ms",
				Help:    "Pool acquire wait time in milliseconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 18),
			},
		),
		poolGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "poolbench_pool_connections",
				Help: "Pool connection counters by partition and state",
			},
			[]string{"partition", "state"},
		),
		utilizationGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "poolbench_pool_utilization_pct",
				Help: "Pool utilization percentage by partition",
			},
			[]string{"partition"},
		),
		cpuGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "poolbench_cpu_utilization_pct",
				Help: "Host CPU utilization percentage",
			},
		),
		memoryGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "poolbench_memory_usage_pct",
				Help: "Host memory usage percentage",
			},
		),
	}

	reg.MustRegister(
		e.operationCounter,
		e.latencyHistogram,
		e.waitHistogram,
		e.poolGauge,
		e.utilizationGauge,
		e.cpuGauge,
		e.memoryGauge,
	)
	return e
}

// StartServer serves /metrics on addr. Blocks.
func (e *Exporter) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}

// RecordOperation records one operation outcome.
func (e *Exporter) RecordOperation(kind string, latencyMs float64, success bool) {
	status := "ok"
	if !success {
		status = "error"
	}
	e.operationCounter.WithLabelValues(kind, status).Inc()
	e.latencyHistogram.WithLabelValues(kind).Observe(latencyMs)
}

// RecordAcquireWait records one measured pool acquire wait.
func (e *Exporter) RecordAcquireWait(ms float64) {
	e.waitHistogram.Observe(ms)
}

// UpdatePool publishes one partition's sampled counters.
func (e *Exporter) UpdatePool(partition string, st pool.Stats) {
	e.poolGauge.WithLabelValues(partition, "active").Set(float64(st.Active))
	e.poolGauge.WithLabelValues(partition, "idle").Set(float64(st.Idle))
	e.poolGauge.WithLabelValues(partition, "total").Set(float64(st.Total))
	e.poolGauge.WithLabelValues(partition, "waiting").Set(float64(st.Waiting))
	e.utilizationGauge.WithLabelValues(partition).Set(st.Utilization())
}

// UpdateHost publishes host probe readings.
func (e *Exporter) UpdateHost(cpuPct, memPct float64) {
	e.cpuGauge.Set(cpuPct)
	e.memoryGauge.Set(memPct)
}
