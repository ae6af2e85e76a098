// Package metrics accumulates operation outcomes from concurrent workers and
// samples pool state on a timer. Both sides are cheap enough to run inside a
// benchmark without becoming the thing being measured.
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/influxdata/tdigest"
	"go.uber.org/zap"
)

// OpKind tags an operation as a read or a write.
type OpKind string

const (
	OpRead  OpKind = "read"
	OpWrite OpKind = "write"
)

// Percentiles reported by every summary, ascending.
var summaryPercentiles = []float64{50, 75, 90, 95, 99, 99.9}

// SummaryStatistics is a point-in-time summary derived from the aggregator.
type SummaryStatistics struct {
	TotalOperations  int64
	TotalErrors      int64
	ErrorRatePercent float64
	MeanLatencyMs    float64
	MaxLatencyMs     float64
	// Percentiles maps percentile (50, 75, 90, 95, 99, 99.9) to latency in ms.
	Percentiles map[float64]float64
	// ErrorsByKind counts failures per failure kind.
	ErrorsByKind map[string]int64
	// Acquire-wait distribution, measured at the pool boundary.
	AvgAcquireWaitMs float64
	P99AcquireWaitMs float64
}

// LatencyP returns the given latency percentile, 0 when absent.
func (s SummaryStatistics) LatencyP(p float64) float64 {
	return s.Percentiles[p]
}

// Aggregator accumulates operation outcomes from many concurrent workers.
// Counters are atomic; the latency and acquire-wait sketches share one mutex.
// Percentiles come from bounded t-digest sketches, so memory stays flat no
// matter how many operations a run records.
type Aggregator struct {
	total  atomic.Int64
	errs   atomic.Int64
	reads  atomic.Int64
	writes atomic.Int64

	mu         sync.Mutex
	latency    *tdigest.TDigest
	wait       *tdigest.TDigest
	latencySum float64
	latencyMax float64
	waitSum    float64
	waitCount  int64
	errKinds   map[string]int64

	exporter *Exporter
	logger   *zap.Logger
}

// NewAggregator creates an empty aggregator. Both arguments may be nil.
func NewAggregator(exporter *Exporter, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		latency:  tdigest.NewWithCompression(1000),
		wait:     tdigest.NewWithCompression(1000),
		errKinds: make(map[string]int64),
		exporter: exporter,
		logger:   logger,
	}
}

// Record adds one operation outcome. failureKind is empty on success and names
// the failure class otherwise (e.g. "acquire_timeout", "exec_error"). Safe for
// concurrent use.
func (a *Aggregator) Record(kind OpKind, d time.Duration, failureKind string) {
	ms := float64(d.Microseconds()) / 1000.0

	a.total.Add(1)
	if kind == OpRead {
		a.reads.Add(1)
	} else {
		a.writes.Add(1)
	}
	success := failureKind == ""
	if !success {
		a.errs.Add(1)
	}

	a.mu.Lock()
	a.latency.Add(ms, 1)
	a.latencySum += ms
	if ms > a.latencyMax {
		a.latencyMax = ms
	}
	if !success {
		a.errKinds[failureKind]++
	}
	a.mu.Unlock()

	if a.exporter != nil {
		a.exporter.RecordOperation(string(kind), ms, success)
	}
	if !success {
		a.logger.Debug("operation failed",
			zap.String("kind", string(kind)), zap.String("failure", failureKind))
	}
}

// RecordAcquireWait adds one measured pool acquire wait.
func (a *Aggregator) RecordAcquireWait(d time.Duration) {
	ms := float64(d.Microseconds()) / 1000.0
	a.mu.Lock()
	a.wait.Add(ms, 1)
	a.waitSum += ms
	a.waitCount++
	a.mu.Unlock()
	if a.exporter != nil {
		a.exporter.RecordAcquireWait(ms)
	}
}

// Snapshot derives SummaryStatistics from the current state. Safe to call
// while recording continues; records in flight land on either side of the
// snapshot. Read-only: querying percentiles does not mutate the sketches.
func (a *Aggregator) Snapshot() SummaryStatistics {
	total := a.total.Load()
	errs := a.errs.Load()

	s := SummaryStatistics{
		TotalOperations: total,
		TotalErrors:     errs,
		Percentiles:     make(map[float64]float64, len(summaryPercentiles)),
		ErrorsByKind:    make(map[string]int64),
	}
	if total > 0 {
		s.ErrorRatePercent = float64(errs) / float64(total) * 100
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if total > 0 {
		s.MeanLatencyMs = a.latencySum / float64(total)
		s.MaxLatencyMs = a.latencyMax
		for _, p := range summaryPercentiles {
			s.Percentiles[p] = sanitize(a.latency.Quantile(p / 100))
		}
	} else {
		for _, p := range summaryPercentiles {
			s.Percentiles[p] = 0
		}
	}
	if a.waitCount > 0 {
		s.AvgAcquireWaitMs = a.waitSum / float64(a.waitCount)
		s.P99AcquireWaitMs = sanitize(a.wait.Quantile(0.99))
	}
	for k, v := range a.errKinds {
		s.ErrorsByKind[k] = v
	}
	return s
}

// Reset clears all state. Called between sweep iterations so percentiles from
// one configuration never contaminate the next.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.latency = tdigest.NewWithCompression(1000)
	a.wait = tdigest.NewWithCompression(1000)
	a.latencySum = 0
	a.latencyMax = 0
	a.waitSum = 0
	a.waitCount = 0
	a.errKinds = make(map[string]int64)
	a.mu.Unlock()

	a.total.Store(0)
	a.errs.Store(0)
	a.reads.Store(0)
	a.writes.Store(0)
}

// TotalOperations returns the running operation count.
func (a *Aggregator) TotalOperations() int64 { return a.total.Load() }

// TotalErrors returns the running failure count.
func (a *Aggregator) TotalErrors() int64 { return a.errs.Load() }

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
