// Package bench drives the pool-size sweep: for every configured pool size,
// workload pattern, and iteration it runs one measured load phase and distills
// the aggregated metrics into a data point for analysis.
package bench

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"poolbench/analysis"
	"poolbench/config"
	"poolbench/metrics"
	"poolbench/pool"
	"poolbench/workload"
)

// Runner owns one sweep over the configured pool sizes.
type Runner struct {
	cfg      config.Config
	pool     pool.Pool
	gen      *workload.Generator
	agg      *metrics.Aggregator
	sampler  *metrics.Sampler
	probe    *metrics.HostProbe
	exporter *metrics.Exporter
	logger   *zap.Logger
	runID    string
}

// NewRunner creates a sweep runner with a fresh run ID. exporter may be nil.
func NewRunner(cfg config.Config, p pool.Pool, gen *workload.Generator, agg *metrics.Aggregator,
	sampler *metrics.Sampler, probe *metrics.HostProbe, exporter *metrics.Exporter, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:      cfg,
		pool:     p,
		gen:      gen,
		agg:      agg,
		sampler:  sampler,
		probe:    probe,
		exporter: exporter,
		logger:   logger,
		runID:    uuid.NewString(),
	}
}

// RunID returns the identifier stamped on this sweep's artifacts.
func (r *Runner) RunID() string { return r.runID }

// Run executes the full sweep. Interrupting the context ends the sweep after
// the current phase; the data points collected so far are returned alongside
// the context error so a partial sweep can still be analyzed.
func (r *Runner) Run(ctx context.Context) ([]analysis.DataPoint, error) {
	sizes := r.cfg.Pool.Sizes
	patterns := r.cfg.Benchmark.Patterns
	iterations := r.cfg.Benchmark.Iterations

	r.logger.Info("starting sweep",
		zap.String("run_id", r.runID),
		zap.Ints("pool_sizes", sizes),
		zap.Strings("patterns", patterns),
		zap.Int("iterations", iterations))

	points := make([]analysis.DataPoint, 0, len(sizes)*len(patterns)*iterations)
	for _, size := range sizes {
		if err := r.pool.Resize(size); err != nil {
			return points, fmt.Errorf("bench: resize pool to %d: %w", size, err)
		}
		for _, pattern := range patterns {
			for iter := 1; iter <= iterations; iter++ {
				if err := ctx.Err(); err != nil {
					r.logger.Warn("sweep interrupted", zap.Error(err))
					return points, err
				}

				dp, err := r.runSingle(ctx, size, pattern, iter)
				if err != nil {
					return points, err
				}
				points = append(points, dp)

				if err := r.cooldown(ctx); err != nil {
					return points, err
				}
			}
		}
	}

	r.logger.Info("sweep complete", zap.Int("data_points", len(points)))
	return points, nil
}

// runSingle runs warmup plus one measured phase for a single configuration and
// folds the aggregator and sampler output into a data point.
func (r *Runner) runSingle(ctx context.Context, size int, pattern string, iter int) (analysis.DataPoint, error) {
	concurrency := r.concurrency(size)

	r.logger.Info("benchmarking configuration",
		zap.Int("pool_size", size),
		zap.String("pattern", pattern),
		zap.Int("iteration", iter),
		zap.Int("concurrency", concurrency))

	if warmup := r.cfg.Benchmark.Warmup(); warmup > 0 {
		if _, err := r.gen.Execute(ctx, pattern, warmupConcurrency(size), warmup); err != nil {
			return analysis.DataPoint{}, fmt.Errorf("bench: warmup: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return analysis.DataPoint{}, err
		}
	}

	// Warmup traffic must not leak into the measured phase.
	r.agg.Reset()
	r.sampler.Clear()
	r.publishHost()

	r.sampler.Start()
	result, err := r.gen.Execute(ctx, pattern, concurrency, r.cfg.Benchmark.Duration())
	r.sampler.Stop()
	if err != nil {
		return analysis.DataPoint{}, fmt.Errorf("bench: measured phase: %w", err)
	}

	summary := r.agg.Snapshot()
	samples := r.sampler.Statistics()
	r.publishHost()

	dp := analysis.DataPoint{
		PoolSize:         size,
		PartitionCount:   len(r.pool.Partitions()),
		ThroughputOps:    result.Throughput(),
		LatencyP50Ms:     summary.LatencyP(50),
		LatencyP90Ms:     summary.LatencyP(90),
		LatencyP95Ms:     summary.LatencyP(95),
		LatencyP99Ms:     summary.LatencyP(99),
		LatencyP999Ms:    summary.LatencyP(99.9),
		ErrorRatePercent: summary.ErrorRatePercent,
		AvgUtilization:   samples.AvgUtilization,
		WorkloadPattern:  result.Pattern,
		AvgAcquireWaitMs: summary.AvgAcquireWaitMs,
		P99AcquireWaitMs: summary.P99AcquireWaitMs,
		PeakWaiting:      samples.PeakWaiting,
		TotalCPUs:        r.probe.CPUCount(),
	}

	r.logger.Info("configuration done",
		zap.Int("pool_size", size),
		zap.Float64("throughput_ops", dp.ThroughputOps),
		zap.Float64("latency_p99_ms", dp.LatencyP99Ms),
		zap.Float64("error_rate_pct", dp.ErrorRatePercent),
		zap.Float64("avg_utilization", dp.AvgUtilization),
		zap.Int("peak_waiting", dp.PeakWaiting))
	return dp, nil
}

// concurrency derives the worker count for a pool size: a multiple of the size
// so the pool boundary queues, capped to keep scheduler overhead sane.
func (r *Runner) concurrency(size int) int {
	c := size * r.cfg.Benchmark.ConcurrencyMultiplier
	if max := r.cfg.Benchmark.MaxConcurrency; max > 0 && c > max {
		c = max
	}
	if c < 1 {
		c = 1
	}
	return c
}

// warmupConcurrency is half the pool size, capped at 100, at least 1. Enough
// to populate the pool without stressing it.
func warmupConcurrency(size int) int {
	c := size / 2
	if c > 100 {
		c = 100
	}
	if c < 1 {
		c = 1
	}
	return c
}

// cooldown lets the backend drain between iterations.
func (r *Runner) cooldown(ctx context.Context) error {
	d := r.cfg.Benchmark.Cooldown()
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) publishHost() {
	if r.exporter == nil {
		return
	}
	host := r.probe.Read()
	r.exporter.UpdateHost(host.CPUUtilization, host.MemoryUsage)
}
