package workload

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"poolbench/metrics"
	"poolbench/pool"
)

// WorkloadResult summarizes one generator run.
type WorkloadResult struct {
	Pattern         string
	Concurrency     int
	TotalOperations int64
	Duration        time.Duration
}

// Throughput returns operations per second, 0 for a zero duration.
func (r WorkloadResult) Throughput() float64 {
	secs := r.Duration.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(r.TotalOperations) / secs
}

// Generator drives concurrent logical workers against the pool. Workers are
// goroutines, so concurrency may exceed the pool size by a large factor (the
// sweep driver uses ~10x) to manufacture queueing at the pool boundary without
// the scheduler itself becoming the bottleneck.
type Generator struct {
	pool           pool.Pool
	executor       Executor
	agg            *metrics.Aggregator
	acquireTimeout time.Duration
	logger         *zap.Logger

	running atomic.Bool
	stopped atomic.Bool
	opCount atomic.Int64
}

// NewGenerator creates a generator. acquireTimeout bounds every pool acquire;
// a timeout is recorded as an operation failure, never a fatal error.
func NewGenerator(p pool.Pool, executor Executor, agg *metrics.Aggregator, acquireTimeout time.Duration, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		pool:           p,
		executor:       executor,
		agg:            agg,
		acquireTimeout: acquireTimeout,
		logger:         logger,
	}
}

// Execute runs concurrency workers under the named pattern until duration
// elapses or Stop is called. Per-operation failures are recorded and the
// workers keep going; only an unknown pattern fails the call, before any
// worker starts.
func (g *Generator) Execute(ctx context.Context, patternName string, concurrency int, duration time.Duration) (WorkloadResult, error) {
	pattern, err := LookupPattern(patternName)
	if err != nil {
		return WorkloadResult{}, err
	}
	if concurrency <= 0 {
		return WorkloadResult{}, fmt.Errorf("workload: non-positive concurrency %d", concurrency)
	}

	g.begin(pattern, concurrency, duration)
	start := time.Now()
	deadline := start.Add(duration)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		seed := start.UnixNano() + int64(i)
		go func() {
			defer wg.Done()
			g.worker(ctx, pattern, deadline, rand.New(rand.NewSource(seed)), false)
		}()
	}
	wg.Wait()

	return g.finish(pattern, concurrency, start), nil
}

// ExecuteFailFast runs like Execute but groups all workers under one
// cancellation scope: the first structural fault (a pool gone away, not an
// ordinary per-operation failure) cancels the siblings and the error is
// returned after every worker has unwound.
func (g *Generator) ExecuteFailFast(ctx context.Context, patternName string, concurrency int, duration time.Duration) (WorkloadResult, error) {
	pattern, err := LookupPattern(patternName)
	if err != nil {
		return WorkloadResult{}, err
	}
	if concurrency <= 0 {
		return WorkloadResult{}, fmt.Errorf("workload: non-positive concurrency %d", concurrency)
	}

	g.begin(pattern, concurrency, duration)
	start := time.Now()
	deadline := start.Add(duration)

	grp, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		seed := start.UnixNano() + int64(i)
		grp.Go(func() error {
			return g.worker(gctx, pattern, deadline, rand.New(rand.NewSource(seed)), true)
		})
	}
	err = grp.Wait()

	result := g.finish(pattern, concurrency, start)
	if err != nil {
		return result, fmt.Errorf("workload: structural fault: %w", err)
	}
	return result, nil
}

func (g *Generator) begin(pattern Pattern, concurrency int, duration time.Duration) {
	g.stopped.Store(false)
	g.running.Store(true)
	g.opCount.Store(0)
	g.logger.Info("workload starting",
		zap.String("pattern", pattern.Name),
		zap.Int("concurrency", concurrency),
		zap.Duration("duration", duration))
}

func (g *Generator) finish(pattern Pattern, concurrency int, start time.Time) WorkloadResult {
	g.running.Store(false)
	result := WorkloadResult{
		Pattern:         pattern.Name,
		Concurrency:     concurrency,
		TotalOperations: g.opCount.Load(),
		Duration:        time.Since(start),
	}
	g.logger.Info("workload completed",
		zap.Int64("operations", result.TotalOperations),
		zap.Duration("duration", result.Duration),
		zap.Float64("throughput", result.Throughput()))
	return result
}

// worker loops until the stop flag is set, the deadline passes, or ctx is
// canceled. The checks sit at the top of every iteration, so deadline
// overshoot is bounded by one operation's worst-case latency. In failFast
// mode a structural fault ends the worker with an error; otherwise every
// failure is recorded and the loop continues.
func (g *Generator) worker(ctx context.Context, pattern Pattern, deadline time.Time, rng *rand.Rand, failFast bool) error {
	partitions := g.pool.Partitions()
	if len(partitions) == 0 {
		return errors.New("pool has no partitions")
	}

	for !g.stopped.Load() && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		kind := metrics.OpWrite
		if pattern.IsRead(rng.Float64()) {
			kind = metrics.OpRead
		}
		partition := partitions[rng.Intn(len(partitions))]

		err := g.runOne(ctx, kind, partition)
		g.opCount.Add(1)

		if failFast && isStructural(err) {
			return err
		}
	}
	return nil
}

// runOne executes a single operation: acquire with timeout, execute, release
// on every exit path, record the outcome exactly once.
func (g *Generator) runOne(ctx context.Context, kind metrics.OpKind, partition string) (err error) {
	start := time.Now()
	failure := ""
	defer func() {
		if r := recover(); r != nil {
			failure = "panic"
			err = fmt.Errorf("operation panic: %v", r)
		}
		g.agg.Record(kind, time.Since(start), failure)
	}()

	acquireCtx, cancel := context.WithTimeout(ctx, g.acquireTimeout)
	defer cancel()

	acquireStart := time.Now()
	h, err := g.pool.Acquire(acquireCtx, partition)
	g.agg.RecordAcquireWait(time.Since(acquireStart))
	if err != nil {
		failure = classifyAcquireError(err)
		return err
	}
	defer g.pool.Release(h)

	if _, err = g.executor.Operation(kind).Execute(ctx, h); err != nil {
		failure = "exec_error"
		return err
	}
	return nil
}

// Stop requests graceful termination; workers observe the flag at the top of
// their next iteration. In-flight operations are allowed to finish.
func (g *Generator) Stop() {
	g.logger.Info("workload stop requested")
	g.stopped.Store(true)
}

// IsRunning reports whether a run is in progress.
func (g *Generator) IsRunning() bool { return g.running.Load() }

// OperationCount returns the running operation count of the current run.
func (g *Generator) OperationCount() int64 { return g.opCount.Load() }

func classifyAcquireError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "acquire_timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, pool.ErrPoolClosed):
		return "pool_closed"
	default:
		return "acquire_error"
	}
}

// isStructural separates faults that should tear a fail-fast group down from
// ordinary per-operation failures like timeouts or backend errors.
func isStructural(err error) bool {
	return errors.Is(err, pool.ErrPoolClosed) || errors.Is(err, pool.ErrUnknownPartition)
}
