package workload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolbench/metrics"
	"poolbench/pool"
)

func newTestGenerator(t *testing.T, max int, executor Executor) (*Generator, *metrics.Aggregator, pool.Pool) {
	t.Helper()
	p, err := pool.NewMemPool([]string{"p0", "p1"}, max, nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	agg := metrics.NewAggregator(nil, nil)
	gen := NewGenerator(p, executor, agg, time.Second, nil)
	return gen, agg, p
}

func TestGeneratorUnknownPattern(t *testing.T) {
	gen, agg, _ := newTestGenerator(t, 4, SimulatedExecutor{})

	_, err := gen.Execute(context.Background(), "bogus", 4, 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownPattern))

	// Nothing ran: the pattern is resolved before any worker starts.
	assert.Zero(t, agg.TotalOperations())
}

func TestGeneratorNonPositiveConcurrency(t *testing.T) {
	gen, _, _ := newTestGenerator(t, 4, SimulatedExecutor{})
	_, err := gen.Execute(context.Background(), "mixed", 0, 50*time.Millisecond)
	require.Error(t, err)
}

func TestGeneratorConservation(t *testing.T) {
	exec := SimulatedExecutor{
		MinLatency:  time.Millisecond,
		MaxLatency:  2 * time.Millisecond,
		FailureRate: 0.2,
	}
	gen, agg, _ := newTestGenerator(t, 4, exec)

	result, err := gen.Execute(context.Background(), "mixed", 8, 200*time.Millisecond)
	require.NoError(t, err)

	// Every started operation is recorded exactly once, success or failure.
	s := agg.Snapshot()
	assert.Equal(t, result.TotalOperations, s.TotalOperations)
	assert.Greater(t, result.TotalOperations, int64(0))
	assert.Greater(t, s.TotalErrors, int64(0))
	assert.Equal(t, s.TotalErrors, s.ErrorsByKind["exec_error"])
	assert.Greater(t, result.Throughput(), 0.0)
}

func TestGeneratorReadOnlyPattern(t *testing.T) {
	recorded := make(chan metrics.OpKind, 10000)
	exec := kindRecorder{kinds: recorded}
	gen, _, _ := newTestGenerator(t, 4, exec)

	_, err := gen.Execute(context.Background(), "read_only", 4, 100*time.Millisecond)
	require.NoError(t, err)
	close(recorded)

	n := 0
	for kind := range recorded {
		n++
		assert.Equal(t, metrics.OpRead, kind)
	}
	assert.Greater(t, n, 0)
}

// kindRecorder captures which operation kind the generator requested.
type kindRecorder struct {
	kinds chan metrics.OpKind
}

func (r kindRecorder) Operation(kind metrics.OpKind) Operation {
	return OperationFunc(func(ctx context.Context, _ pool.Handle) (int64, error) {
		select {
		case r.kinds <- kind:
		default:
		}
		return 1, nil
	})
}

func TestGeneratorStop(t *testing.T) {
	exec := SimulatedExecutor{MinLatency: time.Millisecond, MaxLatency: 2 * time.Millisecond}
	gen, _, _ := newTestGenerator(t, 4, exec)

	done := make(chan WorkloadResult, 1)
	go func() {
		result, err := gen.Execute(context.Background(), "mixed", 4, time.Hour)
		assert.NoError(t, err)
		done <- result
	}()

	require.Eventually(t, gen.IsRunning, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	gen.Stop()

	select {
	case result := <-done:
		assert.Greater(t, result.TotalOperations, int64(0))
		assert.Less(t, result.Duration, time.Minute)
	case <-time.After(5 * time.Second):
		t.Fatal("generator did not stop")
	}
	assert.False(t, gen.IsRunning())
}

func TestGeneratorDeadline(t *testing.T) {
	exec := SimulatedExecutor{MinLatency: time.Millisecond, MaxLatency: 2 * time.Millisecond}
	gen, _, _ := newTestGenerator(t, 4, exec)

	start := time.Now()
	_, err := gen.Execute(context.Background(), "read_heavy", 4, 100*time.Millisecond)
	require.NoError(t, err)

	// Overshoot is bounded by one operation's latency, not by worker count.
	assert.Less(t, time.Since(start), time.Second)
}

func TestGeneratorFailFastOnClosedPool(t *testing.T) {
	exec := SimulatedExecutor{MinLatency: time.Millisecond, MaxLatency: 2 * time.Millisecond}
	gen, _, p := newTestGenerator(t, 4, exec)

	done := make(chan error, 1)
	go func() {
		_, err := gen.ExecuteFailFast(context.Background(), "mixed", 4, time.Hour)
		done <- err
	}()

	require.Eventually(t, gen.IsRunning, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, p.Close())

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, pool.ErrPoolClosed))
	case <-time.After(5 * time.Second):
		t.Fatal("fail-fast run did not unwind")
	}
}

func TestGeneratorContentionObservable(t *testing.T) {
	p, err := pool.NewMemPool([]string{"p0"}, 5, nil)
	require.NoError(t, err)
	defer p.Close()

	agg := metrics.NewAggregator(nil, nil)
	exec := SimulatedExecutor{MinLatency: 5 * time.Millisecond, MaxLatency: 10 * time.Millisecond}
	gen := NewGenerator(p, exec, agg, time.Second, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		gen.Execute(context.Background(), "mixed", 50, 500*time.Millisecond)
	}()

	// 50 workers against 5 slots must queue at the pool boundary.
	assert.Eventually(t, func() bool {
		st, err := p.Stats("p0")
		return err == nil && st.Waiting > 0
	}, time.Second, time.Millisecond)

	<-done
	s := agg.Snapshot()
	assert.Greater(t, s.P99AcquireWaitMs, 0.0)
}

func TestGeneratorRecordsAcquireTimeout(t *testing.T) {
	p, err := pool.NewMemPool([]string{"p0"}, 1, nil)
	require.NoError(t, err)
	defer p.Close()

	// Hold the only slot so every worker acquire times out.
	h, err := p.Acquire(context.Background(), "p0")
	require.NoError(t, err)
	defer p.Release(h)

	agg := metrics.NewAggregator(nil, nil)
	gen := NewGenerator(p, SimulatedExecutor{}, agg, 10*time.Millisecond, nil)

	_, err = gen.Execute(context.Background(), "mixed", 2, 50*time.Millisecond)
	require.NoError(t, err)

	s := agg.Snapshot()
	assert.Greater(t, s.ErrorsByKind["acquire_timeout"], int64(0))
	assert.Equal(t, s.TotalOperations, s.TotalErrors)
}
