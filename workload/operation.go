package workload

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"poolbench/metrics"
	"poolbench/pool"
)

// Operation executes one unit of work against a checked-out pool handle and
// returns the number of rows it touched.
type Operation interface {
	Execute(ctx context.Context, h pool.Handle) (int64, error)
}

// OperationFunc adapts a function to the Operation interface.
type OperationFunc func(ctx context.Context, h pool.Handle) (int64, error)

// Execute implements Operation.
func (f OperationFunc) Execute(ctx context.Context, h pool.Handle) (int64, error) {
	return f(ctx, h)
}

// Executor supplies the read and write operation strategies for a run. The
// generator only knows the read/write tag, never the operation content.
type Executor interface {
	Operation(kind metrics.OpKind) Operation
}

// SimulatedExecutor produces operations that sleep for a latency drawn
// uniformly from [MinLatency, MaxLatency) and fail with probability
// FailureRate. Used for demo mode and tests, where no database is available.
type SimulatedExecutor struct {
	MinLatency  time.Duration
	MaxLatency  time.Duration
	FailureRate float64
}

// Operation implements Executor.
func (e SimulatedExecutor) Operation(kind metrics.OpKind) Operation {
	return OperationFunc(func(ctx context.Context, _ pool.Handle) (int64, error) {
		d := e.MinLatency
		if span := e.MaxLatency - e.MinLatency; span > 0 {
			d += time.Duration(rand.Int63n(int64(span)))
		}
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
		if e.FailureRate > 0 && rand.Float64() < e.FailureRate {
			return 0, fmt.Errorf("simulated %s failure", kind)
		}
		return 1, nil
	})
}
