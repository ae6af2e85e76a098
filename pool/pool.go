// Package pool defines the boundary API for the bounded connection pool under
// test. The benchmark core only acquires, releases, resizes, and reads stats;
// it never touches pool internals.
package pool

import (
	"context"
	"errors"
)

var (
	// ErrPoolClosed is returned once a pool has been shut down. Acquiring from
	// a closed pool is a structural fault, not a per-operation failure.
	ErrPoolClosed = errors.New("pool: closed")

	// ErrUnknownPartition is returned for a partition name the pool was not
	// configured with.
	ErrUnknownPartition = errors.New("pool: unknown partition")
)

// Handle is an opaque checked-out resource. Operations cast it to whatever
// concrete type the pool implementation hands out.
type Handle interface{}

// Stats is a point-in-time view of one partition's counters.
type Stats struct {
	Partition string
	Active    int
	Idle      int
	Total     int
	Max       int
	Waiting   int
}

// Utilization returns active/max as a percentage, 0 when max is 0.
func (s Stats) Utilization() float64 {
	if s.Max == 0 {
		return 0
	}
	return float64(s.Active) / float64(s.Max) * 100
}

// Pool is the acquire/release/stat surface of a partitioned resource pool.
// Acquire honors ctx cancellation and deadlines; an expired deadline surfaces
// as ctx.Err() and callers treat it as an ordinary operation failure.
type Pool interface {
	Acquire(ctx context.Context, partition string) (Handle, error)
	Release(h Handle)
	Stats(partition string) (Stats, error)
	Partitions() []string
	Resize(newMax int) error
	Close() error
}
