package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// MemPool is a semaphore-backed in-memory pool used for demo runs and tests.
// It behaves like a real bounded pool at the boundary: Acquire blocks when all
// slots of a partition are checked out, and Stats reports momentary counters.
type MemPool struct {
	mu         sync.RWMutex
	partitions map[string]*memPartition
	order      []string
	max        int
	closed     bool
	logger     *zap.Logger
}

type memPartition struct {
	name    string
	slots   chan struct{}
	active  atomic.Int64
	waiting atomic.Int64
}

// MemHandle is the handle type MemPool hands out.
type MemHandle struct {
	Partition string
	pool      *MemPool
	released  atomic.Bool
}

// NewMemPool creates an in-memory pool with the given partitions, each capped
// at max concurrent checkouts.
func NewMemPool(partitions []string, max int, logger *zap.Logger) (*MemPool, error) {
	if max <= 0 {
		return nil, fmt.Errorf("pool: non-positive max pool size %d", max)
	}
	if len(partitions) == 0 {
		return nil, fmt.Errorf("pool: at least one partition required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &MemPool{
		partitions: make(map[string]*memPartition, len(partitions)),
		max:        max,
		logger:     logger,
	}
	for _, name := range partitions {
		p.partitions[name] = newMemPartition(name, max)
		p.order = append(p.order, name)
	}
	return p, nil
}

func newMemPartition(name string, max int) *memPartition {
	part := &memPartition{name: name, slots: make(chan struct{}, max)}
	for i := 0; i < max; i++ {
		part.slots <- struct{}{}
	}
	return part
}

func (p *MemPool) partition(name string) (*memPartition, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	part, ok := p.partitions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPartition, name)
	}
	return part, nil
}

// Acquire takes one slot from the named partition, blocking until a slot
// frees up or ctx expires.
func (p *MemPool) Acquire(ctx context.Context, partition string) (Handle, error) {
	part, err := p.partition(partition)
	if err != nil {
		return nil, err
	}
	part.waiting.Add(1)
	defer part.waiting.Add(-1)
	select {
	case <-part.slots:
		part.active.Add(1)
		return &MemHandle{Partition: partition, pool: p}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns the handle's slot. Double release is a no-op.
func (p *MemPool) Release(h Handle) {
	mh, ok := h.(*MemHandle)
	if !ok || mh == nil {
		return
	}
	if !mh.released.CompareAndSwap(false, true) {
		return
	}
	part, err := p.partition(mh.Partition)
	if err != nil {
		return
	}
	part.active.Add(-1)
	part.slots <- struct{}{}
}

// Stats reports the partition's momentary counters. Idle is the free slot
// count; Total is Max since slots are preallocated.
func (p *MemPool) Stats(partition string) (Stats, error) {
	part, err := p.partition(partition)
	if err != nil {
		return Stats{}, err
	}
	p.mu.RLock()
	max := p.max
	p.mu.RUnlock()
	active := int(part.active.Load())
	return Stats{
		Partition: partition,
		Active:    active,
		Idle:      max - active,
		Total:     max,
		Max:       max,
		Waiting:   int(part.waiting.Load()),
	}, nil
}

// Partitions returns the configured partition names in creation order.
func (p *MemPool) Partitions() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Resize rebuilds every partition's slot channel at the new capacity. The
// sweep driver only resizes between iterations, when no handle is out.
func (p *MemPool) Resize(newMax int) error {
	if newMax <= 0 {
		return fmt.Errorf("pool: non-positive max pool size %d", newMax)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.max = newMax
	for name := range p.partitions {
		p.partitions[name] = newMemPartition(name, newMax)
	}
	p.logger.Info("pool resized", zap.Int("max", newMax))
	return nil
}

// Close marks the pool closed; subsequent Acquire calls fail with
// ErrPoolClosed.
func (p *MemPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
