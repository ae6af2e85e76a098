package pool

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// SQLPool adapts one database/sql pool per partition to the Pool interface.
// database/sql already implements the bounded free-list; this wrapper only
// maps its counters onto Stats and tracks how many callers are blocked in
// Acquire, which DBStats does not expose as a momentary value.
type SQLPool struct {
	mu         sync.RWMutex
	partitions map[string]*sqlPartition
	order      []string
	max        int
	closed     bool
	logger     *zap.Logger
}

type sqlPartition struct {
	name    string
	db      *sql.DB
	waiting atomic.Int64
}

// SQLConn is the handle type SQLPool hands out.
type SQLConn struct {
	Partition string
	Conn      *sql.Conn
}

// NewSQLPool opens one database/sql pool per partition DSN using the given
// driver and caps each at max open connections.
func NewSQLPool(driver string, partitions map[string]string, max int, logger *zap.Logger) (*SQLPool, error) {
	if max <= 0 {
		return nil, fmt.Errorf("pool: non-positive max pool size %d", max)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &SQLPool{
		partitions: make(map[string]*sqlPartition, len(partitions)),
		max:        max,
		logger:     logger,
	}
	for name, dsn := range partitions {
		db, err := sql.Open(driver, dsn)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("pool: open partition %s: %w", name, err)
		}
		db.SetMaxOpenConns(max)
		db.SetMaxIdleConns(max)
		p.partitions[name] = &sqlPartition{name: name, db: db}
		p.order = append(p.order, name)
		logger.Info("pool partition initialized",
			zap.String("partition", name), zap.Int("max", max))
	}
	return p, nil
}

func (p *SQLPool) partition(name string) (*sqlPartition, error) {
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

// Acquire checks out one connection from the named partition. It blocks until
// a connection is free or ctx expires.
func (p *SQLPool) Acquire(ctx context.Context, partition string) (Handle, error) {
	part, err := p.partition(partition)
	if err != nil {
		return nil, err
	}
	part.waiting.Add(1)
	conn, err := part.db.Conn(ctx)
	part.waiting.Add(-1)
	if err != nil {
		return nil, err
	}
	return &SQLConn{Partition: partition, Conn: conn}, nil
}

// Release returns the connection to its partition's free list. Safe on nil.
func (p *SQLPool) Release(h Handle) {
	sc, ok := h.(*SQLConn)
	if !ok || sc == nil || sc.Conn == nil {
		return
	}
	if err := sc.Conn.Close(); err != nil {
		p.logger.Warn("release failed", zap.String("partition", sc.Partition), zap.Error(err))
	}
}

// Stats maps database/sql DBStats onto the boundary Stats shape.
func (p *SQLPool) Stats(partition string) (Stats, error) {
	part, err := p.partition(partition)
	if err != nil {
		return Stats{}, err
	}
	s := part.db.Stats()
	p.mu.RLock()
	max := p.max
	p.mu.RUnlock()
	return Stats{
		Partition: partition,
		Active:    s.InUse,
		Idle:      s.Idle,
		Total:     s.OpenConnections,
		Max:       max,
		Waiting:   int(part.waiting.Load()),
	}, nil
}

// Partitions returns the configured partition names in initialization order.
func (p *SQLPool) Partitions() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Resize changes the per-partition connection cap. database/sql applies the
// new limit to future checkouts; connections over the limit drain as they are
// released.
func (p *SQLPool) Resize(newMax int) error {
	if newMax <= 0 {
		return fmt.Errorf("pool: non-positive max pool size %d", newMax)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.max = newMax
	for _, part := range p.partitions {
		part.db.SetMaxOpenConns(newMax)
		part.db.SetMaxIdleConns(newMax)
	}
	p.logger.Info("pool resized", zap.Int("max", newMax))
	return nil
}

// Close shuts down every partition pool.
func (p *SQLPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	var firstErr error
	for name, part := range p.partitions {
		if err := part.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("pool: close partition %s: %w", name, err)
		}
	}
	return firstErr
}
