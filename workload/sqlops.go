package workload

import (
	"context"
	"fmt"
	"math/rand"

	"poolbench/metrics"
	"poolbench/pool"
)

// SQLExecutor issues point reads and single-row inserts against the SQL pool's
// connections. Row IDs are drawn uniformly from the seeded key space so reads
// hit existing rows.
type SQLExecutor struct {
	// UserRows and ProductRows bound the random key ranges; both must match
	// the seeded data set.
	UserRows    int
	ProductRows int
}

const (
	readQuery  = "SELECT id, username FROM users WHERE id = ?"
	writeQuery = "INSERT INTO orders (user_id, product_id, amount) VALUES (?, ?, ?)"
)

// Operation implements Executor.
func (e SQLExecutor) Operation(kind metrics.OpKind) Operation {
	if kind == metrics.OpRead {
		return OperationFunc(e.read)
	}
	return OperationFunc(e.write)
}

func (e SQLExecutor) conn(h pool.Handle) (*pool.SQLConn, error) {
	sc, ok := h.(*pool.SQLConn)
	if !ok || sc == nil || sc.Conn == nil {
		return nil, fmt.Errorf("workload: handle is not a SQL connection: %T", h)
	}
	return sc, nil
}

func (e SQLExecutor) read(ctx context.Context, h pool.Handle) (int64, error) {
	sc, err := e.conn(h)
	if err != nil {
		return 0, err
	}
	rows, err := sc.Conn.QueryContext(ctx, readQuery, 1+rand.Intn(e.UserRows))
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var count int64
	for rows.Next() {
		count++
	}
	return count, rows.Err()
}

func (e SQLExecutor) write(ctx context.Context, h pool.Handle) (int64, error) {
	sc, err := e.conn(h)
	if err != nil {
		return 0, err
	}
	res, err := sc.Conn.ExecContext(ctx, writeQuery,
		1+rand.Intn(e.UserRows),
		1+rand.Intn(e.ProductRows),
		10.0+rand.Float64()*990.0)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
