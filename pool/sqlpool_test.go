package pool

import (
	"context"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteTestPool(t *testing.T, max int) *SQLPool {
	t.Helper()
	p, err := NewSQLPool("sqlite3", map[string]string{
		"default": "file:" + t.TempDir() + "/pool.db?cache=shared",
	}, max, nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestSQLPoolAcquireRelease(t *testing.T) {
	p := newSQLiteTestPool(t, 2)

	h, err := p.Acquire(context.Background(), "default")
	require.NoError(t, err)

	sc, ok := h.(*SQLConn)
	require.True(t, ok)
	assert.Equal(t, "default", sc.Partition)
	require.NotNil(t, sc.Conn)

	var one int
	require.NoError(t, sc.Conn.QueryRowContext(context.Background(), "SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)

	st, err := p.Stats("default")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Active)
	assert.Equal(t, 2, st.Max)

	p.Release(h)
	st, err = p.Stats("default")
	require.NoError(t, err)
	assert.Zero(t, st.Active)
}

func TestSQLPoolUnknownPartition(t *testing.T) {
	p := newSQLiteTestPool(t, 1)

	_, err := p.Acquire(context.Background(), "absent")
	assert.True(t, errors.Is(err, ErrUnknownPartition))
}

func TestSQLPoolResize(t *testing.T) {
	p := newSQLiteTestPool(t, 1)

	require.NoError(t, p.Resize(4))
	st, err := p.Stats("default")
	require.NoError(t, err)
	assert.Equal(t, 4, st.Max)

	require.Error(t, p.Resize(-1))
}

func TestSQLPoolClose(t *testing.T) {
	p := newSQLiteTestPool(t, 1)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close()) // idempotent

	_, err := p.Acquire(context.Background(), "default")
	assert.True(t, errors.Is(err, ErrPoolClosed))
}

func TestSQLPoolPartitions(t *testing.T) {
	p, err := NewSQLPool("sqlite3", map[string]string{
		"a": "file::memory:?cache=shared",
	}, 1, nil)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, []string{"a"}, p.Partitions())
}
