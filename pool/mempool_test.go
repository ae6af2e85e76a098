package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemPoolAcquireRelease(t *testing.T) {
	p, err := NewMemPool([]string{"a", "b"}, 2, nil)
	require.NoError(t, err)
	defer p.Close()

	h, err := p.Acquire(context.Background(), "a")
	require.NoError(t, err)

	st, err := p.Stats("a")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Active)
	assert.Equal(t, 1, st.Idle)
	assert.Equal(t, 2, st.Max)
	assert.InDelta(t, 50.0, st.Utilization(), 1e-9)

	p.Release(h)
	st, err = p.Stats("a")
	require.NoError(t, err)
	assert.Zero(t, st.Active)
	assert.Equal(t, 2, st.Idle)
}

func TestMemPoolValidation(t *testing.T) {
	_, err := NewMemPool(nil, 2, nil)
	require.Error(t, err)

	_, err = NewMemPool([]string{"a"}, 0, nil)
	require.Error(t, err)
}

func TestMemPoolUnknownPartition(t *testing.T) {
	p, err := NewMemPool([]string{"a"}, 1, nil)
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Acquire(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrUnknownPartition))

	_, err = p.Stats("nope")
	assert.True(t, errors.Is(err, ErrUnknownPartition))
}

func TestMemPoolAcquireBlocksUntilTimeout(t *testing.T) {
	p, err := NewMemPool([]string{"a"}, 1, nil)
	require.NoError(t, err)
	defer p.Close()

	h, err := p.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer p.Release(h)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx, "a")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestMemPoolWaitingCounter(t *testing.T) {
	p, err := NewMemPool([]string{"a"}, 1, nil)
	require.NoError(t, err)
	defer p.Close()

	h, err := p.Acquire(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Acquire(ctx, "a")
		}()
	}

	require.Eventually(t, func() bool {
		st, err := p.Stats("a")
		return err == nil && st.Waiting == 5
	}, time.Second, time.Millisecond)

	cancel()
	wg.Wait()
	p.Release(h)

	st, err := p.Stats("a")
	require.NoError(t, err)
	assert.Zero(t, st.Waiting)
}

func TestMemPoolDoubleRelease(t *testing.T) {
	p, err := NewMemPool([]string{"a"}, 1, nil)
	require.NoError(t, err)
	defer p.Close()

	h, err := p.Acquire(context.Background(), "a")
	require.NoError(t, err)

	p.Release(h)
	p.Release(h) // no-op, must not free a second slot

	st, err := p.Stats("a")
	require.NoError(t, err)
	assert.Zero(t, st.Active)
	assert.Equal(t, 1, st.Idle)
}

func TestMemPoolResize(t *testing.T) {
	p, err := NewMemPool([]string{"a"}, 1, nil)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Resize(3))

	st, err := p.Stats("a")
	require.NoError(t, err)
	assert.Equal(t, 3, st.Max)
	assert.Equal(t, 3, st.Idle)

	require.Error(t, p.Resize(0))
}

func TestMemPoolClose(t *testing.T) {
	p, err := NewMemPool([]string{"a"}, 1, nil)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	_, err = p.Acquire(context.Background(), "a")
	assert.True(t, errors.Is(err, ErrPoolClosed))
	assert.ErrorIs(t, p.Resize(2), ErrPoolClosed)
}

func TestStatsUtilizationZeroMax(t *testing.T) {
	assert.Zero(t, Stats{Active: 3}.Utilization())
}
