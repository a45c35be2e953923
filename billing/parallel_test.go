package billing_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tuition-engine/billing"
)

func TestParallelMap_KeepsOrder(t *testing.T) {
	items := []int{5, 4, 3, 2, 1}

	rs := billing.ParallelMap(context.Background(), items, 2, func(_ context.Context, n int) (int, error) {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * 10, nil
	})

	require.NoError(t, rs.Err())
	assert.Equal(t, []int{50, 40, 30, 20, 10}, rs.Values())
}

func TestParallelMap_IsolatesFailures(t *testing.T) {
	boom := errors.New("boom")

	rs := billing.ParallelMap(context.Background(), []int{1, 2, 3}, 0, func(_ context.Context, n int) (int, error) {
		if n == 2 {
			return 0, boom
		}
		return n, nil
	})

	require.Len(t, rs, 3)
	assert.NoError(t, rs[0].Err)
	assert.ErrorIs(t, rs[1].Err, boom)
	assert.NoError(t, rs[2].Err)
	assert.ErrorIs(t, rs.Err(), boom)
	assert.Equal(t, []int{1, 3}, rs.Values())
}

func TestParallelMap_RespectsLimit(t *testing.T) {
	var running, peak atomic.Int32

	billing.ParallelMap(context.Background(), make([]int, 20), 3, func(_ context.Context, _ int) (int, error) {
		cur := running.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		running.Add(-1)
		return 0, nil
	})

	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestParallelMap_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	rs := billing.ParallelMap(ctx, []int{1, 2}, 1, func(_ context.Context, n int) (int, error) {
		calls.Add(1)
		return n, nil
	})

	assert.Equal(t, int32(0), calls.Load())
	assert.ErrorIs(t, rs[0].Err, context.Canceled)
	assert.ErrorIs(t, rs[1].Err, context.Canceled)
}

func TestParallelMap_Empty(t *testing.T) {
	rs := billing.ParallelMap(context.Background(), []string(nil), 4, func(_ context.Context, s string) (string, error) {
		return s, nil
	})

	assert.Empty(t, rs)
	assert.NoError(t, rs.Err())
}
