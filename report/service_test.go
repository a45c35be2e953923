package report_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tuition-engine/billing"
	"github.com/warp/tuition-engine/billing/store"
	"github.com/warp/tuition-engine/report"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var now = billing.Date(2026, time.April, 20).Add(10 * time.Hour)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

// seed: 1000 confirmed per month Feb..Apr, 300 rent and 200 salary per month.
func seed(t *testing.T) *store.Memory {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()

	var paids []billing.PaymentRecord
	for _, m := range []time.Month{time.February, time.March, time.April} {
		paids = append(paids, billing.PaymentRecord{
			Payment:     decimal.NewNullDecimal(decimal.NewFromInt(1000)),
			PaymentDate: billing.Ptr(billing.Date(2026, m, 5)),
			Confirmed:   true,
		})
		require.NoError(t, mem.SaveExpense(ctx, billing.Expense{Category: "rent", Amount: decimal.NewFromInt(300), Date: billing.Date(2026, m, 10)}))
		_, err := mem.UpsertSalary(ctx, "t-1", billing.MonthWindow(billing.Date(2026, m, 1)), decimal.NewFromInt(200))
		require.NoError(t, err)
	}
	paids = append(paids, billing.PaymentRecord{
		Payment:     decimal.NewNullDecimal(decimal.NewFromInt(5000)),
		PaymentDate: billing.Ptr(billing.Date(2026, time.April, 6)),
	})
	require.NoError(t, mem.SaveStudent(ctx, billing.Student{
		ID: "s-1", FullName: "Ali", Enrollments: []billing.Enrollment{{GroupID: "g-1", Paids: paids}},
	}))
	return mem
}

func newService(mem *store.Memory, cache *report.Cache) *report.Service {
	svc := report.NewService(mem, cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.Clock = billing.FixedClock{At: now}
	return svc
}

func equal(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.NewFromInt(want).Equal(got), "want %d, got %s", want, got)
}

// =============================================================================
// FINANCE
// =============================================================================

func TestFinance_RequiresWindow(t *testing.T) {
	svc := newService(seed(t), nil)

	_, err := svc.Finance(context.Background(), billing.WindowQuery{})
	assert.True(t, errors.Is(err, billing.ErrWindowRequired))

	start := billing.Date(2026, time.March, 1)
	_, err = svc.Finance(context.Background(), billing.WindowQuery{Start: &start})
	assert.True(t, errors.Is(err, billing.ErrWindowRequired), "both dates are needed")
}

func TestFinance_LastThreeMonths(t *testing.T) {
	svc := newService(seed(t), nil)

	s, err := svc.Finance(context.Background(), billing.WindowQuery{MonthCount: 3})
	require.NoError(t, err)

	equal(t, 3000, s.Income)
	equal(t, 900, s.Expense)
	equal(t, 600, s.Salary)
	equal(t, 1500, s.Profit)
}

func TestFinance_ExplicitDatesCoverWholeMonths(t *testing.T) {
	svc := newService(seed(t), nil)
	start, end := billing.Date(2026, time.March, 20), billing.Date(2026, time.April, 2)

	s, err := svc.Finance(context.Background(), billing.WindowQuery{Start: &start, End: &end})
	require.NoError(t, err)

	assert.True(t, billing.Date(2026, time.March, 1).Equal(s.Window.Start))
	equal(t, 2000, s.Income)
	equal(t, 1000, s.Profit)
}

func TestChart(t *testing.T) {
	svc := newService(seed(t), nil)

	points, err := svc.Chart(context.Background(), billing.WindowQuery{MonthCount: 3})
	require.NoError(t, err)

	require.Len(t, points, 3)
	assert.Equal(t, "February", points[0].Month)
	for _, p := range points {
		equal(t, 1000, p.Income)
		equal(t, 500, p.Expense)
		equal(t, 500, p.Profit)
	}
}

// =============================================================================
// CACHING
// =============================================================================

func TestFinance_CachedUntilBump(t *testing.T) {
	mem := seed(t)
	_, client := newRedis(t)
	cache := report.NewCache(client, time.Minute)
	svc := newService(mem, cache)
	ctx := context.Background()
	q := billing.WindowQuery{MonthCount: 3}

	first, err := svc.Finance(ctx, q)
	require.NoError(t, err)
	equal(t, 900, first.Expense)

	// GIVEN: a new expense written behind the cache
	require.NoError(t, mem.SaveExpense(ctx, billing.Expense{Amount: decimal.NewFromInt(100), Date: billing.Date(2026, time.April, 12)}))

	// THEN: the cached figure is served
	cached, err := svc.Finance(ctx, q)
	require.NoError(t, err)
	equal(t, 900, cached.Expense)

	// WHEN: a writer bumps the version
	require.NoError(t, cache.Bump(ctx))

	// THEN: the report is recomputed
	fresh, err := svc.Finance(ctx, q)
	require.NoError(t, err)
	equal(t, 1000, fresh.Expense)
	equal(t, 1400, fresh.Profit)
}

func TestFinance_RedisDownFallsBackToCompute(t *testing.T) {
	mr, client := newRedis(t)
	svc := newService(seed(t), report.NewCache(client, time.Minute))
	mr.Close()

	s, err := svc.Finance(context.Background(), billing.WindowQuery{MonthCount: 3})
	require.NoError(t, err)
	equal(t, 3000, s.Income)
}

func TestCache_VersionAndKeys(t *testing.T) {
	mr, client := newRedis(t)
	cache := report.NewCache(client, time.Minute)
	ctx := context.Background()

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)

	key, err := cache.BuildKey(ctx, "report", "finance")
	require.NoError(t, err)
	assert.Equal(t, "report:finance:v1", key)

	require.NoError(t, cache.Bump(ctx))
	key, err = cache.BuildKey(ctx, "report", "finance")
	require.NoError(t, err)
	assert.Equal(t, "report:finance:v2", key)

	got, err := mr.Get("report:version")
	require.NoError(t, err)
	assert.Equal(t, "2", got)
}

func TestCache_FetchJSON(t *testing.T) {
	mr, client := newRedis(t)
	cache := report.NewCache(client, time.Minute)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]int{"n": 7}, nil
	}

	var out map[string]int
	require.NoError(t, cache.FetchJSON(ctx, "k", &out, loader))
	require.NoError(t, cache.FetchJSON(ctx, "k", &out, loader))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 7, out["n"])
	assert.True(t, mr.Exists("k"))
	assert.Equal(t, time.Minute, mr.TTL("k"))
}

func TestCache_NilComputesDirectly(t *testing.T) {
	var cache *report.Cache
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "a:b", key)
	assert.NoError(t, cache.Bump(ctx))

	var out []int
	require.NoError(t, cache.FetchJSON(ctx, key, &out, func(context.Context) (any, error) { return []int{1, 2}, nil }))
	assert.Equal(t, []int{1, 2}, out)

	loadErr := errors.New("no data")
	err = cache.FetchJSON(ctx, key, &out, func(context.Context) (any, error) { return nil, loadErr })
	assert.ErrorIs(t, err, loadErr)
}

func TestCache_FetchJSON_RedisErrorsFallBackToLoader(t *testing.T) {
	mr, client := newRedis(t)
	cache := report.NewCache(client, time.Minute)
	cache.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]int{"n": calls}, nil
	}

	// GIVEN: a key holding the wrong Redis type, so GET fails
	mr.HSet("k", "field", "value")

	// WHEN
	var out map[string]int
	require.NoError(t, cache.FetchJSON(ctx, "k", &out, loader))

	// THEN: the loader answers and the entry is rewritten
	assert.Equal(t, 1, out["n"])
	require.NoError(t, cache.FetchJSON(ctx, "k", &out, loader))
	assert.Equal(t, 1, calls)

	// GIVEN: every command failing, writes included
	mr.SetError("LOADING Redis is loading the dataset in memory")

	// THEN: the value is still computed and returned
	require.NoError(t, cache.FetchJSON(ctx, "other", &out, loader))
	assert.Equal(t, 2, out["n"])
}
