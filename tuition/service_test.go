package tuition_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tuition-engine/billing"
	"github.com/warp/tuition-engine/billing/store"
	"github.com/warp/tuition-engine/tuition"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var now = billing.Date(2026, time.April, 20).Add(10 * time.Hour)

type countingInvalidator struct{ bumps int }

func (c *countingInvalidator) Bump(context.Context) error {
	c.bumps++
	return nil
}

func money(v int64) decimal.NullDecimal { return decimal.NewNullDecimal(decimal.NewFromInt(v)) }

func plan(v int64, dates ...time.Time) []billing.ScheduledPayment {
	out := make([]billing.ScheduledPayment, 0, len(dates))
	for _, d := range dates {
		out = append(out, billing.ScheduledPayment{Payment: decimal.NewFromInt(v), PaymentDate: billing.Ptr(d)})
	}
	return out
}

// newService seeds two students:
//
//	Aynur:  open 300/month from Jan 15, 400 confirmed today, plan 300 on the 1st of Feb..May
//	Bahruz: stopped, closed 200/month Jan..Mar, 600 confirmed, plan 200 on Apr 5
func newService(t *testing.T) (*tuition.Service, *store.Memory, *countingInvalidator) {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()

	require.NoError(t, mem.SaveGroup(ctx, billing.Group{ID: "g-eng", Name: "English A1", CourseID: "english"}))
	require.NoError(t, mem.SaveGroup(ctx, billing.Group{ID: "g-it", Name: "Python", CourseID: "it"}))

	start := billing.Date(2026, time.January, 15)
	require.NoError(t, mem.SaveStudent(ctx, billing.Student{
		ID:       "s-aynur",
		FullName: "Aynur Guliyeva",
		Enrollments: []billing.Enrollment{{
			GroupID:   "g-eng",
			Status:    billing.StatusContinue,
			Contracts: []billing.Contract{{Number: 1, ContractStartDate: &start, PaymentStartDate: &start, MonthlyPayment: money(300)}},
			Paids: []billing.PaymentRecord{
				{Payment: money(400), PaymentDate: billing.Ptr(now), Confirmed: true},
				{Payment: money(300), PaymentDate: billing.Ptr(now)},
			},
			Payments: plan(300,
				billing.Date(2026, time.February, 1), billing.Date(2026, time.March, 1),
				billing.Date(2026, time.April, 1), billing.Date(2026, time.May, 1)),
		}},
	}))
	require.NoError(t, mem.SaveStudent(ctx, billing.Student{
		ID:       "s-bahruz",
		FullName: "Bahruz Aliyev",
		Enrollments: []billing.Enrollment{{
			GroupID: "g-it",
			Status:  billing.StatusStopped,
			Contracts: []billing.Contract{{
				Number:            1,
				ContractStartDate: billing.Ptr(billing.Date(2026, time.January, 1)),
				ContractEndDate:   billing.Ptr(billing.Date(2026, time.March, 31)),
				MonthlyPayment:    money(200),
			}},
			Paids:    []billing.PaymentRecord{{Payment: money(600), PaymentDate: billing.Ptr(billing.Date(2026, time.March, 10)), Confirmed: true}},
			Payments: plan(200, billing.Date(2026, time.April, 5)),
		}},
	}))

	inv := &countingInvalidator{}
	svc := tuition.NewService(mem, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.Clock = billing.FixedClock{At: now}
	svc.Invalidator = inv
	return svc, mem, inv
}

func equal(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.NewFromInt(want).Equal(got), "want %d, got %s", want, got)
}

// =============================================================================
// FEE LIST
// =============================================================================

func TestList_BillsEveryEnrollment(t *testing.T) {
	svc, _, _ := newService(t)

	page, err := svc.List(context.Background(), tuition.Filter{})
	require.NoError(t, err)
	require.Len(t, page.Fees, 2)
	assert.Equal(t, 2, page.CurrentLength)

	aynur := page.Fees[0]
	assert.Equal(t, "Aynur Guliyeva", aynur.FullName)
	assert.Equal(t, "English A1", aynur.GroupName)
	assert.NotEmpty(t, aynur.ID)
	equal(t, 1200, aynur.Billed) // Jan 15 .. Apr 20: four months including the current one
	equal(t, 400, aynur.TotalPaid)
	equal(t, 800, aynur.Balance)
	equal(t, 0, aynur.CurrentPayment)
	require.NotNil(t, aynur.CurrentContract)

	bahruz := page.Fees[1]
	equal(t, 400, bahruz.Billed) // closed Jan..Mar spans two months
	equal(t, -200, bahruz.Balance)
	equal(t, 200, bahruz.CurrentPayment)
}

func TestList_FiltersAndPaging(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	byCourse, err := svc.List(ctx, tuition.Filter{CourseID: "it"})
	require.NoError(t, err)
	require.Len(t, byCourse.Fees, 1)
	assert.Equal(t, billing.StudentID("s-bahruz"), byCourse.Fees[0].StudentID)

	second, err := svc.List(ctx, tuition.Filter{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, second.Fees, 1)
	assert.Equal(t, 2, second.CurrentLength)

	late, err := svc.List(ctx, tuition.Filter{LateOnly: true})
	require.NoError(t, err)
	require.Len(t, late.Fees, 1)
	assert.Equal(t, billing.StudentID("s-aynur"), late.Fees[0].StudentID)
}

func TestList_InvalidContractFailsThePage(t *testing.T) {
	svc, mem, _ := newService(t)
	require.NoError(t, mem.SaveStudent(context.Background(), billing.Student{
		ID:       "s-broken",
		FullName: "Broken Record",
		Enrollments: []billing.Enrollment{{
			GroupID: "g-eng",
			Contracts: []billing.Contract{{
				ContractStartDate: billing.Ptr(billing.Date(2026, time.March, 1)),
				ContractEndDate:   billing.Ptr(billing.Date(2026, time.January, 1)),
			}},
		}},
	}))

	_, err := svc.List(context.Background(), tuition.Filter{})

	assert.True(t, billing.IsComputation(err))
}

func TestUpdatePaids_RecomputesAndInvalidates(t *testing.T) {
	svc, _, inv := newService(t)

	fee, err := svc.UpdatePaids(context.Background(), "s-aynur", "g-eng", []billing.PaymentRecord{
		{Payment: money(1200), PaymentDate: billing.Ptr(now), Confirmed: true},
		{Payment: money(100), PaymentDate: billing.Ptr(now), Confirmed: true},
	})
	require.NoError(t, err)

	equal(t, -100, fee.Balance)
	equal(t, 100, fee.CurrentPayment)
	assert.Equal(t, "Aynur Guliyeva", fee.FullName)
	assert.Equal(t, 1, inv.bumps)
}

func TestUpdatePaids_UnknownEnrollment(t *testing.T) {
	svc, _, inv := newService(t)

	_, err := svc.UpdatePaids(context.Background(), "s-aynur", "g-it", nil)

	assert.True(t, billing.IsNotFound(err))
	assert.Zero(t, inv.bumps)
}

// =============================================================================
// DASHBOARD TOTALS
// =============================================================================

func TestLatePayment(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	// Feb + Mar + Apr installments (900) − 400 confirmed; stopped students excluded
	total, err := svc.LatePayment(ctx, billing.WindowQuery{}, false)
	require.NoError(t, err)
	equal(t, 500, total)

	all, err := svc.LatePayment(ctx, billing.WindowQuery{MonthCount: 1}, true)
	require.NoError(t, err)
	equal(t, 500, all)

	// April only: 300 scheduled − 400 paid is not late
	april, err := svc.LatePayment(ctx, billing.WindowQuery{MonthCount: 1}, false)
	require.NoError(t, err)
	equal(t, 0, april)
}

func TestPaidAmount(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	today, err := svc.PaidAmount(ctx, billing.WindowQuery{}, false)
	require.NoError(t, err)
	equal(t, 400, today)

	twoMonths, err := svc.PaidAmount(ctx, billing.WindowQuery{MonthCount: 2}, false)
	require.NoError(t, err)
	equal(t, 1000, twoMonths)

	currentDay, err := svc.PaidAmount(ctx, billing.WindowQuery{MonthCount: 2}, true)
	require.NoError(t, err)
	equal(t, 400, currentDay)
}

func TestToBePaid(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	whole, err := svc.ToBePaid(ctx, billing.WindowQuery{}, false)
	require.NoError(t, err)
	equal(t, 1200, whole)

	april, err := svc.ToBePaid(ctx, billing.WindowQuery{MonthCount: 1}, false)
	require.NoError(t, err)
	equal(t, 300, april)

	start, end := billing.Date(2026, time.April, 10), billing.Date(2026, time.April, 1)
	_, err = svc.ToBePaid(ctx, billing.WindowQuery{Start: &start, End: &end}, false)
	assert.True(t, billing.IsClientError(err))
}
