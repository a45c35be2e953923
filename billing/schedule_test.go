package billing_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tuition-engine/billing"
)

func paidOn(v int64, d time.Time, confirmed bool) billing.PaymentRecord {
	return billing.PaymentRecord{Payment: decimal.NewNullDecimal(dec(v)), PaymentDate: billing.Ptr(d), Confirmed: confirmed}
}

func planned(v int64, d time.Time) billing.ScheduledPayment {
	return billing.ScheduledPayment{Payment: dec(v), PaymentDate: billing.Ptr(d)}
}

func TestPaidInWindow(t *testing.T) {
	enrollments := []billing.Enrollment{
		{Paids: []billing.PaymentRecord{
			paidOn(100, billing.Date(2026, time.March, 1), true),
			paidOn(200, billing.Date(2026, time.March, 31).Add(20*time.Hour), true),
			paidOn(400, billing.Date(2026, time.March, 15), false),
			paidOn(800, billing.Date(2026, time.April, 1), true),
		}},
		{Paids: []billing.PaymentRecord{confirmedPaid(1600)}}, // undated
	}

	got := billing.PaidInWindow(enrollments, march())

	assert.True(t, dec(300).Equal(got), "got %s", got)
}

func TestScheduledDue(t *testing.T) {
	enrollments := []billing.Enrollment{
		{Status: billing.StatusContinue, Payments: []billing.ScheduledPayment{
			planned(100, billing.Date(2026, time.March, 5)),
			planned(100, billing.Date(2026, time.April, 5)),
			{Payment: dec(50)}, // undated
		}},
		{Status: billing.StatusGraduate, Payments: []billing.ScheduledPayment{planned(70, billing.Date(2026, time.March, 10))}},
		{Status: billing.StatusStopped, Payments: []billing.ScheduledPayment{planned(999, billing.Date(2026, time.March, 10))}},
		{Status: billing.StatusFreeze, Payments: []billing.ScheduledPayment{planned(999, billing.Date(2026, time.March, 10))}},
	}

	w := march()
	assert.True(t, dec(170).Equal(billing.ScheduledDue(enrollments, &w)))
	assert.True(t, dec(320).Equal(billing.ScheduledDue(enrollments, nil)))
}

func TestLatePaymentTotal(t *testing.T) {
	end := billing.EndOfDay(billing.Date(2026, time.April, 20))
	students := []billing.Student{
		{ID: "late", Enrollments: []billing.Enrollment{{
			Status:   billing.StatusContinue,
			Payments: []billing.ScheduledPayment{planned(300, billing.Date(2026, time.March, 5)), planned(300, billing.Date(2026, time.April, 5)), planned(300, billing.Date(2026, time.May, 5))},
			Paids:    []billing.PaymentRecord{confirmedPaid(200)},
		}}},
		{ID: "ahead", Enrollments: []billing.Enrollment{{
			Status:   billing.StatusContinue,
			Payments: []billing.ScheduledPayment{planned(100, billing.Date(2026, time.March, 5))},
			Paids:    []billing.PaymentRecord{confirmedPaid(500)},
		}}},
		{ID: "stopped", Enrollments: []billing.Enrollment{{
			Status:   billing.StatusStopped,
			Payments: []billing.ScheduledPayment{planned(700, billing.Date(2026, time.March, 5))},
		}}},
		{ID: "deleted", Deleted: true, Enrollments: []billing.Enrollment{{
			Status:   billing.StatusContinue,
			Payments: []billing.ScheduledPayment{planned(900, billing.Date(2026, time.March, 5))},
		}}},
	}

	// WHEN: no start bound
	total := billing.LatePaymentTotal(students, end, nil)

	// THEN: only the positive billable balance counts: 600 due − 200 paid
	assert.True(t, dec(400).Equal(total), "got %s", total)

	// AND: a start bound drops earlier installments
	start := billing.Date(2026, time.April, 1)
	assert.True(t, dec(100).Equal(billing.LatePaymentTotal(students, end, &start)))

	// AND: late payers ignore the status filter but still skip deleted students
	payers := billing.LatePayers(students, end)
	assert.Equal(t, map[billing.StudentID]bool{"late": true, "stopped": true}, payers)
}

// =============================================================================
// FINANCE
// =============================================================================

func financeInput() billing.FinanceInput {
	return billing.FinanceInput{
		Enrollments: []billing.Enrollment{{Paids: []billing.PaymentRecord{
			paidOn(1000, billing.Date(2026, time.February, 3), true),
			paidOn(1500, billing.Date(2026, time.March, 3), true),
			paidOn(9999, billing.Date(2026, time.March, 4), false),
		}}},
		Expenses: []billing.Expense{
			{Category: "rent", Amount: dec(400), Date: billing.Date(2026, time.February, 10)},
			{Category: "rent", Amount: dec(400), Date: billing.Date(2026, time.March, 10)},
			{Category: "rent", Amount: dec(400), Date: billing.Date(2026, time.April, 10)},
		},
		Salaries: []billing.SalaryRecord{
			{TeacherID: "t1", Paid: dec(300), Date: billing.Date(2026, time.March, 16)},
		},
	}
}

func TestSummarize(t *testing.T) {
	w := billing.Window{Start: billing.Date(2026, time.February, 1), End: billing.EndOfMonth(billing.Date(2026, time.March, 1))}

	s := billing.Summarize(financeInput(), w)

	assert.True(t, dec(2500).Equal(s.Income), "income %s", s.Income)
	assert.True(t, dec(800).Equal(s.Expense), "expense %s", s.Expense)
	assert.True(t, dec(300).Equal(s.Salary), "salary %s", s.Salary)
	assert.True(t, dec(1400).Equal(s.Profit), "profit %s", s.Profit)
}

func TestChart(t *testing.T) {
	w := billing.Window{Start: billing.Date(2026, time.February, 1), End: billing.EndOfMonth(billing.Date(2026, time.March, 1))}

	points := billing.Chart(financeInput(), w)

	require.Len(t, points, 2)
	assert.Equal(t, "February", points[0].Month)
	assert.Equal(t, 2026, points[0].Year)
	assert.True(t, dec(1000).Equal(points[0].Income))
	assert.True(t, dec(400).Equal(points[0].Expense))
	assert.True(t, dec(600).Equal(points[0].Profit))

	// salaries are folded into the chart expense
	assert.True(t, dec(700).Equal(points[1].Expense))
	assert.True(t, dec(800).Equal(points[1].Profit))
}
