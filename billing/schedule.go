/*
schedule.go - Report sums over many enrollments

PURPOSE:
  The dashboard totals: what came in, what the installment plans say is
  due, and how much students are late on. These work on the payment plan
  ("payments") rather than on contracts.

STATUS FILTER:
  ScheduledDue and LatePaymentTotal only look at billable enrollments
  (graduate, continue). LatePayers, which drives the "late payment" filter
  of the tuition fee list, looks at every enrollment.

SEE ALSO:
  - balance.go:    Per-enrollment balance from contracts
  - finance.go:    Income/expense/profit summary
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaidInWindow sums confirmed paids dated inside the window.
func PaidInWindow(enrollments []Enrollment, w Window) decimal.Decimal {
	total := decimal.Zero
	for _, e := range enrollments {
		for _, p := range e.Paids {
			if p.Confirmed && p.PaymentDate != nil && w.Contains(*p.PaymentDate) {
				total = total.Add(p.Amount())
			}
		}
	}
	return total
}

// ScheduledDue sums scheduled payments of billable enrollments. A nil
// window sums the whole plan.
func ScheduledDue(enrollments []Enrollment, w *Window) decimal.Decimal {
	total := decimal.Zero
	for _, e := range enrollments {
		if !e.Status.Billable() {
			continue
		}
		for _, p := range e.Payments {
			if w != nil && (p.PaymentDate == nil || !w.Contains(*p.PaymentDate)) {
				continue
			}
			total = total.Add(p.Payment)
		}
	}
	return total
}

// scheduledUntil sums plan entries dated at or before end (and at or after
// start, when given).
func scheduledUntil(payments []ScheduledPayment, end time.Time, start *time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if p.PaymentDate == nil || p.PaymentDate.After(end) {
			continue
		}
		if start != nil && p.PaymentDate.Before(*start) {
			continue
		}
		total = total.Add(p.Payment)
	}
	return total
}

// StudentLateBalance is Σ scheduled − Σ confirmed over the given enrollments.
func StudentLateBalance(enrollments []Enrollment, end time.Time, start *time.Time, billableOnly bool) decimal.Decimal {
	scheduled, paid := decimal.Zero, decimal.Zero
	for _, e := range enrollments {
		if billableOnly && !e.Status.Billable() {
			continue
		}
		scheduled = scheduled.Add(scheduledUntil(e.Payments, end, start))
		paid = paid.Add(ConfirmedTotal(e.Paids))
	}
	return scheduled.Sub(paid)
}

// LatePaymentTotal sums the positive late balances of non-deleted students.
func LatePaymentTotal(students []Student, end time.Time, start *time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, s := range students {
		if s.Deleted {
			continue
		}
		if b := StudentLateBalance(s.Enrollments, end, start, true); b.IsPositive() {
			total = total.Add(b)
		}
	}
	return total
}

// LatePayers returns the IDs of students whose plan is ahead of their
// confirmed payments, across all enrollments regardless of status.
func LatePayers(students []Student, end time.Time) map[StudentID]bool {
	out := make(map[StudentID]bool)
	for _, s := range students {
		if s.Deleted {
			continue
		}
		if StudentLateBalance(s.Enrollments, end, nil, false).IsPositive() {
			out[s.ID] = true
		}
	}
	return out
}
