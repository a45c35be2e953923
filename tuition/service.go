/*
Package tuition serves the tuition fee screens: the per-enrollment fee list,
paid updates, and the three dashboard totals.

PURPOSE:
  Loads students through billing.EnrollmentStore, bills every enrollment
  with billing.TuitionFor as of "now", and shapes the rows the fee list
  shows. All money math lives in the billing package.

OPERATIONS:
  List:        One Fee row per enrollment, paged by student (20 per page)
  Student:     The Fee rows of one student
  UpdatePaids: Replace an enrollment's paids, return the recomputed row
  LatePayment: Σ positive (scheduled − confirmed) per student up to today
  PaidAmount:  Σ confirmed paids in a window (today by default)
  ToBePaid:    Σ scheduled payments in a window (or the whole plan)

CACHE INVALIDATION:
  UpdatePaids calls Invalidator.Bump so finance reports drop stale values.

SEE ALSO:
  - billing/balance.go:  TuitionFor, CalculateBalance
  - billing/schedule.go: LatePayers, LatePaymentTotal, ScheduledDue
*/
package tuition

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/tuition-engine/billing"
)

// PageSize is the number of students per fee list page.
const PageSize = 20

// Invalidator drops cached reports after a write.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service computes tuition fee rows and totals.
type Service struct {
	Store       billing.EnrollmentStore
	Clock       billing.Clock
	Logger      *slog.Logger
	Invalidator Invalidator // optional
}

// NewService wires a service with the system clock.
func NewService(store billing.EnrollmentStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Store: store, Clock: billing.SystemClock{}, Logger: logger}
}

// Filter narrows the fee list.
type Filter struct {
	Search   string
	GroupID  billing.GroupID
	CourseID string
	LateOnly bool       // only students whose plan is ahead of their payments
	AsOf     *time.Time // bill as of this date; nil or a future date means now
	Offset   int
	Limit    int // 0 = PageSize
}

// Fee is one row of the tuition fee list.
type Fee struct {
	ID              string                     `json:"id"`
	StudentID       billing.StudentID          `json:"student_id"`
	FullName        string                     `json:"full_name"`
	GroupID         billing.GroupID            `json:"group_id"`
	GroupName       string                     `json:"group_name"`
	Status          billing.EnrollmentStatus   `json:"status"`
	Contracts       []billing.Contract         `json:"contracts"`
	CurrentContract *billing.Contract          `json:"current_contract,omitempty"`
	Paids           []billing.PaymentRecord    `json:"paids"`
	Payments        []billing.ScheduledPayment `json:"payments"`
	Billed          decimal.Decimal            `json:"billed"`
	TotalPaid       decimal.Decimal            `json:"total_confirmed_paid"`
	Balance         decimal.Decimal            `json:"balance"`
	CurrentPayment  decimal.Decimal            `json:"current_payment"`
}

// Page is a slice of the fee list. CurrentLength is the offset to request
// the next page with.
type Page struct {
	Fees          []Fee `json:"tuition_fees"`
	CurrentLength int   `json:"current_length"`
}

// List returns fee rows for a page of students.
func (s *Service) List(ctx context.Context, f Filter) (Page, error) {
	now := s.Clock.Now()
	asOf := s.asOf(f.AsOf)
	limit := f.Limit
	if limit <= 0 {
		limit = PageSize
	}

	filter := billing.StudentFilter{
		Search:   f.Search,
		GroupID:  f.GroupID,
		CourseID: f.CourseID,
		Offset:   f.Offset,
		Limit:    limit,
	}
	if f.LateOnly {
		all, err := s.Store.ListStudents(ctx, billing.StudentFilter{})
		if err != nil {
			return Page{}, fmt.Errorf("failed to load students: %w", err)
		}
		filter.IDs = billing.LatePayers(all, billing.EndOfDay(now))
	}

	students, err := s.Store.ListStudents(ctx, filter)
	if err != nil {
		return Page{}, fmt.Errorf("failed to list students: %w", err)
	}

	fees := []Fee{}
	for _, st := range students {
		for _, e := range st.Enrollments {
			fee, err := feeFor(st, e, asOf)
			if err != nil {
				s.Logger.Error("tuition computation failed",
					"student_id", st.ID, "group_id", e.GroupID, "err", err)
				return Page{}, err
			}
			fees = append(fees, fee)
		}
	}

	return Page{Fees: fees, CurrentLength: f.Offset + len(students)}, nil
}

// Student returns the fee rows of one student, one per enrollment.
func (s *Service) Student(ctx context.Context, id billing.StudentID, asOf *time.Time) ([]Fee, error) {
	st, err := s.Store.GetStudent(ctx, id)
	if err != nil {
		return nil, err
	}
	at := s.asOf(asOf)
	fees := make([]Fee, 0, len(st.Enrollments))
	for _, e := range st.Enrollments {
		fee, err := feeFor(*st, e, at)
		if err != nil {
			return nil, err
		}
		fees = append(fees, fee)
	}
	return fees, nil
}

func (s *Service) asOf(reference *time.Time) time.Time {
	now := s.Clock.Now()
	if reference == nil {
		return now
	}
	return billing.AsOf(billing.EndOfDay(*reference), now)
}

// UpdatePaids replaces the paids of one enrollment and returns its new row.
func (s *Service) UpdatePaids(ctx context.Context, studentID billing.StudentID, groupID billing.GroupID, paids []billing.PaymentRecord) (Fee, error) {
	e, err := s.Store.ReplacePaids(ctx, studentID, groupID, paids)
	if err != nil {
		return Fee{}, err
	}

	if s.Invalidator != nil {
		if err := s.Invalidator.Bump(ctx); err != nil {
			s.Logger.Warn("report cache bump failed", "err", err)
		}
	}

	st := billing.Student{ID: studentID, FullName: e.StudentName}
	fee, err := feeFor(st, e, s.Clock.Now())
	if err != nil {
		return Fee{}, err
	}
	s.Logger.Info("paids updated",
		"student_id", studentID, "group_id", groupID, "paids", len(paids), "balance", fee.Balance.String())
	return fee, nil
}

func feeFor(st billing.Student, e billing.Enrollment, now time.Time) (Fee, error) {
	line, err := billing.TuitionFor(e, now)
	if err != nil {
		return Fee{}, fmt.Errorf("student %s group %s: %w", st.ID, e.GroupID, err)
	}
	name := st.FullName
	if name == "" {
		name = e.StudentName
	}
	return Fee{
		ID:              uuid.NewString(),
		StudentID:       st.ID,
		FullName:        name,
		GroupID:         e.GroupID,
		GroupName:       e.GroupName,
		Status:          e.Status,
		Contracts:       line.Contracts,
		CurrentContract: line.CurrentContract,
		Paids:           e.Paids,
		Payments:        e.Payments,
		Billed:          line.Proration.TotalBilled,
		TotalPaid:       line.TotalConfirmedPaid,
		Balance:         line.Balance.Balance,
		CurrentPayment:  line.CurrentPayment,
	}, nil
}

// =============================================================================
// DASHBOARD TOTALS
// =============================================================================

// LatePayment sums what students owe by their installment plans. Without a
// window (or with all set) it looks at everything scheduled up to today;
// otherwise the window end is clamped to today.
func (s *Service) LatePayment(ctx context.Context, q billing.WindowQuery, all bool) (decimal.Decimal, error) {
	now := s.Clock.Now()
	end := billing.EndOfDay(now)
	var start *time.Time

	if !all && !q.IsEmpty() {
		w, err := billing.ResolveWindow(q, now)
		if err != nil {
			return decimal.Zero, err
		}
		w = w.ClampEnd(end)
		end = w.End
		start = &w.Start
	}

	students, err := s.Store.ListStudents(ctx, billing.StudentFilter{})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load students: %w", err)
	}
	return billing.LatePaymentTotal(students, end, start).Round(2), nil
}

// PaidAmount sums confirmed paids inside the window, today by default.
func (s *Service) PaidAmount(ctx context.Context, q billing.WindowQuery, currentDay bool) (decimal.Decimal, error) {
	now := s.Clock.Now()
	w := billing.DayWindow(now)
	if !currentDay && !q.IsEmpty() {
		var err error
		if w, err = billing.ResolveWindow(q, now); err != nil {
			return decimal.Zero, err
		}
	}

	students, err := s.Store.ListStudents(ctx, billing.StudentFilter{})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load students: %w", err)
	}
	return billing.PaidInWindow(enrollmentsOf(students), w).Round(2), nil
}

// ToBePaid sums scheduled payments of billable enrollments inside the
// window, or the whole plan when all is set or no window is given.
func (s *Service) ToBePaid(ctx context.Context, q billing.WindowQuery, all bool) (decimal.Decimal, error) {
	var window *billing.Window
	if !all && !q.IsEmpty() {
		w, err := billing.ResolveWindow(q, s.Clock.Now())
		if err != nil {
			return decimal.Zero, err
		}
		window = &w
	}

	students, err := s.Store.ListStudents(ctx, billing.StudentFilter{})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load students: %w", err)
	}
	return billing.ScheduledDue(enrollmentsOf(students), window).Round(2), nil
}

func enrollmentsOf(students []billing.Student) []billing.Enrollment {
	var out []billing.Enrollment
	for _, st := range students {
		out = append(out, st.Enrollments...)
	}
	return out
}
