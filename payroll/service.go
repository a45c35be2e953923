/*
Package payroll computes and records teacher salaries.

PURPOSE:
  Gathers a teacher's groups, the confirmed lessons of each group inside
  the month, and any salary already paid, then hands everything to
  billing.AccrueSalary. Persistence goes through billing.SalaryStore.

OPERATIONS:
  Calculate:  One teacher, one window
  ForAdmins:  A page of teachers (20), computed concurrently
  AddSalary:  Record a payment for the month of a date, then recompute
  ForTeacher: A teacher's own per-lesson earnings (monthly/hourly pay)

FAN-OUT:
  ForAdmins runs Calculate per teacher through billing.ParallelMap with a
  bounded worker count. A failing teacher becomes a row carrying its error;
  the rest of the page is still returned.

ADMIN WINDOW:
  The admin screen sends the first day of a month. The window is the
  calendar month of that date + 15 days, so a start date on the last day
  of the previous month still lands in the intended month.

SEE ALSO:
  - billing/salary.go:   AccrueSalary, EarnFromLessons
  - billing/parallel.go: ParallelMap
*/
package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/tuition-engine/billing"
)

// PageSize is the number of teachers per admin page.
const PageSize = 20

// DefaultWorkers bounds the admin fan-out when Workers is unset.
const DefaultWorkers = 8

// Store is the subset of the data layer payroll reads and writes.
type Store interface {
	billing.GroupStore
	billing.LessonStore
	billing.SalaryStore
	billing.TeacherStore
}

// Invalidator drops cached reports after a write.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service computes teacher salaries.
type Service struct {
	Store       Store
	Clock       billing.Clock
	Logger      *slog.Logger
	Workers     int
	Invalidator Invalidator // optional
}

// NewService wires a service with the system clock.
func NewService(store Store, logger *slog.Logger, workers int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Store: store, Clock: billing.SystemClock{}, Logger: logger, Workers: workers}
}

// TeacherSalary is one row of the salary screen.
type TeacherSalary struct {
	FullName string `json:"full_name"`
	billing.Salary
	Error string `json:"error,omitempty"`
}

// =============================================================================
// CALCULATION
// =============================================================================

// Calculate accrues the salary of one teacher for window w.
func (s *Service) Calculate(ctx context.Context, teacher billing.Teacher, w billing.Window) (TeacherSalary, error) {
	groups, err := s.Store.GroupsByTeacher(ctx, teacher.ID)
	if err != nil {
		return TeacherSalary{}, fmt.Errorf("failed to load groups of teacher %s: %w", teacher.ID, err)
	}

	for i := range groups {
		if groups[i].Status == billing.GroupWaiting {
			continue
		}
		lessons, err := s.Store.ConfirmedLessons(ctx, groups[i].ID, w)
		if err != nil {
			return TeacherSalary{}, fmt.Errorf("failed to load lessons of group %s: %w", groups[i].ID, err)
		}
		groups[i].Lessons = lessons
	}

	record, err := s.Store.SalaryForPeriod(ctx, teacher.ID, w)
	if err != nil {
		return TeacherSalary{}, fmt.Errorf("failed to load salary record: %w", err)
	}
	var paid decimal.NullDecimal
	if record != nil {
		paid = decimal.NewNullDecimal(record.Paid)
	}

	salary, err := billing.AccrueSalary(billing.SalaryRequest{
		TeacherID:   teacher.ID,
		Groups:      groups,
		Window:      w,
		Now:         s.Clock.Now(),
		AlreadyPaid: paid,
	})
	if err != nil {
		return TeacherSalary{}, fmt.Errorf("teacher %s: %w", teacher.ID, err)
	}

	s.Logger.Debug("salary computed",
		"teacher_id", teacher.ID, "window", w.String(), "total", salary.TotalSalary.String(), "lines", len(salary.Lines))
	return TeacherSalary{FullName: teacher.FullName, Salary: salary}, nil
}

// AdminQuery selects a page of the admin salary screen.
type AdminQuery struct {
	Start  *time.Time // nil = current month
	Search string
	Offset int
	Limit  int // 0 = PageSize
}

// AdminPage is a page of teacher salaries.
type AdminPage struct {
	Window      billing.Window  `json:"window"`
	Salaries    []TeacherSalary `json:"salaries_data"`
	TotalLength int             `json:"total_length"`
}

// ForAdmins computes the salaries of a page of teachers concurrently.
func (s *Service) ForAdmins(ctx context.Context, q AdminQuery) (AdminPage, error) {
	w := AdminWindow(q.Start, s.Clock.Now())

	limit := q.Limit
	if limit <= 0 {
		limit = PageSize
	}
	teachers, total, err := s.Store.ListTeachers(ctx, billing.TeacherFilter{
		Search: q.Search,
		Offset: q.Offset,
		Limit:  limit,
	})
	if err != nil {
		return AdminPage{}, fmt.Errorf("failed to list teachers: %w", err)
	}

	workers := s.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	results := billing.ParallelMap(ctx, teachers, workers, func(ctx context.Context, t billing.Teacher) (TeacherSalary, error) {
		return s.Calculate(ctx, t, w)
	})

	switch err := results.Err(); {
	case err == nil:
		return AdminPage{Window: w, Salaries: results.Values(), TotalLength: total}, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return AdminPage{}, err
	}

	rows := make([]TeacherSalary, len(results))
	for i, r := range results {
		if r.Err != nil {
			s.Logger.Error("salary computation failed", "teacher_id", teachers[i].ID, "err", r.Err)
			rows[i] = TeacherSalary{
				FullName: teachers[i].FullName,
				Salary:   billing.Salary{TeacherID: teachers[i].ID, Window: w, Lines: []billing.SalaryLine{}},
				Error:    r.Err.Error(),
			}
			continue
		}
		rows[i] = r.Value
	}

	return AdminPage{Window: w, Salaries: rows, TotalLength: total}, nil
}

// AdminWindow is the calendar month of start + 15 days, or the current
// month when start is nil.
func AdminWindow(start *time.Time, now time.Time) billing.Window {
	if start == nil {
		return billing.MonthWindow(now)
	}
	return billing.MonthWindow(start.In(billing.Zone).AddDate(0, 0, 15))
}

// =============================================================================
// RECORDING
// =============================================================================

// AddSalary records paid for the month containing date and returns the
// recomputed salary of that month.
func (s *Service) AddSalary(ctx context.Context, teacherID billing.TeacherID, paid decimal.Decimal, date time.Time) (TeacherSalary, error) {
	if paid.IsNegative() {
		return TeacherSalary{}, &billing.InputError{Param: "paid", Reason: "must not be negative"}
	}
	teacher, err := s.Store.GetTeacher(ctx, teacherID)
	if err != nil {
		return TeacherSalary{}, err
	}

	w := billing.MonthWindow(date)
	rec, err := s.Store.UpsertSalary(ctx, teacherID, w, paid)
	if err != nil {
		return TeacherSalary{}, fmt.Errorf("failed to save salary: %w", err)
	}
	s.Logger.Info("salary recorded",
		"teacher_id", teacherID, "window", w.String(), "paid", rec.Paid.String(), "record_id", rec.ID)

	if s.Invalidator != nil {
		if err := s.Invalidator.Bump(ctx); err != nil {
			s.Logger.Warn("report cache bump failed", "err", err)
		}
	}

	return s.Calculate(ctx, *teacher, billing.MonthWindow(rec.Date))
}

// =============================================================================
// TEACHER VIEW
// =============================================================================

// ForTeacher totals a teacher's own lesson pay inside the window. An empty
// query means the current month.
func (s *Service) ForTeacher(ctx context.Context, teacherID billing.TeacherID, q billing.WindowQuery) (billing.LessonEarnings, error) {
	now := s.Clock.Now()
	w, err := billing.ResolveWindow(q, now)
	if errors.Is(err, billing.ErrWindowRequired) {
		w, err = billing.MonthWindow(now), nil
	}
	if err != nil {
		return billing.LessonEarnings{}, err
	}

	if _, err := s.Store.GetTeacher(ctx, teacherID); err != nil {
		return billing.LessonEarnings{}, err
	}
	lessons, err := s.Store.LessonsByTeacher(ctx, teacherID, w)
	if err != nil {
		return billing.LessonEarnings{}, fmt.Errorf("failed to load lessons: %w", err)
	}
	return billing.EarnFromLessons(teacherID, lessons), nil
}
