/*
Package report produces the finance dashboard: income, expense, salary and
profit for a window, and the same figures split per month for the chart.

PURPOSE:
  Loads paids, expenses and salary records for the window, then calls
  billing.Summarize / billing.Chart. Results are cached in Redis through
  Cache; writers elsewhere call Cache.Bump to invalidate.

WINDOW:
  monthCount selects the last N months up to the end of this month.
  startDate/endDate are widened to whole months. Without either the
  request is rejected with billing.ErrWindowRequired.

SEE ALSO:
  - billing/finance.go: Summarize, Chart
  - cache.go:           Versioned JSON cache
*/
package report

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/warp/tuition-engine/billing"
)

// Store is the subset of the data layer reports read.
type Store interface {
	billing.EnrollmentStore
	billing.ExpenseStore
	billing.SalaryStore
}

// Service computes finance reports.
type Service struct {
	Store  Store
	Cache  *Cache // nil = no caching
	Clock  billing.Clock
	Logger *slog.Logger
}

// NewService wires a service with the system clock.
func NewService(store Store, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Store: store, Cache: cache, Clock: billing.SystemClock{}, Logger: logger}
}

// Window resolves a finance query. Explicit dates always cover whole months.
func (s *Service) Window(q billing.WindowQuery) (billing.Window, error) {
	if q.MonthCount <= 0 && (q.Start == nil || q.End == nil) {
		return billing.Window{}, billing.ErrWindowRequired
	}
	q.Monthly = true
	return billing.ResolveWindow(q, s.Clock.Now())
}

// Finance returns the summary for the window of q.
func (s *Service) Finance(ctx context.Context, q billing.WindowQuery) (billing.FinanceSummary, error) {
	w, err := s.Window(q)
	if err != nil {
		return billing.FinanceSummary{}, err
	}

	var out billing.FinanceSummary
	err = s.cached(ctx, &out, func(ctx context.Context) (any, error) {
		in, err := s.load(ctx, w)
		if err != nil {
			return nil, err
		}
		return billing.Summarize(in, w), nil
	}, "finance", w)
	return out, err
}

// Chart returns one point per calendar month of the window of q.
func (s *Service) Chart(ctx context.Context, q billing.WindowQuery) ([]billing.ChartPoint, error) {
	w, err := s.Window(q)
	if err != nil {
		return nil, err
	}

	var out []billing.ChartPoint
	err = s.cached(ctx, &out, func(ctx context.Context) (any, error) {
		in, err := s.load(ctx, w)
		if err != nil {
			return nil, err
		}
		return billing.Chart(in, w), nil
	}, "chart", w)
	return out, err
}

func (s *Service) cached(ctx context.Context, dest any, loader func(context.Context) (any, error), kind string, w billing.Window) error {
	key, err := s.Cache.BuildKey(ctx, "report", kind,
		w.Start.Format(billing.DateLayout), w.End.Format(billing.DateLayout))
	if err != nil {
		s.Logger.Warn("report cache unavailable", "err", err)
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return assign(dest, value)
	}
	return s.Cache.FetchJSON(ctx, key, dest, loader)
}

// load fetches paids, expenses and salary records for w concurrently.
func (s *Service) load(ctx context.Context, w billing.Window) (billing.FinanceInput, error) {
	var (
		in       billing.FinanceInput
		students []billing.Student
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		students, err = s.Store.ListStudents(ctx, billing.StudentFilter{})
		if err != nil {
			return fmt.Errorf("failed to load students: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		in.Expenses, err = s.Store.ExpensesInRange(ctx, w)
		if err != nil {
			return fmt.Errorf("failed to load expenses: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		in.Salaries, err = s.Store.SalariesInRange(ctx, w)
		if err != nil {
			return fmt.Errorf("failed to load salaries: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return billing.FinanceInput{}, err
	}

	for _, st := range students {
		in.Enrollments = append(in.Enrollments, st.Enrollments...)
	}
	return in, nil
}

func assign(dest, value any) error {
	switch d := dest.(type) {
	case *billing.FinanceSummary:
		*d = value.(billing.FinanceSummary)
	case *[]billing.ChartPoint:
		*d = value.([]billing.ChartPoint)
	default:
		return fmt.Errorf("report: unsupported destination %T", dest)
	}
	return nil
}
