package billing

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// FINANCE SUMMARY - Income, expense, salary and profit for a window
// =============================================================================

// FinanceInput is everything a finance report reads.
type FinanceInput struct {
	Enrollments []Enrollment
	Expenses    []Expense
	Salaries    []SalaryRecord
}

// FinanceSummary is the headline figure set.
type FinanceSummary struct {
	Window  Window          `json:"window"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Salary  decimal.Decimal `json:"salary"`
	Profit  decimal.Decimal `json:"profit"`
}

// Summarize computes income (confirmed paids), expense, paid salaries and
// profit = income − expense − salary for the window.
func Summarize(in FinanceInput, w Window) FinanceSummary {
	income := PaidInWindow(in.Enrollments, w)

	expense := decimal.Zero
	for _, e := range in.Expenses {
		if w.Contains(e.Date) {
			expense = expense.Add(e.Amount)
		}
	}

	salary := decimal.Zero
	for _, s := range in.Salaries {
		if w.Contains(s.Date) {
			salary = salary.Add(s.Paid)
		}
	}

	return FinanceSummary{
		Window:  w,
		Income:  income,
		Expense: expense,
		Salary:  salary,
		Profit:  income.Sub(expense).Sub(salary),
	}
}

// ChartPoint is one month of the finance chart.
type ChartPoint struct {
	Month   string          `json:"month"`
	Year    int             `json:"year"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"` // expenses plus paid salaries
	Profit  decimal.Decimal `json:"profit"`
}

// Chart splits the window into months and summarizes each.
func Chart(in FinanceInput, w Window) []ChartPoint {
	months := w.Months()
	points := make([]ChartPoint, 0, len(months))
	for _, m := range months {
		s := Summarize(in, m)
		points = append(points, ChartPoint{
			Month:   m.Start.Month().String(),
			Year:    m.Start.Year(),
			Income:  s.Income,
			Expense: s.Expense.Add(s.Salary),
			Profit:  s.Profit,
		})
	}
	return points
}
