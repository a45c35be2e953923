package billing

import (
	"time"
)

// =============================================================================
// WINDOW - The as-of range every report is evaluated against
// =============================================================================

// Granularity tells reporting how finely to bucket a window.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityMonth Granularity = "month"
)

// Window is an inclusive [Start, End] range in the billing zone.
type Window struct {
	Start       time.Time   `json:"start_date"`
	End         time.Time   `json:"end_date"`
	Granularity Granularity `json:"granularity"`
}

// Contains reports whether t lies inside the window, both ends inclusive.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// ClampEnd pulls the window end back to limit when it runs past it.
func (w Window) ClampEnd(limit time.Time) Window {
	if w.End.After(limit) {
		w.End = limit
	}
	return w
}

// Months splits the window into calendar-month windows, first to last.
func (w Window) Months() []Window {
	var out []Window
	for cur := StartOfMonth(w.Start); !cur.After(w.End); cur = AddMonths(cur, 1) {
		out = append(out, MonthWindow(cur))
	}
	return out
}

func (w Window) String() string {
	return "[" + w.Start.In(Zone).Format(DateLayout) + ", " + w.End.In(Zone).Format(DateLayout) + "]"
}

// WindowQuery is the raw window selection from a request.
type WindowQuery struct {
	MonthCount int
	Start      *time.Time
	End        *time.Time

	// Monthly widens explicit dates to whole months.
	Monthly bool
}

// IsEmpty reports whether nothing was selected.
func (q WindowQuery) IsEmpty() bool {
	return q.MonthCount <= 0 && q.Start == nil && q.End == nil
}

// ResolveWindow turns a query into a concrete window.
//
// The resolver never defaults an empty query: callers pick "today", "this
// month" or "all time" themselves and get ErrWindowRequired otherwise.
func ResolveWindow(q WindowQuery, now time.Time) (Window, error) {
	if q.MonthCount > 0 {
		w := Window{
			Start:       StartOfMonth(AddMonths(StartOfMonth(now), -(q.MonthCount - 1))),
			End:         EndOfMonth(now),
			Granularity: GranularityMonth,
		}
		if q.MonthCount == 1 {
			w.Granularity = GranularityDay
		}
		return w, nil
	}
	if q.Start == nil && q.End == nil {
		return Window{}, ErrWindowRequired
	}

	start, end := q.Start, q.End
	if start == nil {
		start = end
	}
	if end == nil {
		end = start
	}
	if end.Before(*start) {
		return Window{}, &InputError{Param: "end_date", Reason: "before start_date"}
	}

	w := Window{Start: StartOfDay(*start), End: EndOfDay(*end), Granularity: GranularityMonth}
	if q.Monthly {
		w.Start, w.End = StartOfMonth(*start), EndOfMonth(*end)
	}
	if StartOfDay(*start).Equal(StartOfDay(*end)) || (q.Monthly && MonthSpan(*start, *end) == 0) {
		w.Granularity = GranularityDay
	}
	return w, nil
}

// MonthWindow is the calendar month containing t.
func MonthWindow(t time.Time) Window {
	return Window{Start: StartOfMonth(t), End: EndOfMonth(t), Granularity: GranularityDay}
}

// DayWindow is the single day containing t.
func DayWindow(t time.Time) Window {
	return Window{Start: StartOfDay(t), End: EndOfDay(t), Granularity: GranularityDay}
}
