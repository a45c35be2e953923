/*
salary.go - Teacher salary accrual from student attendance

PURPOSE:
  Computes what a teacher earned in a window. The teacher earns half of each
  student's monthly tuition, weighted by how many lessons the student
  actually attended, against a baseline of 12 lessons per month.

ALGORITHM:
  For every group the teacher leads (status != waiting):
    For every enrollment in the group:
      For every contract (ordered by start date):
        count    = confirmed lessons with attendance 1, dated inside
                   [max(window.Start, contractStart),
                    min(contractEnd or end of today, window.End)]
        fraction = min(count, 12) / 12
        share    = monthlyPayment / 2 × fraction, rounded to 2 places
  TotalSalary = Σ rounded shares. Rounding happens per line.

EXAMPLE:
  Monthly payment 400, 6 lessons attended:  400/2 × 6/12  = 100.00
  Monthly payment 400, 15 lessons attended: 400/2 × 12/12 = 200.00

REST:
  When a salary record exists for the period, Rest = max(0, total − paid).
  Without a record, Rest is 0.

SEE ALSO:
  - payroll/service.go: Fetches groups and lessons, persists paid amounts
  - parallel.go:        Runs one accrual per teacher concurrently
*/
package billing

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// LessonsPerMonth is the attendance baseline for a full monthly share.
const LessonsPerMonth = 12

var half = decimal.NewFromInt(2)

// SalaryRequest groups all input of one accrual.
type SalaryRequest struct {
	TeacherID TeacherID
	Groups    []Group
	Window    Window

	// Now bounds open-ended contracts (end of this day).
	Now time.Time

	// AlreadyPaid is the paid amount of an existing salary record, if any.
	AlreadyPaid decimal.NullDecimal
}

// SalaryLine is the teacher's share from one student contract.
type SalaryLine struct {
	StudentID             StudentID       `json:"student_id"`
	StudentName           string          `json:"student_name"`
	GroupID               GroupID         `json:"group_id"`
	GroupName             string          `json:"group_name"`
	ContractNumber        int             `json:"contract_number"`
	ContractName          string          `json:"contract_name"`
	ContractStartDate     *time.Time      `json:"contract_start_date,omitempty"`
	ContractEndDate       time.Time       `json:"contract_end_date"`
	StudentMonthlyPayment decimal.Decimal `json:"student_monthly_payment"`
	LessonsCount          int             `json:"lessons_count"`
	TeacherShare          decimal.Decimal `json:"teacher_salary_to_student_payment"`
}

// Salary is the accrual result for one teacher and window.
type Salary struct {
	TeacherID   TeacherID       `json:"teacher_id"`
	Window      Window          `json:"window"`
	TotalSalary decimal.Decimal `json:"total_salary"`
	Paid        decimal.Decimal `json:"paid"`
	Rest        decimal.Decimal `json:"rest"`
	Lines       []SalaryLine    `json:"salaries_list_every_student"`
}

// AccrueSalary computes the teacher's salary for the request window.
func AccrueSalary(req SalaryRequest) (Salary, error) {
	if req.Window.End.Before(req.Window.Start) {
		return Salary{}, &ComputationError{
			Field:  "window",
			Reason: "window ends before it starts",
			Value:  req.Window.String(),
		}
	}

	fallbackEnd := EndOfDay(req.Now)
	result := Salary{
		TeacherID:   req.TeacherID,
		Window:      req.Window,
		TotalSalary: decimal.Zero,
		Lines:       []SalaryLine{},
	}

	for _, g := range req.Groups {
		if g.Status == GroupWaiting {
			continue
		}
		lessons := attendedLessons(g.Lessons, req.Window)

		for _, e := range g.Enrollments {
			for i, c := range SortContracts(e.Contracts) {
				if err := c.Validate(); err != nil {
					return Salary{}, fmt.Errorf("student %s group %s: %w", e.StudentID, g.ID, err)
				}

				from := req.Window.Start
				if c.ContractStartDate != nil {
					from = maxTime(from, *c.ContractStartDate)
				}
				contractEnd := fallbackEnd
				if c.ContractEndDate != nil {
					contractEnd = *c.ContractEndDate
				}
				to := minTime(contractEnd, req.Window.End)

				count := countAttended(lessons, e.StudentID, from, to)
				share := TeacherShare(c.Monthly(), count)

				result.TotalSalary = result.TotalSalary.Add(share)
				result.Lines = append(result.Lines, SalaryLine{
					StudentID:             e.StudentID,
					StudentName:           e.StudentName,
					GroupID:               g.ID,
					GroupName:             g.Name,
					ContractNumber:        i + 1,
					ContractName:          fmt.Sprintf("Contract %d", i+1),
					ContractStartDate:     c.ContractStartDate,
					ContractEndDate:       contractEnd,
					StudentMonthlyPayment: c.Monthly(),
					LessonsCount:          count,
					TeacherShare:          share,
				})
			}
		}
	}

	result.Paid = OrZero(req.AlreadyPaid)
	result.Rest = decimal.Zero
	if req.AlreadyPaid.Valid {
		result.Rest = maxDecimal(decimal.Zero, result.TotalSalary.Sub(req.AlreadyPaid.Decimal))
	}
	return result, nil
}

// TeacherShare is half the monthly payment weighted by attendance,
// rounded to 2 decimal places. Saturates at 12 lessons.
func TeacherShare(monthly decimal.Decimal, lessons int) decimal.Decimal {
	if lessons <= 0 {
		return decimal.Zero.Round(2)
	}
	if lessons > LessonsPerMonth {
		lessons = LessonsPerMonth
	}
	fraction := decimal.NewFromInt(int64(lessons)).Div(decimal.NewFromInt(LessonsPerMonth))
	return monthly.Div(half).Mul(fraction).Round(2)
}

// attendedLessons keeps confirmed lessons inside the window.
func attendedLessons(lessons []AttendanceLesson, w Window) []AttendanceLesson {
	var out []AttendanceLesson
	for _, l := range lessons {
		if l.Status == LessonConfirmed && w.Contains(l.Date) {
			out = append(out, l)
		}
	}
	return out
}

func countAttended(lessons []AttendanceLesson, id StudentID, from, to time.Time) int {
	n := 0
	for _, l := range lessons {
		if l.Date.Before(from) || l.Date.After(to) {
			continue
		}
		if l.AttendanceOf(id) == AttendancePresent {
			n++
		}
	}
	return n
}

// =============================================================================
// LESSON EARNINGS - A teacher's own per-lesson rate
// =============================================================================

// LessonEarnings is what a teacher sees on their own salary page.
type LessonEarnings struct {
	TeacherID        TeacherID       `json:"teacher_id"`
	TotalSalary      decimal.Decimal `json:"total_salary"`
	ParticipantCount int             `json:"participant_count"`
	Bonus            decimal.Decimal `json:"bonus"`
}

// EarnFromLessons totals confirmed current-role lessons. A monthly rate is
// paid once each time the lesson month changes; an hourly rate is paid per
// participant.
func EarnFromLessons(teacherID TeacherID, lessons []AttendanceLesson) LessonEarnings {
	ordered := make([]AttendanceLesson, 0, len(lessons))
	for _, l := range lessons {
		if l.Status == LessonConfirmed && l.Role == RoleCurrent {
			ordered = append(ordered, l)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Date.Before(ordered[j].Date) })

	out := LessonEarnings{TeacherID: teacherID, TotalSalary: decimal.Zero, Bonus: decimal.Zero}
	lastMonth := time.Month(0)
	for _, l := range ordered {
		participants := l.Participants()
		out.ParticipantCount += participants

		switch l.Pay.Kind {
		case PayMonthly:
			if m := l.Date.In(Zone).Month(); m != lastMonth {
				out.TotalSalary = out.TotalSalary.Add(l.Pay.Value)
				lastMonth = m
			}
		case PayHourly:
			out.TotalSalary = out.TotalSalary.Add(l.Pay.Value.Mul(decimal.NewFromInt(int64(participants))))
		}
	}
	return out
}
