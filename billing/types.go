/*
Package billing provides the billing and accrual engine of the education center.

PURPOSE:
  This package holds the domain records (contracts, payments, lessons,
  enrollments) and the pure calculators that turn them into money figures:
  how much a student has been billed, how much they still owe, and how much
  a teacher has earned for a period. Nothing in here performs I/O; the data
  layer fetches records, the engine computes, the HTTP layer serializes.

KEY CONCEPTS IN THIS FILE (types.go):
  - Contract:        Billing agreement with monthly rate and payment anchor
  - PaymentRecord:   A "paid" entry; only confirmed ones count
  - ScheduledPayment: Installment plan entry ("payments")
  - AttendanceLesson: One class occurrence with per-student attendance
  - Enrollment:      Student-in-group join carrying all of the above
  - Group / Teacher / SalaryRecord / Expense

DESIGN PRINCIPLES:
  1. Precision: Money is decimal.Decimal, never float64
  2. Explicit optionals: missing values are pointers or NullDecimal with
     documented defaults, never falsy coercion
  3. Fixed calendar: every date comparison happens in Asia/Baku (time.go)

SEE ALSO:
  - proration.go: Billed amount from contracts
  - balance.go:   Balance and current payment from paids
  - salary.go:    Teacher salary accrual from attendance
  - window.go:    Date-window resolution for reports
*/
package billing

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY HELPERS
// =============================================================================

// OrZero returns the value of d, or zero when it is not set.
func OrZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}

// Money wraps a decimal into a valid NullDecimal.
func Money(v float64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromFloat(v))
}

func maxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StudentID string
type GroupID string
type TeacherID string

// =============================================================================
// CONTRACT
// =============================================================================

// Contract is one billing agreement inside an enrollment. Renegotiated
// pricing produces several contracts per enrollment.
type Contract struct {
	Number            int                 `json:"contract_id"`
	ContractStartDate *time.Time          `json:"contract_start_date,omitempty"`
	ContractEndDate   *time.Time          `json:"contract_end_date,omitempty"` // nil = still active
	PaymentStartDate  *time.Time          `json:"payment_start_date,omitempty"`
	MonthlyPayment    decimal.NullDecimal `json:"monthly_payment"`
}

// IsOpen reports whether the contract has no end date.
func (c Contract) IsOpen() bool { return c.ContractEndDate == nil }

// Monthly returns the monthly payment, zero when absent.
func (c Contract) Monthly() decimal.Decimal { return OrZero(c.MonthlyPayment) }

// PaymentAnchor returns the billing clock start. Contracts without a
// payment start date bill from the contract start date.
func (c Contract) PaymentAnchor() time.Time {
	if c.PaymentStartDate != nil {
		return *c.PaymentStartDate
	}
	if c.ContractStartDate != nil {
		return *c.ContractStartDate
	}
	return time.Time{}
}

// Validate rejects shapes the calculators cannot interpret.
func (c Contract) Validate() error {
	if c.ContractStartDate != nil && c.ContractEndDate != nil &&
		StartOfDay(*c.ContractEndDate).Before(StartOfDay(*c.ContractStartDate)) {
		return &ComputationError{
			Field:  "contract_end_date",
			Reason: "contract ends before it starts",
			Value:  c.ContractEndDate.Format(DateLayout),
		}
	}
	if c.MonthlyPayment.Valid && c.MonthlyPayment.Decimal.IsNegative() {
		return &ComputationError{
			Field:  "monthly_payment",
			Reason: "monthly payment is negative",
			Value:  c.MonthlyPayment.Decimal.String(),
		}
	}
	return nil
}

// SortContracts returns a copy of contracts ordered by start date.
// Contracts without a start date go last, keeping their relative order.
func SortContracts(contracts []Contract) []Contract {
	sorted := make([]Contract, len(contracts))
	copy(sorted, contracts)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].ContractStartDate, sorted[j].ContractStartDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
	return sorted
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentRecord is a "paid" entry. It is created by staff and confirmed
// later; only confirmed records count toward balance.
type PaymentRecord struct {
	Payment        decimal.NullDecimal `json:"payment"`
	PaymentDate    *time.Time          `json:"payment_date,omitempty"`
	Confirmed      bool                `json:"confirmed"`
	Discount       decimal.NullDecimal `json:"discount"`
	DiscountReason string              `json:"discount_reason,omitempty"`
}

// Amount returns the payment, zero when absent.
func (p PaymentRecord) Amount() decimal.Decimal { return OrZero(p.Payment) }

// ScheduledPayment is one installment of an enrollment's payment plan.
type ScheduledPayment struct {
	Payment     decimal.Decimal `json:"payment"`
	PaymentDate *time.Time      `json:"payment_date,omitempty"`
}

// =============================================================================
// ATTENDANCE
// =============================================================================

type LessonStatus string

const (
	LessonUnviewed  LessonStatus = "unviewed"
	LessonConfirmed LessonStatus = "confirmed"
	LessonCancelled LessonStatus = "cancelled"
)

type LessonRole string

const (
	RoleCurrent LessonRole = "current"
	RolePast    LessonRole = "past"
)

// Attendance values as staff record them.
const (
	AttendanceUnset   = 0
	AttendancePresent = 1
	AttendanceAbsent  = -1 // absent but counted
)

// LessonAttendance is one student's mark on a lesson.
type LessonAttendance struct {
	StudentID  StudentID `json:"student_id"`
	Attendance int       `json:"attendance"`
}

// PayKind says how a lesson pays its teacher.
type PayKind string

const (
	PayNone    PayKind = ""
	PayMonthly PayKind = "monthly"
	PayHourly  PayKind = "hourly"
)

// LessonPay is the teacher's own rate attached to a lesson.
type LessonPay struct {
	Kind  PayKind         `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// AttendanceLesson is a scheduled class occurrence.
type AttendanceLesson struct {
	ID        string             `json:"id"`
	GroupID   GroupID            `json:"group_id"`
	TeacherID TeacherID          `json:"teacher_id"`
	Date      time.Time          `json:"date"`
	Status    LessonStatus       `json:"status"`
	Role      LessonRole         `json:"role"`
	Pay       LessonPay          `json:"pay"`
	Students  []LessonAttendance `json:"students"`
}

// AttendanceOf returns the student's mark, AttendanceUnset when missing.
func (l AttendanceLesson) AttendanceOf(id StudentID) int {
	for _, s := range l.Students {
		if s.StudentID == id {
			return s.Attendance
		}
	}
	return AttendanceUnset
}

// Participants counts students marked present or absent-counted.
func (l AttendanceLesson) Participants() int {
	n := 0
	for _, s := range l.Students {
		if s.Attendance == AttendancePresent || s.Attendance == AttendanceAbsent {
			n++
		}
	}
	return n
}

// =============================================================================
// ENROLLMENT / GROUP / PEOPLE
// =============================================================================

type EnrollmentStatus string

const (
	StatusGraduate EnrollmentStatus = "graduate"
	StatusContinue EnrollmentStatus = "continue"
	StatusStopped  EnrollmentStatus = "stopped"
	StatusFreeze   EnrollmentStatus = "freeze"
)

// Billable reports whether the status takes part in balance reports.
func (s EnrollmentStatus) Billable() bool {
	return s == StatusGraduate || s == StatusContinue
}

// Enrollment joins a student to a group.
type Enrollment struct {
	StudentID   StudentID          `json:"student_id"`
	StudentName string             `json:"student_name"`
	GroupID     GroupID            `json:"group_id"`
	GroupName   string             `json:"group_name"`
	CourseID    string             `json:"course_id,omitempty"`
	Status      EnrollmentStatus   `json:"status"`
	Contracts   []Contract         `json:"contracts"`
	Paids       []PaymentRecord    `json:"paids"`
	Payments    []ScheduledPayment `json:"payments"`
}

type GroupStatus string

const (
	GroupWaiting GroupStatus = "waiting"
	GroupCurrent GroupStatus = "current"
	GroupEnded   GroupStatus = "ended"
)

// Group is a class taught by one or more teachers.
type Group struct {
	ID          GroupID            `json:"id"`
	Name        string             `json:"name"`
	CourseID    string             `json:"course_id,omitempty"`
	Status      GroupStatus        `json:"status"`
	TeacherIDs  []TeacherID        `json:"teacher_ids"`
	Enrollments []Enrollment       `json:"enrollments"`
	Lessons     []AttendanceLesson `json:"lessons,omitempty"`
}

// Student groups the enrollments of one person.
type Student struct {
	ID          StudentID    `json:"id"`
	FullName    string       `json:"full_name"`
	Deleted     bool         `json:"deleted"`
	Enrollments []Enrollment `json:"enrollments"`
}

type Teacher struct {
	ID       TeacherID `json:"id"`
	FullName string    `json:"full_name"`
	Deleted  bool      `json:"deleted"`
}

// SalaryRecord is the persisted amount paid to a teacher for a period.
// One record per teacher per calendar month.
type SalaryRecord struct {
	ID        string          `json:"id"`
	TeacherID TeacherID       `json:"teacher_id"`
	Paid      decimal.Decimal `json:"paid"`
	Date      time.Time       `json:"date"`
}

type Expense struct {
	ID       string          `json:"id"`
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	Date     time.Time       `json:"date"`
}
