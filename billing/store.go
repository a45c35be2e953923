/*
store.go - Persistence interfaces for the records the engine reads

PURPOSE:
  Defines the boundary between the services and the database. The engine
  itself never calls these; services fetch records through them and hand
  plain values to the calculators.

KEY INTERFACES:
  EnrollmentStore: Students and their enrollments (contracts, paids, plans)
  GroupStore:      Groups a teacher leads, with enrollments attached
  LessonStore:     Attendance lessons by group or teacher and window
  SalaryStore:     Paid salary records, one per teacher per month
  TeacherStore:    Teacher lookup and paging
  ExpenseStore:    Expenses by window

WRITES:
  Only two writes exist: ReplacePaids swaps an enrollment's paids
  wholesale, and UpsertSalary sets the paid amount of a teacher's month.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - billing/store/memory.go: In-memory for testing

SEE ALSO:
  - tuition/service.go, payroll/service.go, report/service.go
*/
package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StudentFilter narrows student listings.
type StudentFilter struct {
	Search   string // case-insensitive substring of the full name
	GroupID  GroupID
	CourseID string
	IDs      map[StudentID]bool // nil = no restriction
	Offset   int
	Limit    int // 0 = no limit
}

// TeacherFilter narrows teacher listings.
type TeacherFilter struct {
	Search string
	Offset int
	Limit  int
}

type EnrollmentStore interface {
	// ListStudents returns non-deleted students with enrollments, ordered by name.
	ListStudents(ctx context.Context, filter StudentFilter) ([]Student, error)

	// GetStudent returns ErrNotFound when missing.
	GetStudent(ctx context.Context, id StudentID) (*Student, error)

	// ReplacePaids swaps the paids of one enrollment and returns it.
	// Returns ErrNotFound when the student is not enrolled in the group.
	ReplacePaids(ctx context.Context, studentID StudentID, groupID GroupID, paids []PaymentRecord) (Enrollment, error)
}

type GroupStore interface {
	// GroupsByTeacher returns the groups a teacher leads, enrollments attached.
	GroupsByTeacher(ctx context.Context, teacherID TeacherID) ([]Group, error)
}

type LessonStore interface {
	// ConfirmedLessons returns confirmed lessons of a group inside the window.
	ConfirmedLessons(ctx context.Context, groupID GroupID, w Window) ([]AttendanceLesson, error)

	// LessonsByTeacher returns every lesson of a teacher inside the window.
	LessonsByTeacher(ctx context.Context, teacherID TeacherID, w Window) ([]AttendanceLesson, error)
}

type SalaryStore interface {
	// SalaryForPeriod returns the record dated inside w, nil when none.
	SalaryForPeriod(ctx context.Context, teacherID TeacherID, w Window) (*SalaryRecord, error)

	// UpsertSalary sets the paid amount of the record dated inside w,
	// creating one dated w.Start + 15 days when none exists.
	UpsertSalary(ctx context.Context, teacherID TeacherID, w Window, paid decimal.Decimal) (SalaryRecord, error)

	// SalariesInRange returns all records dated inside w.
	SalariesInRange(ctx context.Context, w Window) ([]SalaryRecord, error)
}

type TeacherStore interface {
	// ListTeachers returns a page of non-deleted teachers and the total count.
	ListTeachers(ctx context.Context, filter TeacherFilter) ([]Teacher, int, error)

	// GetTeacher returns ErrNotFound when missing.
	GetTeacher(ctx context.Context, id TeacherID) (*Teacher, error)
}

type ExpenseStore interface {
	ExpensesInRange(ctx context.Context, w Window) ([]Expense, error)
}

// Store is the full data layer.
type Store interface {
	EnrollmentStore
	GroupStore
	LessonStore
	SalaryStore
	TeacherStore
	ExpenseStore
}

// SalaryRecordDate is where a new salary record is dated inside its month.
func SalaryRecordDate(w Window) time.Time {
	return w.Start.AddDate(0, 0, 15)
}
