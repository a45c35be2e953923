package payroll_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tuition-engine/billing"
	"github.com/warp/tuition-engine/billing/store"
	"github.com/warp/tuition-engine/payroll"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var now = billing.Date(2026, time.April, 20).Add(10 * time.Hour)

// faultyStore fails group lookups for one teacher.
type faultyStore struct {
	*store.Memory
	failFor billing.TeacherID
}

func (f faultyStore) GroupsByTeacher(ctx context.Context, id billing.TeacherID) ([]billing.Group, error) {
	if id == f.failFor {
		return nil, errors.New("disk on fire")
	}
	return f.Memory.GroupsByTeacher(ctx, id)
}

type countingInvalidator struct{ bumps int }

func (c *countingInvalidator) Bump(context.Context) error {
	c.bumps++
	return nil
}

// seed: Aysel leads a current group (one 400/month student attending six
// April lessons) and a waiting group; Bakhtiyar leads nothing.
func seed(t *testing.T) *store.Memory {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()

	require.NoError(t, mem.SaveTeacher(ctx, billing.Teacher{ID: "t-1", FullName: "Aysel Mammadova"}))
	require.NoError(t, mem.SaveTeacher(ctx, billing.Teacher{ID: "t-2", FullName: "Bakhtiyar Rzayev"}))
	require.NoError(t, mem.SaveGroup(ctx, billing.Group{ID: "g-1", Name: "Math 7", Status: billing.GroupCurrent, TeacherIDs: []billing.TeacherID{"t-1"}}))
	require.NoError(t, mem.SaveGroup(ctx, billing.Group{ID: "g-2", Name: "Math 8", Status: billing.GroupWaiting, TeacherIDs: []billing.TeacherID{"t-1"}}))

	start := billing.Date(2026, time.January, 1)
	contract := billing.Contract{ContractStartDate: &start, PaymentStartDate: &start, MonthlyPayment: decimal.NewNullDecimal(decimal.NewFromInt(400))}
	require.NoError(t, mem.SaveStudent(ctx, billing.Student{ID: "s-1", FullName: "Kamal", Enrollments: []billing.Enrollment{{GroupID: "g-1", Contracts: []billing.Contract{contract}}}}))
	require.NoError(t, mem.SaveStudent(ctx, billing.Student{ID: "s-2", FullName: "Orkhan", Enrollments: []billing.Enrollment{{GroupID: "g-2", Contracts: []billing.Contract{contract}}}}))

	lesson := func(id string, d time.Time) billing.AttendanceLesson {
		return billing.AttendanceLesson{
			ID:        id,
			GroupID:   "g-1",
			TeacherID: "t-1",
			Date:      d,
			Status:    billing.LessonConfirmed,
			Role:      billing.RoleCurrent,
			Pay:       billing.LessonPay{Kind: billing.PayHourly, Value: decimal.NewFromInt(10)},
			Students:  []billing.LessonAttendance{{StudentID: "s-1", Attendance: billing.AttendancePresent}},
		}
	}
	for i := 1; i <= 6; i++ {
		require.NoError(t, mem.SaveLesson(ctx, lesson(fmt.Sprintf("l-%d", i), billing.Date(2026, time.April, i).Add(10*time.Hour))))
	}
	require.NoError(t, mem.SaveLesson(ctx, lesson("l-march", billing.Date(2026, time.March, 20))))
	return mem
}

func newService(s payroll.Store) (*payroll.Service, *countingInvalidator) {
	inv := &countingInvalidator{}
	svc := payroll.NewService(s, slog.New(slog.NewTextHandler(io.Discard, nil)), 2)
	svc.Clock = billing.FixedClock{At: now}
	svc.Invalidator = inv
	return svc, inv
}

func april() billing.Window { return billing.MonthWindow(now) }

// =============================================================================
// CALCULATION
// =============================================================================

func TestCalculate(t *testing.T) {
	// GIVEN: six attended April lessons at 400/month
	svc, _ := newService(seed(t))

	// WHEN
	got, err := svc.Calculate(context.Background(), billing.Teacher{ID: "t-1", FullName: "Aysel Mammadova"}, april())
	require.NoError(t, err)

	// THEN: 400/2 × 6/12; the waiting group contributes no line
	assert.Equal(t, "Aysel Mammadova", got.FullName)
	assert.Equal(t, "100.00", got.TotalSalary.StringFixed(2))
	require.Len(t, got.Lines, 1)
	assert.Equal(t, billing.GroupID("g-1"), got.Lines[0].GroupID)
	assert.Equal(t, "Kamal", got.Lines[0].StudentName)
	assert.True(t, got.Rest.IsZero(), "no salary record yet")
}

func TestAddSalary_RecordsAndRecomputes(t *testing.T) {
	mem := seed(t)
	svc, inv := newService(mem)
	ctx := context.Background()

	// WHEN: 40 paid for April
	got, err := svc.AddSalary(ctx, "t-1", decimal.NewFromInt(40), billing.Date(2026, time.April, 3))
	require.NoError(t, err)

	// THEN
	assert.Equal(t, "40.00", got.Paid.StringFixed(2))
	assert.Equal(t, "60.00", got.Rest.StringFixed(2))
	assert.Equal(t, 1, inv.bumps)

	// AND: a second payment in the same month updates the one record
	got, err = svc.AddSalary(ctx, "t-1", decimal.NewFromInt(100), billing.Date(2026, time.April, 28))
	require.NoError(t, err)
	assert.True(t, got.Rest.IsZero())

	records, err := mem.SalariesInRange(ctx, april())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, billing.Date(2026, time.April, 16).Equal(records[0].Date))
}

func TestAddSalary_Rejects(t *testing.T) {
	svc, inv := newService(seed(t))
	ctx := context.Background()

	_, err := svc.AddSalary(ctx, "t-1", decimal.NewFromInt(-1), now)
	assert.True(t, billing.IsClientError(err))

	_, err = svc.AddSalary(ctx, "t-unknown", decimal.NewFromInt(10), now)
	assert.True(t, billing.IsNotFound(err))

	assert.Zero(t, inv.bumps)
}

// =============================================================================
// ADMIN PAGE
// =============================================================================

func TestForAdmins(t *testing.T) {
	svc, _ := newService(seed(t))

	page, err := svc.ForAdmins(context.Background(), payroll.AdminQuery{})
	require.NoError(t, err)

	assert.Equal(t, 2, page.TotalLength)
	assert.True(t, april().Start.Equal(page.Window.Start))
	require.Len(t, page.Salaries, 2)
	assert.Equal(t, "100.00", page.Salaries[0].TotalSalary.StringFixed(2))
	assert.True(t, page.Salaries[1].TotalSalary.IsZero())
	assert.Empty(t, page.Salaries[1].Error)
}

func TestForAdmins_StartDateIsShiftedIntoMonth(t *testing.T) {
	svc, _ := newService(seed(t))

	// The admin screen may send the last day of the previous month.
	start := billing.Date(2026, time.March, 31)
	page, err := svc.ForAdmins(context.Background(), payroll.AdminQuery{Start: &start, Limit: 1})
	require.NoError(t, err)

	assert.Equal(t, time.April, page.Window.Start.Month())
	assert.Len(t, page.Salaries, 1)
	assert.Equal(t, 2, page.TotalLength)
}

func TestForAdmins_FailingTeacherBecomesErrorRow(t *testing.T) {
	svc, _ := newService(faultyStore{Memory: seed(t), failFor: "t-2"})

	page, err := svc.ForAdmins(context.Background(), payroll.AdminQuery{})
	require.NoError(t, err)

	require.Len(t, page.Salaries, 2)
	assert.Empty(t, page.Salaries[0].Error)
	assert.Equal(t, "100.00", page.Salaries[0].TotalSalary.StringFixed(2))
	assert.Contains(t, page.Salaries[1].Error, "disk on fire")
	assert.Equal(t, "Bakhtiyar Rzayev", page.Salaries[1].FullName)
}

func TestForAdmins_CancelledContext(t *testing.T) {
	svc, _ := newService(seed(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.ForAdmins(ctx, payroll.AdminQuery{})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestAdminWindow(t *testing.T) {
	w := payroll.AdminWindow(nil, now)
	assert.True(t, billing.Date(2026, time.April, 1).Equal(w.Start))

	first := billing.Date(2026, time.February, 1)
	w = payroll.AdminWindow(&first, now)
	assert.Equal(t, time.February, w.Start.Month())
	assert.Equal(t, 28, w.End.Day())
}

// =============================================================================
// TEACHER VIEW
// =============================================================================

func TestForTeacher(t *testing.T) {
	svc, _ := newService(seed(t))
	ctx := context.Background()

	// Current month by default: six hourly lessons, one participant each
	e, err := svc.ForTeacher(ctx, "t-1", billing.WindowQuery{})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(60).Equal(e.TotalSalary), "got %s", e.TotalSalary)
	assert.Equal(t, 6, e.ParticipantCount)

	e, err = svc.ForTeacher(ctx, "t-1", billing.WindowQuery{MonthCount: 2})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(70).Equal(e.TotalSalary))

	_, err = svc.ForTeacher(ctx, "t-unknown", billing.WindowQuery{})
	assert.True(t, billing.IsNotFound(err))
}
