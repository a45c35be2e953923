/*
Package storetest is a conformance suite for billing.Store implementations.

PURPOSE:
  The memory and SQLite stores must answer every query the same way. Each
  implementation's tests call Run with a constructor; the suite seeds the
  same fixture and checks filters, ordering, windows and the two writes.

USAGE:
  func TestConformance(t *testing.T) {
      storetest.Run(t, func(t *testing.T) storetest.Store { return newStore(t) })
  }
*/
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tuition-engine/billing"
)

// Store is a billing.Store that can also be seeded.
type Store interface {
	billing.Store
	SaveTeacher(ctx context.Context, t billing.Teacher) error
	SaveGroup(ctx context.Context, g billing.Group) error
	SaveStudent(ctx context.Context, s billing.Student) error
	SaveLesson(ctx context.Context, l billing.AttendanceLesson) error
	SaveExpense(ctx context.Context, e billing.Expense) error
	Reset(ctx context.Context) error
}

// Run executes the suite. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Store)
	}{
		{"ListStudents", testListStudents},
		{"SearchNames", testSearchNames},
		{"GetStudent", testGetStudent},
		{"ReplacePaids", testReplacePaids},
		{"GroupsByTeacher", testGroupsByTeacher},
		{"Lessons", testLessons},
		{"Salaries", testSalaries},
		{"Teachers", testTeachers},
		{"Expenses", testExpenses},
		{"Reset", testReset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			seed(t, s)
			tt.fn(t, s)
		})
	}
}

// =============================================================================
// FIXTURE
// =============================================================================

var march = billing.MonthWindow(billing.Date(2026, time.March, 1))

func money(v int64) decimal.NullDecimal { return decimal.NewNullDecimal(decimal.NewFromInt(v)) }

func seed(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	for _, teacher := range []billing.Teacher{
		{ID: "t-1", FullName: "Aysel Mammadova"},
		{ID: "t-2", FullName: "Rashad Huseynov"},
		{ID: "t-3", FullName: "Former Teacher", Deleted: true},
	} {
		require.NoError(t, s.SaveTeacher(ctx, teacher))
	}

	require.NoError(t, s.SaveGroup(ctx, billing.Group{
		ID: "g-eng", Name: "English A1", CourseID: "english", Status: billing.GroupCurrent, TeacherIDs: []billing.TeacherID{"t-1"},
	}))
	require.NoError(t, s.SaveGroup(ctx, billing.Group{
		ID: "g-math", Name: "Math 7", CourseID: "math", Status: billing.GroupWaiting, TeacherIDs: []billing.TeacherID{"t-1", "t-2"},
	}))

	start := billing.Date(2026, time.January, 15)
	require.NoError(t, s.SaveStudent(ctx, billing.Student{
		ID:       "s-leyla",
		FullName: "Leyla Aliyeva",
		Enrollments: []billing.Enrollment{{
			GroupID: "g-eng",
			Status:  billing.StatusContinue,
			Contracts: []billing.Contract{
				{Number: 2, ContractStartDate: billing.Ptr(billing.Date(2026, time.March, 1)), PaymentStartDate: billing.Ptr(billing.Date(2026, time.March, 1)), MonthlyPayment: money(350)},
				{Number: 1, ContractStartDate: &start, ContractEndDate: billing.Ptr(billing.Date(2026, time.February, 28)), PaymentStartDate: &start, MonthlyPayment: money(300)},
			},
			Paids: []billing.PaymentRecord{
				{Payment: money(300), PaymentDate: billing.Ptr(billing.Date(2026, time.February, 1)), Confirmed: true},
				{Payment: money(50), PaymentDate: billing.Ptr(billing.Date(2026, time.March, 2)), Discount: money(10), DiscountReason: "sibling"},
			},
			Payments: []billing.ScheduledPayment{
				{Payment: decimal.NewFromInt(300), PaymentDate: billing.Ptr(billing.Date(2026, time.February, 5))},
				{Payment: decimal.NewFromInt(350), PaymentDate: billing.Ptr(billing.Date(2026, time.March, 5))},
			},
		}},
	}))
	require.NoError(t, s.SaveStudent(ctx, billing.Student{
		ID:       "s-murad",
		FullName: "Murad Karimov",
		Enrollments: []billing.Enrollment{
			{GroupID: "g-eng", Status: billing.StatusStopped},
			{GroupID: "g-math", Status: billing.StatusContinue, Contracts: []billing.Contract{{ContractStartDate: &start}}},
		},
	}))
	require.NoError(t, s.SaveStudent(ctx, billing.Student{ID: "s-gone", FullName: "Deleted Student", Deleted: true,
		Enrollments: []billing.Enrollment{{GroupID: "g-eng"}}}))
	require.NoError(t, s.SaveStudent(ctx, billing.Student{ID: "s-none", FullName: "Not Enrolled"}))

	for i, day := range []int{3, 10, 17} {
		status := billing.LessonConfirmed
		if i == 1 {
			status = billing.LessonCancelled
		}
		require.NoError(t, s.SaveLesson(ctx, billing.AttendanceLesson{
			ID:        "l-eng-" + string(rune('a'+i)),
			GroupID:   "g-eng",
			TeacherID: "t-1",
			Date:      billing.Date(2026, time.March, day).Add(18 * time.Hour),
			Status:    status,
			Role:      billing.RoleCurrent,
			Pay:       billing.LessonPay{Kind: billing.PayHourly, Value: decimal.RequireFromString("7.50")},
			Students: []billing.LessonAttendance{
				{StudentID: "s-leyla", Attendance: billing.AttendancePresent},
				{StudentID: "s-murad", Attendance: billing.AttendanceAbsent},
			},
		}))
	}
	require.NoError(t, s.SaveLesson(ctx, billing.AttendanceLesson{
		ID: "l-eng-late", GroupID: "g-eng", TeacherID: "t-1",
		Date:   billing.Date(2026, time.March, 31).Add(23 * time.Hour),
		Status: billing.LessonConfirmed,
	}))
	// 02:00 on Apr 1 in Baku is still Mar 31 in UTC; it belongs to April.
	require.NoError(t, s.SaveLesson(ctx, billing.AttendanceLesson{
		ID: "l-eng-april", GroupID: "g-eng", TeacherID: "t-1",
		Date:   billing.Date(2026, time.April, 1).Add(2 * time.Hour),
		Status: billing.LessonConfirmed,
	}))

	require.NoError(t, s.SaveExpense(ctx, billing.Expense{ID: "x-1", Category: "rent", Amount: decimal.RequireFromString("1200.50"), Date: billing.Date(2026, time.March, 10)}))
	require.NoError(t, s.SaveExpense(ctx, billing.Expense{ID: "x-2", Category: "rent", Amount: decimal.NewFromInt(1200), Date: billing.Date(2026, time.April, 10)}))
}

// =============================================================================
// ENROLLMENTS
// =============================================================================

func testListStudents(t *testing.T, s Store) {
	ctx := context.Background()

	all, err := s.ListStudents(ctx, billing.StudentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2, "deleted and unenrolled students are hidden")
	assert.Equal(t, billing.StudentID("s-leyla"), all[0].ID, "ordered by name")
	assert.Equal(t, billing.StudentID("s-murad"), all[1].ID)

	byName, err := s.ListStudents(ctx, billing.StudentFilter{Search: "  MURAD "})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "Murad Karimov", byName[0].FullName)

	byCourse, err := s.ListStudents(ctx, billing.StudentFilter{CourseID: "math"})
	require.NoError(t, err)
	require.Len(t, byCourse, 1)
	assert.Equal(t, billing.StudentID("s-murad"), byCourse[0].ID)
	assert.Len(t, byCourse[0].Enrollments, 2, "filters select students, not enrollments")

	// Murad is enrolled in g-eng and g-math; he is still one student.
	byGroup, err := s.ListStudents(ctx, billing.StudentFilter{GroupID: "g-eng"})
	require.NoError(t, err)
	require.Len(t, byGroup, 2)
	assert.Equal(t, billing.StudentID("s-leyla"), byGroup[0].ID)
	assert.Equal(t, billing.StudentID("s-murad"), byGroup[1].ID)
	assert.Len(t, byGroup[1].Enrollments, 2)

	groupAndCourse, err := s.ListStudents(ctx, billing.StudentFilter{GroupID: "g-eng", CourseID: "math"})
	require.NoError(t, err)
	require.Len(t, groupAndCourse, 1)
	assert.Equal(t, billing.StudentID("s-murad"), groupAndCourse[0].ID)

	byIDs, err := s.ListStudents(ctx, billing.StudentFilter{IDs: map[billing.StudentID]bool{"s-murad": true}})
	require.NoError(t, err)
	require.Len(t, byIDs, 1)
	assert.Equal(t, billing.StudentID("s-murad"), byIDs[0].ID)

	paged, err := s.ListStudents(ctx, billing.StudentFilter{Offset: 1, Limit: 5})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, billing.StudentID("s-murad"), paged[0].ID)

	beyond, err := s.ListStudents(ctx, billing.StudentFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func testSearchNames(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveStudent(ctx, billing.Student{
		ID:          "s-sahin",
		FullName:    "Şahin Əliyev",
		Enrollments: []billing.Enrollment{{GroupID: "g-eng"}},
	}))
	require.NoError(t, s.SaveTeacher(ctx, billing.Teacher{ID: "t-4", FullName: "Şəhla Quliyeva"}))

	tests := []struct {
		search string
		want   []billing.StudentID
	}{
		{"şahin", []billing.StudentID{"s-sahin"}},
		{"ŞAHIN", []billing.StudentID{"s-sahin"}},
		{"əliyev", []billing.StudentID{"s-sahin"}},
		{"_", nil},
		{"%", nil},
	}
	for _, tt := range tests {
		got, err := s.ListStudents(ctx, billing.StudentFilter{Search: tt.search})
		require.NoError(t, err)
		var ids []billing.StudentID
		for _, st := range got {
			ids = append(ids, st.ID)
		}
		assert.Equal(t, tt.want, ids, "search %q", tt.search)
	}

	teachers, total, err := s.ListTeachers(ctx, billing.TeacherFilter{Search: "ŞƏHLA"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, teachers, 1)
	assert.Equal(t, billing.TeacherID("t-4"), teachers[0].ID)

	_, total, err = s.ListTeachers(ctx, billing.TeacherFilter{Search: "_"})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func testGetStudent(t *testing.T, s Store) {
	ctx := context.Background()

	st, err := s.GetStudent(ctx, "s-leyla")
	require.NoError(t, err)
	require.Len(t, st.Enrollments, 1)

	e := st.Enrollments[0]
	assert.Equal(t, billing.StudentID("s-leyla"), e.StudentID)
	assert.Equal(t, "Leyla Aliyeva", e.StudentName)
	assert.Equal(t, "English A1", e.GroupName)
	assert.Equal(t, "english", e.CourseID)
	assert.Equal(t, billing.StatusContinue, e.Status)

	// Contracts keep insertion order; sorting is the engine's job.
	require.Len(t, e.Contracts, 2)
	assert.Equal(t, 2, e.Contracts[0].Number)
	assert.Nil(t, e.Contracts[0].ContractEndDate)
	c := e.Contracts[1]
	require.NotNil(t, c.ContractEndDate)
	assert.True(t, billing.Date(2026, time.February, 28).Equal(*c.ContractEndDate))
	assert.True(t, billing.Date(2026, time.January, 15).Equal(*c.PaymentStartDate))
	assert.Equal(t, billing.Zone.String(), c.ContractStartDate.Location().String())
	assert.True(t, decimal.NewFromInt(300).Equal(c.MonthlyPayment.Decimal))

	require.Len(t, e.Paids, 2)
	assert.True(t, e.Paids[0].Confirmed)
	assert.False(t, e.Paids[1].Confirmed)
	assert.Equal(t, "sibling", e.Paids[1].DiscountReason)
	assert.True(t, decimal.NewFromInt(10).Equal(e.Paids[1].Discount.Decimal))

	require.Len(t, e.Payments, 2)
	assert.True(t, decimal.NewFromInt(350).Equal(e.Payments[1].Payment))

	murad, err := s.GetStudent(ctx, "s-murad")
	require.NoError(t, err)
	require.Len(t, murad.Enrollments, 2)
	assert.Nil(t, murad.Enrollments[1].Contracts[0].PaymentStartDate)
	assert.False(t, murad.Enrollments[1].Contracts[0].MonthlyPayment.Valid, "missing monthly payment stays missing")

	_, err = s.GetStudent(ctx, "s-unknown")
	assert.True(t, billing.IsNotFound(err))
}

func testReplacePaids(t *testing.T, s Store) {
	ctx := context.Background()

	paids := []billing.PaymentRecord{
		{Payment: money(500), PaymentDate: billing.Ptr(billing.Date(2026, time.March, 20)), Confirmed: true},
	}
	e, err := s.ReplacePaids(ctx, "s-leyla", "g-eng", paids)
	require.NoError(t, err)
	require.Len(t, e.Paids, 1)
	assert.True(t, decimal.NewFromInt(500).Equal(e.Paids[0].Payment.Decimal))
	assert.Len(t, e.Contracts, 2, "the rest of the enrollment is untouched")

	st, err := s.GetStudent(ctx, "s-leyla")
	require.NoError(t, err)
	assert.Len(t, st.Enrollments[0].Paids, 1)

	cleared, err := s.ReplacePaids(ctx, "s-leyla", "g-eng", nil)
	require.NoError(t, err)
	assert.Empty(t, cleared.Paids)

	_, err = s.ReplacePaids(ctx, "s-leyla", "g-math", paids)
	assert.True(t, billing.IsNotFound(err))
	_, err = s.ReplacePaids(ctx, "s-unknown", "g-eng", paids)
	assert.True(t, billing.IsNotFound(err))
}

// =============================================================================
// GROUPS, LESSONS
// =============================================================================

func testGroupsByTeacher(t *testing.T, s Store) {
	ctx := context.Background()

	groups, err := s.GroupsByTeacher(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, billing.GroupID("g-eng"), groups[0].ID)
	assert.Equal(t, billing.GroupID("g-math"), groups[1].ID)
	assert.Equal(t, billing.GroupWaiting, groups[1].Status)
	assert.ElementsMatch(t, []billing.TeacherID{"t-1", "t-2"}, groups[1].TeacherIDs)

	// g-eng carries every enrollment, including stopped and deleted students
	ids := map[billing.StudentID]bool{}
	for _, e := range groups[0].Enrollments {
		ids[e.StudentID] = true
	}
	assert.True(t, ids["s-leyla"])
	assert.True(t, ids["s-murad"])

	none, err := s.GroupsByTeacher(ctx, "t-unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testLessons(t *testing.T, s Store) {
	ctx := context.Background()

	confirmed, err := s.ConfirmedLessons(ctx, "g-eng", march)
	require.NoError(t, err)
	require.Len(t, confirmed, 3, "cancelled and April lessons are excluded")
	assert.Equal(t, "l-eng-a", confirmed[0].ID)
	assert.Equal(t, "l-eng-c", confirmed[1].ID)
	assert.Equal(t, "l-eng-late", confirmed[2].ID)
	assert.Equal(t, billing.AttendancePresent, confirmed[0].AttendanceOf("s-leyla"))
	assert.Equal(t, billing.AttendanceAbsent, confirmed[0].AttendanceOf("s-murad"))
	assert.Equal(t, 18, confirmed[0].Date.Hour())
	assert.Equal(t, billing.PayHourly, confirmed[0].Pay.Kind)
	assert.Equal(t, "7.5", confirmed[0].Pay.Value.String())

	byTeacher, err := s.LessonsByTeacher(ctx, "t-1", march)
	require.NoError(t, err)
	assert.Len(t, byTeacher, 4)
	assert.Equal(t, billing.LessonCancelled, byTeacher[1].Status)

	other, err := s.ConfirmedLessons(ctx, "g-math", march)
	require.NoError(t, err)
	assert.Empty(t, other)
}

// =============================================================================
// SALARIES, TEACHERS, EXPENSES
// =============================================================================

func testSalaries(t *testing.T, s Store) {
	ctx := context.Background()

	none, err := s.SalaryForPeriod(ctx, "t-1", march)
	require.NoError(t, err)
	assert.Nil(t, none)

	created, err := s.UpsertSalary(ctx, "t-1", march, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.True(t, billing.Date(2026, time.March, 16).Equal(created.Date))

	updated, err := s.UpsertSalary(ctx, "t-1", march, decimal.RequireFromString("250.25"))
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID, "one record per teacher per month")

	got, err := s.SalaryForPeriod(ctx, "t-1", march)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "250.25", got.Paid.String())

	_, err = s.UpsertSalary(ctx, "t-2", march, decimal.NewFromInt(80))
	require.NoError(t, err)
	_, err = s.UpsertSalary(ctx, "t-2", billing.MonthWindow(billing.Date(2026, time.April, 1)), decimal.NewFromInt(90))
	require.NoError(t, err)

	inMarch, err := s.SalariesInRange(ctx, march)
	require.NoError(t, err)
	assert.Len(t, inMarch, 2)
}

func testTeachers(t *testing.T, s Store) {
	ctx := context.Background()

	all, total, err := s.ListTeachers(ctx, billing.TeacherFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, all, 2)

	page, total, err := s.ListTeachers(ctx, billing.TeacherFilter{Offset: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total, "total ignores paging")
	require.Len(t, page, 1)
	assert.Equal(t, billing.TeacherID("t-2"), page[0].ID)

	found, total, err := s.ListTeachers(ctx, billing.TeacherFilter{Search: "aysel"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Aysel Mammadova", found[0].FullName)

	teacher, err := s.GetTeacher(ctx, "t-2")
	require.NoError(t, err)
	assert.Equal(t, "Rashad Huseynov", teacher.FullName)

	_, err = s.GetTeacher(ctx, "t-unknown")
	assert.True(t, billing.IsNotFound(err))
}

func testExpenses(t *testing.T, s Store) {
	expenses, err := s.ExpensesInRange(context.Background(), march)
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, "rent", expenses[0].Category)
	assert.Equal(t, "1200.5", expenses[0].Amount.String())
}

func testReset(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.Reset(ctx))

	students, err := s.ListStudents(ctx, billing.StudentFilter{})
	require.NoError(t, err)
	assert.Empty(t, students)

	_, total, err := s.ListTeachers(ctx, billing.TeacherFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)

	// The store is usable again after a reset.
	seed(t, s)
	students, err = s.ListStudents(ctx, billing.StudentFilter{})
	require.NoError(t, err)
	assert.Len(t, students, 2)
}
