package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tuition-engine/billing"
	"github.com/warp/tuition-engine/billing/storetest"
	"github.com/warp/tuition-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store { return newStore(t) })
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	// GIVEN: a file database with one enrolled student
	path := filepath.Join(t.TempDir(), "edu.db")
	ctx := context.Background()

	s, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveGroup(ctx, billing.Group{ID: "g1", Name: "G1"}))
	require.NoError(t, s.SaveStudent(ctx, billing.Student{
		ID:       "s1",
		FullName: "Student One",
		Enrollments: []billing.Enrollment{{
			GroupID: "g1",
			Paids: []billing.PaymentRecord{{
				Payment:     decimal.NewNullDecimal(decimal.RequireFromString("0.10")),
				PaymentDate: billing.Ptr(billing.Date(2026, time.March, 1)),
				Confirmed:   true,
			}},
		}},
	}))
	require.NoError(t, s.Close())

	// WHEN: the database is reopened
	s, err = sqlite.New(path)
	require.NoError(t, err)
	defer s.Close()

	// THEN: decimals come back exactly, dates in the billing zone
	st, err := s.GetStudent(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, st.Enrollments, 1)
	p := st.Enrollments[0].Paids[0]
	assert.Equal(t, "0.1", p.Payment.Decimal.String())
	assert.True(t, billing.Date(2026, time.March, 1).Equal(*p.PaymentDate))
	assert.Equal(t, 1, p.PaymentDate.Day())
}

func TestSQLite_SaveStudentReplacesEnrollments(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	student := billing.Student{ID: "s1", FullName: "Student One", Enrollments: []billing.Enrollment{{GroupID: "g1"}, {GroupID: "g2"}}}
	require.NoError(t, s.SaveStudent(ctx, student))

	student.Enrollments = student.Enrollments[1:]
	require.NoError(t, s.SaveStudent(ctx, student))

	st, err := s.GetStudent(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, st.Enrollments, 1)
	assert.Equal(t, billing.GroupID("g2"), st.Enrollments[0].GroupID)
}

func TestSQLite_SaveLessonReplacesAttendance(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	lesson := billing.AttendanceLesson{
		ID:       "l1",
		GroupID:  "g1",
		Date:     billing.Date(2026, time.March, 3),
		Status:   billing.LessonConfirmed,
		Students: []billing.LessonAttendance{{StudentID: "a", Attendance: 1}, {StudentID: "b", Attendance: 1}},
	}
	require.NoError(t, s.SaveLesson(ctx, lesson))

	lesson.Students = lesson.Students[:1]
	require.NoError(t, s.SaveLesson(ctx, lesson))

	lessons, err := s.ConfirmedLessons(ctx, "g1", billing.MonthWindow(lesson.Date))
	require.NoError(t, err)
	require.Len(t, lessons, 1)
	assert.Len(t, lessons[0].Students, 1)
	assert.Equal(t, billing.RoleCurrent, lessons[0].Role)
}
