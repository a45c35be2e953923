// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/tuition-engine/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	teachers map[billing.TeacherID]billing.Teacher
	students map[billing.StudentID]billing.Student
	groups   map[billing.GroupID]billing.Group
	lessons  []billing.AttendanceLesson
	salaries []billing.SalaryRecord
	expenses []billing.Expense
}

var _ billing.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		teachers: make(map[billing.TeacherID]billing.Teacher),
		students: make(map[billing.StudentID]billing.Student),
		groups:   make(map[billing.GroupID]billing.Group),
	}
}

// =============================================================================
// SEEDING
// =============================================================================

func (m *Memory) SaveTeacher(_ context.Context, t billing.Teacher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teachers[t.ID] = t
	return nil
}

// SaveStudent stores a student with its enrollments.
func (m *Memory) SaveStudent(_ context.Context, s billing.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s = cloneStudent(s)
	for i := range s.Enrollments {
		s.Enrollments[i].StudentID = s.ID
		s.Enrollments[i].StudentName = s.FullName
		if s.Enrollments[i].Status == "" {
			s.Enrollments[i].Status = billing.StatusContinue
		}
	}
	m.students[s.ID] = s
	return nil
}

// Reset drops all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teachers = make(map[billing.TeacherID]billing.Teacher)
	m.students = make(map[billing.StudentID]billing.Student)
	m.groups = make(map[billing.GroupID]billing.Group)
	m.lessons, m.salaries, m.expenses = nil, nil, nil
	return nil
}

// SaveGroup stores group metadata. Enrollments come from students.
func (m *Memory) SaveGroup(_ context.Context, g billing.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g.Enrollments = nil
	g.Lessons = nil
	if g.Status == "" {
		g.Status = billing.GroupCurrent
	}
	m.groups[g.ID] = g
	return nil
}

func (m *Memory) SaveLesson(_ context.Context, l billing.AttendanceLesson) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Status == "" {
		l.Status = billing.LessonUnviewed
	}
	if l.Role == "" {
		l.Role = billing.RoleCurrent
	}
	for i := range m.lessons {
		if m.lessons[i].ID == l.ID {
			m.lessons[i] = l
			return nil
		}
	}
	m.lessons = append(m.lessons, l)
	return nil
}

func (m *Memory) SaveExpense(_ context.Context, e billing.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	m.expenses = append(m.expenses, e)
	return nil
}

// =============================================================================
// ENROLLMENTS
// =============================================================================

func (m *Memory) ListStudents(_ context.Context, f billing.StudentFilter) ([]billing.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	var out []billing.Student
	for _, s := range m.students {
		if s.Deleted || len(s.Enrollments) == 0 {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(s.FullName), search) {
			continue
		}
		if f.IDs != nil && !f.IDs[s.ID] {
			continue
		}
		if f.GroupID != "" && !hasGroup(s, f.GroupID) {
			continue
		}
		s = m.withGroups(s)
		if f.CourseID != "" && !hasCourse(s, f.CourseID) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].ID < out[j].ID
	})
	return page(out, f.Offset, f.Limit), nil
}

func (m *Memory) GetStudent(_ context.Context, id billing.StudentID) (*billing.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return nil, fmt.Errorf("student %s: %w", id, billing.ErrNotFound)
	}
	c := m.withGroups(s)
	return &c, nil
}

func (m *Memory) ReplacePaids(_ context.Context, studentID billing.StudentID, groupID billing.GroupID, paids []billing.PaymentRecord) (billing.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.students[studentID]
	if !ok {
		return billing.Enrollment{}, fmt.Errorf("student %s: %w", studentID, billing.ErrNotFound)
	}
	for i := range s.Enrollments {
		if s.Enrollments[i].GroupID == groupID {
			s.Enrollments[i].Paids = append([]billing.PaymentRecord{}, paids...)
			m.students[studentID] = s
			return m.withGroup(s.Enrollments[i]), nil
		}
	}
	return billing.Enrollment{}, fmt.Errorf("student %s in group %s: %w", studentID, groupID, billing.ErrNotFound)
}

// =============================================================================
// GROUPS & LESSONS
// =============================================================================

func (m *Memory) GroupsByTeacher(_ context.Context, teacherID billing.TeacherID) ([]billing.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []billing.Group
	for _, g := range m.groups {
		if !leads(g, teacherID) {
			continue
		}
		for _, s := range m.students {
			for _, e := range s.Enrollments {
				if e.GroupID == g.ID {
					g.Enrollments = append(g.Enrollments, m.withGroup(e))
				}
			}
		}
		sort.Slice(g.Enrollments, func(i, j int) bool { return g.Enrollments[i].StudentID < g.Enrollments[j].StudentID })
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ConfirmedLessons(_ context.Context, groupID billing.GroupID, w billing.Window) ([]billing.AttendanceLesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []billing.AttendanceLesson
	for _, l := range m.lessons {
		if l.GroupID == groupID && l.Status == billing.LessonConfirmed && w.Contains(l.Date) {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *Memory) LessonsByTeacher(_ context.Context, teacherID billing.TeacherID, w billing.Window) ([]billing.AttendanceLesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []billing.AttendanceLesson
	for _, l := range m.lessons {
		if l.TeacherID == teacherID && w.Contains(l.Date) {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// =============================================================================
// SALARIES, TEACHERS, EXPENSES
// =============================================================================

func (m *Memory) SalaryForPeriod(_ context.Context, teacherID billing.TeacherID, w billing.Window) (*billing.SalaryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.salaries {
		if s.TeacherID == teacherID && w.Contains(s.Date) {
			rec := s
			return &rec, nil
		}
	}
	return nil, nil
}

func (m *Memory) UpsertSalary(_ context.Context, teacherID billing.TeacherID, w billing.Window, paid decimal.Decimal) (billing.SalaryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.salaries {
		if s.TeacherID == teacherID && w.Contains(s.Date) {
			m.salaries[i].Paid = paid
			return m.salaries[i], nil
		}
	}
	rec := billing.SalaryRecord{
		ID:        uuid.NewString(),
		TeacherID: teacherID,
		Paid:      paid,
		Date:      billing.SalaryRecordDate(w),
	}
	m.salaries = append(m.salaries, rec)
	return rec, nil
}

func (m *Memory) SalariesInRange(_ context.Context, w billing.Window) ([]billing.SalaryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []billing.SalaryRecord
	for _, s := range m.salaries {
		if w.Contains(s.Date) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) ListTeachers(_ context.Context, f billing.TeacherFilter) ([]billing.Teacher, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	var out []billing.Teacher
	for _, t := range m.teachers {
		if t.Deleted {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.FullName), search) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, f.Offset, f.Limit), len(out), nil
}

func (m *Memory) GetTeacher(_ context.Context, id billing.TeacherID) (*billing.Teacher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.teachers[id]
	if !ok {
		return nil, fmt.Errorf("teacher %s: %w", id, billing.ErrNotFound)
	}
	return &t, nil
}

func (m *Memory) ExpensesInRange(_ context.Context, w billing.Window) ([]billing.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []billing.Expense
	for _, e := range m.expenses {
		if w.Contains(e.Date) {
			out = append(out, e)
		}
	}
	return out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	if offset > 0 {
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func leads(g billing.Group, id billing.TeacherID) bool {
	for _, t := range g.TeacherIDs {
		if t == id {
			return true
		}
	}
	return false
}

func hasGroup(s billing.Student, id billing.GroupID) bool {
	for _, e := range s.Enrollments {
		if e.GroupID == id {
			return true
		}
	}
	return false
}

func hasCourse(s billing.Student, id string) bool {
	for _, e := range s.Enrollments {
		if e.CourseID == id {
			return true
		}
	}
	return false
}

// withGroups copies s, taking group name and course from the stored groups.
func (m *Memory) withGroups(s billing.Student) billing.Student {
	s = cloneStudent(s)
	for i := range s.Enrollments {
		s.Enrollments[i] = m.withGroup(s.Enrollments[i])
	}
	return s
}

func (m *Memory) withGroup(e billing.Enrollment) billing.Enrollment {
	e = cloneEnrollment(e)
	if g, ok := m.groups[e.GroupID]; ok {
		e.GroupName, e.CourseID = g.Name, g.CourseID
	}
	return e
}

func cloneStudent(s billing.Student) billing.Student {
	enrollments := make([]billing.Enrollment, len(s.Enrollments))
	for i, e := range s.Enrollments {
		enrollments[i] = cloneEnrollment(e)
	}
	s.Enrollments = enrollments
	return s
}

func cloneEnrollment(e billing.Enrollment) billing.Enrollment {
	e.Contracts = append([]billing.Contract{}, e.Contracts...)
	e.Paids = append([]billing.PaymentRecord{}, e.Paids...)
	e.Payments = append([]billing.ScheduledPayment{}, e.Payments...)
	return e
}
