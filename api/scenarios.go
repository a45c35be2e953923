/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	education-center data. Every date is relative to the handler clock, so a
	scenario always shows "the last few months" whenever it is loaded.

AVAILABLE SCENARIOS:

	tuition-basics:   Open, closed and over-paid contracts; a late payer
	teacher-payroll:  Attendance-weighted salary, partial salary payment
	finance-overview: Three months of paids, expenses and salaries

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create teachers and groups
 3. Create students with enrollments (contracts, paids, payment plan)
 4. Add lessons with attendance, expenses and salary records

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "teacher-payroll"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, now)
 3. Add it to the loaders map

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler and DataStore
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/tuition-engine/billing"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "tuition-basics",
		Name:        "Tuition Basics",
		Description: "Open and closed contracts, a late payer and an over-payment",
		Category:    "tuition",
	},
	{
		ID:          "teacher-payroll",
		Name:        "Teacher Payroll",
		Description: "Attendance-weighted teacher share with a partial salary payment",
		Category:    "payroll",
	},
	{
		ID:          "finance-overview",
		Name:        "Finance Overview",
		Description: "Three months of income, expenses and paid salaries",
		Category:    "finance",
	},
}

func (h *Handler) scenarioLoader(id string) func(context.Context, time.Time) error {
	switch id {
	case "tuition-basics":
		return h.loadTuitionBasicsScenario
	case "teacher-payroll":
		return h.loadTeacherPayrollScenario
	case "finance-overview":
		return h.loadFinanceOverviewScenario
	}
	return nil
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	load := h.scenarioLoader(req.ScenarioID)
	if load == nil {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx, h.clock.Now()); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	if err := h.Cache.Bump(ctx); err != nil {
		h.Logger.Warn("report cache bump failed", "err", err)
	}

	h.currentScenario = req.ScenarioID
	h.Logger.Info("scenario loaded", "scenario", req.ScenarioID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := h.Cache.Bump(r.Context()); err != nil {
		h.Logger.Warn("report cache bump failed", "err", err)
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadTuitionBasicsScenario seeds one English group with three students:
//
//	Leyla: open contract from two months ago at 300, 600 confirmed (late 300)
//	Murad: a closed Oct-Dec style contract then an open one, fully paid
//	Nigar: stopped, over-paid by 200
func (h *Handler) loadTuitionBasicsScenario(ctx context.Context, now time.Time) error {
	if err := h.Store.SaveTeacher(ctx, billing.Teacher{ID: "t-aysel", FullName: "Aysel Mammadova"}); err != nil {
		return err
	}
	group := billing.Group{
		ID:         "g-eng-1",
		Name:       "English A1",
		CourseID:   "english",
		Status:     billing.GroupCurrent,
		TeacherIDs: []billing.TeacherID{"t-aysel"},
	}
	if err := h.Store.SaveGroup(ctx, group); err != nil {
		return err
	}

	m := monthOffset(now)

	leyla := enroll(group, "Leyla Aliyeva", billing.StatusContinue)
	leyla.Contracts = []billing.Contract{openContract(1, m(-2), 300)}
	leyla.Paids = []billing.PaymentRecord{
		paid(300, days(m(-2), 2), true),
		paid(300, days(m(-1), 3), true),
		paid(300, days(m(0), 1), false),
	}
	leyla.Payments = plan(300, days(m(-2), 5), days(m(-1), 5), days(m(0), 5), days(m(1), 5))

	murad := enroll(group, "Murad Huseynov", billing.StatusContinue)
	murad.Contracts = []billing.Contract{
		openContract(2, m(-3), 250),
		closedContract(1, m(-6), billing.EndOfMonth(m(-4)), 250),
	}
	murad.Paids = []billing.PaymentRecord{
		paid(500, days(m(-6), 1), true),
		paid(1000, days(m(-3), 1), true),
	}

	nigar := enroll(group, "Nigar Rzayeva", billing.StatusStopped)
	nigar.Contracts = []billing.Contract{openContract(1, m(-1), 200)}
	nigar.Paids = []billing.PaymentRecord{paid(600, days(m(-1), 2), true)}
	nigar.Payments = plan(200, days(m(-1), 5), days(m(0), 5), days(m(1), 5))

	students := []billing.Student{
		{ID: "s-leyla", FullName: "Leyla Aliyeva", Enrollments: []billing.Enrollment{leyla}},
		{ID: "s-murad", FullName: "Murad Huseynov", Enrollments: []billing.Enrollment{murad}},
		{ID: "s-nigar", FullName: "Nigar Rzayeva", Enrollments: []billing.Enrollment{nigar}},
	}
	return h.saveStudents(ctx, students)
}

// loadTeacherPayrollScenario seeds a math teacher with one running and one
// waiting group and six confirmed lessons this month:
//
//	Kamal (240/month) attends all six:  share 60
//	Sevda (360/month) attends three:    share 45
//
// 50 is already paid for the month, so 55 remains.
func (h *Handler) loadTeacherPayrollScenario(ctx context.Context, now time.Time) error {
	teachers := []billing.Teacher{
		{ID: "t-rashad", FullName: "Rashad Karimov"},
		{ID: "t-gunel", FullName: "Gunel Ismayilova"},
	}
	for _, t := range teachers {
		if err := h.Store.SaveTeacher(ctx, t); err != nil {
			return err
		}
	}

	running := billing.Group{
		ID: "g-math-1", Name: "Math 7", CourseID: "math",
		Status: billing.GroupCurrent, TeacherIDs: []billing.TeacherID{"t-rashad"},
	}
	waiting := billing.Group{
		ID: "g-math-2", Name: "Math 8", CourseID: "math",
		Status: billing.GroupWaiting, TeacherIDs: []billing.TeacherID{"t-rashad", "t-gunel"},
	}
	for _, g := range []billing.Group{running, waiting} {
		if err := h.Store.SaveGroup(ctx, g); err != nil {
			return err
		}
	}

	m := monthOffset(now)

	kamal := enroll(running, "Kamal Guliyev", billing.StatusContinue)
	kamal.Contracts = []billing.Contract{openContract(1, m(-1), 240)}
	sevda := enroll(running, "Sevda Nasirova", billing.StatusContinue)
	sevda.Contracts = []billing.Contract{openContract(1, m(-2), 360)}
	orkhan := enroll(waiting, "Orkhan Abbasov", billing.StatusContinue)
	orkhan.Contracts = []billing.Contract{openContract(1, m(0), 400)}

	students := []billing.Student{
		{ID: "s-kamal", FullName: "Kamal Guliyev", Enrollments: []billing.Enrollment{kamal}},
		{ID: "s-sevda", FullName: "Sevda Nasirova", Enrollments: []billing.Enrollment{sevda}},
		{ID: "s-orkhan", FullName: "Orkhan Abbasov", Enrollments: []billing.Enrollment{orkhan}},
	}
	if err := h.saveStudents(ctx, students); err != nil {
		return err
	}

	for i := 0; i < 6; i++ {
		sevdaMark := billing.AttendancePresent
		if i%2 == 1 {
			sevdaMark = billing.AttendanceAbsent
		}
		lesson := billing.AttendanceLesson{
			ID:        fmt.Sprintf("l-math-%d", i+1),
			GroupID:   running.ID,
			TeacherID: "t-rashad",
			Date:      days(m(0), i+1).Add(10 * time.Hour),
			Status:    billing.LessonConfirmed,
			Role:      billing.RoleCurrent,
			Pay:       billing.LessonPay{Kind: billing.PayHourly, Value: decimal.NewFromInt(5)},
			Students: []billing.LessonAttendance{
				{StudentID: "s-kamal", Attendance: billing.AttendancePresent},
				{StudentID: "s-sevda", Attendance: sevdaMark},
			},
		}
		if err := h.Store.SaveLesson(ctx, lesson); err != nil {
			return err
		}
	}

	// A cancelled lesson never counts.
	cancelled := billing.AttendanceLesson{
		ID:        "l-math-cancelled",
		GroupID:   running.ID,
		TeacherID: "t-rashad",
		Date:      days(m(0), 8).Add(10 * time.Hour),
		Status:    billing.LessonCancelled,
		Role:      billing.RoleCurrent,
		Students:  []billing.LessonAttendance{{StudentID: "s-kamal", Attendance: billing.AttendancePresent}},
	}
	if err := h.Store.SaveLesson(ctx, cancelled); err != nil {
		return err
	}

	_, err := h.Store.UpsertSalary(ctx, "t-rashad", billing.MonthWindow(now), decimal.NewFromInt(50))
	return err
}

// loadFinanceOverviewScenario seeds three months of identical activity:
// 2500 income, 1000 rent and 800 salary per month.
func (h *Handler) loadFinanceOverviewScenario(ctx context.Context, now time.Time) error {
	if err := h.Store.SaveTeacher(ctx, billing.Teacher{ID: "t-elvin", FullName: "Elvin Safarov"}); err != nil {
		return err
	}
	group := billing.Group{
		ID: "g-it-1", Name: "Python Basics", CourseID: "it",
		Status: billing.GroupCurrent, TeacherIDs: []billing.TeacherID{"t-elvin"},
	}
	if err := h.Store.SaveGroup(ctx, group); err != nil {
		return err
	}

	m := monthOffset(now)

	ali := enroll(group, "Ali Hasanov", billing.StatusContinue)
	ali.Contracts = []billing.Contract{openContract(1, m(-2), 1500)}
	zahra := enroll(group, "Zahra Mehdiyeva", billing.StatusContinue)
	zahra.Contracts = []billing.Contract{openContract(1, m(-2), 1000)}
	for k := -2; k <= 0; k++ {
		ali.Paids = append(ali.Paids, paid(1500, days(m(k), 3), true))
		zahra.Paids = append(zahra.Paids, paid(1000, days(m(k), 4), true))

		if err := h.Store.SaveExpense(ctx, billing.Expense{
			Category: "rent",
			Amount:   decimal.NewFromInt(1000),
			Date:     days(m(k), 10),
		}); err != nil {
			return err
		}
		if _, err := h.Store.UpsertSalary(ctx, "t-elvin", billing.MonthWindow(m(k)), decimal.NewFromInt(800)); err != nil {
			return err
		}
	}
	// Unconfirmed money is not income.
	zahra.Paids = append(zahra.Paids, paid(999, days(m(0), 6), false))

	students := []billing.Student{
		{ID: "s-ali", FullName: "Ali Hasanov", Enrollments: []billing.Enrollment{ali}},
		{ID: "s-zahra", FullName: "Zahra Mehdiyeva", Enrollments: []billing.Enrollment{zahra}},
	}
	return h.saveStudents(ctx, students)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) saveStudents(ctx context.Context, students []billing.Student) error {
	for _, s := range students {
		if err := h.Store.SaveStudent(ctx, s); err != nil {
			return fmt.Errorf("failed to save student %s: %w", s.ID, err)
		}
	}
	return nil
}

// monthOffset returns a function yielding the start of the month k months
// away from now.
func monthOffset(now time.Time) func(k int) time.Time {
	base := billing.StartOfMonth(now)
	return func(k int) time.Time { return billing.AddMonths(base, k) }
}

func days(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

func enroll(g billing.Group, name string, status billing.EnrollmentStatus) billing.Enrollment {
	return billing.Enrollment{
		StudentName: name,
		GroupID:     g.ID,
		GroupName:   g.Name,
		CourseID:    g.CourseID,
		Status:      status,
	}
}

func openContract(number int, start time.Time, monthly int64) billing.Contract {
	return billing.Contract{
		Number:            number,
		ContractStartDate: billing.Ptr(start),
		PaymentStartDate:  billing.Ptr(start),
		MonthlyPayment:    decimal.NewNullDecimal(decimal.NewFromInt(monthly)),
	}
}

func closedContract(number int, start, end time.Time, monthly int64) billing.Contract {
	c := openContract(number, start, monthly)
	c.ContractEndDate = billing.Ptr(end)
	return c
}

func paid(amount int64, date time.Time, confirmed bool) billing.PaymentRecord {
	return billing.PaymentRecord{
		Payment:     decimal.NewNullDecimal(decimal.NewFromInt(amount)),
		PaymentDate: billing.Ptr(date),
		Confirmed:   confirmed,
	}
}

func plan(amount int64, dates ...time.Time) []billing.ScheduledPayment {
	out := make([]billing.ScheduledPayment, len(dates))
	for i, d := range dates {
		out[i] = billing.ScheduledPayment{Payment: decimal.NewFromInt(amount), PaymentDate: billing.Ptr(d)}
	}
	return out
}
