/*
handlers.go - HTTP API handlers for the billing engine

PURPOSE:
  Exposes tuition fees, teacher salaries and finance reports via REST.
  Handles HTTP request/response, JSON serialization, query parsing, and
  delegates to the tuition, payroll and report services.

ENDPOINTS:
  Tuition fees:
    GET    /api/tuition-fees               Fee list (search, group_id, course_id,
                                           payment_status=late_payment, length)
    PATCH  /api/tuition-fees               Replace an enrollment's paids
    GET    /api/tuition-fees/late-payment  Total late amount (all=true)
    GET    /api/tuition-fees/paid-amount   Confirmed paids (current_day=true)
    GET    /api/tuition-fees/to-be-paid    Scheduled payments (all=true)

  Salaries:
    GET    /api/salaries                   Admin page (start_date, search, length)
    POST   /api/salaries                   Record a salary payment
    GET    /api/salaries/teachers/{id}     One teacher's accrual (start_date)
    GET    /api/salaries/teachers/{id}/earnings  Own lesson earnings

  Finance:
    GET    /api/finance                    Income/expense/salary/profit
    GET    /api/finance/chart              Same, per month

DATE WINDOW PARAMETERS:
  month_count, start_date, end_date (YYYY-MM-DD). Parsed by windowQuery
  and resolved in the services.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, missing date window
  - 404: Student, enrollment or teacher not found
  - 422: Stored records the engine cannot compute over
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The teacher earnings route takes the teacher ID from
  the path instead of a session.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warp/tuition-engine/billing"
	"github.com/warp/tuition-engine/payroll"
	"github.com/warp/tuition-engine/report"
	"github.com/warp/tuition-engine/tuition"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// DataStore is the data layer plus the seeding operations scenarios need.
type DataStore interface {
	billing.Store
	Reset(ctx context.Context) error
	SaveTeacher(ctx context.Context, t billing.Teacher) error
	SaveStudent(ctx context.Context, s billing.Student) error
	SaveGroup(ctx context.Context, g billing.Group) error
	SaveLesson(ctx context.Context, l billing.AttendanceLesson) error
	SaveExpense(ctx context.Context, e billing.Expense) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   DataStore
	Tuition *tuition.Service
	Payroll *payroll.Service
	Reports *report.Service
	Cache   *report.Cache
	Logger  *slog.Logger

	clock    billing.Clock
	validate *validator.Validate

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// Options configures NewHandler.
type Options struct {
	Cache          *report.Cache // nil = reports are not cached
	Logger         *slog.Logger
	PayrollWorkers int
}

// NewHandler creates a new handler with the given store.
func NewHandler(store DataStore, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		Store:    store,
		Tuition:  tuition.NewService(store, logger),
		Payroll:  payroll.NewService(store, logger, opts.PayrollWorkers),
		Reports:  report.NewService(store, opts.Cache, logger),
		Cache:    opts.Cache,
		Logger:   logger,
		clock:    billing.SystemClock{},
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	h.Tuition.Invalidator = opts.Cache
	h.Payroll.Invalidator = opts.Cache
	return h
}

// SetClock replaces the clock of the handler and every service.
func (h *Handler) SetClock(c billing.Clock) {
	h.clock = c
	h.Tuition.Clock = c
	h.Payroll.Clock = c
	h.Reports.Clock = c
}

// =============================================================================
// TUITION FEE HANDLERS
// =============================================================================

// ListTuitionFees returns a page of fee rows.
func (h *Handler) ListTuitionFees(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, err := intParam(q.Get("length"), "length")
	if err != nil {
		writeServiceError(w, err)
		return
	}

	asOf, err := dateParam(q.Get("as_of"), "as_of")
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := q.Get("payment_status")
	page, err := h.Tuition.List(r.Context(), tuition.Filter{
		Search:   q.Get("search"),
		GroupID:  billing.GroupID(q.Get("group_id")),
		CourseID: q.Get("course_id"),
		LateOnly: status == "late_payment" || status == "latePayment",
		AsOf:     asOf,
		Offset:   offset,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetStudentFees returns the fee rows of one student.
func (h *Handler) GetStudentFees(w http.ResponseWriter, r *http.Request) {
	asOf, err := dateParam(r.URL.Query().Get("as_of"), "as_of")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	fees, err := h.Tuition.Student(r.Context(), billing.StudentID(chi.URLParam(r, "id")), asOf)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fees)
}

// UpdateTuitionFee replaces the paids of one enrollment.
func (h *Handler) UpdateTuitionFee(w http.ResponseWriter, r *http.Request) {
	var req UpdatePaidsRequest
	if !h.decode(w, r, &req) {
		return
	}

	paids := make([]billing.PaymentRecord, 0, len(req.Paids))
	for _, p := range req.Paids {
		rec, err := p.toRecord()
		if err != nil {
			writeServiceError(w, err)
			return
		}
		paids = append(paids, rec)
	}

	fee, err := h.Tuition.UpdatePaids(r.Context(),
		billing.StudentID(req.StudentID), billing.GroupID(req.GroupID), paids)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fee)
}

// GetLatePayment returns the total late amount.
func (h *Handler) GetLatePayment(w http.ResponseWriter, r *http.Request) {
	q, ok := h.windowQuery(w, r)
	if !ok {
		return
	}
	total, err := h.Tuition.LatePayment(r.Context(), q, boolParam(r, "all"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountDTO(total))
}

// GetPaidAmount returns the confirmed paids of the window.
func (h *Handler) GetPaidAmount(w http.ResponseWriter, r *http.Request) {
	q, ok := h.windowQuery(w, r)
	if !ok {
		return
	}
	total, err := h.Tuition.PaidAmount(r.Context(), q, boolParam(r, "current_day"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountDTO(total))
}

// GetToBePaid returns the scheduled payments of the window.
func (h *Handler) GetToBePaid(w http.ResponseWriter, r *http.Request) {
	q, ok := h.windowQuery(w, r)
	if !ok {
		return
	}
	total, err := h.Tuition.ToBePaid(r.Context(), q, boolParam(r, "all"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountDTO(total))
}

// =============================================================================
// SALARY HANDLERS
// =============================================================================

// ListSalaries returns the admin salary page.
func (h *Handler) ListSalaries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, err := intParam(q.Get("length"), "length")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	start, err := dateParam(q.Get("start_date"), "start_date")
	if err != nil {
		writeServiceError(w, err)
		return
	}

	page, err := h.Payroll.ForAdmins(r.Context(), payroll.AdminQuery{
		Start:  start,
		Search: q.Get("search"),
		Offset: offset,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// AddSalary records a salary payment and returns the recomputed month.
func (h *Handler) AddSalary(w http.ResponseWriter, r *http.Request) {
	var req AddSalaryRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := billing.ParseDate(req.Date)
	if err != nil {
		writeServiceError(w, &billing.InputError{Param: "date", Reason: err.Error()})
		return
	}

	salary, err := h.Payroll.AddSalary(r.Context(), billing.TeacherID(req.TeacherID), req.Paid, date)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, salary)
}

// GetTeacherSalary returns one teacher's accrual for the month of start_date.
func (h *Handler) GetTeacherSalary(w http.ResponseWriter, r *http.Request) {
	id := billing.TeacherID(chi.URLParam(r, "id"))
	start, err := dateParam(r.URL.Query().Get("start_date"), "start_date")
	if err != nil {
		writeServiceError(w, err)
		return
	}

	teacher, err := h.Store.GetTeacher(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	salary, err := h.Payroll.Calculate(r.Context(), *teacher, payroll.AdminWindow(start, h.clock.Now()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, salary)
}

// GetTeacherEarnings returns a teacher's own lesson earnings.
func (h *Handler) GetTeacherEarnings(w http.ResponseWriter, r *http.Request) {
	q, ok := h.windowQuery(w, r)
	if !ok {
		return
	}
	earnings, err := h.Payroll.ForTeacher(r.Context(), billing.TeacherID(chi.URLParam(r, "id")), q)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, earnings)
}

// =============================================================================
// FINANCE HANDLERS
// =============================================================================

// GetFinance returns the finance summary.
func (h *Handler) GetFinance(w http.ResponseWriter, r *http.Request) {
	q, ok := h.windowQuery(w, r)
	if !ok {
		return
	}
	summary, err := h.Reports.Finance(r.Context(), q)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetChartData returns the monthly finance series.
func (h *Handler) GetChartData(w http.ResponseWriter, r *http.Request) {
	q, ok := h.windowQuery(w, r)
	if !ok {
		return
	}
	points, err := h.Reports.Chart(r.Context(), q)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode parses and validates a JSON body. It writes the 400 itself.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func (h *Handler) windowQuery(w http.ResponseWriter, r *http.Request) (billing.WindowQuery, bool) {
	q := r.URL.Query()
	var (
		wq  billing.WindowQuery
		err error
	)
	if wq.MonthCount, err = intParam(q.Get("month_count"), "month_count"); err != nil {
		writeServiceError(w, err)
		return wq, false
	}
	if wq.Start, err = dateParam(q.Get("start_date"), "start_date"); err != nil {
		writeServiceError(w, err)
		return wq, false
	}
	if wq.End, err = dateParam(q.Get("end_date"), "end_date"); err != nil {
		writeServiceError(w, err)
		return wq, false
	}
	return wq, true
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, &billing.InputError{Param: name, Reason: "must be a non-negative integer"}
	}
	return v, nil
}

func dateParam(raw, name string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := billing.ParseDate(raw)
	if err != nil {
		return nil, &billing.InputError{Param: name, Reason: "use YYYY-MM-DD"}
	}
	return &t, nil
}

func boolParam(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps billing errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	var compErr *billing.ComputationError
	switch {
	case billing.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.As(err, &compErr):
		writeError(w, http.StatusUnprocessableEntity, "Cannot compute over stored records", err)
	case billing.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
