/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements billing.Store (enrollments, groups, lessons, salaries, teachers,
  expenses) using SQLite. The engine only ever receives plain values loaded
  from here; nothing in this package computes money figures.

KEY TABLES:
  students, teachers, groups, group_teachers: People and classes
  enrollments:        Student-in-group join with lifecycle status
  contracts, paids, scheduled_payments: Per-enrollment billing records,
                      kept in insertion order via a position column
  lessons, lesson_attendance: Class occurrences and per-student marks
  salaries:           Paid amount per teacher per month
  expenses:           Outgoing money for finance reports

STORAGE FORMATS:
  - Money is stored as decimal TEXT (never REAL) and parsed with shopspring
  - Instants are stored as fixed-width UTC TEXT so string comparison orders
    them; they are converted back to the Asia/Baku zone on read

WRITES:
  - ReplacePaids rewrites one enrollment's paids inside a transaction
  - UpsertSalary updates the record dated inside the month or inserts one
    dated month start + 15 days

CONCURRENCY:
  A single connection is used (SetMaxOpenConns(1)); every read drains its
  rows before issuing the next query. A sync.RWMutex serializes writers.

USAGE:
  store, err := sqlite.New("./data/edu.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - billing/store.go: Interface definitions
  - billing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/tuition-engine/billing"
)

const timeLayout = "2006-01-02T15:04:05.000Z"

// Store implements billing.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ billing.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS teachers (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		deleted INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		deleted INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS groups (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		course_id TEXT,
		status TEXT NOT NULL DEFAULT 'current'
	);

	CREATE TABLE IF NOT EXISTS group_teachers (
		group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		teacher_id TEXT NOT NULL,
		PRIMARY KEY (group_id, teacher_id)
	);

	CREATE INDEX IF NOT EXISTS idx_group_teachers_teacher
		ON group_teachers(teacher_id);

	CREATE TABLE IF NOT EXISTS enrollments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
		group_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'continue',
		UNIQUE (student_id, group_id)
	);

	CREATE INDEX IF NOT EXISTS idx_enrollments_group
		ON enrollments(group_id);

	CREATE TABLE IF NOT EXISTS contracts (
		enrollment_id INTEGER NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		contract_number INTEGER,
		contract_start TEXT,
		contract_end TEXT,
		payment_start TEXT,
		monthly_payment TEXT
	);

	CREATE TABLE IF NOT EXISTS paids (
		enrollment_id INTEGER NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		payment TEXT,
		payment_date TEXT,
		confirmed INTEGER NOT NULL DEFAULT 0,
		discount TEXT,
		discount_reason TEXT
	);

	CREATE TABLE IF NOT EXISTS scheduled_payments (
		enrollment_id INTEGER NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		payment TEXT NOT NULL,
		payment_date TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_contracts_enrollment ON contracts(enrollment_id, position);
	CREATE INDEX IF NOT EXISTS idx_paids_enrollment ON paids(enrollment_id, position);
	CREATE INDEX IF NOT EXISTS idx_scheduled_enrollment ON scheduled_payments(enrollment_id, position);

	CREATE TABLE IF NOT EXISTS lessons (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		teacher_id TEXT,
		date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'unviewed',
		role TEXT NOT NULL DEFAULT 'current',
		pay_kind TEXT,
		pay_value TEXT
	);

	-- Hot path: confirmed lessons of a group in a window
	CREATE INDEX IF NOT EXISTS idx_lessons_group_status_date
		ON lessons(group_id, status, date);
	CREATE INDEX IF NOT EXISTS idx_lessons_teacher_date
		ON lessons(teacher_id, date);

	CREATE TABLE IF NOT EXISTS lesson_attendance (
		lesson_id TEXT NOT NULL REFERENCES lessons(id) ON DELETE CASCADE,
		student_id TEXT NOT NULL,
		attendance INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (lesson_id, student_id)
	);

	CREATE TABLE IF NOT EXISTS salaries (
		id TEXT PRIMARY KEY,
		teacher_id TEXT NOT NULL,
		paid TEXT NOT NULL,
		date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_salaries_teacher_date
		ON salaries(teacher_id, date);

	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		category TEXT,
		amount TEXT NOT NULL,
		date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_expenses_date ON expenses(date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset clears all data (for demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"lesson_attendance", "lessons", "contracts", "paids", "scheduled_payments",
		"enrollments", "group_teachers", "groups", "students", "teachers",
		"salaries", "expenses",
	}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("failed to reset %s: %w", t, err)
		}
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// =============================================================================
// TEACHERS
// =============================================================================

// SaveTeacher inserts or replaces a teacher.
func (s *Store) SaveTeacher(ctx context.Context, t billing.Teacher) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO teachers (id, full_name, deleted) VALUES (?, ?, ?)
	`, t.ID, t.FullName, t.Deleted)
	if err != nil {
		return fmt.Errorf("failed to save teacher: %w", err)
	}
	return nil
}

// ListTeachers returns a page of non-deleted teachers and the total count.
func (s *Store) ListTeachers(ctx context.Context, f billing.TeacherFilter) ([]billing.Teacher, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, full_name, deleted FROM teachers WHERE deleted = 0 ORDER BY id")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list teachers: %w", err)
	}
	defer rows.Close()

	teachers := []billing.Teacher{}
	for rows.Next() {
		var t billing.Teacher
		if err := rows.Scan(&t.ID, &t.FullName, &t.Deleted); err != nil {
			return nil, 0, fmt.Errorf("failed to scan teacher: %w", err)
		}
		if nameMatches(t.FullName, f.Search) {
			teachers = append(teachers, t)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return page(teachers, f.Offset, f.Limit), len(teachers), nil
}

// GetTeacher retrieves a teacher by ID.
func (s *Store) GetTeacher(ctx context.Context, id billing.TeacherID) (*billing.Teacher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t billing.Teacher
	err := s.db.QueryRowContext(ctx,
		"SELECT id, full_name, deleted FROM teachers WHERE id = ?", id,
	).Scan(&t.ID, &t.FullName, &t.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("teacher %s: %w", id, billing.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get teacher: %w", err)
	}
	return &t, nil
}

// =============================================================================
// GROUPS
// =============================================================================

// SaveGroup inserts or replaces a group and its teacher links.
func (s *Store) SaveGroup(ctx context.Context, g billing.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	status := g.Status
	if status == "" {
		status = billing.GroupCurrent
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO groups (id, name, course_id, status) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, course_id = excluded.course_id, status = excluded.status
	`, g.ID, g.Name, nullString(g.CourseID), status); err != nil {
		return fmt.Errorf("failed to save group: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM group_teachers WHERE group_id = ?", g.ID); err != nil {
		return fmt.Errorf("failed to clear group teachers: %w", err)
	}
	for _, t := range g.TeacherIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO group_teachers (group_id, teacher_id) VALUES (?, ?)", g.ID, t,
		); err != nil {
			return fmt.Errorf("failed to link teacher: %w", err)
		}
	}
	return tx.Commit()
}

// GroupsByTeacher returns the groups a teacher leads, enrollments attached.
func (s *Store) GroupsByTeacher(ctx context.Context, teacherID billing.TeacherID) ([]billing.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.name, COALESCE(g.course_id, ''), g.status
		FROM groups g
		JOIN group_teachers gt ON gt.group_id = g.id
		WHERE gt.teacher_id = ?
		ORDER BY g.id
	`, teacherID)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	var groups []billing.Group
	for rows.Next() {
		var g billing.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.CourseID, &g.Status); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range groups {
		teachers, err := s.groupTeachers(ctx, groups[i].ID)
		if err != nil {
			return nil, err
		}
		groups[i].TeacherIDs = teachers

		enrollments, err := s.loadEnrollments(ctx, s.db, "e.group_id = ?", groups[i].ID)
		if err != nil {
			return nil, err
		}
		groups[i].Enrollments = enrollments
	}
	return groups, nil
}

func (s *Store) groupTeachers(ctx context.Context, groupID billing.GroupID) ([]billing.TeacherID, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT teacher_id FROM group_teachers WHERE group_id = ? ORDER BY teacher_id", groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group teachers: %w", err)
	}
	defer rows.Close()

	var ids []billing.TeacherID
	for rows.Next() {
		var id billing.TeacherID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =============================================================================
// STUDENTS & ENROLLMENTS
// =============================================================================

// SaveStudent inserts or replaces a student and all its enrollments.
func (s *Store) SaveStudent(ctx context.Context, st billing.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO students (id, full_name, deleted) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET full_name = excluded.full_name, deleted = excluded.deleted
	`, st.ID, st.FullName, st.Deleted); err != nil {
		return fmt.Errorf("failed to save student: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM enrollments WHERE student_id = ?", st.ID); err != nil {
		return fmt.Errorf("failed to clear enrollments: %w", err)
	}

	for _, e := range st.Enrollments {
		status := e.Status
		if status == "" {
			status = billing.StatusContinue
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO enrollments (student_id, group_id, status) VALUES (?, ?, ?)",
			st.ID, e.GroupID, status)
		if err != nil {
			return fmt.Errorf("failed to save enrollment: %w", err)
		}
		enrollmentID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if err := writeContracts(ctx, tx, enrollmentID, e.Contracts); err != nil {
			return err
		}
		if err := writePaids(ctx, tx, enrollmentID, e.Paids); err != nil {
			return err
		}
		if err := writeScheduled(ctx, tx, enrollmentID, e.Payments); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListStudents returns non-deleted students with at least one enrollment.
func (s *Store) ListStudents(ctx context.Context, f billing.StudentFilter) ([]billing.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where := []string{"s.deleted = 0", "s.id IN (SELECT student_id FROM enrollments)"}
	var args []any
	if f.GroupID != "" {
		where = append(where, "s.id IN (SELECT student_id FROM enrollments WHERE group_id = ?)")
		args = append(args, f.GroupID)
	}
	if f.CourseID != "" {
		where = append(where, `s.id IN (SELECT en.student_id FROM enrollments en
			JOIN groups g ON g.id = en.group_id WHERE g.course_id = ?)`)
		args = append(args, f.CourseID)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT s.id, s.full_name, s.deleted FROM students s WHERE "+strings.Join(where, " AND ")+
			" ORDER BY s.full_name, s.id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	var students []billing.Student
	for rows.Next() {
		var st billing.Student
		if err := rows.Scan(&st.ID, &st.FullName, &st.Deleted); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan student: %w", err)
		}
		if f.IDs != nil && !f.IDs[st.ID] {
			continue
		}
		if !nameMatches(st.FullName, f.Search) {
			continue
		}
		students = append(students, st)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	students = page(students, f.Offset, f.Limit)
	for i := range students {
		enrollments, err := s.loadEnrollments(ctx, s.db, "e.student_id = ?", students[i].ID)
		if err != nil {
			return nil, err
		}
		students[i].Enrollments = enrollments
	}
	return students, nil
}

// GetStudent retrieves a student with enrollments.
func (s *Store) GetStudent(ctx context.Context, id billing.StudentID) (*billing.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st billing.Student
	err := s.db.QueryRowContext(ctx,
		"SELECT id, full_name, deleted FROM students WHERE id = ?", id,
	).Scan(&st.ID, &st.FullName, &st.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("student %s: %w", id, billing.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student: %w", err)
	}

	st.Enrollments, err = s.loadEnrollments(ctx, s.db, "e.student_id = ?", id)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ReplacePaids swaps the paids of one enrollment.
func (s *Store) ReplacePaids(ctx context.Context, studentID billing.StudentID, groupID billing.GroupID, paids []billing.PaymentRecord) (billing.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return billing.Enrollment{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var enrollmentID int64
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM enrollments WHERE student_id = ? AND group_id = ?", studentID, groupID,
	).Scan(&enrollmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Enrollment{}, fmt.Errorf("student %s in group %s: %w", studentID, groupID, billing.ErrNotFound)
	}
	if err != nil {
		return billing.Enrollment{}, fmt.Errorf("failed to find enrollment: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM paids WHERE enrollment_id = ?", enrollmentID); err != nil {
		return billing.Enrollment{}, fmt.Errorf("failed to clear paids: %w", err)
	}
	if err := writePaids(ctx, tx, enrollmentID, paids); err != nil {
		return billing.Enrollment{}, err
	}

	enrollments, err := s.loadEnrollments(ctx, tx, "e.id = ?", enrollmentID)
	if err != nil {
		return billing.Enrollment{}, err
	}
	if err := tx.Commit(); err != nil {
		return billing.Enrollment{}, err
	}
	return enrollments[0], nil
}

type enrollmentRow struct {
	id int64
	billing.Enrollment
}

// loadEnrollments reads enrollments matching cond plus their child records.
func (s *Store) loadEnrollments(ctx context.Context, q querier, cond string, args ...any) ([]billing.Enrollment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT e.id, e.student_id, st.full_name, e.group_id, COALESCE(g.name, ''), COALESCE(g.course_id, ''), e.status
		FROM enrollments e
		JOIN students st ON st.id = e.student_id
		LEFT JOIN groups g ON g.id = e.group_id
		WHERE `+cond+`
		ORDER BY e.id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}
	var loaded []enrollmentRow
	for rows.Next() {
		var r enrollmentRow
		if err := rows.Scan(&r.id, &r.StudentID, &r.StudentName, &r.GroupID, &r.GroupName, &r.CourseID, &r.Status); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		loaded = append(loaded, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]billing.Enrollment, 0, len(loaded))
	for _, r := range loaded {
		e := r.Enrollment
		if e.Contracts, err = readContracts(ctx, q, r.id); err != nil {
			return nil, err
		}
		if e.Paids, err = readPaids(ctx, q, r.id); err != nil {
			return nil, err
		}
		if e.Payments, err = readScheduled(ctx, q, r.id); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func writeContracts(ctx context.Context, db execer, enrollmentID int64, contracts []billing.Contract) error {
	for i, c := range contracts {
		_, err := db.ExecContext(ctx, `
			INSERT INTO contracts (enrollment_id, position, contract_number, contract_start, contract_end, payment_start, monthly_payment)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, enrollmentID, i, c.Number, nullTime(c.ContractStartDate), nullTime(c.ContractEndDate),
			nullTime(c.PaymentStartDate), nullDecimal(c.MonthlyPayment))
		if err != nil {
			return fmt.Errorf("failed to save contract: %w", err)
		}
	}
	return nil
}

func readContracts(ctx context.Context, q querier, enrollmentID int64) ([]billing.Contract, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT COALESCE(contract_number, 0), contract_start, contract_end, payment_start, monthly_payment
		FROM contracts WHERE enrollment_id = ? ORDER BY position
	`, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contracts: %w", err)
	}
	defer rows.Close()

	contracts := []billing.Contract{}
	for rows.Next() {
		var (
			c                   billing.Contract
			start, end, payment sql.NullString
			monthly             sql.NullString
		)
		if err := rows.Scan(&c.Number, &start, &end, &payment, &monthly); err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		c.ContractStartDate = parseNullTime(start)
		c.ContractEndDate = parseNullTime(end)
		c.PaymentStartDate = parseNullTime(payment)
		c.MonthlyPayment = parseNullDecimal(monthly)
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

func writePaids(ctx context.Context, db execer, enrollmentID int64, paids []billing.PaymentRecord) error {
	for i, p := range paids {
		_, err := db.ExecContext(ctx, `
			INSERT INTO paids (enrollment_id, position, payment, payment_date, confirmed, discount, discount_reason)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, enrollmentID, i, nullDecimal(p.Payment), nullTime(p.PaymentDate), p.Confirmed,
			nullDecimal(p.Discount), nullString(p.DiscountReason))
		if err != nil {
			return fmt.Errorf("failed to save paid: %w", err)
		}
	}
	return nil
}

func readPaids(ctx context.Context, q querier, enrollmentID int64) ([]billing.PaymentRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT payment, payment_date, confirmed, discount, discount_reason
		FROM paids WHERE enrollment_id = ? ORDER BY position
	`, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query paids: %w", err)
	}
	defer rows.Close()

	paids := []billing.PaymentRecord{}
	for rows.Next() {
		var (
			p                       billing.PaymentRecord
			payment, date, discount sql.NullString
			reason                  sql.NullString
		)
		if err := rows.Scan(&payment, &date, &p.Confirmed, &discount, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan paid: %w", err)
		}
		p.Payment = parseNullDecimal(payment)
		p.PaymentDate = parseNullTime(date)
		p.Discount = parseNullDecimal(discount)
		p.DiscountReason = reason.String
		paids = append(paids, p)
	}
	return paids, rows.Err()
}

func writeScheduled(ctx context.Context, db execer, enrollmentID int64, payments []billing.ScheduledPayment) error {
	for i, p := range payments {
		_, err := db.ExecContext(ctx, `
			INSERT INTO scheduled_payments (enrollment_id, position, payment, payment_date) VALUES (?, ?, ?, ?)
		`, enrollmentID, i, p.Payment.String(), nullTime(p.PaymentDate))
		if err != nil {
			return fmt.Errorf("failed to save scheduled payment: %w", err)
		}
	}
	return nil
}

func readScheduled(ctx context.Context, q querier, enrollmentID int64) ([]billing.ScheduledPayment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT payment, payment_date FROM scheduled_payments WHERE enrollment_id = ? ORDER BY position
	`, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduled payments: %w", err)
	}
	defer rows.Close()

	payments := []billing.ScheduledPayment{}
	for rows.Next() {
		var (
			amount string
			date   sql.NullString
		)
		if err := rows.Scan(&amount, &date); err != nil {
			return nil, fmt.Errorf("failed to scan scheduled payment: %w", err)
		}
		payments = append(payments, billing.ScheduledPayment{
			Payment:     parseDecimal(amount),
			PaymentDate: parseNullTime(date),
		})
	}
	return payments, rows.Err()
}

// =============================================================================
// LESSONS
// =============================================================================

// SaveLesson inserts or replaces a lesson and its attendance marks.
func (s *Store) SaveLesson(ctx context.Context, l billing.AttendanceLesson) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	status, role := l.Status, l.Role
	if status == "" {
		status = billing.LessonUnviewed
	}
	if role == "" {
		role = billing.RoleCurrent
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO lessons (id, group_id, teacher_id, date, status, role, pay_kind, pay_value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.GroupID, nullString(string(l.TeacherID)), formatTime(l.Date), status, role,
		nullString(string(l.Pay.Kind)), l.Pay.Value.String()); err != nil {
		return fmt.Errorf("failed to save lesson: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM lesson_attendance WHERE lesson_id = ?", l.ID); err != nil {
		return fmt.Errorf("failed to clear attendance: %w", err)
	}
	for _, a := range l.Students {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO lesson_attendance (lesson_id, student_id, attendance) VALUES (?, ?, ?)",
			l.ID, a.StudentID, a.Attendance,
		); err != nil {
			return fmt.Errorf("failed to save attendance: %w", err)
		}
	}
	return tx.Commit()
}

// ConfirmedLessons returns confirmed lessons of a group inside the window.
func (s *Store) ConfirmedLessons(ctx context.Context, groupID billing.GroupID, w billing.Window) ([]billing.AttendanceLesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryLessons(ctx, "group_id = ? AND status = ? AND date >= ? AND date <= ?",
		groupID, billing.LessonConfirmed, formatTime(w.Start), formatTime(w.End))
}

// LessonsByTeacher returns every lesson of a teacher inside the window.
func (s *Store) LessonsByTeacher(ctx context.Context, teacherID billing.TeacherID, w billing.Window) ([]billing.AttendanceLesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryLessons(ctx, "teacher_id = ? AND date >= ? AND date <= ?",
		teacherID, formatTime(w.Start), formatTime(w.End))
}

func (s *Store) queryLessons(ctx context.Context, cond string, args ...any) ([]billing.AttendanceLesson, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, COALESCE(teacher_id, ''), date, status, role, COALESCE(pay_kind, ''), COALESCE(pay_value, '0')
		FROM lessons WHERE `+cond+` ORDER BY date, id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lessons: %w", err)
	}
	var lessons []billing.AttendanceLesson
	for rows.Next() {
		var (
			l         billing.AttendanceLesson
			date, pay string
		)
		if err := rows.Scan(&l.ID, &l.GroupID, &l.TeacherID, &date, &l.Status, &l.Role, &l.Pay.Kind, &pay); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan lesson: %w", err)
		}
		l.Date = parseTime(date)
		l.Pay.Value = parseDecimal(pay)
		lessons = append(lessons, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range lessons {
		marks, err := s.attendance(ctx, lessons[i].ID)
		if err != nil {
			return nil, err
		}
		lessons[i].Students = marks
	}
	return lessons, nil
}

func (s *Store) attendance(ctx context.Context, lessonID string) ([]billing.LessonAttendance, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT student_id, attendance FROM lesson_attendance WHERE lesson_id = ? ORDER BY student_id", lessonID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var marks []billing.LessonAttendance
	for rows.Next() {
		var a billing.LessonAttendance
		if err := rows.Scan(&a.StudentID, &a.Attendance); err != nil {
			return nil, err
		}
		marks = append(marks, a)
	}
	return marks, rows.Err()
}

// =============================================================================
// SALARIES
// =============================================================================

// SalaryForPeriod returns the record dated inside w, nil when none.
func (s *Store) SalaryForPeriod(ctx context.Context, teacherID billing.TeacherID, w billing.Window) (*billing.SalaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.salaryForPeriod(ctx, s.db, teacherID, w)
}

func (s *Store) salaryForPeriod(ctx context.Context, q querier, teacherID billing.TeacherID, w billing.Window) (*billing.SalaryRecord, error) {
	records, err := querySalaries(ctx, q,
		"teacher_id = ? AND date >= ? AND date <= ? ORDER BY date LIMIT 1",
		teacherID, formatTime(w.Start), formatTime(w.End))
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return &records[0], nil
}

// UpsertSalary sets the paid amount of the teacher's record for the window.
func (s *Store) UpsertSalary(ctx context.Context, teacherID billing.TeacherID, w billing.Window, paid decimal.Decimal) (billing.SalaryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return billing.SalaryRecord{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := s.salaryForPeriod(ctx, tx, teacherID, w)
	if err != nil {
		return billing.SalaryRecord{}, err
	}

	var rec billing.SalaryRecord
	if existing != nil {
		rec = *existing
		rec.Paid = paid
		if _, err := tx.ExecContext(ctx, "UPDATE salaries SET paid = ? WHERE id = ?", paid.String(), rec.ID); err != nil {
			return billing.SalaryRecord{}, fmt.Errorf("failed to update salary: %w", err)
		}
	} else {
		rec = billing.SalaryRecord{
			ID:        uuid.NewString(),
			TeacherID: teacherID,
			Paid:      paid,
			Date:      billing.SalaryRecordDate(w),
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO salaries (id, teacher_id, paid, date) VALUES (?, ?, ?, ?)",
			rec.ID, rec.TeacherID, rec.Paid.String(), formatTime(rec.Date),
		); err != nil {
			return billing.SalaryRecord{}, fmt.Errorf("failed to insert salary: %w", err)
		}
	}
	return rec, tx.Commit()
}

// SalariesInRange returns all salary records dated inside w.
func (s *Store) SalariesInRange(ctx context.Context, w billing.Window) ([]billing.SalaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return querySalaries(ctx, s.db, "date >= ? AND date <= ? ORDER BY date", formatTime(w.Start), formatTime(w.End))
}

func querySalaries(ctx context.Context, q querier, cond string, args ...any) ([]billing.SalaryRecord, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, teacher_id, paid, date FROM salaries WHERE "+cond, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query salaries: %w", err)
	}
	defer rows.Close()

	var records []billing.SalaryRecord
	for rows.Next() {
		var (
			r          billing.SalaryRecord
			paid, date string
		)
		if err := rows.Scan(&r.ID, &r.TeacherID, &paid, &date); err != nil {
			return nil, fmt.Errorf("failed to scan salary: %w", err)
		}
		r.Paid = parseDecimal(paid)
		r.Date = parseTime(date)
		records = append(records, r)
	}
	return records, rows.Err()
}

// =============================================================================
// EXPENSES
// =============================================================================

// SaveExpense inserts an expense.
func (s *Store) SaveExpense(ctx context.Context, e billing.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO expenses (id, category, amount, date) VALUES (?, ?, ?, ?)",
		e.ID, nullString(e.Category), e.Amount.String(), formatTime(e.Date))
	if err != nil {
		return fmt.Errorf("failed to save expense: %w", err)
	}
	return nil
}

// ExpensesInRange returns expenses dated inside w.
func (s *Store) ExpensesInRange(ctx context.Context, w billing.Window) ([]billing.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, COALESCE(category, ''), amount, date FROM expenses WHERE date >= ? AND date <= ? ORDER BY date",
		formatTime(w.Start), formatTime(w.End))
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []billing.Expense
	for rows.Next() {
		var (
			e            billing.Expense
			amount, date string
		)
		if err := rows.Scan(&e.ID, &e.Category, &amount, &date); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		e.Amount = parseDecimal(amount)
		e.Date = parseTime(date)
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t.In(billing.Zone)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullDecimal(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseNullDecimal(s sql.NullString) decimal.NullDecimal {
	if !s.Valid {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// nameMatches is a case-insensitive substring match. SQLite's LOWER and
// LIKE only fold ASCII, so names like "Şahin Əliyev" are matched here.
func nameMatches(name, search string) bool {
	search = strings.TrimSpace(search)
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(search))
}

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
