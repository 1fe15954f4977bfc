package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"schoolops/internal/engine"
)

// Repository persists roster and attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("roster: not found")

// UpsertStudent creates or updates a student.
func (r *Repository) UpsertStudent(ctx context.Context, st engine.Student) error {
	if st.ID == "" {
		return errors.New("student id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (id, full_name, class_key, shift_key, enrolled_at, on_break, dropped)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			class_key = EXCLUDED.class_key,
			shift_key = EXCLUDED.shift_key,
			enrolled_at = EXCLUDED.enrolled_at,
			on_break = EXCLUDED.on_break,
			dropped = EXCLUDED.dropped,
			updated_at = NOW()
	`, st.ID, st.FullName, st.Class, st.Shift, st.EnrolledAt, st.OnBreak, st.Dropped)
	return err
}

// GetStudent returns one student by id.
func (r *Repository) GetStudent(ctx context.Context, id string) (engine.Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, full_name, class_key, shift_key, enrolled_at, on_break, dropped
		FROM students WHERE id = $1
	`, id)
	var st engine.Student
	if err := row.Scan(&st.ID, &st.FullName, &st.Class, &st.Shift, &st.EnrolledAt, &st.OnBreak, &st.Dropped); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return engine.Student{}, ErrNotFound
		}
		return engine.Student{}, err
	}
	return st, nil
}

// ListStudents returns active students, optionally filtered by class.
// Students on break or dropped are excluded.
func (r *Repository) ListStudents(ctx context.Context, classKey string) ([]engine.Student, error) {
	query := `
		SELECT id, full_name, class_key, shift_key, enrolled_at, on_break, dropped
		FROM students
		WHERE NOT on_break AND NOT dropped`
	args := []any{}
	if classKey != "" {
		query += ` AND class_key = $1`
		args = append(args, classKey)
	}
	query += ` ORDER BY full_name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var students []engine.Student
	for rows.Next() {
		var st engine.Student
		if err := rows.Scan(&st.ID, &st.FullName, &st.Class, &st.Shift, &st.EnrolledAt, &st.OnBreak, &st.Dropped); err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// ClassConfigs loads every class configuration: study weekdays plus shift
// start times. Start times are validated here, at the ingestion boundary;
// a malformed row is an error rather than NaN arithmetic downstream.
func (r *Repository) ClassConfigs(ctx context.Context) (engine.ClassConfigs, error) {
	configs := engine.ClassConfigs{}

	rows, err := r.db.QueryContext(ctx, `SELECT class_key, study_days FROM classes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var key, days string
		if err := rows.Scan(&key, &days); err != nil {
			return nil, err
		}
		studyDays, err := parseStudyDays(days)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", key, err)
		}
		configs[key] = engine.ClassConfig{StudyDays: studyDays, Shifts: map[string]engine.ShiftConfig{}}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	shiftRows, err := r.db.QueryContext(ctx, `SELECT class_key, shift_key, start_time FROM class_shifts`)
	if err != nil {
		return nil, err
	}
	defer shiftRows.Close()
	for shiftRows.Next() {
		var classKey, shiftKey, start string
		if err := shiftRows.Scan(&classKey, &shiftKey, &start); err != nil {
			return nil, err
		}
		tod, err := engine.ParseTimeOfDay(start)
		if err != nil {
			return nil, fmt.Errorf("class %s shift %s: %w", classKey, shiftKey, err)
		}
		cfg, ok := configs[classKey]
		if !ok {
			// Shift for an unknown class: keep it loadable so the
			// resolver can still surface config-missing statuses.
			cfg = engine.ClassConfig{Shifts: map[string]engine.ShiftConfig{}}
			configs[classKey] = cfg
		}
		cfg.Shifts[shiftKey] = engine.ShiftConfig{Start: tod}
	}
	return configs, shiftRows.Err()
}

// Holidays loads the static holiday reference set.
func (r *Repository) Holidays(ctx context.Context) (engine.HolidaySet, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT holiday_date FROM holidays`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	set := engine.HolidaySet{}
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		set[d.Format("2006-01-02")] = struct{}{}
	}
	return set, rows.Err()
}

// InsertAttendance writes a record, enforcing at most one per
// (student, date). When a record already exists it is returned unchanged.
func (r *Repository) InsertAttendance(ctx context.Context, rec engine.AttendanceRecord) (engine.AttendanceRecord, bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	var timeIn, shiftStart *string
	if rec.TimeIn != nil {
		s := rec.TimeIn.String()
		timeIn = &s
	}
	if rec.ShiftStart != nil {
		s := rec.ShiftStart.String()
		shiftStart = &s
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, student_id, att_date, status, time_in, shift_start, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (student_id, att_date) DO NOTHING
	`, rec.ID, rec.StudentID, rec.Date, rec.Status, timeIn, shiftStart, rec.Timestamp)
	if err != nil {
		return engine.AttendanceRecord{}, false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		existing, err := r.AttendanceForDate(ctx, rec.StudentID, rec.Date)
		if err != nil {
			return engine.AttendanceRecord{}, false, err
		}
		if existing == nil {
			return engine.AttendanceRecord{}, false, errors.New("attendance conflict but no row found")
		}
		return *existing, false, nil
	}
	return rec, true, nil
}

// AttendanceForDate returns the single record for (student, date), or nil.
func (r *Repository) AttendanceForDate(ctx context.Context, studentID, dateKey string) (*engine.AttendanceRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, att_date, status, time_in, shift_start, recorded_at
		FROM attendance_records
		WHERE student_id = $1 AND att_date = $2
	`, studentID, dateKey)
	rec, err := scanAttendance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// AttendanceBetween returns a student's records inside [from, to].
func (r *Repository) AttendanceBetween(ctx context.Context, studentID, from, to string) ([]engine.AttendanceRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, att_date, status, time_in, shift_start, recorded_at
		FROM attendance_records
		WHERE student_id = $1 AND att_date BETWEEN $2 AND $3
		ORDER BY att_date
	`, studentID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []engine.AttendanceRecord
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttendance(row rowScanner) (engine.AttendanceRecord, error) {
	var rec engine.AttendanceRecord
	var date time.Time
	var timeIn, shiftStart *string
	if err := row.Scan(&rec.ID, &rec.StudentID, &date, &rec.Status, &timeIn, &shiftStart, &rec.Timestamp); err != nil {
		return engine.AttendanceRecord{}, err
	}
	rec.Date = date.Format("2006-01-02")
	if timeIn != nil {
		tod, err := engine.ParseTimeOfDay(*timeIn)
		if err != nil {
			return engine.AttendanceRecord{}, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		rec.TimeIn = &tod
	}
	if shiftStart != nil {
		tod, err := engine.ParseTimeOfDay(*shiftStart)
		if err != nil {
			return engine.AttendanceRecord{}, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		rec.ShiftStart = &tod
	}
	return rec, nil
}

// InsertPermission files a new leave request in pending state.
func (r *Repository) InsertPermission(ctx context.Context, p engine.PermissionRecord) (engine.PermissionRecord, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = "pending"
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO permission_records (id, student_id, start_date, end_date, status)
		VALUES ($1,$2,$3,$4,$5)
	`, p.ID, p.StudentID, p.StartDate, p.EndDate, p.Status)
	if err != nil {
		return engine.PermissionRecord{}, err
	}
	return p, nil
}

// SetPermissionStatus moves a request to approved or rejected.
func (r *Repository) SetPermissionStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE permission_records SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PermissionsByStudent returns a student's permission records, optionally
// limited to one status.
func (r *Repository) PermissionsByStudent(ctx context.Context, studentID, status string) ([]engine.PermissionRecord, error) {
	query := `
		SELECT id, student_id, start_date, end_date, status
		FROM permission_records
		WHERE student_id = $1`
	args := []any{studentID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY start_date DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// ApprovedPermissions returns approved records for a set of students.
func (r *Repository) ApprovedPermissions(ctx context.Context, studentIDs []string) ([]engine.PermissionRecord, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(studentIDs))
	args := make([]any, len(studentIDs))
	for i, id := range studentIDs {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}
	query := `
		SELECT id, student_id, start_date, end_date, status
		FROM permission_records
		WHERE status = 'approved' AND student_id IN (` + strings.Join(placeholders, ",") + `)`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func scanPermissions(rows *sql.Rows) ([]engine.PermissionRecord, error) {
	var perms []engine.PermissionRecord
	for rows.Next() {
		var p engine.PermissionRecord
		var start, end time.Time
		if err := rows.Scan(&p.ID, &p.StudentID, &start, &end, &p.Status); err != nil {
			return nil, err
		}
		p.StartDate = start.Format("2006-01-02")
		p.EndDate = end.Format("2006-01-02")
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, staffID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (staff_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, staffID, token, expiresAt)
	return err
}

// UpsertStaff ensures a staff account row exists.
func (r *Repository) UpsertStaff(ctx context.Context, staffID string) error {
	if staffID == "" {
		return errors.New("staff id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO staff (staff_id)
		VALUES ($1)
		ON CONFLICT (staff_id) DO NOTHING
	`, staffID)
	return err
}

// parseStudyDays turns a "1,2,3,4,5" column into weekdays (0=Sunday).
func parseStudyDays(csv string) ([]time.Weekday, error) {
	csv = strings.TrimSpace(csv)
	if csv == "" {
		return nil, nil
	}
	parts := strings.Split(csv, ",")
	days := make([]time.Weekday, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("study day %q: %w", p, err)
		}
		if n < 0 || n > 6 {
			return nil, fmt.Errorf("study day %d out of range", n)
		}
		days = append(days, time.Weekday(n))
	}
	return days, nil
}
