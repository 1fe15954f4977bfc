package engine

import "time"

// Status is the verdict for one (student, date) pair.
type Status string

const (
	StatusPresent       Status = "present"
	StatusLate          Status = "late"
	StatusAbsent        Status = "absent"
	StatusPermission    Status = "permission"
	StatusNoSchool      Status = "no-school"
	StatusNotEnrolled   Status = "not-enrolled"
	StatusPending       Status = "pending"
	StatusUnknown       Status = "unknown"
	StatusConfigMissing Status = "absent-config-missing"
	// StatusNone means no verdict: the date is in the future.
	StatusNone Status = ""
)

// Student is the roster view the engine needs. It is read-only input;
// the administrative layer owns mutation.
type Student struct {
	ID         string
	FullName   string
	Class      string
	Shift      string
	EnrolledAt *time.Time
	OnBreak    bool
	Dropped    bool
}

// ShiftConfig holds the configured start time for one shift.
type ShiftConfig struct {
	Start TimeOfDay
}

// ClassConfig describes one class: which weekdays it studies and its shifts.
type ClassConfig struct {
	StudyDays []time.Weekday
	Shifts    map[string]ShiftConfig
}

// ClassConfigs maps class key to configuration. A missing class key is an
// explicit failure case, never silently defaulted.
type ClassConfigs map[string]ClassConfig

// HolidaySet holds "YYYY-MM-DD" keys; a member is never a school day.
type HolidaySet map[string]struct{}

// Contains reports whether the date key is a holiday.
func (h HolidaySet) Contains(dateKey string) bool {
	_, ok := h[dateKey]
	return ok
}

// NewHolidaySet builds a set from date keys.
func NewHolidaySet(dateKeys ...string) HolidaySet {
	s := make(HolidaySet, len(dateKeys))
	for _, k := range dateKeys {
		s[k] = struct{}{}
	}
	return s
}

// AttendanceRecord is one recorded event, at most one per (student, date).
// Immutable once created as far as the engine is concerned.
type AttendanceRecord struct {
	ID        string
	StudentID string
	Date      string // "YYYY-MM-DD"
	Status    string // "present" | "late" | anything else resolves Unknown
	TimeIn    *TimeOfDay
	// ShiftStart is a snapshot of the shift start taken when the record was
	// written, so historical scoring survives later config edits.
	ShiftStart *TimeOfDay
	Timestamp  *time.Time
}

// PermissionRecord is an approved-leave request covering an inclusive
// date range. Only approved records affect status resolution.
type PermissionRecord struct {
	ID        string
	StudentID string
	StartDate string // "YYYY-MM-DD", inclusive
	EndDate   string // "YYYY-MM-DD", inclusive
	Status    string // "pending" | "approved" | "rejected"
}

const PermissionApproved = "approved"

// Covers reports whether this record is approved and spans dateKey.
// ISO date keys compare correctly as strings.
func (p PermissionRecord) Covers(dateKey string) bool {
	return p.Status == PermissionApproved && p.StartDate <= dateKey && dateKey <= p.EndDate
}

// DailyResult pairs a resolved status with an optional display time.
type DailyResult struct {
	Status Status
	Time   string
}
