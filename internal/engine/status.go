package engine

import "time"

// ResolveDailyStatus classifies one (student, date) pair. The rules are
// ordered guard clauses; each rule assumes every earlier rule did not
// match, and the first match wins. Keep the order intact: it encodes the
// precedence of enrollment, calendar, recorded events, permissions and
// the in-progress "today" window.
//
// For any date strictly in the past the function is pure: identical
// inputs yield identical output. Only the date == today branch consults
// the clock.
func (e *Engine) ResolveDailyStatus(st Student, date time.Time, rec *AttendanceRecord, perms []PermissionRecord) DailyResult {
	day := e.midnight(date)
	dateKey := e.DateKey(day)
	today := e.Today()

	// 1. Enrollment boundary: the enrollment date itself counts as enrolled.
	if st.EnrolledAt != nil && day.Before(e.midnight(*st.EnrolledAt)) {
		return DailyResult{Status: StatusNotEnrolled}
	}

	// 2. Past non-school day. A non-school day that is today or later
	// falls through: future dates reach rule 7 and resolve to no verdict.
	if !e.IsSchoolDay(day, e.studyDays(st.Class)) && day.Before(today) {
		return DailyResult{Status: StatusNoSchool}
	}

	// 3. A recorded event settles the day.
	if rec != nil {
		var status Status
		switch rec.Status {
		case "present":
			status = StatusPresent
		case "late":
			status = StatusLate
		default:
			status = StatusUnknown
		}
		return DailyResult{Status: status, Time: recordDisplayTime(rec, e.loc)}
	}

	// 4. Approved leave covering the date.
	for _, p := range perms {
		if p.StudentID == st.ID && p.Covers(dateKey) {
			return DailyResult{Status: StatusPermission}
		}
	}

	// 5. Today, no record yet: the verdict depends on whether the grace
	// window after shift start has closed.
	if day.Equal(today) {
		start, ok := e.ShiftStart(st.Class, st.Shift)
		if !ok {
			return DailyResult{Status: StatusConfigMissing}
		}
		cutoff := day.Add(time.Duration(start.Minutes()+e.lateWindow) * time.Minute)
		if e.now().After(cutoff) {
			return DailyResult{Status: StatusAbsent}
		}
		return DailyResult{Status: StatusPending}
	}

	// 6. Past school day, no record, no permission.
	if day.Before(today) {
		return DailyResult{Status: StatusAbsent}
	}

	// 7. Future day: no verdict.
	return DailyResult{Status: StatusNone}
}

// recordDisplayTime picks a display time for a settled record: the stored
// timestamp when present, otherwise the raw clock-in time.
func recordDisplayTime(rec *AttendanceRecord, loc *time.Location) string {
	if rec.Timestamp != nil {
		return rec.Timestamp.In(loc).Format("15:04")
	}
	if rec.TimeIn != nil {
		return rec.TimeIn.String()
	}
	return ""
}
