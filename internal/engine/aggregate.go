package engine

import "time"

// StreakResult is a consecutive-absence count plus the dates that formed it,
// newest first.
type StreakResult struct {
	Count int
	Dates []string
}

// MonthlySummary holds the per-month late and absence counts.
type MonthlySummary struct {
	Lates    int
	Absences int
}

// ConsecutiveAbsences walks backward from today counting confirmed absent
// school days. Non-school days are skipped without interrupting the run;
// any other resolvable school day terminates it. In particular today with
// an open grace window terminates immediately: an unconfirmed day never
// extends a streak. The walk is bounded by the lookback window and never
// crosses the enrollment date.
func (e *Engine) ConsecutiveAbsences(st Student, records map[string]*AttendanceRecord, perms []PermissionRecord) StreakResult {
	today := e.Today()
	var enrolled time.Time
	if st.EnrolledAt != nil {
		enrolled = e.midnight(*st.EnrolledAt)
	}

	var res StreakResult
	for i := 0; i < e.lookbackDays; i++ {
		day := today.AddDate(0, 0, -i)
		if st.EnrolledAt != nil && day.Before(enrolled) {
			break
		}
		if !e.IsSchoolDay(day, e.studyDays(st.Class)) {
			continue
		}
		key := e.DateKey(day)
		verdict := e.ResolveDailyStatus(st, day, records[key], perms)
		if verdict.Status != StatusAbsent {
			break
		}
		res.Count++
		res.Dates = append(res.Dates, key)
	}
	return res
}

// MonthlyLates counts recorded late arrivals inside the month, clamped to
// today and to the enrollment date. Lates only exist as records, so this
// is a pure filter with no calendar walk.
func (e *Engine) MonthlyLates(st Student, records []AttendanceRecord, month time.Time) int {
	start, end := e.monthWindow(month)
	if todayKey := e.DateKey(e.Today()); todayKey < end {
		end = todayKey
	}
	var enrollKey string
	if st.EnrolledAt != nil {
		enrollKey = e.DateKey(*st.EnrolledAt)
	}

	count := 0
	for _, rec := range records {
		if rec.Status != "late" {
			continue
		}
		if rec.Date < start || rec.Date > end {
			continue
		}
		if rec.Date < enrollKey {
			continue
		}
		count++
	}
	return count
}

// MonthlyAbsences counts days of the month the full decision tree
// classifies Absent. Unlike lates, absences must be inferred from missing
// days, so every calendar day is resolved. Future days resolve to no
// verdict and naturally drop out.
func (e *Engine) MonthlyAbsences(st Student, records map[string]*AttendanceRecord, perms []PermissionRecord, month time.Time) int {
	m := month.In(e.loc)
	first := time.Date(m.Year(), m.Month(), 1, 0, 0, 0, 0, e.loc)

	count := 0
	for day := first; day.Month() == first.Month(); day = day.AddDate(0, 0, 1) {
		verdict := e.ResolveDailyStatus(st, day, records[e.DateKey(day)], perms)
		if verdict.Status == StatusAbsent {
			count++
		}
	}
	return count
}

// MonthSummary folds lates and absences for one month.
func (e *Engine) MonthSummary(st Student, records []AttendanceRecord, perms []PermissionRecord, month time.Time) MonthlySummary {
	return MonthlySummary{
		Lates:    e.MonthlyLates(st, records, month),
		Absences: e.MonthlyAbsences(st, RecordsByDate(records), perms, month),
	}
}

// monthWindow returns the inclusive first and last date keys of a month.
func (e *Engine) monthWindow(month time.Time) (string, string) {
	m := month.In(e.loc)
	first := time.Date(m.Year(), m.Month(), 1, 0, 0, 0, 0, e.loc)
	last := first.AddDate(0, 1, -1)
	return e.DateKey(first), e.DateKey(last)
}

// RecordsByDate indexes records by their date key for resolver lookups.
// There is at most one record per (student, date).
func RecordsByDate(records []AttendanceRecord) map[string]*AttendanceRecord {
	byDate := make(map[string]*AttendanceRecord, len(records))
	for i := range records {
		byDate[records[i].Date] = &records[i]
	}
	return byDate
}
