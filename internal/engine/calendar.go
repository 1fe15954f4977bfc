package engine

import "time"

// IsSchoolDay reports whether date is a school day given a class's study
// weekdays. Holidays win over weekday configuration. A class with no
// configured study days never has a school day; that silent default is
// deliberate and distinct from the explicit config-missing status the
// resolver produces for missing shift entries. Changing it would alter
// historical scoring results.
func (e *Engine) IsSchoolDay(date time.Time, studyDays []time.Weekday) bool {
	if e.holidays.Contains(e.DateKey(date)) {
		return false
	}
	if len(studyDays) == 0 {
		return false
	}
	wd := date.In(e.loc).Weekday()
	for _, d := range studyDays {
		if d == wd {
			return true
		}
	}
	return false
}
