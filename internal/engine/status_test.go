package engine

import (
	"testing"
	"time"
)

// Fixtures shared across engine tests. The reference week: Monday
// 2024-03-04 through Sunday 2024-03-10, class 12A studies Mon-Fri with a
// morning shift starting 08:00.

func testConfigs() ClassConfigs {
	return ClassConfigs{
		"12A": {
			StudyDays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
			Shifts: map[string]ShiftConfig{
				"morning":   {Start: MustTimeOfDay("08:00")},
				"afternoon": {Start: MustTimeOfDay("13:00")},
			},
		},
	}
}

func testStudent() Student {
	enrolled := time.Date(2024, time.January, 1, 0, 0, 0, 0, phnomPenh)
	return Student{
		ID:         "stu-1",
		FullName:   "Sok Dara",
		Class:      "12A",
		Shift:      "morning",
		EnrolledAt: &enrolled,
	}
}

// at builds an instant in the engine's calendar.
func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, phnomPenh)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestEngine(now time.Time, holidays ...string) *Engine {
	return New(testConfigs(), NewHolidaySet(holidays...), WithClock(fixedClock(now)))
}

func TestResolveDailyStatus(t *testing.T) {
	// "Now" is Friday 2024-03-08 at 10:00, well past the morning cutoff.
	now := at(2024, time.March, 8, 10, 0)
	st := testStudent()

	rec := func(status, timeIn string) *AttendanceRecord {
		r := &AttendanceRecord{StudentID: st.ID, Date: "2024-03-05", Status: status}
		if timeIn != "" {
			tod := MustTimeOfDay(timeIn)
			r.TimeIn = &tod
		}
		return r
	}

	tests := []struct {
		name     string
		engine   *Engine
		student  Student
		date     time.Time
		record   *AttendanceRecord
		perms    []PermissionRecord
		want     Status
		wantTime string
	}{
		{
			name:    "before enrollment",
			engine:  newTestEngine(now),
			student: st,
			date:    at(2023, time.December, 31, 0, 0),
			want:    StatusNotEnrolled,
		},
		{
			name:    "enrollment day itself is enrolled",
			engine:  newTestEngine(now),
			student: st,
			date:    at(2024, time.January, 1, 0, 0),
			want:    StatusAbsent, // past school day (a Monday), no record
		},
		{
			name:    "past weekend is no school",
			engine:  newTestEngine(now),
			student: st,
			date:    at(2024, time.March, 3, 0, 0), // Sunday
			want:    StatusNoSchool,
		},
		{
			name:    "holiday wins over study weekday",
			engine:  newTestEngine(now, "2024-03-05"),
			student: st,
			date:    at(2024, time.March, 5, 0, 0), // Tuesday, but a holiday
			want:    StatusNoSchool,
		},
		{
			name:    "class without study days never has school",
			engine:  New(ClassConfigs{"12A": {Shifts: testConfigs()["12A"].Shifts}}, nil, WithClock(fixedClock(now))),
			student: st,
			date:    at(2024, time.March, 5, 0, 0),
			want:    StatusNoSchool,
		},
		{
			name:     "present record",
			engine:   newTestEngine(now),
			student:  st,
			date:     at(2024, time.March, 5, 0, 0),
			record:   rec("present", "07:55"),
			want:     StatusPresent,
			wantTime: "07:55",
		},
		{
			name:    "late record",
			engine:  newTestEngine(now),
			student: st,
			date:    at(2024, time.March, 5, 0, 0),
			record:  rec("late", "08:40"),
			want:    StatusLate,
		},
		{
			name:    "unrecognised record tag",
			engine:  newTestEngine(now),
			student: st,
			date:    at(2024, time.March, 5, 0, 0),
			record:  rec("excused", ""),
			want:    StatusUnknown,
		},
		{
			name:    "approved permission beats absence",
			engine:  newTestEngine(now),
			student: st,
			date:    at(2024, time.March, 5, 0, 0),
			perms: []PermissionRecord{{
				StudentID: st.ID, StartDate: "2024-03-04", EndDate: "2024-03-06", Status: "approved",
			}},
			want: StatusPermission,
		},
		{
			name:    "pending permission does not count",
			engine:  newTestEngine(now),
			student: st,
			date:    at(2024, time.March, 5, 0, 0),
			perms: []PermissionRecord{{
				StudentID: st.ID, StartDate: "2024-03-04", EndDate: "2024-03-06", Status: "pending",
			}},
			want: StatusAbsent,
		},
		{
			name:    "another student's permission does not count",
			engine:  newTestEngine(now),
			student: st,
			date:    at(2024, time.March, 5, 0, 0),
			perms: []PermissionRecord{{
				StudentID: "stu-2", StartDate: "2024-03-04", EndDate: "2024-03-06", Status: "approved",
			}},
			want: StatusAbsent,
		},
		{
			name:    "today before cutoff is pending",
			engine:  newTestEngine(at(2024, time.March, 8, 8, 10)),
			student: st,
			date:    at(2024, time.March, 8, 0, 0),
			want:    StatusPending,
		},
		{
			name:    "today after cutoff is absent",
			engine:  newTestEngine(at(2024, time.March, 8, 8, 20)),
			student: st,
			date:    at(2024, time.March, 8, 0, 0),
			want:    StatusAbsent,
		},
		{
			name:    "today with unknown shift is config missing",
			engine:  newTestEngine(now),
			student: Student{ID: "stu-3", Class: "12A", Shift: "evening"},
			date:    at(2024, time.March, 8, 0, 0),
			want:    StatusConfigMissing,
		},
		{
			name:    "today with unknown class is config missing",
			engine:  newTestEngine(now),
			student: Student{ID: "stu-4", Class: "7C", Shift: "morning"},
			date:    at(2024, time.March, 8, 0, 0),
			want:    StatusConfigMissing,
		},
		{
			name:    "past school day with nothing is absent",
			engine:  newTestEngine(now),
			student: st,
			date:    at(2024, time.March, 6, 0, 0),
			want:    StatusAbsent,
		},
		{
			name:    "future day has no verdict",
			engine:  newTestEngine(now),
			student: st,
			date:    at(2024, time.March, 11, 0, 0),
			want:    StatusNone,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.engine.ResolveDailyStatus(tc.student, tc.date, tc.record, tc.perms)
			if got.Status != tc.want {
				t.Fatalf("status = %q, want %q", got.Status, tc.want)
			}
			if tc.wantTime != "" && got.Time != tc.wantTime {
				t.Fatalf("time = %q, want %q", got.Time, tc.wantTime)
			}
		})
	}
}

func TestResolveDailyStatusIsPureForPastDates(t *testing.T) {
	e := newTestEngine(at(2024, time.March, 8, 10, 0))
	st := testStudent()
	date := at(2024, time.March, 5, 0, 0)
	perms := []PermissionRecord{{StudentID: st.ID, StartDate: "2024-03-05", EndDate: "2024-03-05", Status: "approved"}}

	first := e.ResolveDailyStatus(st, date, nil, perms)
	second := e.ResolveDailyStatus(st, date, nil, perms)
	if first != second {
		t.Fatalf("repeated resolution differed: %+v vs %+v", first, second)
	}
}

func TestResolveDailyStatusRecordTimestampDisplay(t *testing.T) {
	e := newTestEngine(at(2024, time.March, 8, 10, 0))
	st := testStudent()
	ts := at(2024, time.March, 5, 7, 48)
	rec := &AttendanceRecord{StudentID: st.ID, Date: "2024-03-05", Status: "present", Timestamp: &ts}

	got := e.ResolveDailyStatus(st, at(2024, time.March, 5, 0, 0), rec, nil)
	if got.Time != "07:48" {
		t.Fatalf("display time = %q, want 07:48", got.Time)
	}
}
