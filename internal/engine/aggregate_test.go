package engine

import (
	"testing"
	"time"
)

func TestConsecutiveAbsences(t *testing.T) {
	st := testStudent()
	recOn := func(date string) AttendanceRecord {
		return AttendanceRecord{StudentID: st.ID, Date: date, Status: "present"}
	}

	t.Run("streak stops at first attended day", func(t *testing.T) {
		// Mon 2024-03-04 .. Fri 2024-03-08: absent, absent, present,
		// absent, absent. "Now" is Friday evening, window closed.
		e := newTestEngine(at(2024, time.March, 8, 18, 0))
		records := RecordsByDate([]AttendanceRecord{recOn("2024-03-06")})

		got := e.ConsecutiveAbsences(st, records, nil)
		if got.Count != 2 {
			t.Fatalf("count = %d, want 2", got.Count)
		}
		want := []string{"2024-03-08", "2024-03-07"}
		if len(got.Dates) != len(want) || got.Dates[0] != want[0] || got.Dates[1] != want[1] {
			t.Fatalf("dates = %v, want %v", got.Dates, want)
		}
	})

	t.Run("weekend does not interrupt a streak", func(t *testing.T) {
		// Absent Fri 03-08 and Mon 03-11; now Monday evening. The
		// intervening weekend is skipped, not a terminator.
		e := newTestEngine(at(2024, time.March, 11, 18, 0))
		records := RecordsByDate([]AttendanceRecord{recOn("2024-03-07")})

		got := e.ConsecutiveAbsences(st, records, nil)
		if got.Count != 2 {
			t.Fatalf("count = %d, want 2", got.Count)
		}
	})

	t.Run("open window today yields zero", func(t *testing.T) {
		// 08:10 is inside the grace window: today is Pending, and an
		// unconfirmed day never extends a streak.
		e := newTestEngine(at(2024, time.March, 8, 8, 10))
		got := e.ConsecutiveAbsences(st, nil, nil)
		if got.Count != 0 {
			t.Fatalf("count = %d, want 0", got.Count)
		}
	})

	t.Run("approved permission terminates the streak", func(t *testing.T) {
		e := newTestEngine(at(2024, time.March, 8, 18, 0))
		perms := []PermissionRecord{{StudentID: st.ID, StartDate: "2024-03-06", EndDate: "2024-03-06", Status: "approved"}}

		got := e.ConsecutiveAbsences(st, nil, perms)
		if got.Count != 2 {
			t.Fatalf("count = %d, want 2", got.Count)
		}
	})

	t.Run("walk never crosses enrollment", func(t *testing.T) {
		enrolled := at(2024, time.March, 7, 0, 0)
		fresh := st
		fresh.EnrolledAt = &enrolled
		e := newTestEngine(at(2024, time.March, 8, 18, 0))

		got := e.ConsecutiveAbsences(fresh, nil, nil)
		if got.Count != 2 {
			t.Fatalf("count = %d, want 2 (Thu+Fri only)", got.Count)
		}
	})

	t.Run("lookback bounds the walk", func(t *testing.T) {
		e := New(testConfigs(), nil,
			WithClock(fixedClock(at(2024, time.March, 8, 18, 0))),
			WithStreakLookback(3))
		noEnroll := st
		noEnroll.EnrolledAt = nil

		got := e.ConsecutiveAbsences(noEnroll, nil, nil)
		if got.Count != 3 {
			t.Fatalf("count = %d, want 3", got.Count)
		}
	})
}

func TestMonthlyLates(t *testing.T) {
	st := testStudent()
	// Now: Friday 2024-03-08.
	e := newTestEngine(at(2024, time.March, 8, 18, 0))

	late := func(date string) AttendanceRecord {
		return AttendanceRecord{StudentID: st.ID, Date: date, Status: "late"}
	}
	records := []AttendanceRecord{
		late("2024-03-04"),
		late("2024-03-07"),
		{StudentID: st.ID, Date: "2024-03-05", Status: "present"},
		late("2024-02-28"), // previous month
		late("2024-03-15"), // after today
	}

	if got := e.MonthlyLates(st, records, at(2024, time.March, 1, 0, 0)); got != 2 {
		t.Fatalf("lates = %d, want 2", got)
	}
}

func TestMonthlyLatesRespectsEnrollment(t *testing.T) {
	enrolled := at(2024, time.March, 6, 0, 0)
	st := testStudent()
	st.EnrolledAt = &enrolled
	e := newTestEngine(at(2024, time.March, 8, 18, 0))

	records := []AttendanceRecord{
		{StudentID: st.ID, Date: "2024-03-04", Status: "late"},
		{StudentID: st.ID, Date: "2024-03-07", Status: "late"},
	}
	if got := e.MonthlyLates(st, records, at(2024, time.March, 1, 0, 0)); got != 1 {
		t.Fatalf("lates = %d, want 1", got)
	}
}

func TestMonthlyAbsences(t *testing.T) {
	st := testStudent()
	// Now: Friday 2024-03-08 evening. March 2024 school days so far:
	// Fri 1, Mon 4, Tue 5, Wed 6, Thu 7, Fri 8.
	e := newTestEngine(at(2024, time.March, 8, 18, 0))

	records := RecordsByDate([]AttendanceRecord{
		{StudentID: st.ID, Date: "2024-03-04", Status: "present"},
		{StudentID: st.ID, Date: "2024-03-05", Status: "late"},
	})
	perms := []PermissionRecord{{StudentID: st.ID, StartDate: "2024-03-06", EndDate: "2024-03-06", Status: "approved"}}

	// Absent: Mar 1, 7, 8. Future days carry no verdict.
	if got := e.MonthlyAbsences(st, records, perms, at(2024, time.March, 1, 0, 0)); got != 3 {
		t.Fatalf("absences = %d, want 3", got)
	}
}

func TestMonthSummary(t *testing.T) {
	st := testStudent()
	e := newTestEngine(at(2024, time.March, 8, 18, 0))

	records := []AttendanceRecord{
		{StudentID: st.ID, Date: "2024-03-04", Status: "present"},
		{StudentID: st.ID, Date: "2024-03-05", Status: "late"},
		{StudentID: st.ID, Date: "2024-03-06", Status: "late"},
	}
	got := e.MonthSummary(st, records, nil, at(2024, time.March, 1, 0, 0))
	if got.Lates != 2 {
		t.Fatalf("lates = %d, want 2", got.Lates)
	}
	// Absent: Mar 1, 7, 8.
	if got.Absences != 3 {
		t.Fatalf("absences = %d, want 3", got.Absences)
	}
}

func TestRecordsByDate(t *testing.T) {
	records := []AttendanceRecord{
		{StudentID: "s", Date: "2024-03-04", Status: "present"},
		{StudentID: "s", Date: "2024-03-05", Status: "late"},
	}
	byDate := RecordsByDate(records)
	if len(byDate) != 2 {
		t.Fatalf("len = %d, want 2", len(byDate))
	}
	if byDate["2024-03-05"].Status != "late" {
		t.Fatalf("wrong record indexed for 2024-03-05")
	}
}
