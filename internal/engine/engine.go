package engine

import "time"

// phnomPenh is the civil calendar all date arithmetic anchors to. Mixing
// local-time and UTC date construction is a known off-by-one-day source,
// so every derived date key goes through this one location.
var phnomPenh = time.FixedZone("ICT", 7*60*60)

const (
	// DefaultLateWindowMinutes is the grace window after shift start during
	// which today is still Pending rather than Absent.
	DefaultLateWindowMinutes = 15

	// DefaultStreakLookbackDays bounds the consecutive-absence walk.
	DefaultStreakLookbackDays = 14

	dateKeyLayout = "2006-01-02"
)

// Engine resolves daily attendance statuses and folds them into streaks,
// monthly counts and scores. It performs no I/O: class configs and the
// holiday set are materialized up front, records and permissions arrive
// per call. The only impure input is the injected clock, used solely to
// decide whether "today" is still in progress.
type Engine struct {
	configs      ClassConfigs
	holidays     HolidaySet
	loc          *time.Location
	now          func() time.Time
	lateWindow   int // minutes
	lookbackDays int
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock injects a time source. Fixed clocks make every path
// deterministic in tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation overrides the civil calendar location.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.loc = loc }
}

// WithLateWindow overrides the grace window in minutes.
func WithLateWindow(minutes int) Option {
	return func(e *Engine) { e.lateWindow = minutes }
}

// WithStreakLookback overrides how many days the absence-streak walk covers.
func WithStreakLookback(days int) Option {
	return func(e *Engine) { e.lookbackDays = days }
}

// New builds an Engine over a frozen snapshot of configs and holidays.
// Callers own snapshot consistency; the engine never reloads.
func New(configs ClassConfigs, holidays HolidaySet, opts ...Option) *Engine {
	e := &Engine{
		configs:      configs,
		holidays:     holidays,
		loc:          phnomPenh,
		now:          time.Now,
		lateWindow:   DefaultLateWindowMinutes,
		lookbackDays: DefaultStreakLookbackDays,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.configs == nil {
		e.configs = ClassConfigs{}
	}
	if e.holidays == nil {
		e.holidays = HolidaySet{}
	}
	return e
}

// DateKey formats an instant as the canonical "YYYY-MM-DD" key in the
// engine's calendar.
func (e *Engine) DateKey(t time.Time) string {
	return t.In(e.loc).Format(dateKeyLayout)
}

// ParseDateKey turns a "YYYY-MM-DD" key into midnight in the engine's
// calendar.
func (e *Engine) ParseDateKey(key string) (time.Time, error) {
	return time.ParseInLocation(dateKeyLayout, key, e.loc)
}

// midnight truncates an instant to the start of its civil day.
func (e *Engine) midnight(t time.Time) time.Time {
	t = t.In(e.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, e.loc)
}

// Today returns the start of the current civil day.
func (e *Engine) Today() time.Time {
	return e.midnight(e.now())
}

// Location exposes the engine's civil calendar location.
func (e *Engine) Location() *time.Location { return e.loc }

// LateWindowMinutes exposes the configured grace window.
func (e *Engine) LateWindowMinutes() int { return e.lateWindow }

func (e *Engine) studyDays(class string) []time.Weekday {
	cfg, ok := e.configs[class]
	if !ok {
		return nil
	}
	return cfg.StudyDays
}

// ShiftStart looks up the configured start time for a class shift. The
// second return distinguishes "config missing" from a midnight start.
func (e *Engine) ShiftStart(class, shift string) (TimeOfDay, bool) {
	cfg, ok := e.configs[class]
	if !ok {
		return 0, false
	}
	sh, ok := cfg.Shifts[shift]
	if !ok {
		return 0, false
	}
	return sh.Start, true
}
