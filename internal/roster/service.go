package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"schoolops/internal/engine"
)

// Service glues repository snapshots to engine calls. Each aggregation
// pass works on one frozen view of records and permissions, fetched up
// front; the engine itself never touches the live store.
type Service struct {
	repo  *Repository
	cache *redis.Client
	log   *logrus.Logger

	mu  sync.RWMutex
	eng *engine.Engine

	engineOpts []engine.Option
	cacheTTL   time.Duration
}

// NewService loads class configs and the holiday set once and builds the
// engine over them. Call Reload to pick up config edits.
func NewService(ctx context.Context, repo *Repository, cache *redis.Client, log *logrus.Logger, opts ...engine.Option) (*Service, error) {
	s := &Service{
		repo:       repo,
		cache:      cache,
		log:        log,
		engineOpts: opts,
		cacheTTL:   24 * time.Hour,
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload snapshots configs and holidays and swaps in a fresh engine.
func (s *Service) Reload(ctx context.Context) error {
	configs, err := s.repo.ClassConfigs(ctx)
	if err != nil {
		return fmt.Errorf("load class configs: %w", err)
	}
	holidays, err := s.repo.Holidays(ctx)
	if err != nil {
		return fmt.Errorf("load holidays: %w", err)
	}
	for key, cfg := range configs {
		if len(cfg.StudyDays) == 0 {
			// The engine treats this as "never a school day"; that is
			// historical behavior, but an operator should know.
			s.log.WithField("class", key).Warn("class has no study days configured")
		}
	}

	s.mu.Lock()
	s.eng = engine.New(configs, holidays, s.engineOpts...)
	s.mu.Unlock()
	return nil
}

// Engine returns the current engine snapshot.
func (s *Service) Engine() *engine.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eng
}

// CheckIn records today's attendance for a student. The status tag is
// derived from the configured shift start and the grace window: arrivals
// inside the window are present, after it late. At most one record per
// (student, date) — a duplicate check-in returns the existing record.
func (s *Service) CheckIn(ctx context.Context, studentID string, at time.Time) (engine.AttendanceRecord, bool, error) {
	eng := s.Engine()
	st, err := s.repo.GetStudent(ctx, studentID)
	if err != nil {
		return engine.AttendanceRecord{}, false, err
	}

	start, ok := eng.ShiftStart(st.Class, st.Shift)
	if !ok {
		return engine.AttendanceRecord{}, false, fmt.Errorf("no shift config for class %s shift %s", st.Class, st.Shift)
	}

	timeIn := engine.TimeOfDayAt(at.In(eng.Location()))
	status := "present"
	if timeIn > start.Add(eng.LateWindowMinutes()) {
		status = "late"
	}

	rec := engine.AttendanceRecord{
		StudentID:  studentID,
		Date:       eng.DateKey(at),
		Status:     status,
		TimeIn:     &timeIn,
		ShiftStart: &start,
		Timestamp:  &at,
	}
	return s.repo.InsertAttendance(ctx, rec)
}

// DailyStatus resolves one student's status for a date key.
func (s *Service) DailyStatus(ctx context.Context, studentID, dateKey string) (engine.DailyResult, error) {
	eng := s.Engine()
	st, err := s.repo.GetStudent(ctx, studentID)
	if err != nil {
		return engine.DailyResult{}, err
	}
	date, err := eng.ParseDateKey(dateKey)
	if err != nil {
		return engine.DailyResult{}, fmt.Errorf("bad date %q: %w", dateKey, err)
	}
	rec, err := s.repo.AttendanceForDate(ctx, studentID, dateKey)
	if err != nil {
		return engine.DailyResult{}, err
	}
	perms, err := s.repo.ApprovedPermissions(ctx, []string{studentID})
	if err != nil {
		return engine.DailyResult{}, err
	}
	return eng.ResolveDailyStatus(st, date, rec, perms), nil
}

// Streak computes the student's current consecutive-absence streak.
func (s *Service) Streak(ctx context.Context, studentID string) (engine.StreakResult, error) {
	eng := s.Engine()
	st, err := s.repo.GetStudent(ctx, studentID)
	if err != nil {
		return engine.StreakResult{}, err
	}
	today := eng.Today()
	from := eng.DateKey(today.AddDate(0, 0, -engine.DefaultStreakLookbackDays))
	records, err := s.repo.AttendanceBetween(ctx, studentID, from, eng.DateKey(today))
	if err != nil {
		return engine.StreakResult{}, err
	}
	perms, err := s.repo.ApprovedPermissions(ctx, []string{studentID})
	if err != nil {
		return engine.StreakResult{}, err
	}
	return eng.ConsecutiveAbsences(st, engine.RecordsByDate(records), perms), nil
}

// MonthSummary folds one student's lates and absences for a month given
// as "YYYY-MM".
func (s *Service) MonthSummary(ctx context.Context, studentID, monthKey string) (engine.MonthlySummary, error) {
	eng := s.Engine()
	st, err := s.repo.GetStudent(ctx, studentID)
	if err != nil {
		return engine.MonthlySummary{}, err
	}
	month, err := eng.ParseDateKey(monthKey + "-01")
	if err != nil {
		return engine.MonthlySummary{}, fmt.Errorf("bad month %q: %w", monthKey, err)
	}
	from := eng.DateKey(month)
	to := eng.DateKey(month.AddDate(0, 1, -1))
	records, err := s.repo.AttendanceBetween(ctx, studentID, from, to)
	if err != nil {
		return engine.MonthlySummary{}, err
	}
	perms, err := s.repo.ApprovedPermissions(ctx, []string{studentID})
	if err != nil {
		return engine.MonthlySummary{}, err
	}
	return eng.MonthSummary(st, records, perms, month), nil
}

// Scoreboard ranks a class over [startKey, endKey]. Ranges that end
// strictly before today are pure and cached in Redis; anything touching
// today is recomputed every call because the grace window is a moving
// target.
func (s *Service) Scoreboard(ctx context.Context, classKey, startKey, endKey string) ([]engine.AttendanceScore, error) {
	eng := s.Engine()
	start, err := eng.ParseDateKey(startKey)
	if err != nil {
		return nil, fmt.Errorf("bad start %q: %w", startKey, err)
	}
	end, err := eng.ParseDateKey(endKey)
	if err != nil {
		return nil, fmt.Errorf("bad end %q: %w", endKey, err)
	}
	if end.Before(start) {
		return nil, errors.New("end before start")
	}

	cacheable := s.cache != nil && endKey < eng.DateKey(eng.Today())
	cacheKey := fmt.Sprintf("scoreboard:%s:%s:%s", classKey, startKey, endKey)
	if cacheable {
		if cached, err := s.cache.Get(ctx, cacheKey).Bytes(); err == nil {
			var scores []engine.AttendanceScore
			if err := json.Unmarshal(cached, &scores); err == nil {
				return scores, nil
			}
		}
	}

	students, err := s.repo.ListStudents(ctx, classKey)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(students))
	for i, st := range students {
		ids[i] = st.ID
	}
	perms, err := s.repo.ApprovedPermissions(ctx, ids)
	if err != nil {
		return nil, err
	}

	scores := make([]engine.AttendanceScore, 0, len(students))
	for _, st := range students {
		records, err := s.repo.AttendanceBetween(ctx, st.ID, startKey, endKey)
		if err != nil {
			return nil, err
		}
		scores = append(scores, eng.AttendanceScore(st, engine.RecordsByDate(records), perms, start, end))
	}
	ranked := engine.RankScores(scores)

	if cacheable {
		if payload, err := json.Marshal(ranked); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.log.WithError(err).Warn("scoreboard cache write failed")
			}
		}
	}
	return ranked, nil
}

// FilePermission records a new leave request.
func (s *Service) FilePermission(ctx context.Context, studentID, startKey, endKey string) (engine.PermissionRecord, error) {
	eng := s.Engine()
	if _, err := eng.ParseDateKey(startKey); err != nil {
		return engine.PermissionRecord{}, fmt.Errorf("bad start %q: %w", startKey, err)
	}
	if _, err := eng.ParseDateKey(endKey); err != nil {
		return engine.PermissionRecord{}, fmt.Errorf("bad end %q: %w", endKey, err)
	}
	if endKey < startKey {
		return engine.PermissionRecord{}, errors.New("end before start")
	}
	if _, err := s.repo.GetStudent(ctx, studentID); err != nil {
		return engine.PermissionRecord{}, err
	}
	return s.repo.InsertPermission(ctx, engine.PermissionRecord{
		StudentID: studentID,
		StartDate: startKey,
		EndDate:   endKey,
		Status:    "pending",
	})
}

// ReviewPermission approves or rejects a pending request.
func (s *Service) ReviewPermission(ctx context.Context, id, status string) error {
	if status != "approved" && status != "rejected" {
		return fmt.Errorf("bad review status %q", status)
	}
	return s.repo.SetPermissionStatus(ctx, id, status)
}

// Permissions lists a student's permission records.
func (s *Service) Permissions(ctx context.Context, studentID string) ([]engine.PermissionRecord, error) {
	return s.repo.PermissionsByStudent(ctx, studentID, "")
}
