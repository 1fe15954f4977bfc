package engine

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Point weights per bucket. PointsAbsent deliberately outweighs the best
// positive outcome; see the percentage scaling below.
const (
	PointsEarly      = 3
	PointsOnTime     = 2
	PointsLate       = 1
	PointsLateOver30 = 0
	PointsPermission = -1
	PointsAbsent     = -5

	onTimeSlackMinutes = 15
	lateBucketMinutes  = 30
)

// ScoreBreakdown counts countable days per bucket.
type ScoreBreakdown struct {
	Early      int `json:"early"`
	OnTime     int `json:"on_time"`
	Late       int `json:"late"`
	LateOver30 int `json:"late_over_30"`
	Permission int `json:"permission"`
	Absent     int `json:"absent"`
}

// AttendanceScore is the scored summary of one student over a date range.
type AttendanceScore struct {
	StudentID         string         `json:"student_id"`
	FullName          string         `json:"full_name"`
	Breakdown         ScoreBreakdown `json:"breakdown"`
	CountableDays     int            `json:"countable_days"`
	TotalScore        int            `json:"total_score"`
	AverageScore      float64        `json:"average_score"`
	AveragePercentage float64        `json:"average_percentage"`
	// AvgArrivalMinutes is the mean clock-in delta against shift start;
	// negative is early. Nil when no record carried both time fields.
	AvgArrivalMinutes *float64 `json:"avg_arrival_minutes,omitempty"`
	AvgArrivalDisplay string   `json:"avg_arrival_display"`
	Rank              int      `json:"rank,omitempty"`
}

// AttendanceScore scores a student over [start, end] inclusive. No School
// and Not Yet Enrolled days never enter any denominator; days without a
// settled verdict (future, pending window, unknown tag, missing config)
// are likewise uncountable.
func (e *Engine) AttendanceScore(st Student, records map[string]*AttendanceRecord, perms []PermissionRecord, start, end time.Time) AttendanceScore {
	score := AttendanceScore{StudentID: st.ID, FullName: st.FullName}

	var arrivalSum, arrivalN int
	for day := e.midnight(start); !day.After(e.midnight(end)); day = day.AddDate(0, 0, 1) {
		rec := records[e.DateKey(day)]
		verdict := e.ResolveDailyStatus(st, day, rec, perms)

		delta, hasDelta := e.arrivalDelta(st, rec)
		if hasDelta && (verdict.Status == StatusPresent || verdict.Status == StatusLate) {
			arrivalSum += delta
			arrivalN++
		}

		switch verdict.Status {
		case StatusPresent:
			switch {
			case hasDelta && delta < 0:
				score.Breakdown.Early++
				score.TotalScore += PointsEarly
			case hasDelta && delta > onTimeSlackMinutes:
				score.Breakdown.Late++
				score.TotalScore += PointsLate
			default:
				// Missing time data defaults to on-time.
				score.Breakdown.OnTime++
				score.TotalScore += PointsOnTime
			}
		case StatusLate:
			if hasDelta && delta > lateBucketMinutes {
				score.Breakdown.LateOver30++
				score.TotalScore += PointsLateOver30
			} else {
				score.Breakdown.Late++
				score.TotalScore += PointsLate
			}
		case StatusPermission:
			score.Breakdown.Permission++
			score.TotalScore += PointsPermission
		case StatusAbsent:
			score.Breakdown.Absent++
			score.TotalScore += PointsAbsent
		default:
			// No School, Not Yet Enrolled, Pending, Unknown, Config
			// Missing, future: not countable.
			continue
		}
		score.CountableDays++
	}

	if score.CountableDays > 0 {
		score.AverageScore = float64(score.TotalScore) / float64(score.CountableDays)
	}
	score.AveragePercentage = scalePercentage(score.AverageScore)

	if arrivalN > 0 {
		avg := float64(arrivalSum) / float64(arrivalN)
		score.AvgArrivalMinutes = &avg
	}
	score.AvgArrivalDisplay = formatArrival(score.AvgArrivalMinutes)
	return score
}

// arrivalDelta computes clock-in minus shift start in minutes. The shift
// start snapshot on the record wins over current config so historical
// scores survive config edits.
func (e *Engine) arrivalDelta(st Student, rec *AttendanceRecord) (int, bool) {
	if rec == nil || rec.TimeIn == nil {
		return 0, false
	}
	start := rec.ShiftStart
	if start == nil {
		if s, ok := e.ShiftStart(st.Class, st.Shift); ok {
			start = &s
		}
	}
	if start == nil {
		return 0, false
	}
	return rec.TimeIn.Minutes() - start.Minutes(), true
}

// scalePercentage maps the per-day average onto a percentage. Positive
// averages scale against the best outcome (+3 -> 100%). Negative results
// are additionally compressed by 3/5 so the worst outcome (-5) lands at
// exactly -100% instead of -167%. The compression is a business-rule
// constant; do not derive or "simplify" it.
func scalePercentage(avg float64) float64 {
	pct := avg / float64(PointsEarly) * 100
	if pct < 0 {
		pct *= float64(PointsEarly) / float64(-PointsAbsent)
	}
	return pct
}

// formatArrival renders the mean arrival delta for display.
func formatArrival(avg *float64) string {
	if avg == nil {
		return "N/A"
	}
	mins := int(math.Round(math.Abs(*avg)))
	if mins == 0 {
		return "On time"
	}
	direction := "late"
	if *avg < 0 {
		direction = "early"
	}
	if h := mins / 60; h > 0 {
		return fmt.Sprintf("%dh %dm %s", h, mins%60, direction)
	}
	return fmt.Sprintf("%dm %s", mins, direction)
}

// RankScores orders scores best-first and assigns dense 1-based ranks.
// Higher total wins; ties go to the earlier average arrival. A score with
// no arrival data sorts after one with data at the same total.
func RankScores(scores []AttendanceScore) []AttendanceScore {
	ranked := make([]AttendanceScore, len(scores))
	copy(ranked, scores)

	arrival := func(s AttendanceScore) float64 {
		if s.AvgArrivalMinutes == nil {
			return math.Inf(1)
		}
		return *s.AvgArrivalMinutes
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].TotalScore != ranked[j].TotalScore {
			return ranked[i].TotalScore > ranked[j].TotalScore
		}
		return arrival(ranked[i]) < arrival(ranked[j])
	})

	rank := 0
	for i := range ranked {
		if i == 0 || ranked[i].TotalScore != ranked[i-1].TotalScore || arrival(ranked[i]) != arrival(ranked[i-1]) {
			rank++
		}
		ranked[i].Rank = rank
	}
	return ranked
}
