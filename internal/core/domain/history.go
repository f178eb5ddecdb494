package domain

import (
	"sort"
	"time"
)

const (
	HistoryDays    = 30
	TrendWindow    = 7
	TrendThreshold = 5.0
)

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// DayProgress is one entry of the historical series.
type DayProgress struct {
	Date            string    `json:"date"`
	AMProgress      int       `json:"amProgress"`
	PMProgress      int       `json:"pmProgress"`
	OverallProgress int       `json:"overallProgress"`
	AMSteps         StepFlags `json:"amSteps"`
	PMSteps         StepFlags `json:"pmSteps"`
}

// ZeroDay is the entry used for a date without a document or whose read failed.
func ZeroDay(date string) DayProgress {
	return DayProgress{Date: date, AMSteps: StepFlags{}, PMSteps: StepFlags{}}
}

// NewDayProgress reduces a progress document through ComputeStats.
func NewDayProgress(p *DailyProgress, amStepCount, pmStepCount int) DayProgress {
	stats := ComputeStats(p, amStepCount, pmStepCount)
	return DayProgress{
		Date:            p.Date,
		AMProgress:      stats.AM,
		PMProgress:      stats.PM,
		OverallProgress: stats.Overall,
		AMSteps:         p.AMSteps.Clone(),
		PMSteps:         p.PMSteps.Clone(),
	}
}

// HistoricalProgressData maps a date string to the progress of that day.
type HistoricalProgressData map[string]DayProgress

// SortedDates returns the keys in chronological order.
func (h HistoricalProgressData) SortedDates() []string {
	dates := make([]string, 0, len(h))
	for d := range h {
		dates = append(dates, d)
	}
	// YYYY-MM-DD sorts lexically in calendar order.
	sort.Strings(dates)
	return dates
}

type ProgressTrend struct {
	Trend           Trend   `json:"trend"`
	AverageProgress float64 `json:"averageProgress"`
	RecentAverage   float64 `json:"recentAverage"`
	OlderAverage    float64 `json:"olderAverage"`
}

// ComputeTrend classifies the series by comparing the latest seven days with
// the seven before them, using a fixed band of TrendThreshold points.
func ComputeTrend(data HistoricalProgressData) ProgressTrend {
	if len(data) < TrendWindow {
		return ProgressTrend{Trend: TrendStable}
	}

	dates := data.SortedDates()
	values := make([]int, len(dates))
	for i, d := range dates {
		values[i] = data[d].OverallProgress
	}

	n := len(values)
	recent := mean(values[n-TrendWindow:])
	older := recent
	if n-TrendWindow >= TrendWindow {
		older = mean(values[n-2*TrendWindow : n-TrendWindow])
	}

	trend := TrendStable
	if recent > older+TrendThreshold {
		trend = TrendImproving
	} else if recent < older-TrendThreshold {
		trend = TrendDeclining
	}

	return ProgressTrend{
		Trend:           trend,
		AverageProgress: mean(values),
		RecentAverage:   recent,
		OlderAverage:    older,
	}
}

func mean(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

type StreakSummary struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// ComputeStreaks counts consecutive days with any completion. The current
// streak runs backwards from the most recent date in the series.
func ComputeStreaks(data HistoricalProgressData) StreakSummary {
	dates := data.SortedDates()
	if len(dates) == 0 {
		return StreakSummary{}
	}

	var summary StreakSummary
	run := 0
	var prev time.Time

	for _, d := range dates {
		day, err := ParseDate(d, time.UTC)
		if err != nil {
			continue
		}
		active := data[d].OverallProgress > 0
		contiguous := !prev.IsZero() && day.Sub(prev) == 24*time.Hour
		prev = day

		switch {
		case !active:
			run = 0
		case contiguous:
			run++
		default:
			run = 1
		}
		if run > summary.Longest {
			summary.Longest = run
		}
	}

	summary.Current = run
	return summary
}
