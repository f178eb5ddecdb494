package domain

// ProgressStats holds completion percentages in [0,100]. It is never persisted.
type ProgressStats struct {
	AM      int `json:"am"`
	PM      int `json:"pm"`
	Overall int `json:"overall"`
}

// ComputeStats derives the completion percentages of a day from its progress
// document and the step counts of the two routines. It is the single rule used
// for both the live day and the historical series.
func ComputeStats(progress *DailyProgress, amStepCount, pmStepCount int) ProgressStats {
	if progress == nil || (amStepCount <= 0 && pmStepCount <= 0) {
		return ProgressStats{}
	}

	am := percentage(progress.AMSteps.Completed(), amStepCount)
	pm := percentage(progress.PMSteps.Completed(), pmStepCount)

	stats := ProgressStats{AM: am, PM: pm}
	switch {
	case amStepCount > 0 && pmStepCount > 0:
		stats.Overall = roundHalfUp(am+pm, 2)
	case amStepCount > 0:
		stats.Overall = am
	default:
		stats.Overall = pm
	}
	return stats
}

func percentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	// Stale keys from an edited routine may outnumber the current steps.
	if completed > total {
		completed = total
	}
	return roundHalfUp(100*completed, total)
}

// roundHalfUp returns num/den rounded half-up using integer arithmetic.
func roundHalfUp(num, den int) int {
	return (2*num + den) / (2 * den)
}
