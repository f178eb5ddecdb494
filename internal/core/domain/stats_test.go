package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/comitanigiacomo/glow-sync-engine/internal/core/domain"
)

func flags(keys ...string) domain.StepFlags {
	f := domain.StepFlags{}
	for _, k := range keys {
		f[k] = true
	}
	return f
}

func TestComputeStats(t *testing.T) {
	tests := []struct {
		name     string
		progress *domain.DailyProgress
		am, pm   int
		want     domain.ProgressStats
	}{
		{
			name:     "Nil progress",
			progress: nil,
			am:       3,
			pm:       3,
			want:     domain.ProgressStats{},
		},
		{
			name:     "No routines",
			progress: &domain.DailyProgress{AMSteps: flags("AM_1")},
			am:       0,
			pm:       0,
			want:     domain.ProgressStats{},
		},
		{
			name: "Mixed example (40/25/33)",
			progress: &domain.DailyProgress{
				AMSteps: domain.StepFlags{"AM_1": true, "AM_2": true, "AM_3": false, "AM_4": false},
				PMSteps: flags("PM_1"),
			},
			am:       5,
			pm:       4,
			want:     domain.ProgressStats{AM: 40, PM: 25, Overall: 33},
		},
		{
			name:     "Half rounds up (1 of 3 and 2 of 3)",
			progress: &domain.DailyProgress{AMSteps: flags("AM_1"), PMSteps: flags("PM_1", "PM_2")},
			am:       3,
			pm:       3,
			// 33 and 67 average to 50
			want:     domain.ProgressStats{AM: 33, PM: 67, Overall: 50},
		},
		{
			name:     "Overall 33.5 rounds to 34",
			progress: &domain.DailyProgress{PMSteps: flags("PM_1", "PM_2")},
			am:       3,
			pm:       3,
			want:     domain.ProgressStats{AM: 0, PM: 67, Overall: 34},
		},
		{
			name:     "Only AM routine exists",
			progress: &domain.DailyProgress{AMSteps: flags("AM_1"), PMSteps: flags("PM_1")},
			am:       2,
			pm:       0,
			want:     domain.ProgressStats{AM: 50, PM: 0, Overall: 50},
		},
		{
			name:     "Only PM routine exists",
			progress: &domain.DailyProgress{PMSteps: flags("PM_1", "PM_2", "PM_3")},
			am:       0,
			pm:       4,
			want:     domain.ProgressStats{AM: 0, PM: 75, Overall: 75},
		},
		{
			name:     "Stale keys are clamped to the step count",
			progress: &domain.DailyProgress{AMSteps: flags("AM_1", "AM_2", "AM_3")},
			am:       2,
			pm:       2,
			want:     domain.ProgressStats{AM: 100, PM: 0, Overall: 50},
		},
		{
			name:     "Unchecked flags do not count",
			progress: &domain.DailyProgress{AMSteps: domain.StepFlags{"AM_1": false}},
			am:       1,
			pm:       1,
			want:     domain.ProgressStats{},
		},
		{
			name:     "Everything done",
			progress: &domain.DailyProgress{AMSteps: flags("AM_1"), PMSteps: flags("PM_1", "PM_2")},
			am:       1,
			pm:       2,
			want:     domain.ProgressStats{AM: 100, PM: 100, Overall: 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.ComputeStats(tt.progress, tt.am, tt.pm)
			assert.Equal(t, tt.want, got)

			assert.GreaterOrEqual(t, got.Overall, 0)
			assert.LessOrEqual(t, got.Overall, 100)
		})
	}
}

func TestComputeStats_OverallHalfUp(t *testing.T) {
	// 50 and 33 average to 41.5.
	p := &domain.DailyProgress{AMSteps: flags("AM_1"), PMSteps: flags("PM_1")}

	assert.Equal(t, 42, domain.ComputeStats(p, 2, 3).Overall)
}
