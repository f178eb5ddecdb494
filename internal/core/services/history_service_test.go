package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/comitanigiacomo/glow-sync-engine/internal/core/domain"
	"github.com/comitanigiacomo/glow-sync-engine/internal/core/services"
)

func TestHistoryService_FetchHistoricalProgress(t *testing.T) {
	ctx := context.Background()
	today := fixedDate("2024-03-01")

	reader := new(MockProgressReader)
	reader.On("Get", mock.Anything, "u1", "2024-02-29").Return(&domain.DailyProgress{
		Date:    "2024-02-29",
		AMSteps: domain.StepFlags{"AM_1": true, "AM_2": true},
		PMSteps: domain.StepFlags{"PM_1": true},
	}, nil)
	reader.On("Get", mock.Anything, "u1", "2024-02-10").Return(nil, errors.New("deadline exceeded"))
	reader.On("Get", mock.Anything, "u1", mock.Anything).Return(nil, domain.ErrProgressNotFound)

	svc := services.NewHistoryService(reader, today, 30, 4, zap.NewNop())

	data, err := svc.FetchHistoricalProgress(ctx, services.HistoryInput{UserID: "u1", AMStepCount: 2, PMStepCount: 4})
	require.NoError(t, err)

	require.Len(t, data, 30)
	assert.NotContains(t, data, "2024-03-01", "today is excluded")
	assert.Contains(t, data, "2024-01-31")

	t.Run("Stored day is scored against the current routines", func(t *testing.T) {
		day := data["2024-02-29"]
		assert.Equal(t, 100, day.AMProgress)
		assert.Equal(t, 25, day.PMProgress)
		assert.Equal(t, 63, day.OverallProgress)
		assert.True(t, day.AMSteps["AM_2"])
	})

	t.Run("Failed read becomes a zero day", func(t *testing.T) {
		assert.Equal(t, domain.ZeroDay("2024-02-10"), data["2024-02-10"])
	})

	t.Run("Missing document becomes a zero day", func(t *testing.T) {
		assert.Equal(t, domain.ZeroDay("2024-02-01"), data["2024-02-01"])
	})

	reader.AssertNumberOfCalls(t, "Get", 30)
}

func TestHistoryService_Report(t *testing.T) {
	ctx := context.Background()

	reader := new(MockProgressReader)
	reader.On("Get", mock.Anything, "u1", "2024-06-14").Return(&domain.DailyProgress{
		Date:    "2024-06-14",
		AMSteps: domain.StepFlags{"AM_1": true},
		PMSteps: domain.StepFlags{},
	}, nil)
	reader.On("Get", mock.Anything, "u1", "2024-06-13").Return(&domain.DailyProgress{
		Date:    "2024-06-13",
		AMSteps: domain.StepFlags{"AM_1": true},
		PMSteps: domain.StepFlags{},
	}, nil)
	reader.On("Get", mock.Anything, "u1", mock.Anything).Return(nil, domain.ErrProgressNotFound)

	svc := services.NewHistoryService(reader, fixedDate("2024-06-15"), 0, 0, zap.NewNop())

	report, err := svc.Report(ctx, services.HistoryInput{UserID: "u1", AMStepCount: 1, PMStepCount: 1})
	require.NoError(t, err)

	assert.Len(t, report.Days, domain.HistoryDays)
	assert.Equal(t, 50, report.Days["2024-06-14"].OverallProgress)
	assert.Equal(t, 2, report.Streaks.Current)
	assert.Equal(t, 2, report.Streaks.Longest)
	assert.Equal(t, domain.TrendImproving, report.Trend.Trend)
}

func TestHistoryService_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("Signed out", func(t *testing.T) {
		reader := new(MockProgressReader)
		svc := services.NewHistoryService(reader, fixedDate("2024-06-15"), 30, 30, zap.NewNop())

		_, err := svc.FetchHistoricalProgress(ctx, services.HistoryInput{})

		assert.ErrorIs(t, err, domain.ErrAuthRequired)
		reader.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Unparseable current date", func(t *testing.T) {
		svc := services.NewHistoryService(new(MockProgressReader), fixedDate("June 15"), 30, 30, zap.NewNop())

		_, err := svc.FetchHistoricalProgress(ctx, services.HistoryInput{UserID: "u1"})

		assert.ErrorIs(t, err, domain.ErrInvalidDate)
	})

	t.Run("Cancelled context still yields every day", func(t *testing.T) {
		reader := new(MockProgressReader)
		reader.On("Get", mock.Anything, "u1", mock.Anything).Return(nil, context.Canceled)

		cctx, cancel := context.WithTimeout(ctx, time.Millisecond)
		defer cancel()

		svc := services.NewHistoryService(reader, fixedDate("2024-06-15"), 7, 2, zap.NewNop())
		data, err := svc.FetchHistoricalProgress(cctx, services.HistoryInput{UserID: "u1"})

		require.NoError(t, err)
		assert.Len(t, data, 7)
		for date, day := range data {
			assert.Equal(t, domain.ZeroDay(date), day)
		}
	})
}
