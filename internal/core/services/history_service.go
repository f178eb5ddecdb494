package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/comitanigiacomo/glow-sync-engine/internal/core/domain"
)

// DateSource provides the current logical date.
type DateSource interface {
	CurrentDate() string
}

type HistoryService struct {
	reader      domain.ProgressReader
	dates       DateSource
	days        int
	concurrency int
	logger      *zap.Logger
}

func NewHistoryService(reader domain.ProgressReader, dates DateSource, days, concurrency int, logger *zap.Logger) *HistoryService {
	if days <= 0 {
		days = domain.HistoryDays
	}
	if concurrency <= 0 {
		concurrency = days
	}
	return &HistoryService{
		reader:      reader,
		dates:       dates,
		days:        days,
		concurrency: concurrency,
		logger:      logger,
	}
}

type HistoryInput struct {
	UserID      string
	AMStepCount int
	PMStepCount int
}

// HistoryReport bundles the dense series with its trend and streaks.
type HistoryReport struct {
	Days    domain.HistoricalProgressData `json:"days"`
	Trend   domain.ProgressTrend          `json:"trend"`
	Streaks domain.StreakSummary          `json:"streaks"`
}

// FetchHistoricalProgress reads the documents of the days strictly before today
// in parallel. Every day is present in the result; a missing document or a
// failed read yields a zero entry for that day only.
func (s *HistoryService) FetchHistoricalProgress(ctx context.Context, input HistoryInput) (domain.HistoricalProgressData, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, domain.ErrAuthRequired
	}

	dates, err := domain.TrailingDates(s.dates.CurrentDate(), s.days)
	if err != nil {
		return nil, err
	}

	data := make(domain.HistoricalProgressData, len(dates))
	var mu sync.Mutex
	failed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, date := range dates {
		date := date
		g.Go(func() error {
			entry := domain.ZeroDay(date)

			p, err := s.reader.Get(gctx, input.UserID, date)
			switch {
			case err == nil && p != nil:
				entry = domain.NewDayProgress(p, input.AMStepCount, input.PMStepCount)
				entry.Date = date
			case err != nil && !errors.Is(err, domain.ErrProgressNotFound):
				s.logger.Warn("historical read failed, using zero entry",
					zap.String("user_id", input.UserID),
					zap.String("date", date),
					zap.Error(err),
				)
				mu.Lock()
				failed++
				mu.Unlock()
			}

			mu.Lock()
			data[date] = entry
			mu.Unlock()
			// Per-day failures never abort the batch.
			return nil
		})
	}
	_ = g.Wait()

	if failed > 0 {
		s.logger.Info("historical progress degraded",
			zap.String("user_id", input.UserID),
			zap.Int("failed_days", failed),
		)
	}
	return data, nil
}

// Report fetches the series and derives its trend and streaks.
func (s *HistoryService) Report(ctx context.Context, input HistoryInput) (*HistoryReport, error) {
	data, err := s.FetchHistoricalProgress(ctx, input)
	if err != nil {
		return nil, err
	}
	return &HistoryReport{
		Days:    data,
		Trend:   domain.ComputeTrend(data),
		Streaks: domain.ComputeStreaks(data),
	}, nil
}
