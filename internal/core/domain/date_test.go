package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comitanigiacomo/glow-sync-engine/internal/core/domain"
)

func TestParseDate(t *testing.T) {
	rome := time.FixedZone("CET", 3600)

	d, err := domain.ParseDate("2024-03-31", rome)
	require.NoError(t, err)
	assert.Equal(t, rome, d.Location())
	assert.Equal(t, time.Sunday, d.Weekday())

	for _, s := range []string{"", "2024-3-31", "31-03-2024", "2024-02-30", "2024-03-31T00:00:00Z"} {
		_, err := domain.ParseDate(s, time.UTC)
		assert.ErrorIs(t, err, domain.ErrInvalidDate, "input %q", s)
	}
}

func TestFormatDate_UsesWallClock(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	// 2024-03-01 20:00 UTC is already the 2nd in Tokyo.
	instant := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, "2024-03-01", domain.FormatDate(instant))
	assert.Equal(t, "2024-03-02", domain.FormatDate(instant.In(tokyo)))
}

func TestTrailingDates(t *testing.T) {
	t.Run("Thirty days before today, oldest first", func(t *testing.T) {
		dates, err := domain.TrailingDates("2024-03-15", 30)
		require.NoError(t, err)

		require.Len(t, dates, 30)
		assert.Equal(t, "2024-02-14", dates[0])
		assert.Equal(t, "2024-03-14", dates[29])
		assert.NotContains(t, dates, "2024-03-15")
		// 2024 is a leap year.
		assert.Contains(t, dates, "2024-02-29")
	})

	t.Run("Across a DST change", func(t *testing.T) {
		dates, err := domain.TrailingDates("2024-04-01", 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-03-29", "2024-03-30", "2024-03-31"}, dates)
	})

	t.Run("Zero days", func(t *testing.T) {
		dates, err := domain.TrailingDates("2024-03-15", 0)
		require.NoError(t, err)
		assert.Empty(t, dates)
	})

	t.Run("Invalid today", func(t *testing.T) {
		_, err := domain.TrailingDates("today", 30)
		assert.ErrorIs(t, err, domain.ErrInvalidDate)
	})
}
