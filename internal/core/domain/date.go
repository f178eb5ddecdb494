package domain

import (
	"errors"
	"time"
)

// DateLayout is the canonical calendar date format used as document key.
const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid date (must be YYYY-MM-DD)")

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a canonical date string in loc. Non zero-padded input is rejected.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	if t.Format(DateLayout) != s {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

func ValidateDate(s string) error {
	_, err := ParseDate(s, time.UTC)
	return err
}

// TrailingDates returns the n calendar dates strictly before today, oldest first.
func TrailingDates(today string, n int) ([]string, error) {
	t, err := ParseDate(today, time.UTC)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return []string{}, nil
	}

	dates := make([]string, 0, n)
	for i := n; i >= 1; i-- {
		dates = append(dates, FormatDate(t.AddDate(0, 0, -i)))
	}
	return dates, nil
}
