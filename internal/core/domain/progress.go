package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidPeriod = errors.New("invalid period (must be AM or PM)")
	ErrInvalidStep   = errors.New("invalid step id (must be {period}_{number})")
)

type Period string

const (
	PeriodAM Period = "AM"
	PeriodPM Period = "PM"
)

func ParsePeriod(s string) (Period, error) {
	switch Period(strings.ToUpper(strings.TrimSpace(s))) {
	case PeriodAM:
		return PeriodAM, nil
	case PeriodPM:
		return PeriodPM, nil
	}
	return "", ErrInvalidPeriod
}

func (p Period) Valid() bool {
	return p == PeriodAM || p == PeriodPM
}

// StepKey builds the opaque completion key of a step, e.g. "AM_3".
func StepKey(p Period, step int) string {
	return fmt.Sprintf("%s_%d", p, step)
}

// ParseStepKey splits a completion key into its period and step number.
func ParseStepKey(key string) (Period, int, error) {
	prefix, num, ok := strings.Cut(key, "_")
	if !ok {
		return "", 0, ErrInvalidStep
	}
	p := Period(prefix)
	if !p.Valid() {
		return "", 0, ErrInvalidStep
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return "", 0, ErrInvalidStep
	}
	return p, n, nil
}

// StepFlags maps a step key to its completion flag. A missing key means not completed.
type StepFlags map[string]bool

func (f StepFlags) Completed() int {
	n := 0
	for _, done := range f {
		if done {
			n++
		}
	}
	return n
}

func (f StepFlags) Clone() StepFlags {
	out := make(StepFlags, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

type DailyProgress struct {
	UserID    string    `json:"user_id,omitempty"`
	Date      string    `json:"date"`
	AMSteps   StepFlags `json:"amSteps"`
	PMSteps   StepFlags `json:"pmSteps"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EmptyProgress is the value delivered for a date whose document does not exist yet.
func EmptyProgress(date string) *DailyProgress {
	return &DailyProgress{
		Date:    date,
		AMSteps: StepFlags{},
		PMSteps: StepFlags{},
	}
}

func (p *DailyProgress) Steps(period Period) StepFlags {
	if period == PeriodPM {
		return p.PMSteps
	}
	return p.AMSteps
}

// Apply merges a single step flag into the document, leaving sibling keys untouched.
func (p *DailyProgress) Apply(period Period, stepID string, completed bool) {
	if p.AMSteps == nil {
		p.AMSteps = StepFlags{}
	}
	if p.PMSteps == nil {
		p.PMSteps = StepFlags{}
	}
	p.Steps(period)[stepID] = completed
}

func (p *DailyProgress) Clone() *DailyProgress {
	if p == nil {
		return nil
	}
	c := *p
	c.AMSteps = p.AMSteps.Clone()
	c.PMSteps = p.PMSteps.Clone()
	return &c
}

// StepToggle is a single field-path merge write on a DailyProgress document.
type StepToggle struct {
	UserID    string
	Date      string
	Period    Period
	StepID    string
	Completed bool
}

func (t StepToggle) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return ErrAuthRequired
	}
	if err := ValidateDate(t.Date); err != nil {
		return err
	}
	if !t.Period.Valid() {
		return ErrInvalidPeriod
	}
	p, _, err := ParseStepKey(t.StepID)
	if err != nil {
		return err
	}
	if p != t.Period {
		return fmt.Errorf("%w: %s does not belong to %s", ErrInvalidStep, t.StepID, t.Period)
	}
	return nil
}
