package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrRoutineInvalidUserID = errors.New("invalid user id")
	ErrStepNameEmpty        = errors.New("step name cannot be empty")
	ErrStepNameTooLong      = errors.New("step name is too long (max 100 chars)")
	ErrInvalidStepNumber    = errors.New("step number must be positive and unique")
	ErrInvalidWeekdays      = errors.New("invalid weekdays (must be 0-6)")
)

const MaxStepNameLen = 100

type RoutineStep struct {
	Step     int    `json:"step"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Weekdays []int  `json:"weekdays,omitempty"`
}

// AppliesOn reports whether the step is scheduled on the given weekday.
// Steps without a weekday list apply every day.
func (s RoutineStep) AppliesOn(day time.Weekday) bool {
	if len(s.Weekdays) == 0 {
		return true
	}
	for _, d := range s.Weekdays {
		if time.Weekday(d) == day {
			return true
		}
	}
	return false
}

type SkincareRoutine struct {
	UserID    string        `json:"user_id"`
	Period    Period        `json:"period"`
	Steps     []RoutineStep `json:"steps"`
	StepCount string        `json:"stepCount"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func NewSkincareRoutine(userID string, period Period, steps []RoutineStep) (*SkincareRoutine, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrRoutineInvalidUserID
	}
	if !period.Valid() {
		return nil, ErrInvalidPeriod
	}

	r := &SkincareRoutine{UserID: userID, Period: period}
	if err := r.SetSteps(steps); err != nil {
		return nil, err
	}
	return r, nil
}

// SetSteps replaces the step list and recomputes the derived step count label.
func (r *SkincareRoutine) SetSteps(steps []RoutineStep) error {
	normalized, err := normalizeSteps(steps)
	if err != nil {
		return err
	}
	r.Steps = normalized
	r.StepCount = StepCountLabel(len(normalized))
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *SkincareRoutine) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return ErrRoutineInvalidUserID
	}
	if !r.Period.Valid() {
		return ErrInvalidPeriod
	}
	_, err := normalizeSteps(r.Steps)
	return err
}

// Len is nil-safe so a missing routine counts as zero steps.
func (r *SkincareRoutine) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Steps)
}

// StepKeys lists the completion keys a DailyProgress document may hold for this routine.
func (r *SkincareRoutine) StepKeys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, len(r.Steps))
	for _, s := range r.Steps {
		keys = append(keys, StepKey(r.Period, s.Step))
	}
	return keys
}

// HasStep reports whether key is one of StepKeys. A nil routine has no steps.
func (r *SkincareRoutine) HasStep(key string) bool {
	for _, k := range r.StepKeys() {
		if k == key {
			return true
		}
	}
	return false
}

func (r *SkincareRoutine) Clone() *SkincareRoutine {
	if r == nil {
		return nil
	}
	c := *r
	c.Steps = make([]RoutineStep, len(r.Steps))
	for i, s := range r.Steps {
		s.Weekdays = append([]int(nil), s.Weekdays...)
		c.Steps[i] = s
	}
	return &c
}

func StepCountLabel(n int) string {
	if n == 1 {
		return "1 step"
	}
	return fmt.Sprintf("%d steps", n)
}

func normalizeSteps(steps []RoutineStep) ([]RoutineStep, error) {
	seen := make(map[int]bool, len(steps))
	out := make([]RoutineStep, 0, len(steps))

	for _, s := range steps {
		if s.Step <= 0 || seen[s.Step] {
			return nil, ErrInvalidStepNumber
		}
		seen[s.Step] = true

		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, ErrStepNameEmpty
		}
		if len(name) > MaxStepNameLen {
			return nil, ErrStepNameTooLong
		}

		days, err := normalizeWeekdays(s.Weekdays)
		if err != nil {
			return nil, err
		}

		out = append(out, RoutineStep{
			Step:     s.Step,
			Name:     name,
			Category: strings.TrimSpace(s.Category),
			Weekdays: days,
		})
	}
	return out, nil
}

func normalizeWeekdays(days []int) ([]int, error) {
	if len(days) == 0 {
		return nil, nil
	}
	unique := make(map[int]bool)
	var out []int
	for _, d := range days {
		if d < 0 || d > 6 {
			return nil, ErrInvalidWeekdays
		}
		if !unique[d] {
			unique[d] = true
			out = append(out, d)
		}
	}
	sort.Ints(out)
	return out, nil
}
