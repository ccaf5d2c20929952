// Package value computes the monetisation of donated volunteer labor.
// All functions are pure and deterministic; financial reports re-run them
// and must get identical numbers.
package value

import (
	"fmt"
	"math"
	"time"

	"engagement-workers/internal/models"
)

// InvalidRangeError is returned when a date range ends before it starts.
type InvalidRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid date range: end %s precedes start %s",
		e.End.Format(models.DateLayout), e.Start.Format(models.DateLayout))
}

// DurationDays returns the inclusive day count between two calendar dates.
// A single-day task (start == end) counts as one day. Time-of-day is ignored.
func DurationDays(start, end time.Time) (int, error) {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)

	if e.Before(s) {
		return 0, &InvalidRangeError{Start: s, End: e}
	}

	return int(e.Sub(s).Hours()/24) + 1, nil
}

// DurationDaysBetween parses two YYYY-MM-DD dates and returns the inclusive
// day count.
func DurationDaysBetween(startDate, endDate string) (int, error) {
	start, err := time.Parse(models.DateLayout, startDate)
	if err != nil {
		return 0, fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	end, err := time.Parse(models.DateLayout, endDate)
	if err != nil {
		return 0, fmt.Errorf("invalid end date %q: %w", endDate, err)
	}
	return DurationDays(start, end)
}

// EngagementValue estimates the monetary value of one volunteer's work on a
// task: wage rate x hours per day x duration, rounded to two decimals.
// A missing or non-positive wage rate values the engagement at zero.
func EngagementValue(wageRate *float64, hoursPerDay float64, durationDays int) float64 {
	if wageRate == nil || *wageRate <= 0 {
		return 0
	}
	raw := *wageRate * hoursPerDay * float64(durationDays)
	return math.Round(raw*100) / 100
}

// TaskValue is the estimated value one volunteer generates by completing the
// task, derived from the task's own wage rate, hours, and date range.
func TaskValue(task *models.Task) (float64, error) {
	days, err := DurationDaysBetween(task.StartDate, task.EndDate)
	if err != nil {
		return 0, err
	}
	return EngagementValue(task.WageRate, task.Hours, days), nil
}

// FormatCurrency renders a monetisation value for display.
func FormatCurrency(v float64) string {
	return fmt.Sprintf("₹%.2f", v)
}
