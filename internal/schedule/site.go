// Package schedule models site operating windows and classifies attendance
// events against them.
package schedule

import (
	"fmt"
	"time"

	"github.com/attendix/attendix/internal/geo"
)

// Site is the resolved configuration snapshot of one outlet. The engine only
// ever receives a snapshot; it never reaches back into persistence.
type Site struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Center       geo.Coordinate `json:"center"`
	RadiusMeters int            `json:"radius_meters"`

	// Timezone is an IANA zone name, e.g. "Asia/Jakarta".
	Timezone string `json:"timezone"`

	// OperationalStart and OperationalEnd are site-local times of day in
	// "15:04" form. End may be numerically before Start; that marks an
	// overnight window and is never a configuration error.
	OperationalStart string `json:"operational_start"`
	OperationalEnd   string `json:"operational_end"`

	// WorkDays lists weekdays the site operates, 1=Monday .. 7=Sunday.
	// Empty means every day is a work day.
	WorkDays []int `json:"work_days,omitempty"`

	GracePeriodMinutes            int `json:"grace_period_minutes"`
	LateToleranceMinutes          int `json:"late_tolerance_minutes"`
	EarlyCheckoutToleranceMinutes int `json:"early_checkout_tolerance_minutes"`
	OvertimeThresholdMinutes      int `json:"overtime_threshold_minutes"`

	OvertimePolicy OvertimePolicy `json:"overtime_policy"`
}

// Validate reports whether the snapshot carries the fields the engine cannot
// work without. It is called at the orchestration boundary, never inside the
// pure classification math.
func (s Site) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("site snapshot missing id")
	}
	if s.Timezone == "" {
		return fmt.Errorf("site %s missing timezone", s.ID)
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("site %s has unknown timezone %q: %w", s.ID, s.Timezone, err)
	}
	if _, _, err := parseTimeOfDay(s.OperationalStart); err != nil {
		return fmt.Errorf("site %s operational_start: %w", s.ID, err)
	}
	if _, _, err := parseTimeOfDay(s.OperationalEnd); err != nil {
		return fmt.Errorf("site %s operational_end: %w", s.ID, err)
	}
	if s.RadiusMeters <= 0 {
		return fmt.Errorf("site %s has non-positive radius %d", s.ID, s.RadiusMeters)
	}
	for _, d := range s.WorkDays {
		if d < 1 || d > 7 {
			return fmt.Errorf("site %s has work day %d outside 1..7", s.ID, d)
		}
	}
	return nil
}

// IsWorkDay reports whether t (interpreted in the site's timezone) falls on a
// configured work day. An empty WorkDays set means every day.
func (s Site) IsWorkDay(t time.Time) bool {
	if len(s.WorkDays) == 0 {
		return true
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		loc = time.UTC
	}
	day := isoWeekday(t.In(loc).Weekday())
	for _, d := range s.WorkDays {
		if d == day {
			return true
		}
	}
	return false
}

// isoWeekday maps Go's Sunday-first weekday to ISO numbering, 1=Monday.
func isoWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

func parseTimeOfDay(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("time of day %q is not HH:MM: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}
