package schedule

import (
	"fmt"
	"time"
)

// Window is the concrete operational interval of a site for one calendar
// day, expressed as absolute instants in the site's timezone.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window, inclusive of both ends.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// ResolveWindow resolves the operational window the reference instant belongs
// to. The same function serves both the "is the site currently open" query
// (reference = now) and event classification (reference = check-in time).
//
// Overnight shifts are signalled by an end time of day that is numerically
// not after the start time of day; the end then rolls into the next calendar
// day. A reference before that day's start belongs to the previous day's
// window, so both ends shift back 24 hours.
func ResolveWindow(site Site, reference time.Time) (Window, error) {
	loc, err := time.LoadLocation(site.Timezone)
	if err != nil {
		return Window{}, fmt.Errorf("site %s: unknown timezone %q: %w", site.ID, site.Timezone, err)
	}

	startHour, startMin, err := parseTimeOfDay(site.OperationalStart)
	if err != nil {
		return Window{}, fmt.Errorf("site %s: %w", site.ID, err)
	}
	endHour, endMin, err := parseTimeOfDay(site.OperationalEnd)
	if err != nil {
		return Window{}, fmt.Errorf("site %s: %w", site.ID, err)
	}

	local := reference.In(loc)
	y, m, d := local.Date()
	start := time.Date(y, m, d, startHour, startMin, 0, 0, loc)
	end := time.Date(y, m, d, endHour, endMin, 0, 0, loc)

	if !end.After(start) {
		end = end.Add(24 * time.Hour)
		if local.Before(start) {
			start = start.Add(-24 * time.Hour)
			end = end.Add(-24 * time.Hour)
		}
	}

	return Window{Start: start, End: end}, nil
}

// NextOpenWindow returns the first window whose end is after the reference
// instant and whose start falls on a work day. It is used to tell a rejected
// submitter when the site opens again. The scan is bounded; a site with no
// work days inside two weeks yields an error rather than an infinite loop.
func NextOpenWindow(site Site, reference time.Time) (Window, error) {
	probe := reference
	for i := 0; i < 15; i++ {
		w, err := ResolveWindow(site, probe)
		if err != nil {
			return Window{}, err
		}
		if w.End.After(reference) && site.IsWorkDay(w.Start) {
			return w, nil
		}
		probe = probe.Add(24 * time.Hour)
	}
	return Window{}, fmt.Errorf("site %s: no open window within 14 days of %s", site.ID, reference.Format(time.RFC3339))
}
