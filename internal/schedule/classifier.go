package schedule

import (
	"math"
	"time"
)

// Status is the attendance outcome of one event.
type Status string

const (
	StatusOnTime        Status = "on_time"
	StatusLate          Status = "late"
	StatusEarlyCheckout Status = "early_checkout"
	StatusOvertime      Status = "overtime"
	StatusAbsent        Status = "absent"
	StatusHoliday       Status = "holiday"
	StatusLeave         Status = "leave"
)

// Scoring constants. These were chosen empirically in production and are kept
// for score parity across recomputations; they are tunable, not protocol.
const (
	latePenaltyPerMinute  = 0.5
	latePenaltyCap        = 50.0
	earlyPenaltyPerMinute = 0.3
	earlyPenaltyCap       = 30.0
	overtimeBonusPerMin   = 0.2
	overtimeBonusCap      = 20.0
	penaltyScoreFloor     = 50.0
	maxScore              = 100.0
)

// Metrics is the computed outcome of classifying one attendance event. All
// minute counters are non-negative and Score is clamped to [0, 100].
type Metrics struct {
	Status               Status    `json:"status"`
	LateMinutes          int       `json:"late_minutes"`
	EarlyCheckoutMinutes int       `json:"early_checkout_minutes"`
	OvertimeMinutes      int       `json:"overtime_minutes"`
	WorkDurationMinutes  int       `json:"work_duration_minutes"`
	Score                float64   `json:"score"`
	Window               Window    `json:"window"`
	ComputedAt           time.Time `json:"computed_at"`
}

// Classify computes the attendance outcome for a check-in (and optional
// check-out) against the site's operational window. It is a pure function of
// its inputs: re-running it with the same site snapshot and instants yields
// identical metrics, which makes recomputation after a late check-out or a
// retroactive site change safe.
//
// Evaluation order is fixed and load-bearing for score parity:
// non-work-day first (it overrides every other signal), then lateness, then
// early checkout, then overtime. Overtime only upgrades the status when it is
// still on_time; a late employee who stays past the window keeps "late".
func Classify(site Site, checkIn time.Time, checkOut *time.Time, now time.Time) (Metrics, error) {
	if !site.IsWorkDay(checkIn) {
		return Metrics{Status: StatusHoliday, Score: 0, ComputedAt: now}, nil
	}

	window, err := ResolveWindow(site, checkIn)
	if err != nil {
		return Metrics{}, err
	}

	m := Metrics{
		Status:     StatusOnTime,
		Score:      maxScore,
		Window:     window,
		ComputedAt: now,
	}

	effectiveStart := window.Start.Add(time.Duration(site.GracePeriodMinutes) * time.Minute)
	if checkIn.After(effectiveStart) {
		m.LateMinutes = wholeMinutes(checkIn.Sub(effectiveStart))
		if m.LateMinutes > site.LateToleranceMinutes {
			m.Status = StatusLate
			over := float64(m.LateMinutes - site.LateToleranceMinutes)
			m.Score -= math.Min(over*latePenaltyPerMinute, latePenaltyCap)
			if m.Score < penaltyScoreFloor {
				m.Score = penaltyScoreFloor
			}
		}
	}

	if checkOut != nil {
		m.WorkDurationMinutes = wholeMinutes(checkOut.Sub(checkIn))

		if checkOut.Before(window.End) {
			m.EarlyCheckoutMinutes = wholeMinutes(window.End.Sub(*checkOut))
			if m.EarlyCheckoutMinutes > site.EarlyCheckoutToleranceMinutes {
				m.Status = StatusEarlyCheckout
				over := float64(m.EarlyCheckoutMinutes - site.EarlyCheckoutToleranceMinutes)
				m.Score -= math.Min(over*earlyPenaltyPerMinute, earlyPenaltyCap)
				if m.Score < penaltyScoreFloor {
					m.Score = penaltyScoreFloor
				}
			}
		} else if checkOut.After(window.End) {
			m.OvertimeMinutes = wholeMinutes(checkOut.Sub(window.End))
			if site.OvertimeThresholdMinutes > 0 && m.OvertimeMinutes >= site.OvertimeThresholdMinutes {
				if m.Status == StatusOnTime {
					m.Status = StatusOvertime
				}
				m.Score += math.Min(float64(m.OvertimeMinutes)*overtimeBonusPerMin, overtimeBonusCap)
			}
		}
	}

	if m.Score > maxScore {
		m.Score = maxScore
	}
	if m.Score < 0 {
		m.Score = 0
	}
	m.Score = math.Round(m.Score*100) / 100

	return m, nil
}

// wholeMinutes truncates a duration to whole minutes, clamping negatives to
// zero so counters stay non-negative.
func wholeMinutes(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}
