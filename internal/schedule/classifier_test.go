package schedule

import (
	"testing"
	"time"
)

func classifierSite() Site {
	return Site{
		ID:                            "site-1",
		Timezone:                      "Asia/Jakarta",
		OperationalStart:              "09:00",
		OperationalEnd:                "18:00",
		RadiusMeters:                  50,
		GracePeriodMinutes:            5,
		LateToleranceMinutes:          15,
		EarlyCheckoutToleranceMinutes: 15,
		OvertimeThresholdMinutes:      30,
		OvertimePolicy:                DefaultOvertimePolicy(),
	}
}

func TestClassify_OnTime(t *testing.T) {
	loc := jakarta(t)
	checkIn := time.Date(2025, 3, 10, 9, 2, 0, 0, loc)
	checkOut := time.Date(2025, 3, 10, 18, 0, 0, 0, loc)

	m, err := Classify(classifierSite(), checkIn, &checkOut, checkOut)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if m.Status != StatusOnTime {
		t.Errorf("status = %s, want on_time", m.Status)
	}
	if m.Score != 100 {
		t.Errorf("score = %.2f, want 100", m.Score)
	}
	if m.LateMinutes != 0 {
		t.Errorf("late minutes = %d, want 0", m.LateMinutes)
	}
	if m.WorkDurationMinutes != 538 {
		t.Errorf("work duration = %d, want 538", m.WorkDurationMinutes)
	}
}

func TestClassify_LateSeventeenMinutes(t *testing.T) {
	// Start 09:00, grace 5, tolerance 15; check-in 09:22 is 17 minutes past
	// the effective start, two past tolerance: penalty (17-15)*0.5 = 1.0.
	loc := jakarta(t)
	checkIn := time.Date(2025, 3, 10, 9, 22, 0, 0, loc)

	m, err := Classify(classifierSite(), checkIn, nil, checkIn)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if m.Status != StatusLate {
		t.Errorf("status = %s, want late", m.Status)
	}
	if m.LateMinutes != 17 {
		t.Errorf("late minutes = %d, want 17", m.LateMinutes)
	}
	if m.Score != 99.0 {
		t.Errorf("score = %.2f, want 99.0", m.Score)
	}
}

func TestClassify_LateWithinTolerance(t *testing.T) {
	loc := jakarta(t)
	// 09:15 is 10 minutes past effective start but inside the 15 minute
	// tolerance: minutes recorded, status and score untouched.
	checkIn := time.Date(2025, 3, 10, 9, 15, 0, 0, loc)

	m, err := Classify(classifierSite(), checkIn, nil, checkIn)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if m.Status != StatusOnTime {
		t.Errorf("status = %s, want on_time", m.Status)
	}
	if m.LateMinutes != 10 {
		t.Errorf("late minutes = %d, want 10", m.LateMinutes)
	}
	if m.Score != 100 {
		t.Errorf("score = %.2f, want 100", m.Score)
	}
}

func TestClassify_LatePenaltyFloor(t *testing.T) {
	loc := jakarta(t)
	// Four hours late: penalty capped at 50, score floored at 50.
	checkIn := time.Date(2025, 3, 10, 13, 5, 0, 0, loc)

	m, err := Classify(classifierSite(), checkIn, nil, checkIn)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if m.Score != 50 {
		t.Errorf("score = %.2f, want floor of 50", m.Score)
	}
}

func TestClassify_EarlyCheckout(t *testing.T) {
	loc := jakarta(t)
	checkIn := time.Date(2025, 3, 10, 9, 0, 0, 0, loc)
	// Leaving at 16:00 is 120 minutes early, 105 past tolerance:
	// penalty min(105*0.3, 30) = 30.
	checkOut := time.Date(2025, 3, 10, 16, 0, 0, 0, loc)

	m, err := Classify(classifierSite(), checkIn, &checkOut, checkOut)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if m.Status != StatusEarlyCheckout {
		t.Errorf("status = %s, want early_checkout", m.Status)
	}
	if m.EarlyCheckoutMinutes != 120 {
		t.Errorf("early checkout minutes = %d, want 120", m.EarlyCheckoutMinutes)
	}
	if m.Score != 70 {
		t.Errorf("score = %.2f, want 70", m.Score)
	}
}

func TestClassify_Overtime(t *testing.T) {
	loc := jakarta(t)
	checkIn := time.Date(2025, 3, 10, 9, 0, 0, 0, loc)
	// 60 minutes past the window end, above the 30 minute threshold:
	// bonus min(60*0.2, 20) = 12, but score is already 100 so it clamps.
	checkOut := time.Date(2025, 3, 10, 19, 0, 0, 0, loc)

	m, err := Classify(classifierSite(), checkIn, &checkOut, checkOut)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if m.Status != StatusOvertime {
		t.Errorf("status = %s, want overtime", m.Status)
	}
	if m.OvertimeMinutes != 60 {
		t.Errorf("overtime minutes = %d, want 60", m.OvertimeMinutes)
	}
	if m.Score != 100 {
		t.Errorf("score = %.2f, want clamped 100", m.Score)
	}
}

func TestClassify_LateKeepsStatusOverOvertime(t *testing.T) {
	loc := jakarta(t)
	// Late past tolerance AND working past the window end: status stays
	// late, but the overtime bonus still applies to the score.
	checkIn := time.Date(2025, 3, 10, 10, 0, 0, 0, loc)
	checkOut := time.Date(2025, 3, 10, 19, 0, 0, 0, loc)

	m, err := Classify(classifierSite(), checkIn, &checkOut, checkOut)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if m.Status != StatusLate {
		t.Errorf("status = %s, want late (overtime only upgrades on_time)", m.Status)
	}
	if m.OvertimeMinutes != 60 {
		t.Errorf("overtime minutes = %d, want 60", m.OvertimeMinutes)
	}
	// Check-in 10:00 is 55 past effective start, 40 past tolerance:
	// penalty min(40*0.5, 50) = 20 -> 80; overtime bonus min(60*0.2, 20)=12.
	if m.Score != 92 {
		t.Errorf("score = %.2f, want 92", m.Score)
	}
}

func TestClassify_NonWorkDayIsHoliday(t *testing.T) {
	loc := jakarta(t)
	site := classifierSite()
	site.WorkDays = []int{1, 2, 3, 4, 5}

	sunday := time.Date(2025, 3, 9, 9, 0, 0, 0, loc)
	m, err := Classify(site, sunday, nil, sunday)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if m.Status != StatusHoliday {
		t.Errorf("status = %s, want holiday", m.Status)
	}
	if m.Score != 0 {
		t.Errorf("score = %.2f, want 0 (holiday overrides all other signals)", m.Score)
	}
}

func TestClassify_OvernightWindow(t *testing.T) {
	loc := jakarta(t)
	site := classifierSite()
	site.OperationalStart = "22:00"
	site.OperationalEnd = "06:00"

	// Check-in 23:30 on the same calendar day: window resolves to
	// [22:00 that day, 06:00 next day]; 90 minutes past effective start.
	checkIn := time.Date(2025, 3, 10, 23, 30, 0, 0, loc)
	checkOut := time.Date(2025, 3, 11, 6, 0, 0, 0, loc)

	m, err := Classify(site, checkIn, &checkOut, checkOut)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if !m.Window.Start.Equal(time.Date(2025, 3, 10, 22, 0, 0, 0, loc)) {
		t.Errorf("window start = %s, want 22:00 on the 10th", m.Window.Start)
	}
	if !m.Window.End.Equal(time.Date(2025, 3, 11, 6, 0, 0, 0, loc)) {
		t.Errorf("window end = %s, want 06:00 on the 11th", m.Window.End)
	}
	if m.Status != StatusLate {
		t.Errorf("status = %s, want late for a 23:30 check-in", m.Status)
	}

	// A 22:03 check-in is inside the grace period: no lateness at all.
	onTimeIn := time.Date(2025, 3, 10, 22, 3, 0, 0, loc)
	m, err = Classify(site, onTimeIn, nil, onTimeIn)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if m.Status != StatusOnTime || m.LateMinutes != 0 {
		t.Errorf("status = %s late = %d, want on_time with no lateness", m.Status, m.LateMinutes)
	}
}

func TestClassify_ScoreBounds(t *testing.T) {
	loc := jakarta(t)
	site := classifierSite()

	cases := []struct {
		name     string
		checkIn  time.Time
		checkOut *time.Time
	}{
		{"very late", time.Date(2025, 3, 10, 17, 0, 0, 0, loc), nil},
		{"late and early out", time.Date(2025, 3, 10, 12, 0, 0, 0, loc),
			timePtr(time.Date(2025, 3, 10, 13, 0, 0, 0, loc))},
		{"long overtime", time.Date(2025, 3, 10, 9, 0, 0, 0, loc),
			timePtr(time.Date(2025, 3, 11, 2, 0, 0, 0, loc))},
		{"checkout before checkin", time.Date(2025, 3, 10, 9, 0, 0, 0, loc),
			timePtr(time.Date(2025, 3, 10, 8, 0, 0, 0, loc))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := Classify(site, tc.checkIn, tc.checkOut, tc.checkIn)
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if m.Score < 0 || m.Score > 100 {
				t.Errorf("score %.2f outside [0, 100]", m.Score)
			}
			if m.LateMinutes < 0 || m.EarlyCheckoutMinutes < 0 ||
				m.OvertimeMinutes < 0 || m.WorkDurationMinutes < 0 {
				t.Errorf("negative minute counter: %+v", m)
			}
		})
	}
}

func TestClassify_Idempotent(t *testing.T) {
	loc := jakarta(t)
	checkIn := time.Date(2025, 3, 10, 9, 22, 0, 0, loc)
	checkOut := time.Date(2025, 3, 10, 19, 0, 0, 0, loc)
	now := time.Date(2025, 3, 10, 19, 1, 0, 0, loc)

	first, err := Classify(classifierSite(), checkIn, &checkOut, now)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	second, err := Classify(classifierSite(), checkIn, &checkOut, now)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if first != second {
		t.Errorf("recomputation differed: %+v vs %+v", first, second)
	}
}

func TestOvertimePolicy_Remarks(t *testing.T) {
	p := DefaultOvertimePolicy()
	p.Overtime.MandatoryRemarks = true
	p.EarlyCheckout.MandatoryRemarks = true

	if !p.RequiresOvertimeRemarks(90) {
		t.Error("90 minutes overtime above the 60 minute threshold should require remarks")
	}
	if p.RequiresOvertimeRemarks(30) {
		t.Error("overtime under threshold should not require remarks")
	}
	if !p.RequiresEarlyCheckoutRemarks(200) {
		t.Error("200 minute shift below the 480 minute threshold should require remarks")
	}
	if p.RequiresEarlyCheckoutRemarks(480) {
		t.Error("full shift should not require early checkout remarks")
	}

	// Disabled policy never requires input.
	disabled := p
	disabled.Enabled = false
	if disabled.RequiresOvertimeRemarks(999) || disabled.RequiresEarlyCheckoutRemarks(1) {
		t.Error("disabled policy must never require remarks")
	}

	// Unset threshold never requires input either.
	unset := p
	unset.Overtime.ThresholdMinutes = 0
	if unset.RequiresOvertimeRemarks(999) {
		t.Error("unset threshold must never require remarks")
	}

	// The zero-value policy (no configuration at all) requires nothing.
	var zero OvertimePolicy
	if zero.RequiresOvertimeRemarks(999) || zero.RequiresEarlyCheckoutRemarks(0) {
		t.Error("absent policy must never require remarks")
	}
}

func timePtr(t time.Time) *time.Time { return &t }
