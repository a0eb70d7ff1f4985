package anomaly

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestDetector() *Detector {
	return NewDetector(DefaultConfig(), zap.NewNop())
}

// buildHistory creates days consecutive events, one per weekday starting at
// base, with slightly jittered but human-looking times and locations.
func buildHistory(days int) []Event {
	base := time.Date(2025, 3, 3, 8, 57, 0, 0, time.UTC) // a Monday
	var events []Event
	for i := 0; i < days; i++ {
		checkIn := base.AddDate(0, 0, i).Add(time.Duration(i%7) * time.Minute)
		checkOut := checkIn.Add(9*time.Hour + time.Duration(i%11)*time.Minute)
		events = append(events, Event{
			ID:            fmt.Sprintf("evt-%d", i),
			UserID:        "user-1",
			CheckIn:       checkIn,
			CheckOut:      &checkOut,
			Latitude:      -6.2000 + float64(i%5)*0.0002,
			Longitude:     106.8000 + float64(i%3)*0.0003,
			HasPhoto:      true,
			PhotoByteSize: int64(150000 + i*1321),
		})
	}
	return events
}

func TestAnalyze_InsufficientHistory(t *testing.T) {
	d := newTestDetector()

	report := d.Analyze(buildHistory(4))

	if !report.InsufficientData {
		t.Error("expected insufficient data for 4 events")
	}
	if report.RiskLevel != RiskLow {
		t.Errorf("risk level = %s, want low", report.RiskLevel)
	}
	if report.TotalScore != 0 {
		t.Errorf("no sub-detector scoring should run; got score %d", report.TotalScore)
	}
	if len(report.Findings) != 0 {
		t.Errorf("expected no findings, got %d", len(report.Findings))
	}
}

func TestAnalyze_CleanHistory(t *testing.T) {
	d := newTestDetector()

	report := d.Analyze(buildHistory(10))

	if report.InsufficientData {
		t.Error("10 events should be enough to analyze")
	}
	if report.RiskLevel == RiskHigh {
		t.Errorf("clean history scored high: %+v", report)
	}
	if report.TotalScore >= 50 {
		t.Errorf("clean history accumulated score %d", report.TotalScore)
	}
}

func TestAnalyze_RepeatedCheckInTimes(t *testing.T) {
	d := newTestDetector()

	// Five consecutive events with the identical check-in time of day.
	var events []Event
	base := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		checkIn := base.AddDate(0, 0, i)
		checkOut := checkIn.Add(9*time.Hour + time.Duration(i)*13*time.Minute)
		events = append(events, Event{
			ID:            fmt.Sprintf("evt-%d", i),
			CheckIn:       checkIn,
			CheckOut:      &checkOut,
			Latitude:      -6.2 + float64(i)*0.001,
			Longitude:     106.8 + float64(i)*0.001,
			HasPhoto:      true,
			PhotoByteSize: int64(100000 + i*977),
		})
	}

	report := d.Analyze(events)

	var timing *Finding
	for i := range report.Findings {
		if report.Findings[i].Category == "exact_timing" {
			timing = &report.Findings[i]
			break
		}
	}
	if timing == nil {
		t.Fatalf("expected an exact_timing finding, got %+v", report.Findings)
	}
	if timing.ScoreContribution < 30 {
		t.Errorf("five identical check-in times should contribute >= 30, got %d", timing.ScoreContribution)
	}
	if report.RiskLevel == RiskNone {
		t.Error("repeated timings should raise the risk level")
	}
}

func TestAnalyze_RepeatedCoordinates(t *testing.T) {
	d := newTestDetector()

	var events []Event
	base := time.Date(2025, 3, 3, 8, 55, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		checkIn := base.AddDate(0, 0, i).Add(time.Duration(i) * 3 * time.Minute)
		checkOut := checkIn.Add(9 * time.Hour)
		events = append(events, Event{
			CheckIn:       checkIn,
			CheckOut:      &checkOut,
			Latitude:      -6.200001, // bit-identical every day
			Longitude:     106.800001,
			HasPhoto:      true,
			PhotoByteSize: int64(90000 + i*1111),
		})
	}

	report := d.Analyze(events)

	found := false
	for _, f := range report.Findings {
		if f.Category == "location" && f.ScoreContribution >= 6*repeatedLocationWeight {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a repeated-coordinate finding, got %+v", report.Findings)
	}
}

func TestAnalyze_RapidAndDuplicateCheckouts(t *testing.T) {
	d := newTestDetector()

	var events []Event
	base := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		checkIn := base.AddDate(0, 0, i).Add(time.Duration(i) * time.Minute)
		checkOut := checkIn.Add(10 * time.Minute) // absurdly short shifts
		events = append(events, Event{
			CheckIn:       checkIn,
			CheckOut:      &checkOut,
			Latitude:      -6.2 + float64(i)*0.0005,
			Longitude:     106.8,
			HasPhoto:      true,
			PhotoByteSize: int64(80000 + i*700),
		})
	}
	// A second event on day one.
	dupIn := base.Add(4 * time.Hour)
	events = append(events, Event{
		CheckIn:       dupIn,
		Latitude:      -6.2,
		Longitude:     106.8,
		HasPhoto:      true,
		PhotoByteSize: 81234,
	})

	// Keep ascending order by check-in.
	sortEventsAscending(events)

	report := d.Analyze(events)

	rapid, duplicate := false, false
	for _, f := range report.Findings {
		if f.Category != "rapid_checkout" {
			continue
		}
		if strings.HasPrefix(f.Detail, "shift of") {
			rapid = true
		}
		if strings.HasPrefix(f.Detail, "2 attendance events") && f.ScoreContribution == 2*duplicateDayWeight {
			duplicate = true
		}
	}
	if !rapid {
		t.Error("expected rapid checkout findings")
	}
	if !duplicate {
		t.Error("expected a duplicate-day finding worth 2x the day weight")
	}
	if report.RiskLevel != RiskHigh && report.RiskLevel != RiskMedium {
		t.Errorf("five 10-minute shifts should be at least medium risk, got %s", report.RiskLevel)
	}
}

func TestAnalyze_NoPhotosFlatContribution(t *testing.T) {
	d := newTestDetector()

	events := buildHistory(8)
	for i := range events {
		events[i].HasPhoto = false
		events[i].PhotoByteSize = 0
	}

	report := d.Analyze(events)

	flat := 0
	for _, f := range report.Findings {
		if f.Category == "photo" {
			flat += f.ScoreContribution
		}
	}
	if flat != noPhotosFlatWeight {
		t.Errorf("zero photos should contribute the flat %d exactly, got %d", noPhotosFlatWeight, flat)
	}
}

func TestAnalyze_SingleMissingPhoto(t *testing.T) {
	d := newTestDetector()

	events := buildHistory(8)
	events[3].HasPhoto = false
	events[3].PhotoByteSize = 0

	report := d.Analyze(events)

	found := false
	for _, f := range report.Findings {
		if f.Category == "photo" && f.ScoreContribution == missingPhotoWeight {
			found = true
		}
	}
	if !found {
		t.Errorf("expected one missing-photo finding, got %+v", report.Findings)
	}
}

func TestAnalyze_RepeatedPhotoSizes(t *testing.T) {
	d := newTestDetector()

	events := buildHistory(6)
	for i := range events {
		events[i].PhotoByteSize = 123456 // byte-identical uploads
	}

	report := d.Analyze(events)

	found := false
	for _, f := range report.Findings {
		if f.Category == "photo" && f.ScoreContribution >= 3*repeatedPhotoSizeWeight {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a repeated-photo-size finding, got %+v", report.Findings)
	}
}

func TestAnalyze_OddHourCheckIns(t *testing.T) {
	d := newTestDetector()

	var events []Event
	base := time.Date(2025, 3, 3, 2, 30, 0, 0, time.UTC) // 02:30 check-ins
	for i := 0; i < 5; i++ {
		checkIn := base.AddDate(0, 0, i).Add(time.Duration(i) * 2 * time.Minute)
		checkOut := checkIn.Add(8 * time.Hour)
		events = append(events, Event{
			CheckIn:       checkIn,
			CheckOut:      &checkOut,
			Latitude:      -6.2 + float64(i)*0.0004,
			Longitude:     106.8,
			HasPhoto:      true,
			PhotoByteSize: int64(70000 + i*501),
		})
	}

	report := d.Analyze(events)

	oddHours := 0
	for _, f := range report.Findings {
		if f.Category == "time_of_day" && f.ScoreContribution == oddHourWeight {
			oddHours++
		}
	}
	if oddHours != 5 {
		t.Errorf("expected 5 odd-hour findings, got %d", oddHours)
	}
}

func TestAnalyze_WeekendAdvisoryCarriesNoScore(t *testing.T) {
	d := newTestDetector()

	// Saturdays at a civilised hour.
	var events []Event
	base := time.Date(2025, 3, 8, 9, 0, 0, 0, time.UTC) // a Saturday
	for i := 0; i < 5; i++ {
		checkIn := base.AddDate(0, 0, i*7).Add(time.Duration(i) * 4 * time.Minute)
		checkOut := checkIn.Add(8*time.Hour + time.Duration(i)*9*time.Minute)
		events = append(events, Event{
			CheckIn:       checkIn,
			CheckOut:      &checkOut,
			Latitude:      -6.2 + float64(i)*0.0007,
			Longitude:     106.8 + float64(i)*0.0002,
			HasPhoto:      true,
			PhotoByteSize: int64(60000 + i*811),
		})
	}

	report := d.Analyze(events)

	for _, f := range report.Findings {
		if f.Category == "time_of_day" && f.ScoreContribution != 0 {
			t.Errorf("weekend attendance should be advisory only, got contribution %d (%s)",
				f.ScoreContribution, f.Detail)
		}
	}
}

func TestAnalyze_WindowClipping(t *testing.T) {
	d := newTestDetector()

	// Five suspicious events far in the past, then five clean recent ones.
	var events []Event
	old := time.Date(2024, 11, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		checkIn := old.AddDate(0, 0, i)
		checkOut := checkIn.Add(5 * time.Minute)
		events = append(events, Event{CheckIn: checkIn, CheckOut: &checkOut,
			Latitude: -6.2, Longitude: 106.8, HasPhoto: true, PhotoByteSize: 1000})
	}
	recent := time.Date(2025, 3, 3, 8, 58, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		checkIn := recent.AddDate(0, 0, i).Add(time.Duration(i) * 3 * time.Minute)
		checkOut := checkIn.Add(9*time.Hour + time.Duration(i)*7*time.Minute)
		events = append(events, Event{CheckIn: checkIn, CheckOut: &checkOut,
			Latitude: -6.2 + float64(i)*0.0003, Longitude: 106.8 + float64(i)*0.0004,
			HasPhoto: true, PhotoByteSize: int64(50000 + i*901)})
	}

	report := d.Analyze(events)

	for _, f := range report.Findings {
		if f.Category == "rapid_checkout" {
			t.Errorf("events outside the window should not be scored: %s", f.Detail)
		}
	}
}

func TestMapRiskLevel(t *testing.T) {
	d := newTestDetector()

	tests := []struct {
		score      int
		suspicious int
		want       RiskLevel
	}{
		{0, 0, RiskNone},
		{10, 0, RiskNone},
		{10, 1, RiskLow},
		{25, 0, RiskLow},
		{55, 0, RiskMedium},
		{10, 2, RiskMedium},
		{120, 0, RiskHigh},
		{10, 4, RiskHigh},
	}

	for _, tt := range tests {
		if got := d.mapRiskLevel(tt.score, tt.suspicious); got != tt.want {
			t.Errorf("mapRiskLevel(%d, %d) = %s, want %s", tt.score, tt.suspicious, got, tt.want)
		}
	}
}

// sortEventsAscending keeps test fixtures honest about the ordering contract.
func sortEventsAscending(events []Event) {
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && events[j].CheckIn.Before(events[j-1].CheckIn); j-- {
			events[j], events[j-1] = events[j-1], events[j]
		}
	}
}
