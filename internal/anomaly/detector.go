package anomaly

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/attendix/attendix/internal/geo"
)

// Detection weights. Chosen empirically; kept stable so historical reports
// stay comparable.
const (
	repeatedCheckInWeight   = 10 // per occurrence of a time-of-day seen 3+ times
	repeatedCheckOutWeight  = 10
	repeatedDurationWeight  = 15
	repeatedLocationWeight  = 8 // per occurrence of a coordinate seen 3+ times
	frozenGPSWeight         = 15
	rapidCheckoutWeight     = 20
	duplicateDayWeight      = 10 // per event on a multi-event day
	noPhotosFlatWeight      = 50
	missingPhotoWeight      = 15
	repeatedPhotoSizeWeight = 10
	oddHourWeight           = 10
)

// Config holds the thresholds of the pattern detector.
type Config struct {
	// WindowDays is the sliding history window; events older than this
	// relative to the newest event are ignored.
	WindowDays int

	// MinEvents is the number of events below which the detector refuses to
	// score and reports insufficient data.
	MinEvents int

	// MinRepeats is how often a timing or coordinate must recur before it
	// counts as a pattern.
	MinRepeats int

	// RapidCheckoutMinutes is the work duration below which a checkout is
	// implausibly fast.
	RapidCheckoutMinutes int

	// Thresholds mapping the accumulated score to a risk level.
	LowScore    int
	MediumScore int
	HighScore   int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		WindowDays:           30,
		MinEvents:            5,
		MinRepeats:           3,
		RapidCheckoutMinutes: 30,
		LowScore:             20,
		MediumScore:          50,
		HighScore:            100,
	}
}

// Detector scans ordered attendance histories for fraud patterns. It is
// stateless per call and safe for concurrent use.
type Detector struct {
	config Config
	logger *zap.Logger
}

// NewDetector creates a detector. A nil logger is replaced with a no-op.
func NewDetector(config Config, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MinEvents == 0 {
		config = DefaultConfig()
	}
	return &Detector{
		config: config,
		logger: logger.With(zap.String("component", "anomaly_detector")),
	}
}

type subResult struct {
	suspicious bool
	score      int
	findings   []Finding
}

// Analyze runs every sub-detector over the history and folds the results
// into a single report. The history must be ordered ascending by check-in
// time; the recent-window slicing depends on it.
func (d *Detector) Analyze(history []Event) Report {
	if len(history) < d.config.MinEvents {
		return Report{
			RiskLevel:        RiskLow,
			InsufficientData: true,
			Narrative: fmt.Sprintf("only %d events in window; at least %d needed for pattern analysis",
				len(history), d.config.MinEvents),
			Recommendations: []string{"Re-run once more attendance history has accumulated"},
		}
	}

	events := d.clipToWindow(history)
	if len(events) < d.config.MinEvents {
		return Report{
			RiskLevel:        RiskLow,
			InsufficientData: true,
			Narrative: fmt.Sprintf("only %d events inside the %d-day window; at least %d needed",
				len(events), d.config.WindowDays, d.config.MinEvents),
			Recommendations: []string{"Re-run once more attendance history has accumulated"},
		}
	}

	subs := []subResult{
		d.detectExactTiming(events),
		d.detectLocationAnomalies(events),
		d.detectRapidCheckouts(events),
		d.detectPhotoIrregularities(events),
		d.detectOddHours(events),
	}

	report := Report{RiskLevel: RiskNone}
	suspiciousCount := 0
	for _, sub := range subs {
		report.TotalScore += sub.score
		report.Findings = append(report.Findings, sub.findings...)
		if sub.suspicious {
			suspiciousCount++
		}
	}

	report.RiskLevel = d.mapRiskLevel(report.TotalScore, suspiciousCount)
	report.Narrative = buildNarrative(len(events), report.TotalScore, suspiciousCount)
	report.Recommendations = recommendationsFor(report.RiskLevel)

	d.logger.Debug("history analyzed",
		zap.Int("events", len(events)),
		zap.Int("score", report.TotalScore),
		zap.Int("suspicious_detectors", suspiciousCount),
		zap.String("risk_level", string(report.RiskLevel)),
	)

	return report
}

// clipToWindow drops events older than WindowDays relative to the newest
// event. The history is already ordered, so this is a suffix slice.
func (d *Detector) clipToWindow(history []Event) []Event {
	if len(history) == 0 {
		return history
	}
	cutoff := history[len(history)-1].CheckIn.AddDate(0, 0, -d.config.WindowDays)
	for i, e := range history {
		if !e.CheckIn.Before(cutoff) {
			return history[i:]
		}
	}
	return nil
}

// detectExactTiming flags check-in or check-out times of day that repeat to
// the second, and identical work durations. Humans are not that punctual;
// scripted submissions are.
func (d *Detector) detectExactTiming(events []Event) subResult {
	var res subResult

	checkIns := make(map[string]int)
	checkOuts := make(map[string]int)
	durations := make(map[int]int)
	checkoutCount := 0

	for _, e := range events {
		checkIns[e.CheckIn.Format("15:04:05")]++
		if e.CheckOut != nil {
			checkOuts[e.CheckOut.Format("15:04:05")]++
			durations[e.workDurationMinutes()]++
			checkoutCount++
		}
	}

	for tod, count := range checkIns {
		if count >= d.config.MinRepeats {
			contribution := count * repeatedCheckInWeight
			res.score += contribution
			res.suspicious = true
			res.findings = append(res.findings, Finding{
				Category:          "exact_timing",
				Detail:            fmt.Sprintf("check-in time %s repeated %d times", tod, count),
				ScoreContribution: contribution,
			})
		}
	}
	for tod, count := range checkOuts {
		if count >= d.config.MinRepeats {
			contribution := count * repeatedCheckOutWeight
			res.score += contribution
			res.suspicious = true
			res.findings = append(res.findings, Finding{
				Category:          "exact_timing",
				Detail:            fmt.Sprintf("check-out time %s repeated %d times", tod, count),
				ScoreContribution: contribution,
			})
		}
	}

	// Identical durations only mean something once there are enough
	// completed shifts to compare.
	if checkoutCount >= 5 {
		for minutes, count := range durations {
			if count >= d.config.MinRepeats {
				contribution := count * repeatedDurationWeight
				res.score += contribution
				res.suspicious = true
				res.findings = append(res.findings, Finding{
					Category:          "exact_timing",
					Detail:            fmt.Sprintf("work duration of exactly %d minutes repeated %d times", minutes, count),
					ScoreContribution: contribution,
				})
			}
		}
	}

	return res
}

// detectLocationAnomalies flags coordinates that repeat exactly (to six
// decimals, roughly 10 cm) and consecutive days whose positions differ by
// less than a meter but are not identical — consumer GPS does not hold
// sub-meter stability between days.
func (d *Detector) detectLocationAnomalies(events []Event) subResult {
	var res subResult

	coords := make(map[string]int)
	for _, e := range events {
		coords[fmt.Sprintf("%.6f,%.6f", e.Latitude, e.Longitude)]++
	}
	for key, count := range coords {
		if count >= d.config.MinRepeats {
			contribution := count * repeatedLocationWeight
			res.score += contribution
			res.suspicious = true
			res.findings = append(res.findings, Finding{
				Category:          "location",
				Detail:            fmt.Sprintf("coordinate %s repeated %d times", key, count),
				ScoreContribution: contribution,
			})
		}
	}

	for i := 1; i < len(events); i++ {
		prev, curr := events[i-1], events[i]
		dayGap := curr.CheckIn.YearDay() - prev.CheckIn.YearDay()
		if curr.CheckIn.Year() != prev.CheckIn.Year() || dayGap != 1 {
			continue
		}
		dist := geo.DistanceMeters(
			geo.Coordinate{Latitude: prev.Latitude, Longitude: prev.Longitude},
			geo.Coordinate{Latitude: curr.Latitude, Longitude: curr.Longitude},
		)
		if dist > 0 && dist < 1 {
			res.score += frozenGPSWeight
			res.suspicious = true
			res.findings = append(res.findings, Finding{
				Category:          "location",
				Detail:            fmt.Sprintf("consecutive-day positions %.2fm apart on %s — implausible GPS stability", dist, curr.CheckIn.Format("2006-01-02")),
				ScoreContribution: frozenGPSWeight,
			})
		}
	}

	return res
}

// detectRapidCheckouts flags shifts shorter than the rapid-checkout floor and
// calendar days that carry more than one event. Duplicate days are an anomaly
// signal only; uniqueness is not enforced upstream.
func (d *Detector) detectRapidCheckouts(events []Event) subResult {
	var res subResult

	days := make(map[string]int)
	for _, e := range events {
		days[e.CheckIn.Format("2006-01-02")]++

		duration := e.workDurationMinutes()
		if duration >= 0 && duration < d.config.RapidCheckoutMinutes {
			res.score += rapidCheckoutWeight
			res.suspicious = true
			res.findings = append(res.findings, Finding{
				Category:          "rapid_checkout",
				Detail:            fmt.Sprintf("shift of %d minutes on %s", duration, e.CheckIn.Format("2006-01-02")),
				ScoreContribution: rapidCheckoutWeight,
			})
		}
	}

	for day, count := range days {
		if count > 1 {
			contribution := count * duplicateDayWeight
			res.score += contribution
			res.suspicious = true
			res.findings = append(res.findings, Finding{
				Category:          "rapid_checkout",
				Detail:            fmt.Sprintf("%d attendance events on %s", count, day),
				ScoreContribution: contribution,
			})
		}
	}

	return res
}

// detectPhotoIrregularities flags missing check-in photos and byte-identical
// photo sizes. A window with no photos at all gets one flat contribution
// instead of a per-event pile-up.
func (d *Detector) detectPhotoIrregularities(events []Event) subResult {
	var res subResult

	withPhoto := 0
	sizes := make(map[int64]int)
	for _, e := range events {
		if e.HasPhoto {
			withPhoto++
			sizes[e.PhotoByteSize]++
		}
	}

	if withPhoto == 0 {
		res.score += noPhotosFlatWeight
		res.suspicious = true
		res.findings = append(res.findings, Finding{
			Category:          "photo",
			Detail:            fmt.Sprintf("no photos across %d events in the window", len(events)),
			ScoreContribution: noPhotosFlatWeight,
		})
		return res
	}

	for _, e := range events {
		if !e.HasPhoto {
			res.score += missingPhotoWeight
			res.suspicious = true
			res.findings = append(res.findings, Finding{
				Category:          "photo",
				Detail:            fmt.Sprintf("missing photo on %s", e.CheckIn.Format("2006-01-02")),
				ScoreContribution: missingPhotoWeight,
			})
		}
	}

	if withPhoto >= 3 {
		for size, count := range sizes {
			if count >= d.config.MinRepeats {
				contribution := count * repeatedPhotoSizeWeight
				res.score += contribution
				res.suspicious = true
				res.findings = append(res.findings, Finding{
					Category:          "photo",
					Detail:            fmt.Sprintf("photo byte size %d repeated %d times — possible re-submitted image", size, count),
					ScoreContribution: contribution,
				})
			}
		}
	}

	return res
}

// detectOddHours flags check-ins outside 05:00-23:00. Weekend attendance is
// noted as an advisory finding without score: plenty of sites run legitimate
// weekend shifts.
func (d *Detector) detectOddHours(events []Event) subResult {
	var res subResult

	for _, e := range events {
		hour := e.CheckIn.Hour()
		if hour < 5 || hour > 23 {
			res.score += oddHourWeight
			res.suspicious = true
			res.findings = append(res.findings, Finding{
				Category:          "time_of_day",
				Detail:            fmt.Sprintf("check-in at %02d:%02d on %s", hour, e.CheckIn.Minute(), e.CheckIn.Format("2006-01-02")),
				ScoreContribution: oddHourWeight,
			})
		}

		wd := e.CheckIn.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			res.findings = append(res.findings, Finding{
				Category:          "time_of_day",
				Detail:            fmt.Sprintf("weekend attendance on %s (advisory)", e.CheckIn.Format("2006-01-02")),
				ScoreContribution: 0,
			})
		}
	}

	return res
}

func (d *Detector) mapRiskLevel(score, suspiciousCount int) RiskLevel {
	switch {
	case score >= d.config.HighScore || suspiciousCount >= 4:
		return RiskHigh
	case score >= d.config.MediumScore || suspiciousCount >= 2:
		return RiskMedium
	case score >= d.config.LowScore || suspiciousCount >= 1:
		return RiskLow
	default:
		return RiskNone
	}
}

func buildNarrative(eventCount, score, suspiciousCount int) string {
	if suspiciousCount == 0 {
		return fmt.Sprintf("%d events analyzed; no suspicious patterns found", eventCount)
	}
	return fmt.Sprintf("%d events analyzed; %d of 5 detectors flagged patterns for a combined score of %d",
		eventCount, suspiciousCount, score)
}

func recommendationsFor(level RiskLevel) []string {
	switch level {
	case RiskHigh:
		return []string{
			"Escalate to an attendance audit",
			"Require photo verification on the next check-ins",
			"Compare flagged events against site access logs",
		}
	case RiskMedium:
		return []string{
			"Review the flagged events manually",
			"Re-run the analysis after the next few check-ins",
		}
	case RiskLow:
		return []string{"Keep monitoring; no action needed yet"}
	default:
		return nil
	}
}
