// Package anomaly inspects a user's attendance history for statistically
// suspicious patterns: repeated timings, frozen coordinates, implausibly
// short shifts, and photo irregularities.
package anomaly

import "time"

// RiskLevel classifies the overall result of a history scan.
type RiskLevel string

const (
	RiskNone   RiskLevel = "none"
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Finding is one concrete observation contributing to the risk score.
type Finding struct {
	Category          string `json:"category"`
	Detail            string `json:"detail"`
	ScoreContribution int    `json:"score_contribution"`
}

// Report is the derived, non-persisted outcome of analyzing one user's
// recent history. It is recomputed per request.
type Report struct {
	RiskLevel       RiskLevel `json:"risk_level"`
	TotalScore      int       `json:"total_score"`
	Findings        []Finding `json:"findings"`
	Narrative       string    `json:"narrative"`
	Recommendations []string  `json:"recommendations"`

	// InsufficientData is set when the history held fewer than the minimum
	// number of events and no sub-detector ran.
	InsufficientData bool `json:"insufficient_data"`
}

// Event is the detector's view of one attendance record. Histories passed to
// Analyze must be ordered ascending by check-in time; the detector does not
// sort defensively.
type Event struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	CheckIn   time.Time  `json:"check_in"`
	CheckOut  *time.Time `json:"check_out,omitempty"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`

	// Photo presence metadata from the storage subsystem. Raw image bytes
	// never reach the detector.
	HasPhoto      bool  `json:"has_photo"`
	PhotoByteSize int64 `json:"photo_byte_size"`
}

// workDurationMinutes returns the checked-out duration, or -1 when the event
// has no checkout yet.
func (e Event) workDurationMinutes() int {
	if e.CheckOut == nil {
		return -1
	}
	d := e.CheckOut.Sub(e.CheckIn)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}
