package geo

import "fmt"

// ValidationStatus classifies the outcome of a coordinate sanity check.
type ValidationStatus string

const (
	ValidationOK      ValidationStatus = "ok"
	ValidationWarning ValidationStatus = "warning"
	ValidationInvalid ValidationStatus = "invalid"
)

// ValidationResult is the tagged outcome of Validate. Reason is set for
// warnings and hard failures.
type ValidationResult struct {
	Status ValidationStatus `json:"status"`
	Reason string           `json:"reason,omitempty"`
}

// Valid reports whether the sample passed hard validation. Warnings count as
// valid; they only feed the cumulative submission risk score.
func (r ValidationResult) Valid() bool {
	return r.Status != ValidationInvalid
}

// MaxUsefulAccuracyMeters is the reported GPS accuracy above which a sample
// is flagged as a warning. Accuracy alone never hard-fails a sample; earlier
// stricter checks produced false positives on high-precision receivers.
const MaxUsefulAccuracyMeters = 1000.0

// Validate sanity-checks a single coordinate sample. Rules apply in order and
// the first hard failure wins:
//
//  1. latitude and longitude both exactly zero ("null island") is a hard
//     failure — it is a near-certain GPS acquisition error, not a place
//     anyone clocks in from;
//  2. out-of-range latitude or longitude is a hard failure;
//  3. reported accuracy above MaxUsefulAccuracyMeters is a warning only.
func Validate(sample Coordinate) ValidationResult {
	if sample.Latitude == 0 && sample.Longitude == 0 {
		return ValidationResult{
			Status: ValidationInvalid,
			Reason: "coordinates are (0, 0): GPS fix not acquired",
		}
	}

	if sample.Latitude < -90 || sample.Latitude > 90 {
		return ValidationResult{
			Status: ValidationInvalid,
			Reason: fmt.Sprintf("latitude %.6f outside [-90, 90]", sample.Latitude),
		}
	}
	if sample.Longitude < -180 || sample.Longitude > 180 {
		return ValidationResult{
			Status: ValidationInvalid,
			Reason: fmt.Sprintf("longitude %.6f outside [-180, 180]", sample.Longitude),
		}
	}

	if sample.AccuracyMeters != nil && *sample.AccuracyMeters > MaxUsefulAccuracyMeters {
		return ValidationResult{
			Status: ValidationWarning,
			Reason: fmt.Sprintf("reported accuracy %.0fm exceeds %.0fm", *sample.AccuracyMeters, MaxUsefulAccuracyMeters),
		}
	}

	return ValidationResult{Status: ValidationOK}
}
