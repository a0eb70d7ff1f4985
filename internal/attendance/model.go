// Package attendance persists attendance events and exposes the HTTP surface
// of the integrity engine.
package attendance

import (
	"time"

	"github.com/google/uuid"

	"github.com/attendix/attendix/internal/schedule"
)

// Event is one persisted attendance record. CheckOut is nil while the shift
// is still open; the classification columns are recomputed idempotently when
// the check-out lands.
type Event struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	SiteID         string     `json:"site_id"`
	CheckIn        time.Time  `json:"check_in"`
	CheckOut       *time.Time `json:"check_out,omitempty"`
	Latitude       float64    `json:"latitude"`
	Longitude      float64    `json:"longitude"`
	AccuracyMeters *float64   `json:"accuracy_meters,omitempty"`

	Fingerprint string `json:"fingerprint,omitempty"`
	RiskScore   int    `json:"risk_score"`

	Status               schedule.Status `json:"status"`
	LateMinutes          int             `json:"late_minutes"`
	EarlyCheckoutMinutes int             `json:"early_checkout_minutes"`
	OvertimeMinutes      int             `json:"overtime_minutes"`
	WorkDurationMinutes  int             `json:"work_duration_minutes"`
	Score                float64         `json:"score"`

	HasPhoto      bool  `json:"has_photo"`
	PhotoByteSize int64 `json:"photo_byte_size,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEvent stamps a fresh event with an id and creation time.
func NewEvent(userID, siteID string, now time.Time) *Event {
	return &Event{
		ID:        uuid.New().String(),
		UserID:    userID,
		SiteID:    siteID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// applyMetrics copies classification output onto the persisted columns.
func (e *Event) applyMetrics(m schedule.Metrics) {
	e.Status = m.Status
	e.LateMinutes = m.LateMinutes
	e.EarlyCheckoutMinutes = m.EarlyCheckoutMinutes
	e.OvertimeMinutes = m.OvertimeMinutes
	e.WorkDurationMinutes = m.WorkDurationMinutes
	e.Score = m.Score
}

// PhotoMeta is the presence metadata the anomaly detector consumes. Raw
// image bytes never cross this boundary.
type PhotoMeta struct {
	HasPhoto bool  `json:"has_photo"`
	ByteSize int64 `json:"byte_size"`
}
