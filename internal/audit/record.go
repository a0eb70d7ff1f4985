// Package audit persists integrity decision records for the review surface.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Outcome is the recorded result of a submission or analysis.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	OutcomeFlagged  Outcome = "flagged"
)

// Record is one audited integrity decision. Records are fire-and-forget:
// producers never block on, nor fail because of, audit persistence.
type Record struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	UserID    string    `json:"user_id"`
	SiteID    string    `json:"site_id,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	RiskScore int       `json:"risk_score"`
	Warnings  []string  `json:"warnings,omitempty"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// NewRecord stamps a record with an id and timestamp.
func NewRecord(action, userID string) Record {
	return Record{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Action:    action,
		UserID:    userID,
	}
}

// Sink accepts decision records. Implementations must be safe for
// concurrent use.
type Sink interface {
	Write(ctx context.Context, rec Record)
}

// NopSink discards every record. Used in tests and when auditing is
// disabled by configuration.
type NopSink struct{}

func (NopSink) Write(context.Context, Record) {}
