// Package integrity orchestrates coordinate validation, geofencing, and
// device risk into a single accept/reject decision per attendance submission.
package integrity

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/attendix/attendix/internal/anomaly"
	"github.com/attendix/attendix/internal/devicerisk"
	"github.com/attendix/attendix/internal/geo"
	"github.com/attendix/attendix/internal/schedule"
)

// Action distinguishes the two submission kinds at the gateway.
type Action string

const (
	ActionCheckIn  Action = "check_in"
	ActionCheckOut Action = "check_out"
)

// Reason classifies why a submission was rejected.
type Reason string

const (
	ReasonHardInvalid  Reason = "HARD_INVALID"
	ReasonGeofence     Reason = "GEOFENCE_VIOLATION"
	ReasonClosedWindow Reason = "POLICY_VIOLATION"
	ReasonHighRisk     Reason = "HIGH_RISK"
)

// Config carries the gateway tunables.
type Config struct {
	// ToleranceFactor widens the site radius to absorb consumer GPS jitter.
	ToleranceFactor float64
	// RiskCeiling is the cumulative risk score above which a submission is
	// rejected rather than merely flagged.
	RiskCeiling int
	// AccuracyRiskWeight is the risk contributed by a low-accuracy
	// coordinate warning.
	AccuracyRiskWeight int
}

// DefaultConfig returns the production gateway tunables.
func DefaultConfig() Config {
	return Config{
		ToleranceFactor:    1.5,
		RiskCeiling:        70,
		AccuracyRiskWeight: 10,
	}
}

// Submission is one check-in or check-out attempt as seen by the gateway.
type Submission struct {
	Action     Action
	Site       schedule.Site
	Coordinate geo.Coordinate
	Signals    devicerisk.ClientSignals
	Timestamp  time.Time
}

// Decision is the gateway's verdict on a submission. Rejections always carry
// a human-readable message and a retry hint so clients can distinguish "try
// again now" from "wait or move first".
type Decision struct {
	Accepted       bool                  `json:"accepted"`
	Reason         Reason                `json:"reason,omitempty"`
	RiskScore      int                   `json:"risk_score"`
	Warnings       []string              `json:"warnings"`
	UserMessage    string                `json:"user_message"`
	RetrySuggested bool                  `json:"retry_suggested"`
	DistanceMeters float64               `json:"distance_meters"`
	Device         devicerisk.Assessment `json:"device"`
}

// Gateway folds the validators and scorers into submission decisions.
// Safe for concurrent use.
type Gateway struct {
	scorer   *devicerisk.Scorer
	detector *anomaly.Detector
	cfg      Config
	logger   *zap.Logger
}

// NewGateway creates an integrity gateway.
func NewGateway(scorer *devicerisk.Scorer, detector *anomaly.Detector, cfg Config, logger *zap.Logger) *Gateway {
	if cfg.ToleranceFactor == 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		scorer:   scorer,
		detector: detector,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "integrity_gateway")),
	}
}

// ValidateSubmission runs the submission pipeline: coordinate validation,
// geofence, operational window (check-ins only), then device risk. Moderate
// signals surface as warnings; only structurally impossible coordinates,
// geofence breaches, closed windows, and risk above the ceiling reject.
func (g *Gateway) ValidateSubmission(ctx context.Context, sub Submission) (Decision, error) {
	d := Decision{Warnings: []string{}}

	validation := geo.Validate(sub.Coordinate)
	if !validation.Valid() {
		d.Reason = ReasonHardInvalid
		d.UserMessage = fmt.Sprintf("Your location could not be verified (%s). Re-acquire a GPS fix and try again.", validation.Reason)
		d.RetrySuggested = true
		g.logDecision(sub, d)
		return d, nil
	}
	if validation.Status == geo.ValidationWarning {
		d.Warnings = append(d.Warnings, validation.Reason)
		d.RiskScore += g.cfg.AccuracyRiskWeight
	}

	d.DistanceMeters = geo.DistanceMeters(sub.Coordinate, sub.Site.Center)
	allowed := float64(sub.Site.RadiusMeters) * g.cfg.ToleranceFactor
	if d.DistanceMeters > allowed {
		d.Reason = ReasonGeofence
		d.UserMessage = fmt.Sprintf("You are %.0f m from %s; submissions are accepted within %.0f m.",
			d.DistanceMeters, sub.Site.Name, allowed)
		g.logDecision(sub, d)
		return d, nil
	}

	if sub.Action == ActionCheckIn {
		if rejected, msg, err := g.checkWindow(sub.Site, sub.Timestamp); err != nil {
			return Decision{}, err
		} else if rejected {
			d.Reason = ReasonClosedWindow
			d.UserMessage = msg
			g.logDecision(sub, d)
			return d, nil
		}
	}

	d.Device = g.scorer.Assess(ctx, sub.Signals)
	d.RiskScore += d.Device.RiskScore
	d.Warnings = append(d.Warnings, d.Device.Warnings...)

	if d.RiskScore > g.cfg.RiskCeiling {
		d.Reason = ReasonHighRisk
		d.UserMessage = "This submission was flagged by our integrity checks and could not be accepted. Contact your administrator if you believe this is an error."
		g.logDecision(sub, d)
		return d, nil
	}

	d.Accepted = true
	d.UserMessage = "Submission accepted."
	g.logDecision(sub, d)
	return d, nil
}

// checkWindow rejects check-ins outside the site's operational window. The
// rejection message names the next open window so the client can tell the
// user when to come back.
func (g *Gateway) checkWindow(site schedule.Site, at time.Time) (bool, string, error) {
	win, err := schedule.ResolveWindow(site, at)
	if err != nil {
		return false, "", fmt.Errorf("resolve operational window: %w", err)
	}
	if site.IsWorkDay(at) && win.Contains(at) {
		return false, "", nil
	}

	next, err := schedule.NextOpenWindow(site, at)
	if err != nil {
		return true, fmt.Sprintf("%s is closed right now.", site.Name), nil
	}
	return true, fmt.Sprintf("%s is closed right now. The next attendance window opens %s.",
		site.Name, next.Start.Format("Mon 15:04")), nil
}

// ClassifyEvent computes the stored metrics for an event. Idempotent: the
// same inputs always yield the same metrics, so it is safe to re-invoke on
// check-out or retroactive site configuration changes.
func (g *Gateway) ClassifyEvent(site schedule.Site, checkIn time.Time, checkOut *time.Time, now time.Time) (schedule.Metrics, error) {
	return schedule.Classify(site, checkIn, checkOut, now)
}

// AnalyzeHistory runs pattern anomaly detection over a user's ascending
// event history. Read-only.
func (g *Gateway) AnalyzeHistory(userID string, history []anomaly.Event) anomaly.Report {
	report := g.detector.Analyze(history)
	if report.RiskLevel == anomaly.RiskHigh {
		g.logger.Warn("high-risk attendance pattern",
			zap.String("user_id", userID),
			zap.Int("total_score", report.TotalScore),
			zap.Int("findings", len(report.Findings)),
		)
	}
	return report
}

// AssessDevice exposes the device risk scorer for submission-time use.
func (g *Gateway) AssessDevice(ctx context.Context, sig devicerisk.ClientSignals) devicerisk.Assessment {
	return g.scorer.Assess(ctx, sig)
}

func (g *Gateway) logDecision(sub Submission, d Decision) {
	fields := []zap.Field{
		zap.String("action", string(sub.Action)),
		zap.String("site_id", sub.Site.ID),
		zap.String("user_id", sub.Signals.UserID),
		zap.Bool("accepted", d.Accepted),
		zap.Int("risk_score", d.RiskScore),
		zap.Float64("distance_m", d.DistanceMeters),
	}
	if d.Accepted {
		g.logger.Debug("submission accepted", fields...)
		return
	}
	g.logger.Info("submission rejected", append(fields, zap.String("reason", string(d.Reason)))...)
}
