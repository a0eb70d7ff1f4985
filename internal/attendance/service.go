package attendance

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/attendix/attendix/internal/anomaly"
	"github.com/attendix/attendix/internal/audit"
	apperrors "github.com/attendix/attendix/internal/common/errors"
	"github.com/attendix/attendix/internal/common/middleware"
	"github.com/attendix/attendix/internal/devicerisk"
	"github.com/attendix/attendix/internal/geo"
	"github.com/attendix/attendix/internal/integrity"
	"github.com/attendix/attendix/internal/schedule"
)

// ServiceConfig carries the service-level tunables; engine tunables live in
// the gateway.
type ServiceConfig struct {
	// AnomalyWindowDays is how far back the anomaly endpoint reads history.
	AnomalyWindowDays int
	// HistoryDays is the default range of the history endpoint.
	HistoryDays int
}

// DefaultServiceConfig returns the production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		AnomalyWindowDays: 30,
		HistoryDays:       30,
	}
}

// Service orchestrates submissions through the integrity gateway and the
// event store. Safe for concurrent use.
type Service struct {
	store   Store
	photos  PhotoOracle
	gateway *integrity.Gateway
	sink    audit.Sink
	cfg     ServiceConfig
	logger  *zap.Logger

	now func() time.Time
}

// NewService creates the attendance service. A nil sink disables auditing.
// Photo presence is read through the store's oracle implementation.
func NewService(store Store, gateway *integrity.Gateway, sink audit.Sink, cfg ServiceConfig, logger *zap.Logger) *Service {
	if sink == nil {
		sink = audit.NopSink{}
	}
	if cfg.AnomalyWindowDays <= 0 {
		cfg = DefaultServiceConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		photos:  store,
		gateway: gateway,
		sink:    sink,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "attendance_service")),
		now:     time.Now,
	}
}

// CheckInRequest is one check-in attempt after transport decoding.
type CheckInRequest struct {
	UserID        string
	SiteID        string
	Coordinate    geo.Coordinate
	Signals       devicerisk.ClientSignals
	HasPhoto      bool
	PhotoByteSize int64
}

// CheckOutRequest closes the user's open event. The site is resolved from
// the open event, not from the client.
type CheckOutRequest struct {
	UserID     string
	Coordinate geo.Coordinate
	Signals    devicerisk.ClientSignals
}

// SubmissionResult is the accepted outcome of a check-in or check-out.
type SubmissionResult struct {
	Event    *Event             `json:"event"`
	Decision integrity.Decision `json:"decision"`
}

// CheckIn validates and persists a check-in. Rejections surface as typed
// errors carrying the gateway's user message and retry hint.
func (s *Service) CheckIn(ctx context.Context, req CheckInRequest) (*SubmissionResult, error) {
	now := s.now().UTC()

	site, err := s.store.SiteByID(ctx, req.SiteID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.SiteNotFound(req.SiteID)
		}
		return nil, apperrors.DatabaseError("load site", err)
	}
	if err := site.Validate(); err != nil {
		return nil, apperrors.SystemicFailure("site-config", err)
	}

	if _, err := s.store.OpenEvent(ctx, req.UserID); err == nil {
		return nil, apperrors.AlreadyCheckedIn(req.UserID)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, apperrors.DatabaseError("find open event", err)
	}

	decision, err := s.gateway.ValidateSubmission(ctx, integrity.Submission{
		Action:     integrity.ActionCheckIn,
		Site:       site,
		Coordinate: req.Coordinate,
		Signals:    req.Signals,
		Timestamp:  now,
	})
	if err != nil {
		return nil, apperrors.SystemicFailure("integrity-gateway", err)
	}
	s.recordDecision(ctx, integrity.ActionCheckIn, req.UserID, site.ID, req.Signals, decision)
	if !decision.Accepted {
		return nil, rejectionError(decision)
	}

	metrics, err := s.gateway.ClassifyEvent(site, now, nil, now)
	if err != nil {
		return nil, apperrors.SystemicFailure("classifier", err)
	}

	event := NewEvent(req.UserID, site.ID, now)
	event.CheckIn = now
	event.Latitude = req.Coordinate.Latitude
	event.Longitude = req.Coordinate.Longitude
	event.AccuracyMeters = req.Coordinate.AccuracyMeters
	event.Fingerprint = decision.Device.Fingerprint
	event.RiskScore = decision.RiskScore
	event.HasPhoto = req.HasPhoto
	event.PhotoByteSize = req.PhotoByteSize
	event.applyMetrics(metrics)

	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, apperrors.DatabaseError("create event", err)
	}

	s.logger.Info("check-in recorded",
		zap.String("user_id", req.UserID),
		zap.String("site_id", site.ID),
		zap.String("status", string(event.Status)),
		zap.Int("risk_score", event.RiskScore),
	)
	return &SubmissionResult{Event: event, Decision: decision}, nil
}

// CheckOut closes the user's open event and recomputes its classification
// with the check-out instant. Classification is idempotent, so a retried
// check-out lands on the same metrics.
func (s *Service) CheckOut(ctx context.Context, req CheckOutRequest) (*SubmissionResult, error) {
	now := s.now().UTC()

	event, err := s.store.OpenEvent(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.NoOpenCheckIn(req.UserID)
		}
		return nil, apperrors.DatabaseError("find open event", err)
	}

	site, err := s.store.SiteByID(ctx, event.SiteID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.SiteNotFound(event.SiteID)
		}
		return nil, apperrors.DatabaseError("load site", err)
	}

	decision, err := s.gateway.ValidateSubmission(ctx, integrity.Submission{
		Action:     integrity.ActionCheckOut,
		Site:       site,
		Coordinate: req.Coordinate,
		Signals:    req.Signals,
		Timestamp:  now,
	})
	if err != nil {
		return nil, apperrors.SystemicFailure("integrity-gateway", err)
	}
	s.recordDecision(ctx, integrity.ActionCheckOut, req.UserID, site.ID, req.Signals, decision)
	if !decision.Accepted {
		return nil, rejectionError(decision)
	}

	checkOut := now
	metrics, err := s.gateway.ClassifyEvent(site, event.CheckIn, &checkOut, now)
	if err != nil {
		return nil, apperrors.SystemicFailure("classifier", err)
	}

	event.CheckOut = &checkOut
	event.applyMetrics(metrics)
	if decision.RiskScore > event.RiskScore {
		event.RiskScore = decision.RiskScore
	}
	event.UpdatedAt = now

	if err := s.store.CompleteEvent(ctx, event); err != nil {
		return nil, apperrors.DatabaseError("complete event", err)
	}

	s.logger.Info("check-out recorded",
		zap.String("user_id", req.UserID),
		zap.String("site_id", site.ID),
		zap.String("status", string(event.Status)),
		zap.Int("work_minutes", event.WorkDurationMinutes),
	)
	return &SubmissionResult{Event: event, Decision: decision}, nil
}

// History returns the user's events over the trailing default range,
// ascending by check-in time.
func (s *Service) History(ctx context.Context, userID string, days int) ([]Event, error) {
	if days <= 0 || days > 365 {
		days = s.cfg.HistoryDays
	}
	since := s.now().UTC().AddDate(0, 0, -days)
	events, err := s.store.ListEvents(ctx, userID, since, 0)
	if err != nil {
		return nil, apperrors.DatabaseError("list events", err)
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}

// Anomalies runs the pattern detector over the user's recent history. The
// report is derived per request and never persisted.
func (s *Service) Anomalies(ctx context.Context, userID string) (anomaly.Report, error) {
	since := s.now().UTC().AddDate(0, 0, -s.cfg.AnomalyWindowDays)
	events, err := s.store.ListEvents(ctx, userID, since, 0)
	if err != nil {
		return anomaly.Report{}, apperrors.DatabaseError("list events", err)
	}

	history := make([]anomaly.Event, 0, len(events))
	for _, e := range events {
		ae := anomaly.Event{
			ID:        e.ID,
			UserID:    e.UserID,
			CheckIn:   e.CheckIn,
			CheckOut:  e.CheckOut,
			Latitude:  e.Latitude,
			Longitude: e.Longitude,
		}
		// Photo presence comes from the oracle; a miss is treated as no
		// photo rather than failing the whole report.
		if meta, err := s.photos.PhotoMeta(ctx, e.ID); err == nil {
			ae.HasPhoto = meta.HasPhoto
			ae.PhotoByteSize = meta.ByteSize
		}
		history = append(history, ae)
	}

	report := s.gateway.AnalyzeHistory(userID, history)
	middleware.AnomalyReportsTotal.WithLabelValues(string(report.RiskLevel)).Inc()

	if report.RiskLevel == anomaly.RiskHigh || report.RiskLevel == anomaly.RiskMedium {
		rec := audit.NewRecord("anomaly_scan", userID)
		rec.Outcome = audit.OutcomeFlagged
		rec.Reason = string(report.RiskLevel)
		rec.RiskScore = report.TotalScore
		s.sink.Write(ctx, rec)
	}
	return report, nil
}

// WindowInfo describes a site's operational window around an instant.
type WindowInfo struct {
	SiteID   string          `json:"site_id"`
	SiteName string          `json:"site_name"`
	Timezone string          `json:"timezone"`
	Open     bool            `json:"open"`
	Window   schedule.Window `json:"window"`
	NextOpen *time.Time      `json:"next_open,omitempty"`
}

// SiteWindow resolves the operational window of a site at an instant.
func (s *Service) SiteWindow(ctx context.Context, siteID string, at time.Time) (WindowInfo, error) {
	site, err := s.store.SiteByID(ctx, siteID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return WindowInfo{}, apperrors.SiteNotFound(siteID)
		}
		return WindowInfo{}, apperrors.DatabaseError("load site", err)
	}
	if err := site.Validate(); err != nil {
		return WindowInfo{}, apperrors.SystemicFailure("site-config", err)
	}

	win, err := schedule.ResolveWindow(site, at)
	if err != nil {
		return WindowInfo{}, apperrors.SystemicFailure("site-config", err)
	}

	info := WindowInfo{
		SiteID:   site.ID,
		SiteName: site.Name,
		Timezone: site.Timezone,
		Open:     site.IsWorkDay(at) && win.Contains(at),
		Window:   win,
	}
	if !info.Open {
		if next, err := schedule.NextOpenWindow(site, at); err == nil {
			info.NextOpen = &next.Start
		}
	}
	return info, nil
}

// recordDecision emits the decision metrics and the audit record. Both are
// fire-and-forget; neither can fail a submission.
func (s *Service) recordDecision(ctx context.Context, action integrity.Action, userID, siteID string, sig devicerisk.ClientSignals, d integrity.Decision) {
	outcome := audit.OutcomeRejected
	if d.Accepted {
		outcome = audit.OutcomeAccepted
	}
	middleware.SubmissionDecisionsTotal.WithLabelValues(string(action), string(outcome), string(d.Reason)).Inc()
	middleware.SubmissionRiskScore.Observe(float64(d.RiskScore))

	rec := audit.NewRecord(string(action), userID)
	rec.SiteID = siteID
	rec.Outcome = outcome
	rec.Reason = string(d.Reason)
	rec.RiskScore = d.RiskScore
	rec.Warnings = d.Warnings
	rec.IP = sig.IP
	rec.UserAgent = sig.UserAgent
	s.sink.Write(ctx, rec)
}

// rejectionError maps a gateway rejection onto the error taxonomy so the
// HTTP layer renders the right status and payload.
func rejectionError(d integrity.Decision) *apperrors.AppError {
	var appErr *apperrors.AppError
	switch d.Reason {
	case integrity.ReasonHardInvalid:
		appErr = apperrors.HardInvalid(d.UserMessage)
	case integrity.ReasonGeofence:
		appErr = apperrors.GeofenceViolation(d.UserMessage, d.DistanceMeters)
	case integrity.ReasonClosedWindow:
		appErr = apperrors.PolicyViolation(d.UserMessage)
	case integrity.ReasonHighRisk:
		appErr = apperrors.HighRisk(d.UserMessage, d.RiskScore)
	default:
		appErr = apperrors.BadRequest(d.UserMessage)
	}
	appErr = appErr.WithMetadata("retry_suggested", d.RetrySuggested)
	if len(d.Warnings) > 0 {
		appErr = appErr.WithMetadata("warnings", d.Warnings)
	}
	return appErr
}
