package devicerisk

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Risk contributions. Independent and additive; the total is not capped.
const (
	vpnNetworkScore       = 30
	weakUserAgentScore    = 40
	botUserAgentScore     = 50
	fingerprintChurnScore = 20
	fingerprintDriftScore = 25
	impossibleTravelScore = 35
)

// maxFingerprintsPerIP is how many distinct fingerprints one IP may present
// within the churn window before the IP itself is considered risky.
const maxFingerprintsPerIP = 3

// impossibleTravelWindow is the minimum elapsed time in which a country
// change is considered physically plausible.
const impossibleTravelWindow = 60 * time.Minute

// Assessment is the outcome of scoring one submission's client signals.
type Assessment struct {
	Fingerprint  string   `json:"fingerprint"`
	RiskScore    int      `json:"risk_score"`
	Warnings     []string `json:"warnings"`
	IsSuspicious bool     `json:"is_suspicious"`
}

// Scorer computes device risk assessments. Stateless apart from the injected
// cache; safe for concurrent use.
type Scorer struct {
	cache  Cache
	logger *zap.Logger
}

// NewScorer creates a device risk scorer.
func NewScorer(cache Cache, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{
		cache:  cache,
		logger: logger.With(zap.String("component", "device_risk_scorer")),
	}
}

// Assess fingerprints the client and accumulates risk contributions from the
// network, user agent, and fingerprint/location history. Cache failures
// degrade to "no prior signal": a submission is never rejected because the
// cache is down.
func (s *Scorer) Assess(ctx context.Context, sig ClientSignals) Assessment {
	a := Assessment{
		Fingerprint: ComputeFingerprint(sig),
		Warnings:    []string{},
	}

	if score, warning := classifyUserAgent(sig.UserAgent); score > 0 {
		a.add(score, warning)
	}

	if IsVPNRange(sig.IP) {
		a.add(vpnNetworkScore, fmt.Sprintf("ip %s is in a known vpn/proxy range", sig.IP))
	}

	s.assessChurn(ctx, sig, &a)
	s.assessDrift(ctx, sig, &a)
	s.assessTravel(ctx, sig, &a)

	a.IsSuspicious = a.RiskScore > 0
	if a.IsSuspicious {
		s.logger.Info("suspicious device signals",
			zap.String("user_id", sig.UserID),
			zap.String("fingerprint", shortHash(a.Fingerprint)),
			zap.Int("risk_score", a.RiskScore),
			zap.Strings("warnings", a.Warnings),
		)
	}

	return a
}

func (s *Scorer) assessChurn(ctx context.Context, sig ClientSignals, a *Assessment) {
	if sig.IP == "" {
		return
	}

	distinct, err := s.cache.DistinctFingerprints(ctx, sig.IP, a.Fingerprint)
	if err != nil {
		s.logger.Warn("fingerprint churn lookup failed, skipping signal", zap.Error(err))
		return
	}
	if distinct > maxFingerprintsPerIP {
		a.add(fingerprintChurnScore,
			fmt.Sprintf("%d distinct devices seen from ip %s within the last hour", distinct, sig.IP))
	}
}

func (s *Scorer) assessDrift(ctx context.Context, sig ClientSignals, a *Assessment) {
	if sig.UserID == "" {
		return
	}

	prior, err := s.cache.LastFingerprint(ctx, sig.UserID)
	if err != nil {
		s.logger.Warn("fingerprint history lookup failed, skipping signal", zap.Error(err))
	} else if prior != "" && prior != a.Fingerprint {
		a.add(fingerprintDriftScore,
			fmt.Sprintf("device fingerprint changed since last submission (was %s)", shortHash(prior)))
	}

	if err := s.cache.StoreFingerprint(ctx, sig.UserID, a.Fingerprint); err != nil {
		s.logger.Warn("failed to store fingerprint", zap.Error(err))
	}
}

func (s *Scorer) assessTravel(ctx context.Context, sig ClientSignals, a *Assessment) {
	if sig.UserID == "" {
		return
	}

	country := CountryForIP(sig.IP)
	if country == "" {
		return
	}

	observedAt := sig.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now()
	}

	prior, err := s.cache.LastCountry(ctx, sig.UserID)
	if err != nil {
		s.logger.Warn("location history lookup failed, skipping signal", zap.Error(err))
	} else if prior.Country != "" && prior.Country != country &&
		observedAt.Sub(prior.SeenAt) < impossibleTravelWindow {
		a.add(impossibleTravelScore,
			fmt.Sprintf("country changed %s -> %s within %s of the previous event",
				prior.Country, country, observedAt.Sub(prior.SeenAt).Round(time.Minute)))
	}

	sighting := CountrySighting{Country: country, SeenAt: observedAt}
	if err := s.cache.StoreCountry(ctx, sig.UserID, sighting); err != nil {
		s.logger.Warn("failed to store country sighting", zap.Error(err))
	}
}

func (a *Assessment) add(score int, warning string) {
	a.RiskScore += score
	a.Warnings = append(a.Warnings, warning)
}

func shortHash(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:16] + "..."
}
