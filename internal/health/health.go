// Package health aggregates dependency probes into liveness and readiness
// endpoints for Attendix services.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ComponentStatus is the probe result for one dependency.
type ComponentStatus struct {
	Status    string  `json:"status"` // up, degraded, down
	LatencyMS float64 `json:"latency_ms"`
	Details   string  `json:"details,omitempty"`
	CheckedAt string  `json:"checked_at"`
}

// Response is the aggregated health payload.
type Response struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentStatus `json:"components"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	CheckedAt  string                     `json:"checked_at"`
}

// Checker probes one dependency. Critical checkers gate readiness; the rest
// only degrade the detailed health view.
type Checker interface {
	Name() string
	Check(ctx context.Context) ComponentStatus
	IsCritical() bool
}

// Service runs registered checkers concurrently and aggregates the results.
type Service struct {
	checkers  []Checker
	logger    *zap.Logger
	startTime time.Time
	version   string
	mu        sync.RWMutex
}

// NewService creates a health service.
func NewService(version string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		logger:    logger.With(zap.String("component", "health")),
		startTime: time.Now(),
		version:   version,
	}
}

// Register adds a checker.
func (s *Service) Register(c Checker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers = append(s.checkers, c)
	s.logger.Info("Registered health checker",
		zap.String("name", c.Name()),
		zap.Bool("critical", c.IsCritical()))
}

// Check runs every checker concurrently, each with a 5s budget.
func (s *Service) Check(ctx context.Context) *Response {
	s.mu.RLock()
	checkers := make([]Checker, len(s.checkers))
	copy(checkers, s.checkers)
	s.mu.RUnlock()

	type result struct {
		name   string
		status ComponentStatus
	}
	results := make(chan result, len(checkers))
	for _, c := range checkers {
		go func(c Checker) {
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			results <- result{name: c.Name(), status: c.Check(checkCtx)}
		}(c)
	}

	components := make(map[string]ComponentStatus, len(checkers))
	overall := "up"
	for range checkers {
		r := <-results
		components[r.name] = r.status
		switch r.status.Status {
		case "down":
			overall = "down"
			s.logger.Warn("Component is down", zap.String("name", r.name))
		case "degraded":
			if overall != "down" {
				overall = "degraded"
			}
		}
	}

	return &Response{
		Status:     overall,
		Components: components,
		Version:    s.version,
		Uptime:     formatDuration(time.Since(s.startTime)),
		CheckedAt:  time.Now().UTC().Format(time.RFC3339),
	}
}

// Handler serves the detailed health view: 200 for up/degraded, 503 for down.
func (s *Service) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := s.Check(c.Request.Context())
		code := http.StatusOK
		if resp.Status == "down" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, resp)
	}
}

// ReadyHandler gates readiness on critical components only.
func (s *Service) ReadyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := s.Check(c.Request.Context())

		s.mu.RLock()
		checkers := make([]Checker, len(s.checkers))
		copy(checkers, s.checkers)
		s.mu.RUnlock()

		for _, chk := range checkers {
			if !chk.IsCritical() {
				continue
			}
			if comp, ok := resp.Components[chk.Name()]; ok && comp.Status == "down" {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "not ready",
					"reason": fmt.Sprintf("critical component %s is down", chk.Name()),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// LiveHandler answers liveness probes as long as the process runs.
func (s *Service) LiveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "alive",
			"uptime": formatDuration(time.Since(s.startTime)),
		})
	}
}

// RegisterRoutes mounts /health, /ready, and /live on the router.
func (s *Service) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", s.Handler())
	router.GET("/ready", s.ReadyHandler())
	router.GET("/live", s.LiveHandler())
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
