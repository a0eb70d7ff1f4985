package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upChecker(name string, critical bool) Checker {
	return NewFuncChecker(name, func(context.Context) ComponentStatus {
		return ComponentStatus{Status: "up"}
	}, critical)
}

func downChecker(name string, critical bool) Checker {
	return NewFuncChecker(name, func(context.Context) ComponentStatus {
		return ComponentStatus{Status: "down", Details: "connection refused"}
	}, critical)
}

func TestCheckAggregatesStatuses(t *testing.T) {
	svc := NewService("1.0.0", nil)
	svc.Register(upChecker("database", true))
	svc.Register(upChecker("redis", false))

	resp := svc.Check(context.Background())
	assert.Equal(t, "up", resp.Status)
	assert.Len(t, resp.Components, 2)
	assert.Equal(t, "1.0.0", resp.Version)
}

func TestCheckDownComponentWinsOverDegraded(t *testing.T) {
	svc := NewService("", nil)
	svc.Register(downChecker("database", true))
	svc.Register(NewFuncChecker("redis", func(context.Context) ComponentStatus {
		return ComponentStatus{Status: "degraded", Details: "high latency"}
	}, false))

	resp := svc.Check(context.Background())
	assert.Equal(t, "down", resp.Status)
}

func TestHandlerReturns503WhenDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	svc := NewService("", nil)
	svc.Register(downChecker("database", true))
	svc.RegisterRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadyIgnoresNonCriticalOutage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	svc := NewService("", nil)
	svc.Register(upChecker("database", true))
	svc.Register(downChecker("elasticsearch", false))
	svc.RegisterRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ready")
}

func TestReadyFailsOnCriticalOutage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	svc := NewService("", nil)
	svc.Register(downChecker("database", true))
	svc.RegisterRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "database")
}

func TestLiveAlwaysOK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	svc := NewService("", nil)
	svc.Register(downChecker("database", true))
	svc.RegisterRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatusFrom(t *testing.T) {
	s := statusFrom(nil, 10*time.Millisecond, 500*time.Millisecond)
	assert.Equal(t, "up", s.Status)

	s = statusFrom(nil, time.Second, 500*time.Millisecond)
	assert.Equal(t, "degraded", s.Status)
	assert.Equal(t, "high latency", s.Details)

	s = statusFrom(errors.New("boom"), time.Millisecond, 500*time.Millisecond)
	assert.Equal(t, "down", s.Status)
	assert.Equal(t, "boom", s.Details)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "3m 5s", formatDuration(3*time.Minute+5*time.Second))
	assert.Equal(t, "2h 0m 1s", formatDuration(2*time.Hour+time.Second))
	assert.Equal(t, "1d 1h 0m 0s", formatDuration(25*time.Hour))
}
