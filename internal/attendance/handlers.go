package attendance

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/attendix/attendix/internal/common/errors"
	"github.com/attendix/attendix/internal/common/logger"
	"github.com/attendix/attendix/internal/devicerisk"
	"github.com/attendix/attendix/internal/geo"
)

// Handler exposes the attendance service over HTTP.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates the attendance HTTP handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service: service,
		logger:  logger.With(zap.String("component", "attendance_handler")),
	}
}

// RegisterRoutes mounts the attendance routes on a versioned group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/attendance/check-in", h.CheckIn)
	r.POST("/attendance/check-out", h.CheckOut)
	r.GET("/attendance/:userID/history", h.History)
	r.GET("/attendance/:userID/anomalies", h.Anomalies)
	r.GET("/sites/:siteID/window", h.SiteWindow)
}

// deviceInfo is the client-reported half of the fingerprint signals. All
// fields are optional; absent signals narrow the fingerprint, they do not
// fail the request.
type deviceInfo struct {
	ScreenResolution string `json:"screen_resolution"`
	Timezone         string `json:"timezone"`
	Language         string `json:"language"`
	Platform         string `json:"platform"`
	CanvasHash       string `json:"canvas_hash"`
	WebGLHash        string `json:"webgl_hash"`
}

type checkInRequest struct {
	UserID         string     `json:"user_id" binding:"required"`
	SiteID         string     `json:"site_id" binding:"required"`
	Latitude       float64    `json:"latitude"`
	Longitude      float64    `json:"longitude"`
	AccuracyMeters *float64   `json:"accuracy_meters"`
	Device         deviceInfo `json:"device"`
	HasPhoto       bool       `json:"has_photo"`
	PhotoByteSize  int64      `json:"photo_byte_size"`
}

type checkOutRequest struct {
	UserID         string     `json:"user_id" binding:"required"`
	Latitude       float64    `json:"latitude"`
	Longitude      float64    `json:"longitude"`
	AccuracyMeters *float64   `json:"accuracy_meters"`
	Device         deviceInfo `json:"device"`
}

// CheckIn handles POST /v1/attendance/check-in.
func (h *Handler) CheckIn(c *gin.Context) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleError(c, apperrors.ValidationError(err.Error()))
		return
	}

	result, err := h.service.CheckIn(c.Request.Context(), CheckInRequest{
		UserID:        req.UserID,
		SiteID:        req.SiteID,
		Coordinate:    coordinate(req.Latitude, req.Longitude, req.AccuracyMeters),
		Signals:       clientSignals(c, req.UserID, req.Device),
		HasPhoto:      req.HasPhoto,
		PhotoByteSize: req.PhotoByteSize,
	})
	if err != nil {
		h.requestLog(c).Warn("check-in refused",
			zap.String("user_id", req.UserID),
			zap.String("site_id", req.SiteID),
			zap.Error(err))
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// CheckOut handles POST /v1/attendance/check-out.
func (h *Handler) CheckOut(c *gin.Context) {
	var req checkOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleError(c, apperrors.ValidationError(err.Error()))
		return
	}

	result, err := h.service.CheckOut(c.Request.Context(), CheckOutRequest{
		UserID:     req.UserID,
		Coordinate: coordinate(req.Latitude, req.Longitude, req.AccuracyMeters),
		Signals:    clientSignals(c, req.UserID, req.Device),
	})
	if err != nil {
		h.requestLog(c).Warn("check-out refused",
			zap.String("user_id", req.UserID),
			zap.Error(err))
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// History handles GET /v1/attendance/:userID/history?days=30.
func (h *Handler) History(c *gin.Context) {
	userID := c.Param("userID")
	days := 0
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			apperrors.HandleError(c, apperrors.ValidationError("days must be an integer"))
			return
		}
		days = parsed
	}

	events, err := h.service.History(c.Request.Context(), userID, days)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id": userID,
		"events":  events,
		"count":   len(events),
	})
}

// Anomalies handles GET /v1/attendance/:userID/anomalies.
func (h *Handler) Anomalies(c *gin.Context) {
	userID := c.Param("userID")

	report, err := h.service.Anomalies(c.Request.Context(), userID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id": userID,
		"report":  report,
	})
}

// SiteWindow handles GET /v1/sites/:siteID/window?at=RFC3339. The instant
// defaults to now.
func (h *Handler) SiteWindow(c *gin.Context) {
	siteID := c.Param("siteID")
	at := time.Now().UTC()
	if raw := c.Query("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			apperrors.HandleError(c, apperrors.ValidationError("at must be RFC3339"))
			return
		}
		at = parsed
	}

	info, err := h.service.SiteWindow(c.Request.Context(), siteID, at)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// requestLog enriches the handler logger with the request id and any active
// trace context so refusals correlate with the access log and traces.
func (h *Handler) requestLog(c *gin.Context) *zap.Logger {
	l := logger.WithTraceContext(h.logger, c.Request.Context())
	return logger.WithRequestID(l, c.GetString("request_id"))
}

func coordinate(lat, lon float64, accuracy *float64) geo.Coordinate {
	return geo.Coordinate{
		Latitude:       lat,
		Longitude:      lon,
		AccuracyMeters: accuracy,
	}
}

// clientSignals assembles fingerprint input from the request transport and
// the client-reported device block.
func clientSignals(c *gin.Context, userID string, dev deviceInfo) devicerisk.ClientSignals {
	accept := strings.Join([]string{
		c.GetHeader("Accept"),
		c.GetHeader("Accept-Language"),
		c.GetHeader("Accept-Encoding"),
	}, ";")

	return devicerisk.ClientSignals{
		UserID:        userID,
		IP:            c.ClientIP(),
		UserAgent:     c.GetHeader("User-Agent"),
		AcceptHeaders: accept,
		ScreenRes:     dev.ScreenResolution,
		Timezone:      dev.Timezone,
		Language:      dev.Language,
		Platform:      dev.Platform,
		CanvasHash:    dev.CanvasHash,
		WebGLHash:     dev.WebGLHash,
		ObservedAt:    time.Now().UTC(),
	}
}
