// Package errors provides structured error handling for Attendix
package errors

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorCode represents an application error code
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrBadRequest ErrorCode = "BAD_REQUEST"
	ErrConflict   ErrorCode = "CONFLICT"
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrTimeout    ErrorCode = "TIMEOUT"

	// Submission rejection taxonomy
	ErrHardInvalid       ErrorCode = "HARD_INVALID"
	ErrGeofenceViolation ErrorCode = "GEOFENCE_VIOLATION"
	ErrPolicyViolation   ErrorCode = "POLICY_VIOLATION"
	ErrHighRisk          ErrorCode = "HIGH_RISK"
	ErrSystemicFailure   ErrorCode = "SYSTEMIC_FAILURE"

	// Resource errors
	ErrSiteNotFound     ErrorCode = "SITE_NOT_FOUND"
	ErrEventNotFound    ErrorCode = "EVENT_NOT_FOUND"
	ErrNoOpenCheckIn    ErrorCode = "NO_OPEN_CHECK_IN"
	ErrAlreadyCheckedIn ErrorCode = "ALREADY_CHECKED_IN"

	// External service errors
	ErrDatabase ErrorCode = "DATABASE_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	StatusCode int                    `json:"-"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Err        error                  `json:"-"` // Original error for logging
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the original error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithMetadata adds metadata to the error
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an existing error into an AppError
func Wrap(err error, code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Predefined errors

// Internal creates an internal server error
func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       ErrInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NotFound creates a not found error
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrBadRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return &AppError{
		Code:       ErrConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// ValidationError creates a validation error
func ValidationError(message string) *AppError {
	return &AppError{
		Code:       ErrValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// Timeout creates a timeout error
func Timeout(message string) *AppError {
	return &AppError{
		Code:       ErrTimeout,
		Message:    message,
		StatusCode: http.StatusGatewayTimeout,
	}
}

// Submission rejections. The HTTP layer maps gateway decisions onto these;
// 422 marks business rejections the client should not blindly retry.

// HardInvalid creates a structurally-impossible-input rejection
func HardInvalid(message string) *AppError {
	return &AppError{
		Code:       ErrHardInvalid,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// GeofenceViolation creates a geofence rejection carrying the measured distance
func GeofenceViolation(message string, distanceMeters float64) *AppError {
	return (&AppError{
		Code:       ErrGeofenceViolation,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}).WithMetadata("distance_meters", distanceMeters)
}

// PolicyViolation creates an outside-operational-window rejection
func PolicyViolation(message string) *AppError {
	return &AppError{
		Code:       ErrPolicyViolation,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// HighRisk creates a risk-ceiling rejection
func HighRisk(message string, riskScore int) *AppError {
	return (&AppError{
		Code:       ErrHighRisk,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}).WithMetadata("risk_score", riskScore)
}

// SystemicFailure creates a degraded-dependency error
func SystemicFailure(component string, err error) *AppError {
	return &AppError{
		Code:       ErrSystemicFailure,
		Message:    "A backing service is unavailable",
		Details:    component,
		StatusCode: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// Resource-specific errors

// SiteNotFound creates a site not found error
func SiteNotFound(siteID string) *AppError {
	return (&AppError{
		Code:       ErrSiteNotFound,
		Message:    "Site not found",
		StatusCode: http.StatusNotFound,
	}).WithMetadata("site_id", siteID)
}

// EventNotFound creates an attendance event not found error
func EventNotFound(eventID string) *AppError {
	return (&AppError{
		Code:       ErrEventNotFound,
		Message:    "Attendance event not found",
		StatusCode: http.StatusNotFound,
	}).WithMetadata("event_id", eventID)
}

// NoOpenCheckIn creates an error for a check-out without a matching check-in
func NoOpenCheckIn(userID string) *AppError {
	return (&AppError{
		Code:       ErrNoOpenCheckIn,
		Message:    "No open check-in found for this user",
		StatusCode: http.StatusConflict,
	}).WithMetadata("user_id", userID)
}

// AlreadyCheckedIn creates an error for a second check-in on an open event
func AlreadyCheckedIn(userID string) *AppError {
	return (&AppError{
		Code:       ErrAlreadyCheckedIn,
		Message:    "An open check-in already exists for this user",
		StatusCode: http.StatusConflict,
	}).WithMetadata("user_id", userID)
}

// DatabaseError creates a database error
func DatabaseError(operation string, err error) *AppError {
	return &AppError{
		Code:       ErrDatabase,
		Message:    "Database operation failed",
		Details:    operation,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// ErrorResponse is the JSON response structure for errors
type ErrorResponse struct {
	Error     ErrorCode              `json:"error"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

// HandleError sends an error response to the client
func HandleError(c *gin.Context, err error) {
	var appErr *AppError
	var ok bool

	// Check if it's an AppError
	if appErr, ok = err.(*AppError); !ok {
		// If not, wrap it as an internal error
		appErr = Internal("An unexpected error occurred", err)
	}

	// Get request ID from context
	requestID, _ := c.Get("request_id")
	reqIDStr, _ := requestID.(string)

	// Build error response
	response := ErrorResponse{
		Error:     appErr.Code,
		Message:   appErr.Message,
		Details:   appErr.Details,
		Metadata:  appErr.Metadata,
		RequestID: reqIDStr,
	}

	// Set status code and send response
	c.JSON(appErr.StatusCode, response)
}

// ErrorHandler is a middleware that handles panics and converts them to errors
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				var appErr *AppError

				switch e := err.(type) {
				case *AppError:
					appErr = e
				case error:
					appErr = Internal("Internal server error", e)
				default:
					appErr = Internal("Internal server error", fmt.Errorf("%v", err))
				}

				HandleError(c, appErr)
				c.Abort()
			}
		}()

		c.Next()
	}
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// GetStatusCode returns the HTTP status code for an error
func GetStatusCode(err error) int {
	if appErr, ok := err.(*AppError); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
