package utils

// Application Constants
const (
	AppName    = "Lifeline"
	AppVersion = "1.0.0"

	// Response statuses
	StatusSuccess = "success"
	StatusError   = "error"

	// Common error messages
	ErrValidationFailed = "Validation failed"
	ErrInternalServer   = "Internal server error"
	ErrUnauthorized     = "Unauthorized"
	ErrForbidden        = "Forbidden"

	// Geometry
	EarthRadiusKM = 6371.0

	// Pagination
	DefaultPageSize = 20
	MaxPageSize     = 100

	// Dispatch Constants
	DefaultSearchRadiusKM = 15.0 // nearest-unit suggestions
	MaxDispatchDistanceKM = 100.0
)
