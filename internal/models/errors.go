package models

import "errors"

var (
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrUnitUnavailable    = errors.New("ambulance is not available")
	ErrRequestNotFound    = errors.New("emergency request not found")
	ErrAmbulanceNotFound  = errors.New("ambulance not found")
)
