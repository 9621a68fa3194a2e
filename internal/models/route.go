package models

import "time"

// Route is a computed driving path between the ambulance and the patient.
// Never persisted with the request; cached per tracking session and replaced
// wholesale on every successful recomputation.
type Route struct {
	Points     []RoutePoint  `json:"points"`
	DistanceKM float64       `json:"distance_km"`
	Duration   time.Duration `json:"duration"`
	Summary    string        `json:"summary,omitempty"`
	ComputedAt time.Time     `json:"computed_at"`
}

type RoutePoint struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}
