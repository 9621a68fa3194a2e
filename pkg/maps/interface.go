package maps

import (
	"context"
	"time"
)

// RouteProvider computes a drivable path between two coordinates. Providers
// are best effort: a failed or empty lookup is reported as an error and the
// caller keeps whatever route it had before.
type RouteProvider interface {
	Route(ctx context.Context, origin, destination Coordinate) (*Route, error)
}

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Route struct {
	Points     []Coordinate  `json:"points"`
	DistanceKM float64       `json:"distance_km"`
	Duration   time.Duration `json:"duration"`
	Summary    string        `json:"summary,omitempty"`
}
