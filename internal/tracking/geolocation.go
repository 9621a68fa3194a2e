package tracking

import (
	"context"
	"time"
)

// Position is one device geolocation sample.
type Position struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}

// PositionSource abstracts device geolocation. Implementations wrap whatever
// the host platform provides (a GPS daemon, a phone bridge, a simulator).
//
// Watch delivers samples to fn until stop is called; acquisition errors
// (permission denied, no fix within WatchErrorTimeout) go to errFn and do
// not end the watch — the workflow continues without a live position until
// samples resume. Once is a single fetch bounded by the caller's ctx
// deadline, normally PositionOnceTimeout.
type PositionSource interface {
	Watch(ctx context.Context, fn func(Position), errFn func(error)) (stop func(), err error)
	Once(ctx context.Context) (Position, error)
}
