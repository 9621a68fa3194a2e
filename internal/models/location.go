package models

import (
	"fmt"
	"math"
	"time"
)

// Location is stored as a GeoJSON Point so Mongo geo indexes work on it.
// Coordinates are [longitude, latitude].
type Location struct {
	Type        string    `json:"type" bson:"type" default:"Point"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates" validate:"required,len=2"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
}

func NewLocation(lat, lng float64) Location {
	return Location{
		Type:        "Point",
		Coordinates: []float64{lng, lat},
		Timestamp:   time.Now(),
	}
}

func (l Location) Latitude() float64 {
	if len(l.Coordinates) >= 2 {
		return l.Coordinates[1]
	}
	return 0
}

func (l Location) Longitude() float64 {
	if len(l.Coordinates) >= 1 {
		return l.Coordinates[0]
	}
	return 0
}

func (l Location) Validate() error {
	if len(l.Coordinates) != 2 {
		return fmt.Errorf("%w: coordinates must be [lng, lat]", ErrInvalidCoordinates)
	}
	lat, lng := l.Latitude(), l.Longitude()
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return fmt.Errorf("%w: coordinate is not a finite number", ErrInvalidCoordinates)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude must be between -90 and 90", ErrInvalidCoordinates)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("%w: longitude must be between -180 and 180", ErrInvalidCoordinates)
	}
	return nil
}
