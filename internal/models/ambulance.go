package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AmbulanceAvailability string

const (
	AmbulanceAvailable   AmbulanceAvailability = "available"
	AmbulanceBusy        AmbulanceAvailability = "busy"
	AmbulanceMaintenance AmbulanceAvailability = "maintenance"
)

// Ambulance availability flips only as a side effect of request transitions:
// busy exactly while the unit is assigned to a non-terminal request, back to
// available on completion or cancellation. Maintenance is mutually exclusive
// with being assigned.
type Ambulance struct {
	ID                 primitive.ObjectID    `json:"id" bson:"_id,omitempty"`
	VehicleNumber      string                `json:"vehicle_number" bson:"vehicle_number" validate:"required"`
	CallSign           string                `json:"call_sign" bson:"call_sign"`
	Hospital           string                `json:"hospital" bson:"hospital"`
	DriverName         string                `json:"driver_name" bson:"driver_name"`
	DriverContact      string                `json:"driver_contact" bson:"driver_contact"`
	DeviceToken        string                `json:"device_token" bson:"device_token"`
	Availability       AmbulanceAvailability `json:"availability" bson:"availability" default:"available"`
	CurrentLocation    *Location             `json:"current_location" bson:"current_location"`
	LastLocationUpdate *time.Time            `json:"last_location_update" bson:"last_location_update"`
	TotalMissions      int64                 `json:"total_missions" bson:"total_missions" default:"0"`
	CreatedAt          time.Time             `json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at" bson:"updated_at"`
}
