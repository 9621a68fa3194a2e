package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RequestStatus string

const (
	RequestStatusPending    RequestStatus = "pending"
	RequestStatusAssigned   RequestStatus = "assigned"
	RequestStatusDispatched RequestStatus = "dispatched"
	RequestStatusArrived    RequestStatus = "arrived"
	RequestStatusCompleted  RequestStatus = "completed"
	RequestStatusCancelled  RequestStatus = "cancelled"
)

// EmergencyRequest is the durable record for one ambulance request.
// Location is the patient's position and is only ever written by the patient
// side; AmbulanceLocation is the last known unit position, persisted
// opportunistically by the ambulance side as a recovery hint. The two fields
// are disjoint so the agents never contend on a write.
type EmergencyRequest struct {
	ID                primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	RequesterEmail    string              `json:"requester_email" bson:"requester_email" validate:"required,email"`
	Note              string              `json:"note" bson:"note"`
	ContactNumber     string              `json:"contact_number" bson:"contact_number" validate:"required"`
	Location          Location            `json:"location" bson:"location" validate:"required"`
	AmbulanceLocation *Location           `json:"ambulance_location" bson:"ambulance_location"`
	Status            RequestStatus       `json:"status" bson:"status" default:"pending"`
	AmbulanceID       *primitive.ObjectID `json:"ambulance_id" bson:"ambulance_id"`
	AssignedAt        *time.Time          `json:"assigned_at" bson:"assigned_at"`
	DispatchedAt      *time.Time          `json:"dispatched_at" bson:"dispatched_at"`
	ArrivedAt         *time.Time          `json:"arrived_at" bson:"arrived_at"`
	CompletedAt       *time.Time          `json:"completed_at" bson:"completed_at"`
	CancelledAt       *time.Time          `json:"cancelled_at" bson:"cancelled_at"`
	CancelReason      string              `json:"cancel_reason" bson:"cancel_reason"`
	CreatedAt         time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at" bson:"updated_at"`
}

func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusCancelled
}

// CanTransitionTo reports whether the state machine allows moving from s to
// next. Transitions only move forward; cancellation is reachable from pending
// and assigned only, before a unit is on the road.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	switch next {
	case RequestStatusAssigned:
		return s == RequestStatusPending
	case RequestStatusDispatched:
		return s == RequestStatusAssigned
	case RequestStatusArrived:
		return s == RequestStatusDispatched
	case RequestStatusCompleted:
		return s == RequestStatusArrived
	case RequestStatusCancelled:
		return s == RequestStatusPending || s == RequestStatusAssigned
	default:
		return false
	}
}

// ActiveStatuses are the non-terminal states, i.e. what "active request"
// queries filter on.
func ActiveStatuses() []RequestStatus {
	return []RequestStatus{
		RequestStatusPending,
		RequestStatusAssigned,
		RequestStatusDispatched,
		RequestStatusArrived,
	}
}
