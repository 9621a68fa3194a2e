package tracking

import (
	"context"

	"lifeline/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Dispatcher is the slice of the dispatch service the ambulance agent drives
// its transitions through.
type Dispatcher interface {
	Dispatch(ctx context.Context, requestID primitive.ObjectID, position *models.Location) (*models.EmergencyRequest, error)
	Arrive(ctx context.Context, requestID primitive.ObjectID) (*models.EmergencyRequest, error)
	Complete(ctx context.Context, requestID primitive.ObjectID) (*models.EmergencyRequest, error)
}

// RequestStore is the slice of the request repository the agents read and
// opportunistically write through.
type RequestStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.EmergencyRequest, error)
	SetPatientLocation(ctx context.Context, id primitive.ObjectID, location models.Location) error
	SetAmbulanceLocation(ctx context.Context, id primitive.ObjectID, location models.Location) error
	Watch(ctx context.Context, id primitive.ObjectID) (<-chan models.RequestChange, error)
}
