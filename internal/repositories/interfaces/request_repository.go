package interfaces

import (
	"context"

	"lifeline/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RequestRepository interface {
	// Basic record operations
	Create(ctx context.Context, request *models.EmergencyRequest) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.EmergencyRequest, error)
	GetActive(ctx context.Context) ([]*models.EmergencyRequest, error)
	GetActiveByAmbulance(ctx context.Context, ambulanceID primitive.ObjectID) (*models.EmergencyRequest, error)

	// TransitionStatus applies a single conditional update keyed by request
	// id: the status moves from "from" to "to" together with the extra field
	// updates, or nothing happens at all. A request already in a terminal
	// state is returned unchanged with a nil error (replayed transitions are
	// no-ops); any other mismatch is ErrInvalidTransition.
	TransitionStatus(ctx context.Context, id primitive.ObjectID, from, to models.RequestStatus, updates map[string]interface{}) (*models.EmergencyRequest, error)

	// Narrow coordinate writes. The patient owns "location", the ambulance
	// owns "ambulance_location"; the fields are disjoint so the two agents
	// never race each other.
	SetPatientLocation(ctx context.Context, id primitive.ObjectID, location models.Location) error
	SetAmbulanceLocation(ctx context.Context, id primitive.ObjectID, location models.Location) error

	// Watch streams mutations of a single request until ctx is cancelled.
	Watch(ctx context.Context, id primitive.ObjectID) (<-chan models.RequestChange, error)
}
