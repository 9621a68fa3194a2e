package interfaces

import (
	"context"

	"lifeline/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AmbulanceRepository interface {
	Create(ctx context.Context, ambulance *models.Ambulance) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Ambulance, error)
	List(ctx context.Context) ([]*models.Ambulance, error)
	GetAvailable(ctx context.Context) ([]*models.Ambulance, error)

	// MarkBusy conditionally flips an available unit to busy. Returns
	// ErrUnitUnavailable without mutating anything when the unit is busy or
	// in maintenance (a race with another assignment).
	MarkBusy(ctx context.Context, id primitive.ObjectID) error

	// Release returns a unit to available regardless of its prior value.
	// Used by completion and by cancellation of an assigned request.
	Release(ctx context.Context, id primitive.ObjectID) error

	// SetMaintenance flips a unit into maintenance; refused while busy.
	SetMaintenance(ctx context.Context, id primitive.ObjectID) error

	IncrementMissions(ctx context.Context, id primitive.ObjectID) error
	SetCurrentLocation(ctx context.Context, id primitive.ObjectID, location models.Location) error
}
