package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lifeline/internal/models"
	"lifeline/internal/repositories/interfaces"
	"lifeline/pkg/cache"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ambulanceRepository struct {
	collection *mongo.Collection
	cache      CacheService
}

func NewAmbulanceRepository(db *mongo.Database, cacheService CacheService) interfaces.AmbulanceRepository {
	return &ambulanceRepository{
		collection: db.Collection("ambulances"),
		cache:      cacheService,
	}
}

func (r *ambulanceRepository) Create(ctx context.Context, ambulance *models.Ambulance) error {
	ambulance.ID = primitive.NewObjectID()
	if ambulance.Availability == "" {
		ambulance.Availability = models.AmbulanceAvailable
	}
	ambulance.CreatedAt = time.Now()
	ambulance.UpdatedAt = ambulance.CreatedAt

	if _, err := r.collection.InsertOne(ctx, ambulance); err != nil {
		return fmt.Errorf("failed to create ambulance: %w", err)
	}

	return nil
}

func (r *ambulanceRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Ambulance, error) {
	var ambulance models.Ambulance
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&ambulance)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrAmbulanceNotFound
		}
		return nil, fmt.Errorf("failed to get ambulance: %w", err)
	}

	return &ambulance, nil
}

func (r *ambulanceRepository) List(ctx context.Context) ([]*models.Ambulance, error) {
	return r.findWithFilter(ctx, bson.M{})
}

func (r *ambulanceRepository) GetAvailable(ctx context.Context) ([]*models.Ambulance, error) {
	return r.findWithFilter(ctx, bson.M{"availability": models.AmbulanceAvailable})
}

func (r *ambulanceRepository) findWithFilter(ctx context.Context, filter bson.M) ([]*models.Ambulance, error) {
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "vehicle_number", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find ambulances: %w", err)
	}
	defer cursor.Close(ctx)

	var ambulances []*models.Ambulance
	if err := cursor.All(ctx, &ambulances); err != nil {
		return nil, fmt.Errorf("failed to decode ambulances: %w", err)
	}

	return ambulances, nil
}

// MarkBusy is the assignment race guard: the flip to busy only happens if
// the unit is still available, in one conditional write.
func (r *ambulanceRepository) MarkBusy(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "availability": models.AmbulanceAvailable},
		bson.M{"$set": bson.M{
			"availability": models.AmbulanceBusy,
			"updated_at":   time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark ambulance busy: %w", err)
	}

	if result.MatchedCount == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return models.ErrUnitUnavailable
	}

	r.invalidateAvailabilityCache(ctx, id.Hex())
	return nil
}

func (r *ambulanceRepository) Release(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"availability": models.AmbulanceAvailable,
			"updated_at":   time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to release ambulance: %w", err)
	}
	if result.MatchedCount == 0 {
		return models.ErrAmbulanceNotFound
	}

	r.invalidateAvailabilityCache(ctx, id.Hex())
	return nil
}

func (r *ambulanceRepository) SetMaintenance(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "availability": bson.M{"$ne": models.AmbulanceBusy}},
		bson.M{"$set": bson.M{
			"availability": models.AmbulanceMaintenance,
			"updated_at":   time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to set ambulance maintenance: %w", err)
	}

	if result.MatchedCount == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return models.ErrUnitUnavailable
	}

	r.invalidateAvailabilityCache(ctx, id.Hex())
	return nil
}

func (r *ambulanceRepository) IncrementMissions(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{"total_missions": 1},
			"$set": bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to increment missions: %w", err)
	}
	return nil
}

func (r *ambulanceRepository) SetCurrentLocation(ctx context.Context, id primitive.ObjectID, location models.Location) error {
	now := time.Now()
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"current_location":     location,
			"last_location_update": now,
			"updated_at":           now,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to update ambulance location: %w", err)
	}
	return nil
}

func (r *ambulanceRepository) invalidateAvailabilityCache(ctx context.Context, id string) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Delete(ctx, cache.AvailabilityKey(id))
}
