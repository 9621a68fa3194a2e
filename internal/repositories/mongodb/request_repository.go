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

type requestRepository struct {
	collection *mongo.Collection
	cache      CacheService
}

func NewRequestRepository(db *mongo.Database, cacheService CacheService) interfaces.RequestRepository {
	return &requestRepository{
		collection: db.Collection("emergency_requests"),
		cache:      cacheService,
	}
}

func (r *requestRepository) Create(ctx context.Context, request *models.EmergencyRequest) error {
	request.ID = primitive.NewObjectID()
	request.Status = models.RequestStatusPending
	request.CreatedAt = time.Now()
	request.UpdatedAt = request.CreatedAt

	if _, err := r.collection.InsertOne(ctx, request); err != nil {
		return fmt.Errorf("failed to create emergency request: %w", err)
	}

	r.cacheRequest(ctx, request)
	return nil
}

func (r *requestRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.EmergencyRequest, error) {
	if request := r.requestFromCache(ctx, id.Hex()); request != nil {
		return request, nil
	}

	var request models.EmergencyRequest
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&request)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get emergency request: %w", err)
	}

	r.cacheRequest(ctx, &request)
	return &request, nil
}

func (r *requestRepository) GetActive(ctx context.Context) ([]*models.EmergencyRequest, error) {
	filter := bson.M{"status": bson.M{"$in": models.ActiveStatuses()}}

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find active requests: %w", err)
	}
	defer cursor.Close(ctx)

	var requests []*models.EmergencyRequest
	if err := cursor.All(ctx, &requests); err != nil {
		return nil, fmt.Errorf("failed to decode active requests: %w", err)
	}

	return requests, nil
}

func (r *requestRepository) GetActiveByAmbulance(ctx context.Context, ambulanceID primitive.ObjectID) (*models.EmergencyRequest, error) {
	filter := bson.M{
		"ambulance_id": ambulanceID,
		"status":       bson.M{"$in": models.ActiveStatuses()},
	}

	var request models.EmergencyRequest
	err := r.collection.FindOne(ctx, filter).Decode(&request)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get active request for ambulance: %w", err)
	}

	return &request, nil
}

func (r *requestRepository) TransitionStatus(ctx context.Context, id primitive.ObjectID, from, to models.RequestStatus, updates map[string]interface{}) (*models.EmergencyRequest, error) {
	set := bson.M{
		"status":     to,
		"updated_at": time.Now(),
	}
	for k, v := range updates {
		set[k] = v
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.EmergencyRequest
	err := r.collection.FindOneAndUpdate(
		ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": set},
		opts,
	).Decode(&updated)

	if err == nil {
		r.invalidateRequestCache(ctx, id.Hex())
		if updated.Status.IsTerminal() {
			// Excluded from active queries now; drop it from the cache
			// rather than refreshing it.
			return &updated, nil
		}
		r.cacheRequest(ctx, &updated)
		return &updated, nil
	}

	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to transition request status: %w", err)
	}

	// The conditional update missed. Replays against a terminal record are
	// no-ops by contract; anything else is a real transition violation.
	current, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status.IsTerminal() {
		return current, nil
	}

	return nil, fmt.Errorf("%w: %s -> %s (current %s)", models.ErrInvalidTransition, from, to, current.Status)
}

func (r *requestRepository) SetPatientLocation(ctx context.Context, id primitive.ObjectID, location models.Location) error {
	return r.setLocationField(ctx, id, "location", location)
}

func (r *requestRepository) SetAmbulanceLocation(ctx context.Context, id primitive.ObjectID, location models.Location) error {
	return r.setLocationField(ctx, id, "ambulance_location", location)
}

// setLocationField writes exactly one coordinate field, guarded by the
// request still being active. Coordinates for a finished request are noise.
func (r *requestRepository) setLocationField(ctx context.Context, id primitive.ObjectID, field string, location models.Location) error {
	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": models.ActiveStatuses()},
	}
	update := bson.M{"$set": bson.M{
		field:        location,
		"updated_at": time.Now(),
	}}

	if _, err := r.collection.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to update %s: %w", field, err)
	}

	r.invalidateRequestCache(ctx, id.Hex())
	return nil
}

type requestChangeEvent struct {
	OperationType string                  `bson:"operationType"`
	FullDocument  models.EmergencyRequest `bson:"fullDocument"`
}

func (r *requestRepository) Watch(ctx context.Context, id primitive.ObjectID) (<-chan models.RequestChange, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "fullDocument._id", Value: id}}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	stream, err := r.collection.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open change stream: %w", err)
	}

	changes := make(chan models.RequestChange)
	go func() {
		defer close(changes)
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			var event requestChangeEvent
			if err := stream.Decode(&event); err != nil {
				continue
			}

			doc := event.FullDocument
			select {
			case changes <- models.RequestChange{OperationType: event.OperationType, Request: &doc}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return changes, nil
}

func (r *requestRepository) cacheRequest(ctx context.Context, request *models.EmergencyRequest) {
	if r.cache == nil || request.Status.IsTerminal() {
		return
	}
	_ = r.cache.Set(ctx, cache.RequestKey(request.ID.Hex()), request, cache.ActiveRequestTTL)
}

func (r *requestRepository) requestFromCache(ctx context.Context, id string) *models.EmergencyRequest {
	if r.cache == nil {
		return nil
	}
	var request models.EmergencyRequest
	if err := r.cache.Get(ctx, cache.RequestKey(id), &request); err != nil {
		return nil
	}
	return &request
}

func (r *requestRepository) invalidateRequestCache(ctx context.Context, id string) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Delete(ctx, cache.RequestKey(id))
}
