package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lifeline/internal/models"
	"lifeline/internal/realtime"
	"lifeline/internal/repositories/interfaces"
	"lifeline/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DispatchService owns the request lifecycle. Every transition goes through
// the repository's conditional update, so two racing callers cannot both
// win; the loser gets ErrInvalidTransition, or a silent no-op if the request
// already reached a terminal state. Successful transitions are announced on
// the request's realtime channel and pushed out as notifications, both best
// effort.
type DispatchService struct {
	requests      interfaces.RequestRepository
	ambulances    interfaces.AmbulanceRepository
	broker        *realtime.Broker
	notifications *NotificationService
	log           *logger.Logger
}

func NewDispatchService(
	requests interfaces.RequestRepository,
	ambulances interfaces.AmbulanceRepository,
	broker *realtime.Broker,
	notifications *NotificationService,
	log *logger.Logger,
) *DispatchService {
	return &DispatchService{
		requests:      requests,
		ambulances:    ambulances,
		broker:        broker,
		notifications: notifications,
		log:           log,
	}
}

// CreateRequestInput carries the fields a requester supplies. Everything
// else on the record is server-assigned.
type CreateRequestInput struct {
	RequesterEmail string  `json:"requester_email" binding:"required,email"`
	ContactNumber  string  `json:"contact_number" binding:"required"`
	Note           string  `json:"note"`
	Latitude       float64 `json:"lat" binding:"required"`
	Longitude      float64 `json:"lng" binding:"required"`
}

// CreateRequest opens a new request in pending with the requester's initial
// position.
func (s *DispatchService) CreateRequest(ctx context.Context, input *CreateRequestInput) (*models.EmergencyRequest, error) {
	location := models.NewLocation(input.Latitude, input.Longitude)
	if err := location.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	request := &models.EmergencyRequest{
		RequesterEmail: input.RequesterEmail,
		ContactNumber:  input.ContactNumber,
		Note:           input.Note,
		Location:       location,
		Status:         models.RequestStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.requests.Create(ctx, request); err != nil {
		return nil, err
	}

	s.log.LogDispatchEvent(request.ID, "request_created", map[string]interface{}{
		"requester": request.RequesterEmail,
	})

	return request, nil
}

func (s *DispatchService) GetRequest(ctx context.Context, id primitive.ObjectID) (*models.EmergencyRequest, error) {
	return s.requests.GetByID(ctx, id)
}

func (s *DispatchService) GetActiveRequests(ctx context.Context) ([]*models.EmergencyRequest, error) {
	return s.requests.GetActive(ctx)
}

// Assign reserves an ambulance and moves the request from pending to
// assigned. The unit is reserved first: if the reservation loses a race the
// request is untouched, and if the transition then fails the reservation is
// rolled back. The two writes are not atomic together, so the compensation
// runs on every transition error.
func (s *DispatchService) Assign(ctx context.Context, requestID, ambulanceID primitive.ObjectID) (*models.EmergencyRequest, error) {
	ambulance, err := s.ambulances.GetByID(ctx, ambulanceID)
	if err != nil {
		return nil, err
	}

	if err := s.ambulances.MarkBusy(ctx, ambulanceID); err != nil {
		return nil, err
	}

	now := time.Now()
	request, err := s.requests.TransitionStatus(ctx, requestID,
		models.RequestStatusPending, models.RequestStatusAssigned,
		map[string]interface{}{
			"ambulance_id": ambulanceID,
			"assigned_at":  now,
		})
	if err != nil {
		if releaseErr := s.ambulances.Release(ctx, ambulanceID); releaseErr != nil {
			s.log.WithError(releaseErr).WithAmbulanceID(ambulanceID).Error("Failed to release unit after aborted assignment")
		}
		return nil, err
	}

	s.announce(request)
	s.log.LogDispatchEvent(requestID, "request_assigned", map[string]interface{}{
		"ambulance_id": ambulanceID.Hex(),
	})
	s.notifications.NotifyAssigned(ctx, request, ambulance)

	return request, nil
}

// Dispatch moves the request from assigned to dispatched. The position, when
// known, becomes the first persisted ambulance coordinate.
func (s *DispatchService) Dispatch(ctx context.Context, requestID primitive.ObjectID, position *models.Location) (*models.EmergencyRequest, error) {
	now := time.Now()
	updates := map[string]interface{}{
		"dispatched_at": now,
	}
	if position != nil {
		if err := position.Validate(); err != nil {
			return nil, err
		}
		updates["ambulance_location"] = position
	}

	request, err := s.requests.TransitionStatus(ctx, requestID,
		models.RequestStatusAssigned, models.RequestStatusDispatched, updates)
	if err != nil {
		return nil, err
	}

	s.announce(request)
	s.log.LogDispatchEvent(requestID, "request_dispatched", nil)
	s.notifications.NotifyDispatched(ctx, request, s.assignedUnit(ctx, request))

	return request, nil
}

// Arrive moves the request from dispatched to arrived.
func (s *DispatchService) Arrive(ctx context.Context, requestID primitive.ObjectID) (*models.EmergencyRequest, error) {
	now := time.Now()
	request, err := s.requests.TransitionStatus(ctx, requestID,
		models.RequestStatusDispatched, models.RequestStatusArrived,
		map[string]interface{}{"arrived_at": now})
	if err != nil {
		return nil, err
	}

	s.announce(request)
	s.log.LogDispatchEvent(requestID, "request_arrived", nil)
	s.notifications.NotifyArrived(ctx, request)

	return request, nil
}

// Complete closes the request and returns the unit to the available pool.
func (s *DispatchService) Complete(ctx context.Context, requestID primitive.ObjectID) (*models.EmergencyRequest, error) {
	now := time.Now()
	request, err := s.requests.TransitionStatus(ctx, requestID,
		models.RequestStatusArrived, models.RequestStatusCompleted,
		map[string]interface{}{"completed_at": now})
	if err != nil {
		return nil, err
	}

	s.releaseUnit(ctx, request, true)
	s.announce(request)
	s.log.LogDispatchEvent(requestID, "request_completed", nil)

	return request, nil
}

// Cancel closes the request before a unit is on the road. Allowed from
// pending and from assigned; a cancelled assigned request releases its unit.
// Cancelling an already terminal request is a no-op that returns the record
// as it stands.
func (s *DispatchService) Cancel(ctx context.Context, requestID primitive.ObjectID, reason string) (*models.EmergencyRequest, error) {
	current, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if current.Status.IsTerminal() {
		return current, nil
	}
	if !current.Status.CanTransitionTo(models.RequestStatusCancelled) {
		// The unit is already on the road; the request has to run to
		// completion.
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition,
			current.Status, models.RequestStatusCancelled)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"cancelled_at":  now,
		"cancel_reason": reason,
	}

	request, err := s.requests.TransitionStatus(ctx, requestID,
		current.Status, models.RequestStatusCancelled, updates)
	if err != nil {
		// The read above raced another transition. Retry once from the fresh
		// state; anything past assigned is then a genuine refusal.
		if errors.Is(err, models.ErrInvalidTransition) {
			fresh, readErr := s.requests.GetByID(ctx, requestID)
			if readErr == nil && fresh.Status.IsTerminal() {
				return fresh, nil
			}
		}
		return nil, err
	}

	s.releaseUnit(ctx, request, false)
	s.announce(request)
	s.log.LogDispatchEvent(requestID, "request_cancelled", map[string]interface{}{
		"reason": reason,
	})
	s.notifications.NotifyCancelled(ctx, request)

	return request, nil
}

func (s *DispatchService) releaseUnit(ctx context.Context, request *models.EmergencyRequest, countMission bool) {
	if request.AmbulanceID == nil {
		return
	}
	ambulanceID := *request.AmbulanceID

	if err := s.ambulances.Release(ctx, ambulanceID); err != nil {
		s.log.WithError(err).WithAmbulanceID(ambulanceID).Error("Failed to release unit")
	}
	if countMission {
		if err := s.ambulances.IncrementMissions(ctx, ambulanceID); err != nil {
			s.log.WithError(err).WithAmbulanceID(ambulanceID).Warn("Failed to count completed mission")
		}
	}
}

func (s *DispatchService) assignedUnit(ctx context.Context, request *models.EmergencyRequest) *models.Ambulance {
	if request.AmbulanceID == nil {
		return nil
	}
	ambulance, err := s.ambulances.GetByID(ctx, *request.AmbulanceID)
	if err != nil {
		return nil
	}
	return ambulance
}

func (s *DispatchService) announce(request *models.EmergencyRequest) {
	if s.broker == nil {
		return
	}

	event := realtime.RequestUpdated{Status: string(request.Status)}
	if request.AmbulanceID != nil {
		event.AmbulanceID = request.AmbulanceID.Hex()
	}
	s.broker.Announce(request.ID.Hex(), event)
}
