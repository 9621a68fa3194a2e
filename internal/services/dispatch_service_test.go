package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lifeline/internal/models"
	"lifeline/internal/realtime"
	"lifeline/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeRequestRepo struct {
	mu       sync.Mutex
	requests map[primitive.ObjectID]*models.EmergencyRequest
	watchers []chan models.RequestChange
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{requests: make(map[primitive.ObjectID]*models.EmergencyRequest)}
}

func (r *fakeRequestRepo) Create(ctx context.Context, request *models.EmergencyRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if request.ID.IsZero() {
		request.ID = primitive.NewObjectID()
	}
	copied := *request
	r.requests[request.ID] = &copied
	return nil
}

func (r *fakeRequestRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.EmergencyRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	request, ok := r.requests[id]
	if !ok {
		return nil, models.ErrRequestNotFound
	}
	copied := *request
	return &copied, nil
}

func (r *fakeRequestRepo) GetActive(ctx context.Context) ([]*models.EmergencyRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var active []*models.EmergencyRequest
	for _, request := range r.requests {
		if !request.Status.IsTerminal() {
			copied := *request
			active = append(active, &copied)
		}
	}
	return active, nil
}

func (r *fakeRequestRepo) GetActiveByAmbulance(ctx context.Context, ambulanceID primitive.ObjectID) (*models.EmergencyRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, request := range r.requests {
		if !request.Status.IsTerminal() && request.AmbulanceID != nil && *request.AmbulanceID == ambulanceID {
			copied := *request
			return &copied, nil
		}
	}
	return nil, models.ErrRequestNotFound
}

func (r *fakeRequestRepo) TransitionStatus(ctx context.Context, id primitive.ObjectID, from, to models.RequestStatus, updates map[string]interface{}) (*models.EmergencyRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	request, ok := r.requests[id]
	if !ok {
		return nil, models.ErrRequestNotFound
	}
	if request.Status != from {
		if request.Status.IsTerminal() {
			copied := *request
			return &copied, nil
		}
		return nil, models.ErrInvalidTransition
	}

	request.Status = to
	for key, value := range updates {
		switch key {
		case "ambulance_id":
			v := value.(primitive.ObjectID)
			request.AmbulanceID = &v
		case "ambulance_location":
			v := value.(*models.Location)
			request.AmbulanceLocation = v
		case "assigned_at":
			v := value.(time.Time)
			request.AssignedAt = &v
		case "dispatched_at":
			v := value.(time.Time)
			request.DispatchedAt = &v
		case "arrived_at":
			v := value.(time.Time)
			request.ArrivedAt = &v
		case "completed_at":
			v := value.(time.Time)
			request.CompletedAt = &v
		case "cancelled_at":
			v := value.(time.Time)
			request.CancelledAt = &v
		case "cancel_reason":
			request.CancelReason = value.(string)
		}
	}
	request.UpdatedAt = time.Now()

	copied := *request
	watchers := append([]chan models.RequestChange(nil), r.watchers...)
	for _, ch := range watchers {
		notified := copied
		ch <- models.RequestChange{OperationType: "update", Request: &notified}
	}
	return &copied, nil
}

func (r *fakeRequestRepo) SetPatientLocation(ctx context.Context, id primitive.ObjectID, location models.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	request, ok := r.requests[id]
	if !ok {
		return models.ErrRequestNotFound
	}
	request.Location = location
	return nil
}

func (r *fakeRequestRepo) SetAmbulanceLocation(ctx context.Context, id primitive.ObjectID, location models.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	request, ok := r.requests[id]
	if !ok {
		return models.ErrRequestNotFound
	}
	request.AmbulanceLocation = &location
	return nil
}

func (r *fakeRequestRepo) Watch(ctx context.Context, id primitive.ObjectID) (<-chan models.RequestChange, error) {
	ch := make(chan models.RequestChange, 16)
	r.mu.Lock()
	r.watchers = append(r.watchers, ch)
	r.mu.Unlock()
	go func() {
		<-ctx.Done()
	}()
	return ch, nil
}

type fakeAmbulanceRepo struct {
	mu         sync.Mutex
	ambulances map[primitive.ObjectID]*models.Ambulance
	released   []primitive.ObjectID
}

func newFakeAmbulanceRepo() *fakeAmbulanceRepo {
	return &fakeAmbulanceRepo{ambulances: make(map[primitive.ObjectID]*models.Ambulance)}
}

func (r *fakeAmbulanceRepo) Create(ctx context.Context, ambulance *models.Ambulance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ambulance.ID.IsZero() {
		ambulance.ID = primitive.NewObjectID()
	}
	copied := *ambulance
	r.ambulances[ambulance.ID] = &copied
	return nil
}

func (r *fakeAmbulanceRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Ambulance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ambulance, ok := r.ambulances[id]
	if !ok {
		return nil, models.ErrAmbulanceNotFound
	}
	copied := *ambulance
	return &copied, nil
}

func (r *fakeAmbulanceRepo) List(ctx context.Context) ([]*models.Ambulance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*models.Ambulance
	for _, ambulance := range r.ambulances {
		copied := *ambulance
		all = append(all, &copied)
	}
	return all, nil
}

func (r *fakeAmbulanceRepo) GetAvailable(ctx context.Context) ([]*models.Ambulance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var available []*models.Ambulance
	for _, ambulance := range r.ambulances {
		if ambulance.Availability == models.AmbulanceAvailable {
			copied := *ambulance
			available = append(available, &copied)
		}
	}
	return available, nil
}

func (r *fakeAmbulanceRepo) MarkBusy(ctx context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ambulance, ok := r.ambulances[id]
	if !ok {
		return models.ErrAmbulanceNotFound
	}
	if ambulance.Availability != models.AmbulanceAvailable {
		return models.ErrUnitUnavailable
	}
	ambulance.Availability = models.AmbulanceBusy
	return nil
}

func (r *fakeAmbulanceRepo) Release(ctx context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ambulance, ok := r.ambulances[id]
	if !ok {
		return models.ErrAmbulanceNotFound
	}
	ambulance.Availability = models.AmbulanceAvailable
	r.released = append(r.released, id)
	return nil
}

func (r *fakeAmbulanceRepo) SetMaintenance(ctx context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ambulance, ok := r.ambulances[id]
	if !ok {
		return models.ErrAmbulanceNotFound
	}
	if ambulance.Availability == models.AmbulanceBusy {
		return models.ErrUnitUnavailable
	}
	ambulance.Availability = models.AmbulanceMaintenance
	return nil
}

func (r *fakeAmbulanceRepo) IncrementMissions(ctx context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ambulance, ok := r.ambulances[id]
	if !ok {
		return models.ErrAmbulanceNotFound
	}
	ambulance.TotalMissions++
	return nil
}

func (r *fakeAmbulanceRepo) SetCurrentLocation(ctx context.Context, id primitive.ObjectID, location models.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ambulance, ok := r.ambulances[id]
	if !ok {
		return models.ErrAmbulanceNotFound
	}
	ambulance.CurrentLocation = &location
	now := time.Now()
	ambulance.LastLocationUpdate = &now
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Format: "text"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func newTestService(t *testing.T) (*DispatchService, *fakeRequestRepo, *fakeAmbulanceRepo, *realtime.Broker) {
	t.Helper()
	requests := newFakeRequestRepo()
	ambulances := newFakeAmbulanceRepo()
	log := testLogger(t)
	broker := realtime.NewBroker(nil)
	notifications := NewNotificationService(nil, nil, "", log)
	service := NewDispatchService(requests, ambulances, broker, notifications, log)
	return service, requests, ambulances, broker
}

func seedRequest(t *testing.T, service *DispatchService) *models.EmergencyRequest {
	t.Helper()
	request, err := service.CreateRequest(context.Background(), &CreateRequestInput{
		RequesterEmail: "patient@example.com",
		ContactNumber:  "+94771234567",
		Note:           "chest pain",
		Latitude:       6.9271,
		Longitude:      79.8612,
	})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	return request
}

func seedAmbulance(t *testing.T, ambulances *fakeAmbulanceRepo) *models.Ambulance {
	t.Helper()
	ambulance := &models.Ambulance{
		VehicleNumber: "WP CAB-1234",
		CallSign:      "U1",
		Availability:  models.AmbulanceAvailable,
	}
	if err := ambulances.Create(context.Background(), ambulance); err != nil {
		t.Fatalf("seed ambulance: %v", err)
	}
	return ambulance
}

func TestCreateRequestStartsPending(t *testing.T) {
	service, _, _, _ := newTestService(t)

	request := seedRequest(t, service)
	if request.Status != models.RequestStatusPending {
		t.Errorf("new request status = %s, want pending", request.Status)
	}
	if request.Location.Latitude() != 6.9271 {
		t.Errorf("patient location lost: %+v", request.Location)
	}
	if request.AmbulanceID != nil {
		t.Error("new request should have no ambulance")
	}
}

func TestCreateRequestRejectsBadCoordinates(t *testing.T) {
	service, _, _, _ := newTestService(t)

	_, err := service.CreateRequest(context.Background(), &CreateRequestInput{
		RequesterEmail: "patient@example.com",
		ContactNumber:  "+94771234567",
		Latitude:       123.0,
		Longitude:      79.8612,
	})
	if !errors.Is(err, models.ErrInvalidCoordinates) {
		t.Errorf("expected ErrInvalidCoordinates, got %v", err)
	}
}

func TestAssignMarksUnitBusy(t *testing.T) {
	service, _, ambulances, _ := newTestService(t)
	request := seedRequest(t, service)
	unit := seedAmbulance(t, ambulances)

	assigned, err := service.Assign(context.Background(), request.ID, unit.ID)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if assigned.Status != models.RequestStatusAssigned {
		t.Errorf("status = %s, want assigned", assigned.Status)
	}
	if assigned.AmbulanceID == nil || *assigned.AmbulanceID != unit.ID {
		t.Error("ambulance id not recorded")
	}
	if assigned.AssignedAt == nil {
		t.Error("assigned_at not stamped")
	}

	stored, _ := ambulances.GetByID(context.Background(), unit.ID)
	if stored.Availability != models.AmbulanceBusy {
		t.Errorf("unit availability = %s, want busy", stored.Availability)
	}
}

func TestAssignBusyUnitFailsWithoutMutation(t *testing.T) {
	service, requests, ambulances, _ := newTestService(t)
	first := seedRequest(t, service)
	second := seedRequest(t, service)
	unit := seedAmbulance(t, ambulances)

	if _, err := service.Assign(context.Background(), first.ID, unit.ID); err != nil {
		t.Fatalf("first Assign: %v", err)
	}

	_, err := service.Assign(context.Background(), second.ID, unit.ID)
	if !errors.Is(err, models.ErrUnitUnavailable) {
		t.Fatalf("expected ErrUnitUnavailable, got %v", err)
	}

	// The losing request is untouched.
	stored, _ := requests.GetByID(context.Background(), second.ID)
	if stored.Status != models.RequestStatusPending {
		t.Errorf("losing request status = %s, want pending", stored.Status)
	}
	if stored.AmbulanceID != nil {
		t.Error("losing request gained an ambulance")
	}
}

func TestAssignRollsBackReservationOnTransitionFailure(t *testing.T) {
	service, _, ambulances, _ := newTestService(t)
	request := seedRequest(t, service)
	unit := seedAmbulance(t, ambulances)

	// Drive the request past pending so the transition is refused.
	if _, err := service.Assign(context.Background(), request.ID, unit.ID); err != nil {
		t.Fatalf("setup Assign: %v", err)
	}
	spare := seedAmbulance(t, ambulances)

	_, err := service.Assign(context.Background(), request.ID, spare.ID)
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	stored, _ := ambulances.GetByID(context.Background(), spare.ID)
	if stored.Availability != models.AmbulanceAvailable {
		t.Errorf("spare unit stuck %s after aborted assignment", stored.Availability)
	}
}

func TestFullLifecycleReleasesUnit(t *testing.T) {
	service, _, ambulances, _ := newTestService(t)
	request := seedRequest(t, service)
	unit := seedAmbulance(t, ambulances)

	if _, err := service.Assign(context.Background(), request.ID, unit.ID); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	loc := models.NewLocation(6.9300, 79.8600)
	dispatched, err := service.Dispatch(context.Background(), request.ID, &loc)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if dispatched.Status != models.RequestStatusDispatched || dispatched.DispatchedAt == nil {
		t.Errorf("dispatch not recorded: %+v", dispatched.Status)
	}
	if dispatched.AmbulanceLocation == nil || dispatched.AmbulanceLocation.Latitude() != 6.9300 {
		t.Error("dispatch position not persisted")
	}

	arrived, err := service.Arrive(context.Background(), request.ID)
	if err != nil {
		t.Fatalf("Arrive: %v", err)
	}
	if arrived.Status != models.RequestStatusArrived || arrived.ArrivedAt == nil {
		t.Errorf("arrival not recorded: %s", arrived.Status)
	}

	completed, err := service.Complete(context.Background(), request.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if completed.Status != models.RequestStatusCompleted || completed.CompletedAt == nil {
		t.Errorf("completion not recorded: %s", completed.Status)
	}

	stored, _ := ambulances.GetByID(context.Background(), unit.ID)
	if stored.Availability != models.AmbulanceAvailable {
		t.Errorf("unit not released on completion: %s", stored.Availability)
	}
	if stored.TotalMissions != 1 {
		t.Errorf("missions = %d, want 1", stored.TotalMissions)
	}
}

func TestSkippingStagesIsRefused(t *testing.T) {
	service, _, _, _ := newTestService(t)
	request := seedRequest(t, service)

	if _, err := service.Dispatch(context.Background(), request.ID, nil); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("pending -> dispatched: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := service.Arrive(context.Background(), request.ID); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("pending -> arrived: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := service.Complete(context.Background(), request.ID); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("pending -> completed: expected ErrInvalidTransition, got %v", err)
	}
}

func TestCancelFromPending(t *testing.T) {
	service, _, _, _ := newTestService(t)
	request := seedRequest(t, service)

	cancelled, err := service.Cancel(context.Background(), request.ID, "false alarm")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != models.RequestStatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
	if cancelled.CancelReason != "false alarm" {
		t.Errorf("reason = %q", cancelled.CancelReason)
	}
}

func TestCancelFromAssignedReleasesUnit(t *testing.T) {
	service, _, ambulances, _ := newTestService(t)
	request := seedRequest(t, service)
	unit := seedAmbulance(t, ambulances)

	if _, err := service.Assign(context.Background(), request.ID, unit.ID); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if _, err := service.Cancel(context.Background(), request.ID, "resolved by caller"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	stored, _ := ambulances.GetByID(context.Background(), unit.ID)
	if stored.Availability != models.AmbulanceAvailable {
		t.Errorf("unit not released on cancellation: %s", stored.Availability)
	}
	if stored.TotalMissions != 0 {
		t.Errorf("cancelled mission counted: %d", stored.TotalMissions)
	}
}

func TestCancelAfterDispatchRefused(t *testing.T) {
	service, requests, ambulances, _ := newTestService(t)
	request := seedRequest(t, service)
	unit := seedAmbulance(t, ambulances)

	if _, err := service.Assign(context.Background(), request.ID, unit.ID); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if _, err := service.Dispatch(context.Background(), request.ID, nil); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if _, err := service.Cancel(context.Background(), request.ID, "changed mind"); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("cancel while dispatched: expected ErrInvalidTransition, got %v", err)
	}

	if _, err := service.Arrive(context.Background(), request.ID); err != nil {
		t.Fatalf("Arrive: %v", err)
	}
	if _, err := service.Cancel(context.Background(), request.ID, "changed mind"); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("cancel while arrived: expected ErrInvalidTransition, got %v", err)
	}

	// The refused cancels must not touch the record or the unit.
	stored, err := requests.GetByID(context.Background(), request.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != models.RequestStatusArrived {
		t.Errorf("status = %s after refused cancels, want arrived", stored.Status)
	}
	if stored.CancelledAt != nil || stored.CancelReason != "" {
		t.Error("refused cancel wrote cancellation fields")
	}
	if len(ambulances.released) != 0 {
		t.Errorf("refused cancel released units: %v", ambulances.released)
	}
}

func TestCancelTerminalIsNoOp(t *testing.T) {
	service, _, ambulances, _ := newTestService(t)
	request := seedRequest(t, service)

	if _, err := service.Cancel(context.Background(), request.ID, "first"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	again, err := service.Cancel(context.Background(), request.ID, "second")
	if err != nil {
		t.Fatalf("replayed Cancel: %v", err)
	}
	if again.CancelReason != "first" {
		t.Errorf("replay overwrote the record: reason = %q", again.CancelReason)
	}
	if len(ambulances.released) != 0 {
		t.Errorf("replayed cancel released units: %v", ambulances.released)
	}
}

func TestTransitionsAnnounceOnChannel(t *testing.T) {
	service, _, ambulances, broker := newTestService(t)
	request := seedRequest(t, service)
	unit := seedAmbulance(t, ambulances)

	var seen []string
	broker.Join(request.ID.Hex(), realtime.RoleObserver, func(env realtime.Envelope) {
		event, err := env.Decode()
		if err != nil {
			t.Errorf("announcement failed to decode: %v", err)
			return
		}
		if updated, ok := event.(realtime.RequestUpdated); ok {
			seen = append(seen, updated.Status)
		}
	})

	if _, err := service.Assign(context.Background(), request.ID, unit.ID); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if _, err := service.Dispatch(context.Background(), request.ID, nil); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if _, err := service.Arrive(context.Background(), request.ID); err != nil {
		t.Fatalf("Arrive: %v", err)
	}
	if _, err := service.Complete(context.Background(), request.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	want := []string{"assigned", "dispatched", "arrived", "completed"}
	if len(seen) != len(want) {
		t.Fatalf("announcements = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("announcement %d = %s, want %s", i, seen[i], want[i])
		}
	}
}
