package tracking

import (
	"context"
	"sync"
	"time"

	"lifeline/internal/models"
	"lifeline/internal/realtime"
	"lifeline/internal/utils"
	"lifeline/pkg/logger"
	"lifeline/pkg/maps"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Monitor is the dispatch-desk view of one request. It is strictly passive
// on the channel: it pulls both sides once on join, listens from then on,
// and never publishes a position of its own.
type Monitor struct {
	requestID primitive.ObjectID

	broker *realtime.Broker
	store  RequestStore
	routes maps.RouteProvider
	log    *logger.Logger

	session   *Session
	scheduler *RouteScheduler

	mu     sync.Mutex
	sub    *realtime.Subscription
	status models.RequestStatus
	cancel context.CancelFunc
	closed bool
}

// MonitorSnapshot is what the desk UI renders for one request.
type MonitorSnapshot struct {
	RequestID       string               `json:"request_id"`
	Status          models.RequestStatus `json:"status"`
	AmbulancePos    *Position            `json:"ambulance_position,omitempty"`
	PatientPos      *Position            `json:"patient_position,omitempty"`
	AmbulanceOnline bool                 `json:"ambulance_online"`
	PatientOnline   bool                 `json:"patient_online"`
	Route           *models.Route        `json:"route,omitempty"`
	DistanceKM      *float64             `json:"distance_km,omitempty"`
}

func NewMonitor(
	broker *realtime.Broker,
	store RequestStore,
	routes maps.RouteProvider,
	log *logger.Logger,
	requestID primitive.ObjectID,
) *Monitor {
	return &Monitor{
		requestID: requestID,
		broker:    broker,
		store:     store,
		routes:    routes,
		log:       log.WithRequestID(requestID).WithRole(string(realtime.RoleObserver)),
	}
}

// Start rebuilds the picture from the request record, then joins the channel
// and pulls both participants so the view converges without waiting for the
// next broadcast.
func (m *Monitor) Start(ctx context.Context) error {
	request, err := m.store.GetByID(ctx, m.requestID)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.cancel = cancel
	m.status = request.Status
	m.session = NewSession(m.requestID)
	m.scheduler = NewRouteScheduler(RouteDebounceDelay, m.fetchRoute)
	m.sub = m.broker.Join(m.requestID.Hex(), realtime.RoleObserver, m.handleEnvelope)
	sub := m.sub
	m.mu.Unlock()

	// Persisted coordinates give an immediate, if possibly stale, picture.
	// They do not count as liveness: Mark only runs on live channel traffic.
	m.seedFromRecord(request)

	sub.Publish(realtime.RequestAmbulanceLocation{})
	sub.Publish(realtime.RequestPatientLocation{})

	changes, err := m.store.Watch(runCtx, m.requestID)
	if err != nil {
		m.log.WithError(err).Warn("Request change feed unavailable")
	} else {
		go m.followChanges(changes)
	}

	roles := []realtime.Role{realtime.RoleAmbulance, realtime.RolePatient}
	go m.session.Liveness.Run(runCtx, roles, m.onLivenessChange)

	return nil
}

// Snapshot assembles the current view under a consistent read of the session.
func (m *Monitor) Snapshot() MonitorSnapshot {
	m.mu.Lock()
	status := m.status
	m.mu.Unlock()

	snapshot := MonitorSnapshot{
		RequestID:       m.requestID.Hex(),
		Status:          status,
		AmbulanceOnline: m.session.Liveness.Online(realtime.RoleAmbulance),
		PatientOnline:   m.session.Liveness.Online(realtime.RolePatient),
		Route:           m.session.Route(),
	}

	if pos, ok := m.session.PeerPosition(realtime.RoleAmbulance); ok {
		p := pos
		snapshot.AmbulancePos = &p
	}
	if pos, ok := m.session.PeerPosition(realtime.RolePatient); ok {
		p := pos
		snapshot.PatientPos = &p
	}

	if snapshot.AmbulancePos != nil && snapshot.PatientPos != nil {
		distance := utils.CalculateDistance(
			snapshot.AmbulancePos.Latitude, snapshot.AmbulancePos.Longitude,
			snapshot.PatientPos.Latitude, snapshot.PatientPos.Longitude,
		)
		snapshot.DistanceKM = &distance
	}

	return snapshot
}

func (m *Monitor) Status() models.RequestStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Monitor) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	cancel := m.cancel
	sub := m.sub
	scheduler := m.scheduler
	m.mu.Unlock()

	if scheduler != nil {
		scheduler.Stop()
	}
	if sub != nil {
		sub.Leave()
	}
	if cancel != nil {
		cancel()
	}
}

func (m *Monitor) seedFromRecord(request *models.EmergencyRequest) {
	now := time.Now()

	if request.Location.Type != "" {
		m.session.SeedPeer(realtime.RolePatient, Position{
			Latitude:  request.Location.Latitude(),
			Longitude: request.Location.Longitude(),
			Timestamp: now,
		})
	}
	if request.AmbulanceLocation != nil {
		m.session.SeedPeer(realtime.RoleAmbulance, Position{
			Latitude:  request.AmbulanceLocation.Latitude(),
			Longitude: request.AmbulanceLocation.Longitude(),
			Timestamp: now,
		})
	}
}

func (m *Monitor) handleEnvelope(env realtime.Envelope) {
	event, err := env.Decode()
	if err != nil {
		m.log.WithError(err).Warn("Dropping invalid channel event")
		return
	}

	switch ev := event.(type) {
	case realtime.AmbulanceLocation:
		m.session.UpdatePeer(realtime.RoleAmbulance, Position{
			Latitude:  ev.Latitude,
			Longitude: ev.Longitude,
			Timestamp: time.Now(),
		})
		m.maybeScheduleRoute()

	case realtime.PatientLocation:
		m.session.UpdatePeer(realtime.RolePatient, Position{
			Latitude:  ev.Latitude,
			Longitude: ev.Longitude,
			Timestamp: time.Now(),
		})
		m.maybeScheduleRoute()

	case realtime.RequestUpdated:
		m.applyStatus(models.RequestStatus(ev.Status))
	}
}

func (m *Monitor) followChanges(changes <-chan models.RequestChange) {
	for change := range changes {
		if change.Request == nil {
			continue
		}
		m.applyStatus(change.Request.Status)
	}
}

func (m *Monitor) applyStatus(status models.RequestStatus) {
	m.mu.Lock()
	previous := m.status
	m.status = status
	m.mu.Unlock()

	if previous != status {
		m.log.WithField("status", string(status)).Info("Request status changed")
	}

	if status.IsTerminal() {
		m.Close()
		return
	}

	if status == models.RequestStatusDispatched {
		m.maybeScheduleRoute()
	}
}

func (m *Monitor) maybeScheduleRoute() {
	if m.Status() != models.RequestStatusDispatched {
		return
	}

	ambulance, ok := m.session.PeerPosition(realtime.RoleAmbulance)
	if !ok {
		return
	}
	patient, ok := m.session.PeerPosition(realtime.RolePatient)
	if !ok {
		return
	}

	m.scheduler.Schedule(
		maps.Coordinate{Latitude: ambulance.Latitude, Longitude: ambulance.Longitude},
		maps.Coordinate{Latitude: patient.Latitude, Longitude: patient.Longitude},
	)
}

func (m *Monitor) fetchRoute(origin, destination maps.Coordinate) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	route, err := m.routes.Route(ctx, origin, destination)
	if err != nil {
		m.log.WithError(err).Warn("Route lookup failed")
		return
	}

	m.session.SetRoute(route)
}

func (m *Monitor) onLivenessChange(role realtime.Role, online bool) {
	m.log.WithFields(map[string]interface{}{
		"peer":   string(role),
		"online": online,
	}).Info("Participant liveness changed")
}
