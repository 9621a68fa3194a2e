package tracking

import (
	"context"
	"sync"
	"time"

	"lifeline/internal/models"
	"lifeline/internal/realtime"
	"lifeline/pkg/logger"
	"lifeline/pkg/maps"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AmbulanceAgent is the operator-side participant. It owns the device
// position, broadcasts it on the request channel while the mission is
// underway, answers "where are you" pulls, and drives the dispatch, arrive
// and complete transitions.
type AmbulanceAgent struct {
	requestID   primitive.ObjectID
	ambulanceID primitive.ObjectID

	broker     *realtime.Broker
	store      RequestStore
	dispatcher Dispatcher
	positions  PositionSource
	routes     maps.RouteProvider
	log        *logger.Logger

	session   *Session
	scheduler *RouteScheduler

	mu           sync.Mutex
	sub          *realtime.Subscription
	lastOwn      *Position
	broadcasting bool
	stopWatch    func()
	cancel       context.CancelFunc
	closed       bool
}

func NewAmbulanceAgent(
	broker *realtime.Broker,
	store RequestStore,
	dispatcher Dispatcher,
	positions PositionSource,
	routes maps.RouteProvider,
	log *logger.Logger,
	requestID, ambulanceID primitive.ObjectID,
) *AmbulanceAgent {
	return &AmbulanceAgent{
		requestID:   requestID,
		ambulanceID: ambulanceID,
		broker:      broker,
		store:       store,
		dispatcher:  dispatcher,
		positions:   positions,
		routes:      routes,
		log:         log.WithRequestID(requestID).WithRole(string(realtime.RoleAmbulance)),
	}
}

// Start joins the request channel and, once subscribed, immediately pulls
// the patient's position so a late join does not wait for the next natural
// tick. The device watch starts right away; broadcasting only begins at
// dispatch.
func (a *AmbulanceAgent) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	a.mu.Lock()
	a.cancel = cancel
	a.session = NewSession(a.requestID)
	a.scheduler = NewRouteScheduler(RouteDebounceDelay, a.fetchRoute)
	a.sub = a.broker.Join(a.requestID.Hex(), realtime.RoleAmbulance, a.handleEnvelope)
	sub := a.sub
	a.mu.Unlock()

	sub.Publish(realtime.RequestPatientLocation{})

	stop, err := a.positions.Watch(runCtx, a.onPositionSample, func(err error) {
		// Geolocation trouble is a warning, never an abort: the mission
		// continues without a live position until samples resume.
		a.log.WithError(err).Warn("Device position unavailable")
	})
	if err != nil {
		a.log.WithError(err).Warn("Failed to start device position watch")
	} else {
		a.mu.Lock()
		a.stopWatch = stop
		a.mu.Unlock()
	}

	changes, err := a.store.Watch(runCtx, a.requestID)
	if err != nil {
		a.log.WithError(err).Warn("Request change feed unavailable")
	} else {
		go a.followChanges(changes)
	}

	go a.session.Liveness.Run(runCtx, []realtime.Role{realtime.RolePatient}, a.onLivenessChange)
	go a.keepAliveLoop(runCtx)

	return nil
}

func (a *AmbulanceAgent) Session() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// Dispatch moves the request to dispatched and begins continuous broadcast.
// The persisted ambulance position is best effort: last continuous sample,
// else a bounded one-shot fetch, else none at all.
func (a *AmbulanceAgent) Dispatch(ctx context.Context) error {
	position := a.ownPosition()
	if position == nil {
		onceCtx, cancel := context.WithTimeout(ctx, PositionOnceTimeout)
		p, err := a.positions.Once(onceCtx)
		cancel()
		if err != nil {
			a.log.WithError(err).Warn("Dispatching without a known position")
		} else {
			position = &p
			a.setOwnPosition(p)
		}
	}

	var location *models.Location
	if position != nil {
		loc := models.NewLocation(position.Latitude, position.Longitude)
		location = &loc
	}

	if _, err := a.dispatcher.Dispatch(ctx, a.requestID, location); err != nil {
		return err
	}

	a.mu.Lock()
	a.broadcasting = true
	a.mu.Unlock()

	if position != nil {
		a.publishOwn(*position)
	}

	a.log.Info("Dispatch started, broadcasting position")
	return nil
}

// Arrive stops the continuous broadcast; the channel itself stays open for
// final coordination until Complete.
func (a *AmbulanceAgent) Arrive(ctx context.Context) error {
	if _, err := a.dispatcher.Arrive(ctx, a.requestID); err != nil {
		return err
	}

	a.mu.Lock()
	a.broadcasting = false
	a.mu.Unlock()

	a.log.Info("Arrived, position broadcast stopped")
	return nil
}

// Complete finishes the mission and tears the whole session down.
func (a *AmbulanceAgent) Complete(ctx context.Context) error {
	if _, err := a.dispatcher.Complete(ctx, a.requestID); err != nil {
		return err
	}

	a.Close()
	return nil
}

// Close releases every resource the agent holds: the device watch, the
// debounce timer, the channel membership. Runs on every exit path and is
// idempotent.
func (a *AmbulanceAgent) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.broadcasting = false
	cancel := a.cancel
	stop := a.stopWatch
	sub := a.sub
	scheduler := a.scheduler
	a.mu.Unlock()

	if stop != nil {
		stop()
	}
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

func (a *AmbulanceAgent) handleEnvelope(env realtime.Envelope) {
	event, err := env.Decode()
	if err != nil {
		a.log.WithError(err).Warn("Dropping invalid channel event")
		return
	}

	switch ev := event.(type) {
	case realtime.PatientLocation:
		a.session.UpdatePeer(realtime.RolePatient, Position{
			Latitude:  ev.Latitude,
			Longitude: ev.Longitude,
			Timestamp: time.Now(),
		})
		a.maybeScheduleRoute()

	case realtime.RequestAmbulanceLocation:
		if position := a.ownPosition(); position != nil {
			a.publishOwn(*position)
		}

	case realtime.RequestUpdated:
		a.applyStatus(models.RequestStatus(ev.Status))
	}
}

func (a *AmbulanceAgent) followChanges(changes <-chan models.RequestChange) {
	for change := range changes {
		if change.Request == nil {
			continue
		}
		a.applyStatus(change.Request.Status)
	}
}

// applyStatus reacts to server-confirmed transitions. A request closed out
// from under the operator, e.g. a manager cancelling an assigned mission,
// tears the session down exactly like a local Complete.
func (a *AmbulanceAgent) applyStatus(status models.RequestStatus) {
	if status == models.RequestStatusArrived || status.IsTerminal() {
		a.mu.Lock()
		a.broadcasting = false
		a.mu.Unlock()
	}

	if status.IsTerminal() {
		a.log.WithField("status", string(status)).Info("Request closed, tearing down")
		a.Close()
	}
}

func (a *AmbulanceAgent) onPositionSample(position Position) {
	a.setOwnPosition(position)

	a.mu.Lock()
	broadcasting := a.broadcasting
	a.mu.Unlock()
	if !broadcasting {
		return
	}

	a.publishOwn(position)

	// Opportunistic recovery hint; losing a write here just means the next
	// sample refreshes it.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := a.store.SetAmbulanceLocation(ctx, a.requestID, models.NewLocation(position.Latitude, position.Longitude)); err != nil {
		a.log.WithError(err).Debug("Failed to persist ambulance position")
	}
	cancel()

	a.maybeScheduleRoute()
}

func (a *AmbulanceAgent) keepAliveLoop(ctx context.Context) {
	ticker := time.NewTicker(KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.mu.Lock()
			broadcasting := a.broadcasting
			position := a.lastOwn
			a.mu.Unlock()

			if broadcasting && position != nil {
				a.publishOwn(*position)
			}
		}
	}
}

func (a *AmbulanceAgent) maybeScheduleRoute() {
	a.mu.Lock()
	broadcasting := a.broadcasting
	own := a.lastOwn
	a.mu.Unlock()

	if !broadcasting || own == nil {
		return
	}

	patient, ok := a.session.PeerPosition(realtime.RolePatient)
	if !ok {
		return
	}

	a.scheduler.Schedule(
		maps.Coordinate{Latitude: own.Latitude, Longitude: own.Longitude},
		maps.Coordinate{Latitude: patient.Latitude, Longitude: patient.Longitude},
	)
}

func (a *AmbulanceAgent) fetchRoute(origin, destination maps.Coordinate) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	route, err := a.routes.Route(ctx, origin, destination)
	if err != nil {
		// Keep the previously cached path; the next debounce cycle retries.
		a.log.WithError(err).Warn("Route lookup failed")
		return
	}

	a.session.SetRoute(route)
}

func (a *AmbulanceAgent) onLivenessChange(role realtime.Role, online bool) {
	a.log.WithFields(map[string]interface{}{
		"peer":   string(role),
		"online": online,
	}).Info("Peer liveness changed")
}

func (a *AmbulanceAgent) ownPosition() *Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastOwn
}

func (a *AmbulanceAgent) setOwnPosition(position Position) {
	a.mu.Lock()
	a.lastOwn = &position
	a.mu.Unlock()
}

func (a *AmbulanceAgent) publishOwn(position Position) {
	a.mu.Lock()
	sub := a.sub
	a.mu.Unlock()
	if sub == nil {
		return
	}

	sub.Publish(realtime.AmbulanceLocation{
		Latitude:  position.Latitude,
		Longitude: position.Longitude,
	})
}
