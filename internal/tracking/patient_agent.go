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

// PatientAgent is the requester-side participant. It shares the requester's
// position for the whole life of the request, answers pulls from the other
// side, and follows the authoritative status of the request through the
// change feed rather than trusting its own view of the call sequence.
type PatientAgent struct {
	requestID primitive.ObjectID

	broker    *realtime.Broker
	store     RequestStore
	positions PositionSource
	routes    maps.RouteProvider
	log       *logger.Logger

	session   *Session
	scheduler *RouteScheduler

	mu        sync.Mutex
	sub       *realtime.Subscription
	lastOwn   *Position
	status    models.RequestStatus
	stopWatch func()
	cancel    context.CancelFunc
	closed    bool
}

func NewPatientAgent(
	broker *realtime.Broker,
	store RequestStore,
	positions PositionSource,
	routes maps.RouteProvider,
	log *logger.Logger,
	requestID primitive.ObjectID,
) *PatientAgent {
	return &PatientAgent{
		requestID: requestID,
		broker:    broker,
		store:     store,
		positions: positions,
		routes:    routes,
		log:       log.WithRequestID(requestID).WithRole(string(realtime.RolePatient)),
	}
}

// Start seeds the current status from the request record, joins the channel,
// pulls the ambulance position, and begins sharing the device position. The
// change feed, not the seed read, is the source of truth afterwards.
func (p *PatientAgent) Start(ctx context.Context) error {
	request, err := p.store.GetByID(ctx, p.requestID)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.cancel = cancel
	p.status = request.Status
	p.session = NewSession(p.requestID)
	p.scheduler = NewRouteScheduler(RouteDebounceDelay, p.fetchRoute)
	p.sub = p.broker.Join(p.requestID.Hex(), realtime.RolePatient, p.handleEnvelope)
	sub := p.sub
	p.mu.Unlock()

	sub.Publish(realtime.RequestAmbulanceLocation{})

	stop, err := p.positions.Watch(runCtx, p.onPositionSample, func(err error) {
		p.log.WithError(err).Warn("Device position unavailable")
	})
	if err != nil {
		p.log.WithError(err).Warn("Failed to start device position watch")
	} else {
		p.mu.Lock()
		p.stopWatch = stop
		p.mu.Unlock()
	}

	changes, err := p.store.Watch(runCtx, p.requestID)
	if err != nil {
		p.log.WithError(err).Warn("Request change feed unavailable")
	} else {
		go p.followChanges(changes)
	}

	go p.session.Liveness.Run(runCtx, []realtime.Role{realtime.RoleAmbulance}, p.onLivenessChange)
	go p.keepAliveLoop(runCtx)

	return nil
}

func (p *PatientAgent) Session() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

func (p *PatientAgent) Status() models.RequestStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Close is idempotent and safe to call from the change feed goroutine.
func (p *PatientAgent) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	cancel := p.cancel
	stop := p.stopWatch
	sub := p.sub
	scheduler := p.scheduler
	p.mu.Unlock()

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

func (p *PatientAgent) handleEnvelope(env realtime.Envelope) {
	event, err := env.Decode()
	if err != nil {
		p.log.WithError(err).Warn("Dropping invalid channel event")
		return
	}

	switch ev := event.(type) {
	case realtime.AmbulanceLocation:
		p.session.UpdatePeer(realtime.RoleAmbulance, Position{
			Latitude:  ev.Latitude,
			Longitude: ev.Longitude,
			Timestamp: time.Now(),
		})
		p.maybeScheduleRoute()

	case realtime.RequestPatientLocation:
		if position := p.ownPosition(); position != nil {
			p.publishOwn(*position)
		}

	case realtime.RequestUpdated:
		p.applyStatus(models.RequestStatus(ev.Status))
	}
}

func (p *PatientAgent) followChanges(changes <-chan models.RequestChange) {
	for change := range changes {
		if change.Request == nil {
			continue
		}
		p.applyStatus(change.Request.Status)
	}
}

func (p *PatientAgent) applyStatus(status models.RequestStatus) {
	p.mu.Lock()
	previous := p.status
	p.status = status
	p.mu.Unlock()

	if previous != status {
		p.log.WithField("status", string(status)).Info("Request status changed")
	}

	if status.IsTerminal() {
		p.Close()
		return
	}

	if status == models.RequestStatusDispatched {
		p.maybeScheduleRoute()
	}
}

func (p *PatientAgent) onPositionSample(position Position) {
	p.setOwnPosition(position)

	if !p.active() {
		return
	}

	p.publishOwn(position)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := p.store.SetPatientLocation(ctx, p.requestID, models.NewLocation(position.Latitude, position.Longitude)); err != nil {
		p.log.WithError(err).Debug("Failed to persist patient position")
	}
	cancel()

	p.maybeScheduleRoute()
}

func (p *PatientAgent) keepAliveLoop(ctx context.Context) {
	ticker := time.NewTicker(KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			position := p.ownPosition()
			if position != nil && p.active() {
				p.publishOwn(*position)
			}
		}
	}
}

func (p *PatientAgent) maybeScheduleRoute() {
	if p.Status() != models.RequestStatusDispatched {
		return
	}

	own := p.ownPosition()
	if own == nil {
		return
	}

	ambulance, ok := p.session.PeerPosition(realtime.RoleAmbulance)
	if !ok {
		return
	}

	p.scheduler.Schedule(
		maps.Coordinate{Latitude: ambulance.Latitude, Longitude: ambulance.Longitude},
		maps.Coordinate{Latitude: own.Latitude, Longitude: own.Longitude},
	)
}

func (p *PatientAgent) fetchRoute(origin, destination maps.Coordinate) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	route, err := p.routes.Route(ctx, origin, destination)
	if err != nil {
		p.log.WithError(err).Warn("Route lookup failed")
		return
	}

	p.session.SetRoute(route)
}

func (p *PatientAgent) onLivenessChange(role realtime.Role, online bool) {
	p.log.WithFields(map[string]interface{}{
		"peer":   string(role),
		"online": online,
	}).Info("Peer liveness changed")
}

func (p *PatientAgent) active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed && !p.status.IsTerminal()
}

func (p *PatientAgent) ownPosition() *Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastOwn
}

func (p *PatientAgent) setOwnPosition(position Position) {
	p.mu.Lock()
	p.lastOwn = &position
	p.mu.Unlock()
}

func (p *PatientAgent) publishOwn(position Position) {
	p.mu.Lock()
	sub := p.sub
	p.mu.Unlock()
	if sub == nil {
		return
	}

	sub.Publish(realtime.PatientLocation{
		Latitude:  position.Latitude,
		Longitude: position.Longitude,
	})
}
