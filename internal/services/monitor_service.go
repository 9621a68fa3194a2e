package services

import (
	"context"
	"sync"

	"lifeline/internal/realtime"
	"lifeline/internal/tracking"
	"lifeline/pkg/logger"
	"lifeline/pkg/maps"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MonitorService keeps one passive tracking monitor alive per observed
// request, on behalf of the dispatch desk HTTP surface. Monitors shut
// themselves down when their request reaches a terminal state; the service
// lazily drops those entries on the next access.
type MonitorService struct {
	broker *realtime.Broker
	store  tracking.RequestStore
	routes maps.RouteProvider
	log    *logger.Logger

	// Monitors outlive the HTTP request that started them, so they run on
	// the service's own context, cancelled only by StopObserving or Close.
	ctx  context.Context
	stop context.CancelFunc

	mu       sync.Mutex
	monitors map[primitive.ObjectID]*tracking.Monitor
}

func NewMonitorService(broker *realtime.Broker, store tracking.RequestStore, routes maps.RouteProvider, log *logger.Logger) *MonitorService {
	ctx, stop := context.WithCancel(context.Background())
	return &MonitorService{
		broker:   broker,
		store:    store,
		routes:   routes,
		log:      log,
		ctx:      ctx,
		stop:     stop,
		monitors: make(map[primitive.ObjectID]*tracking.Monitor),
	}
}

// Observe returns the monitor for a request, starting one if none is
// running. A monitor whose request already terminated is replaced, which
// lets the desk reopen a view onto a request that was completed and then
// looked up again.
func (s *MonitorService) Observe(requestID primitive.ObjectID) (*tracking.Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if monitor, ok := s.monitors[requestID]; ok {
		if !monitor.Status().IsTerminal() {
			return monitor, nil
		}
		delete(s.monitors, requestID)
	}

	monitor := tracking.NewMonitor(s.broker, s.store, s.routes, s.log, requestID)
	if err := monitor.Start(s.ctx); err != nil {
		return nil, err
	}

	s.monitors[requestID] = monitor
	return monitor, nil
}

// Snapshot reports the current view of a request, starting observation on
// first access.
func (s *MonitorService) Snapshot(requestID primitive.ObjectID) (tracking.MonitorSnapshot, error) {
	monitor, err := s.Observe(requestID)
	if err != nil {
		return tracking.MonitorSnapshot{}, err
	}
	return monitor.Snapshot(), nil
}

// StopObserving closes the monitor for a request, if any.
func (s *MonitorService) StopObserving(requestID primitive.ObjectID) {
	s.mu.Lock()
	monitor, ok := s.monitors[requestID]
	if ok {
		delete(s.monitors, requestID)
	}
	s.mu.Unlock()

	if ok {
		monitor.Close()
	}
}

// Close tears down every running monitor. Called on server shutdown.
func (s *MonitorService) Close() {
	s.mu.Lock()
	monitors := make([]*tracking.Monitor, 0, len(s.monitors))
	for _, monitor := range s.monitors {
		monitors = append(monitors, monitor)
	}
	s.monitors = make(map[primitive.ObjectID]*tracking.Monitor)
	s.mu.Unlock()

	for _, monitor := range monitors {
		monitor.Close()
	}
	s.stop()
}
