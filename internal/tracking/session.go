package tracking

import (
	"sync"
	"time"

	"lifeline/internal/models"
	"lifeline/internal/realtime"
	"lifeline/pkg/maps"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Session is the ephemeral per-request tracking state an agent holds: the
// last known peer positions, their liveness, and the most recently computed
// route. Never persisted; a reconnecting agent rebuilds it by re-reading the
// request record and re-issuing its pull on the channel.
type Session struct {
	RequestID primitive.ObjectID
	Liveness  *LivenessTracker

	mu              sync.RWMutex
	peers           map[realtime.Role]Position
	route           *models.Route
	routeComputedAt time.Time
}

func NewSession(requestID primitive.ObjectID) *Session {
	return &Session{
		RequestID: requestID,
		Liveness:  NewLivenessTracker(),
		peers:     make(map[realtime.Role]Position),
	}
}

// UpdatePeer caches a received position and marks the peer live. Last write
// wins unconditionally: broadcasts carry no ordering guarantee, so the most
// recently received payload is simply the truth.
func (s *Session) UpdatePeer(role realtime.Role, position Position) {
	s.mu.Lock()
	s.peers[role] = position
	s.mu.Unlock()

	s.Liveness.Mark(role)
}

// SeedPeer caches a position read from the request record without marking
// the peer live. A persisted coordinate proves nothing about whether the
// device is still sending.
func (s *Session) SeedPeer(role realtime.Role, position Position) {
	s.mu.Lock()
	s.peers[role] = position
	s.mu.Unlock()
}

func (s *Session) PeerPosition(role realtime.Role) (Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	position, ok := s.peers[role]
	return position, ok
}

// SetRoute replaces the cached route. Failed lookups never call this, so the
// previous path stays on screen until a fresh one lands.
func (s *Session) SetRoute(route *maps.Route) {
	converted := &models.Route{
		Points:     make([]models.RoutePoint, len(route.Points)),
		DistanceKM: route.DistanceKM,
		Duration:   route.Duration,
		Summary:    route.Summary,
		ComputedAt: time.Now(),
	}
	for i, p := range route.Points {
		converted.Points[i] = models.RoutePoint{
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
		}
	}

	s.mu.Lock()
	s.route = converted
	s.routeComputedAt = converted.ComputedAt
	s.mu.Unlock()
}

func (s *Session) Route() *models.Route {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.route
}
