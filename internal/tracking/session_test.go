package tracking

import (
	"testing"
	"time"

	"lifeline/internal/realtime"
	"lifeline/pkg/maps"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestSessionLastWriteWins(t *testing.T) {
	session := NewSession(primitive.NewObjectID())

	session.UpdatePeer(realtime.RoleAmbulance, Position{Latitude: 6.90, Longitude: 79.86, Timestamp: time.Now()})
	session.UpdatePeer(realtime.RoleAmbulance, Position{Latitude: 6.95, Longitude: 79.87, Timestamp: time.Now()})

	position, ok := session.PeerPosition(realtime.RoleAmbulance)
	if !ok {
		t.Fatal("peer position missing")
	}
	if position.Latitude != 6.95 || position.Longitude != 79.87 {
		t.Errorf("stale position returned: %+v", position)
	}
}

func TestSessionUpdateMarksLiveness(t *testing.T) {
	session := NewSession(primitive.NewObjectID())

	session.UpdatePeer(realtime.RolePatient, Position{Latitude: 6.92, Longitude: 79.86, Timestamp: time.Now()})
	if !session.Liveness.Online(realtime.RolePatient) {
		t.Error("peer should be online right after an update")
	}
}

func TestSessionSeedDoesNotMarkLiveness(t *testing.T) {
	session := NewSession(primitive.NewObjectID())

	session.SeedPeer(realtime.RoleAmbulance, Position{Latitude: 6.92, Longitude: 79.86, Timestamp: time.Now()})

	if _, ok := session.PeerPosition(realtime.RoleAmbulance); !ok {
		t.Fatal("seeded position should be readable")
	}
	if session.Liveness.Online(realtime.RoleAmbulance) {
		t.Error("a seeded position must not count as a live broadcast")
	}
}

func TestSessionUnknownPeer(t *testing.T) {
	session := NewSession(primitive.NewObjectID())
	if _, ok := session.PeerPosition(realtime.RolePatient); ok {
		t.Error("unknown peer should report no position")
	}
}

func TestSessionSetRouteConverts(t *testing.T) {
	session := NewSession(primitive.NewObjectID())

	session.SetRoute(&maps.Route{
		Points: []maps.Coordinate{
			{Latitude: 6.90, Longitude: 79.86},
			{Latitude: 6.93, Longitude: 79.86},
		},
		DistanceKM: 3.4,
		Duration:   6 * time.Minute,
		Summary:    "Galle Rd",
	})

	route := session.Route()
	if route == nil {
		t.Fatal("route not cached")
	}
	if len(route.Points) != 2 || route.DistanceKM != 3.4 || route.Summary != "Galle Rd" {
		t.Errorf("route conversion lost data: %+v", route)
	}
	if route.ComputedAt.IsZero() {
		t.Error("ComputedAt not stamped")
	}
}
