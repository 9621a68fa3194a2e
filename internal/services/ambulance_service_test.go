package services

import (
	"context"
	"errors"
	"testing"

	"lifeline/internal/models"
)

func seedUnitAt(t *testing.T, ambulances *fakeAmbulanceRepo, callSign string, latitude, longitude float64) *models.Ambulance {
	t.Helper()
	location := models.NewLocation(latitude, longitude)
	ambulance := &models.Ambulance{
		VehicleNumber:   "WP " + callSign,
		CallSign:        callSign,
		Availability:    models.AmbulanceAvailable,
		CurrentLocation: &location,
	}
	if err := ambulances.Create(context.Background(), ambulance); err != nil {
		t.Fatalf("seed unit: %v", err)
	}
	return ambulance
}

func TestSuggestNearestRanksByDistance(t *testing.T) {
	ambulances := newFakeAmbulanceRepo()
	service := NewAmbulanceService(ambulances, testLogger(t))

	// Incident in central Colombo; U2 is the closest unit.
	far := seedUnitAt(t, ambulances, "U1", 6.99, 79.92)
	near := seedUnitAt(t, ambulances, "U2", 6.9280, 79.8620)

	suggestions, err := service.SuggestNearest(context.Background(), 6.9271, 79.8612, 0, 0)
	if err != nil {
		t.Fatalf("SuggestNearest: %v", err)
	}
	if len(suggestions) != 2 {
		t.Fatalf("suggestions = %d, want 2", len(suggestions))
	}
	if suggestions[0].Ambulance.ID != near.ID || suggestions[1].Ambulance.ID != far.ID {
		t.Errorf("order = [%s %s], want [U2 U1]",
			suggestions[0].Ambulance.CallSign, suggestions[1].Ambulance.CallSign)
	}
	if suggestions[0].DistanceKM <= 0 || suggestions[0].DistanceKM >= suggestions[1].DistanceKM {
		t.Errorf("distances not ascending: %f, %f",
			suggestions[0].DistanceKM, suggestions[1].DistanceKM)
	}
	if suggestions[0].ETAMinutes <= 0 {
		t.Errorf("eta = %d, want positive", suggestions[0].ETAMinutes)
	}
}

func TestSuggestNearestSkipsUnusableUnits(t *testing.T) {
	ambulances := newFakeAmbulanceRepo()
	service := NewAmbulanceService(ambulances, testLogger(t))

	seedUnitAt(t, ambulances, "U1", 6.9280, 79.8620)
	// No standing position yet.
	if err := ambulances.Create(context.Background(), &models.Ambulance{
		VehicleNumber: "WP U2",
		CallSign:      "U2",
		Availability:  models.AmbulanceAvailable,
	}); err != nil {
		t.Fatalf("seed unit: %v", err)
	}
	// Kandy, well outside the default search radius.
	seedUnitAt(t, ambulances, "U3", 7.2906, 80.6337)

	suggestions, err := service.SuggestNearest(context.Background(), 6.9271, 79.8612, 0, 0)
	if err != nil {
		t.Fatalf("SuggestNearest: %v", err)
	}
	if len(suggestions) != 1 {
		t.Fatalf("suggestions = %d, want only the in-radius unit", len(suggestions))
	}
	if suggestions[0].Ambulance.CallSign != "U1" {
		t.Errorf("suggested %s, want U1", suggestions[0].Ambulance.CallSign)
	}
}

func TestSuggestNearestHonorsLimit(t *testing.T) {
	ambulances := newFakeAmbulanceRepo()
	service := NewAmbulanceService(ambulances, testLogger(t))

	seedUnitAt(t, ambulances, "U1", 6.9280, 79.8620)
	seedUnitAt(t, ambulances, "U2", 6.9290, 79.8630)
	seedUnitAt(t, ambulances, "U3", 6.9300, 79.8640)

	suggestions, err := service.SuggestNearest(context.Background(), 6.9271, 79.8612, 0, 2)
	if err != nil {
		t.Fatalf("SuggestNearest: %v", err)
	}
	if len(suggestions) != 2 {
		t.Fatalf("suggestions = %d, want 2", len(suggestions))
	}
}

func TestSuggestNearestRejectsBadCoordinates(t *testing.T) {
	ambulances := newFakeAmbulanceRepo()
	service := NewAmbulanceService(ambulances, testLogger(t))

	if _, err := service.SuggestNearest(context.Background(), 91, 79.8612, 0, 0); !errors.Is(err, models.ErrInvalidCoordinates) {
		t.Errorf("expected ErrInvalidCoordinates, got %v", err)
	}
}
