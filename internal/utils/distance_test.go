package utils

import (
	"math"
	"testing"
)

func TestCalculateDistanceZeroForSamePoint(t *testing.T) {
	d := CalculateDistance(6.9271, 79.8612, 6.9271, 79.8612)
	if d != 0 {
		t.Errorf("expected 0 distance for identical points, got %f", d)
	}
}

func TestCalculateDistanceSymmetric(t *testing.T) {
	a := CalculateDistance(6.9271, 79.8612, 7.2906, 80.6337)
	b := CalculateDistance(7.2906, 80.6337, 6.9271, 79.8612)
	if math.Abs(a-b) > 1e-9 {
		t.Errorf("distance not symmetric: %f vs %f", a, b)
	}
}

func TestCalculateDistanceKnownPair(t *testing.T) {
	// Colombo to Kandy, roughly 94 km great-circle.
	d := CalculateDistance(6.9271, 79.8612, 7.2906, 80.6337)
	if d < 90 || d > 100 {
		t.Errorf("Colombo-Kandy distance out of range: %f km", d)
	}
}

func TestIsWithinRadius(t *testing.T) {
	if !IsWithinRadius(6.9271, 79.8612, 6.9300, 79.8600, 1.0) {
		t.Error("nearby point should be within 1 km")
	}
	if IsWithinRadius(6.9271, 79.8612, 7.2906, 80.6337, 10.0) {
		t.Error("Kandy should not be within 10 km of Colombo")
	}
}

func TestEstimateETAMinutesPositive(t *testing.T) {
	eta := EstimateETAMinutes(CalculateDistance(6.9271, 79.8612, 6.9400, 79.8700), 0)
	if eta <= 0 {
		t.Errorf("expected positive ETA, got %d", eta)
	}
}
