package realtime

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope("req-1", RoleAmbulance, AmbulanceLocation{Latitude: 6.9271, Longitude: 79.8612})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	event, err := env.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	loc, ok := event.(AmbulanceLocation)
	if !ok {
		t.Fatalf("decoded %T, want AmbulanceLocation", event)
	}
	if loc.Latitude != 6.9271 || loc.Longitude != 79.8612 {
		t.Errorf("coordinates lost: %+v", loc)
	}
}

func TestEnvelopePullHasNoPayload(t *testing.T) {
	env, err := NewEnvelope("req-1", RolePatient, RequestAmbulanceLocation{})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if len(env.Payload) != 0 {
		t.Errorf("pull envelope should carry no payload, got %s", env.Payload)
	}

	if _, err := env.Decode(); err != nil {
		t.Errorf("pull envelope failed to decode: %v", err)
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	env := Envelope{Kind: "teleport", RequestID: "req-1"}
	if _, err := env.Decode(); !errors.Is(err, ErrUnknownEventKind) {
		t.Errorf("expected ErrUnknownEventKind, got %v", err)
	}
}

func TestDecodeRejectsMalformedCoordinates(t *testing.T) {
	cases := []string{
		`{"lat": 6.9}`,
		`{"lng": 79.8}`,
		`{"lat": "six", "lng": 79.8}`,
		`{"lat": 91.0, "lng": 79.8}`,
		`{"lat": 6.9, "lng": 181.0}`,
		`not json`,
		``,
	}
	for i, payload := range cases {
		env := Envelope{
			Kind:      EventPatientLocation,
			RequestID: "req-1",
			Payload:   json.RawMessage(payload),
		}
		if _, err := env.Decode(); err == nil {
			t.Errorf("case %d: malformed payload accepted: %s", i, payload)
		}
	}
}

func TestDecodeRejectsPayloadOnPull(t *testing.T) {
	env := Envelope{
		Kind:      EventRequestPatientLocation,
		RequestID: "req-1",
		Payload:   json.RawMessage(`{"lat": 6.9, "lng": 79.8}`),
	}
	if _, err := env.Decode(); err == nil {
		t.Error("pull with payload accepted")
	}
}

func TestDecodeRequestUpdatedRequiresStatus(t *testing.T) {
	env := Envelope{
		Kind:      EventRequestUpdated,
		RequestID: "req-1",
		Payload:   json.RawMessage(`{}`),
	}
	if _, err := env.Decode(); err == nil {
		t.Error("request-updated without status accepted")
	}

	env.Payload = json.RawMessage(`{"status": "dispatched"}`)
	event, err := env.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if updated, ok := event.(RequestUpdated); !ok || updated.Status != "dispatched" {
		t.Errorf("decoded %#v", event)
	}
}
