package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// Role identifies which side of a tracking session a participant speaks for.
// Observers (manager dashboards) join channels but never publish a position.
type Role string

const (
	RoleAmbulance Role = "ambulance"
	RolePatient   Role = "patient"
	RoleObserver  Role = "observer"
)

type EventKind string

const (
	// Ephemeral location broadcasts. Published on every fresh position sample
	// and once per keep-alive interval, so a stationary sender still proves
	// it is live.
	EventAmbulanceLocation EventKind = "ambulance-location"
	EventPatientLocation   EventKind = "patient-location"

	// Zero-payload pulls. A joining participant publishes one to get the
	// peer's position immediately instead of waiting for the next tick.
	EventRequestAmbulanceLocation EventKind = "request-ambulance-location"
	EventRequestPatientLocation   EventKind = "request-patient-location"

	// Persisted-record change relayed onto the channel for remote clients.
	// Server-published only; never accepted from a participant.
	EventRequestUpdated EventKind = "request-updated"
)

var (
	ErrUnknownEventKind = errors.New("unknown event kind")
	ErrInvalidPayload   = errors.New("invalid event payload")
)

// Event is the decoded, typed form of a broadcast.
type Event interface {
	Kind() EventKind
}

type AmbulanceLocation struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

func (AmbulanceLocation) Kind() EventKind { return EventAmbulanceLocation }

type PatientLocation struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

func (PatientLocation) Kind() EventKind { return EventPatientLocation }

type RequestAmbulanceLocation struct{}

func (RequestAmbulanceLocation) Kind() EventKind { return EventRequestAmbulanceLocation }

type RequestPatientLocation struct{}

func (RequestPatientLocation) Kind() EventKind { return EventRequestPatientLocation }

type RequestUpdated struct {
	Status      string `json:"status"`
	AmbulanceID string `json:"ambulance_id,omitempty"`
}

func (RequestUpdated) Kind() EventKind { return EventRequestUpdated }

// Envelope is the wire form of an event. Payload schemas are fixed per kind
// and validated at the receive boundary; a frame that does not decode into
// its kind's schema is dropped.
type Envelope struct {
	Kind      EventKind       `json:"kind"`
	RequestID string          `json:"request_id"`
	Role      Role            `json:"role,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func NewEnvelope(requestID string, role Role, event Event) (Envelope, error) {
	env := Envelope{
		Kind:      event.Kind(),
		RequestID: requestID,
		Role:      role,
		Timestamp: time.Now().UnixMilli(),
	}

	switch event.(type) {
	case RequestAmbulanceLocation, RequestPatientLocation:
		// zero payload
	default:
		payload, err := json.Marshal(event)
		if err != nil {
			return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", event.Kind(), err)
		}
		env.Payload = payload
	}

	return env, nil
}

// Decode validates the envelope against its kind's schema and returns the
// typed event.
func (e Envelope) Decode() (Event, error) {
	switch e.Kind {
	case EventAmbulanceLocation:
		var ev AmbulanceLocation
		if err := decodeCoordinatePayload(e.Payload, &ev.Latitude, &ev.Longitude); err != nil {
			return nil, err
		}
		return ev, nil

	case EventPatientLocation:
		var ev PatientLocation
		if err := decodeCoordinatePayload(e.Payload, &ev.Latitude, &ev.Longitude); err != nil {
			return nil, err
		}
		return ev, nil

	case EventRequestAmbulanceLocation:
		if err := requireEmptyPayload(e.Payload); err != nil {
			return nil, err
		}
		return RequestAmbulanceLocation{}, nil

	case EventRequestPatientLocation:
		if err := requireEmptyPayload(e.Payload); err != nil {
			return nil, err
		}
		return RequestPatientLocation{}, nil

	case EventRequestUpdated:
		var ev RequestUpdated
		if err := json.Unmarshal(e.Payload, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if ev.Status == "" {
			return nil, fmt.Errorf("%w: request-updated requires a status", ErrInvalidPayload)
		}
		return ev, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventKind, e.Kind)
	}
}

func decodeCoordinatePayload(payload json.RawMessage, lat, lng *float64) error {
	var body struct {
		Latitude  *float64 `json:"lat"`
		Longitude *float64 `json:"lng"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if body.Latitude == nil || body.Longitude == nil {
		return fmt.Errorf("%w: location event requires lat and lng", ErrInvalidPayload)
	}
	if !isFinite(*body.Latitude) || !isFinite(*body.Longitude) {
		return fmt.Errorf("%w: coordinate is not a finite number", ErrInvalidPayload)
	}
	if *body.Latitude < -90 || *body.Latitude > 90 || *body.Longitude < -180 || *body.Longitude > 180 {
		return fmt.Errorf("%w: coordinate out of range", ErrInvalidPayload)
	}

	*lat = *body.Latitude
	*lng = *body.Longitude
	return nil
}

func requireEmptyPayload(payload json.RawMessage) error {
	if len(payload) == 0 || string(payload) == "null" || string(payload) == "{}" {
		return nil
	}
	return fmt.Errorf("%w: pull events carry no payload", ErrInvalidPayload)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
