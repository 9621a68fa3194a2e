package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lifeline/pkg/logger"

	"github.com/gorilla/websocket"
)

func newHubServer(t *testing.T) (*Broker, *httptest.Server) {
	t.Helper()

	log, err := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Format: "text"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	broker := NewBroker(log)
	hub := NewHub(broker, log)
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.URL.Query().Get("request_id")
		role := Role(r.URL.Query().Get("role"))
		if err := ServeWS(hub, w, r, requestID, role); err != nil {
			t.Logf("upgrade: %v", err)
		}
	}))
	t.Cleanup(server.Close)

	return broker, server
}

func dialWS(t *testing.T, server *httptest.Server, requestID string, role Role) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?request_id=" + requestID + "&role=" + string(role)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s as %s: %v", requestID, role, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, broker *Broker, requestID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if broker.SubscriberCount(requestID) >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("subscriber count for %s never reached %d", requestID, want)
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return env
}

func writeEvent(t *testing.T, conn *websocket.Conn, requestID string, role Role, event Event) {
	t.Helper()
	env, err := NewEnvelope(requestID, role, event)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestHubBridgesClientsOntoChannel(t *testing.T) {
	broker, server := newHubServer(t)

	ambulance := dialWS(t, server, "req-1", RoleAmbulance)
	patient := dialWS(t, server, "req-1", RolePatient)
	waitForSubscribers(t, broker, "req-1", 2)

	writeEvent(t, ambulance, "req-1", RoleAmbulance, AmbulanceLocation{Latitude: 6.93, Longitude: 79.86})

	env := readEnvelope(t, patient)
	if env.Kind != EventAmbulanceLocation {
		t.Fatalf("patient received %s, want %s", env.Kind, EventAmbulanceLocation)
	}

	event, err := env.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	loc := event.(AmbulanceLocation)
	if loc.Latitude != 6.93 || loc.Longitude != 79.86 {
		t.Errorf("coordinates mangled in transit: %+v", loc)
	}
}

func TestHubDropsInvalidFrames(t *testing.T) {
	broker, server := newHubServer(t)

	ambulance := dialWS(t, server, "req-1", RoleAmbulance)
	patient := dialWS(t, server, "req-1", RolePatient)
	waitForSubscribers(t, broker, "req-1", 2)

	// Garbage, an out-of-range coordinate, and a forbidden server-only kind
	// must all be swallowed without reaching the peer.
	if err := ambulance.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	writeEvent(t, ambulance, "req-1", RoleAmbulance, AmbulanceLocation{Latitude: 200, Longitude: 79.86})
	writeEvent(t, ambulance, "req-1", RoleAmbulance, RequestUpdated{Status: "completed"})

	// A valid frame afterwards still goes through, proving the connection
	// survived the bad input.
	writeEvent(t, ambulance, "req-1", RoleAmbulance, AmbulanceLocation{Latitude: 6.93, Longitude: 79.86})

	env := readEnvelope(t, patient)
	if env.Kind != EventAmbulanceLocation {
		t.Fatalf("first delivered frame is %s, want the valid location", env.Kind)
	}
}

func TestHubDisconnectLeavesChannel(t *testing.T) {
	broker, server := newHubServer(t)

	ambulance := dialWS(t, server, "req-1", RoleAmbulance)
	waitForSubscribers(t, broker, "req-1", 1)

	ambulance.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if broker.SubscriberCount("req-1") == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("subscription lingered after disconnect: %d", broker.SubscriberCount("req-1"))
}

func TestHubDeliversServerAnnouncements(t *testing.T) {
	broker, server := newHubServer(t)

	patient := dialWS(t, server, "req-1", RolePatient)
	waitForSubscribers(t, broker, "req-1", 1)

	broker.Announce("req-1", RequestUpdated{Status: "dispatched"})

	env := readEnvelope(t, patient)
	if env.Kind != EventRequestUpdated {
		t.Fatalf("received %s, want %s", env.Kind, EventRequestUpdated)
	}
	event, err := env.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated := event.(RequestUpdated); updated.Status != "dispatched" {
		t.Errorf("status = %q", updated.Status)
	}
}

// The subscription is bound before the handshake response goes out, so a
// frame written straight after dialing lands on the channel without waiting
// for any registration round trip.
func TestHubFrameImmediatelyAfterDialIsDelivered(t *testing.T) {
	broker, server := newHubServer(t)

	received := make(chan Envelope, 1)
	sub := broker.Join("req-1", RoleObserver, func(env Envelope) {
		select {
		case received <- env:
		default:
		}
	})
	defer sub.Leave()

	ambulance := dialWS(t, server, "req-1", RoleAmbulance)
	writeEvent(t, ambulance, "req-1", RoleAmbulance, AmbulanceLocation{Latitude: 6.93, Longitude: 79.86})

	select {
	case env := <-received:
		if env.Kind != EventAmbulanceLocation {
			t.Fatalf("received %s, want %s", env.Kind, EventAmbulanceLocation)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame written right after dial was not delivered")
	}
}
