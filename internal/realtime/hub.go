package realtime

import (
	"encoding/json"

	"lifeline/pkg/logger"
)

// Hub bridges remote websocket participants onto the Broker. Each connected
// client is bound to exactly one request channel and one role at upgrade
// time; frames it sends are validated and republished on that channel, and
// broadcasts from other participants are fanned back down its socket.
type Hub struct {
	broker     *Broker
	register   chan *Client
	unregister chan *Client
	log        *logger.Logger
}

func NewHub(broker *Broker, log *logger.Logger) *Hub {
	return &Hub{
		broker:     broker,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

// subscribe binds the client to its request channel. Runs synchronously in
// ServeWS before the pumps start, so readPump never observes a nil or
// half-written subscription.
func (h *Hub) subscribe(client *Client) {
	client.sub = h.broker.Join(client.RequestID, client.Role, func(env Envelope) {
		data, err := json.Marshal(env)
		if err != nil {
			return
		}
		select {
		case client.send <- data:
		default:
			// Slow consumer; drop the frame. The next keep-alive tick
			// carries fresh state anyway.
		}
	})
}

func (h *Hub) registerClient(client *Client) {
	h.log.WithFields(map[string]interface{}{
		"request_id": client.RequestID,
		"role":       string(client.Role),
	}).Info("Tracking client connected")
}

func (h *Hub) unregisterClient(client *Client) {
	if client.sub != nil {
		client.sub.Leave()
		client.sub = nil
	}
	close(client.send)

	h.log.WithFields(map[string]interface{}{
		"request_id": client.RequestID,
		"role":       string(client.Role),
	}).Info("Tracking client disconnected")
}

// handleFrame validates an inbound frame and republishes it on the client's
// channel. Invalid frames and kinds a remote participant may not publish are
// logged and dropped, never echoed back as errors.
func (h *Hub) handleFrame(client *Client, frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		h.log.WithError(err).Warn("Dropping malformed tracking frame")
		return
	}

	event, err := env.Decode()
	if err != nil {
		h.log.WithError(err).Warn("Dropping invalid tracking event")
		return
	}

	if event.Kind() == EventRequestUpdated {
		h.log.Warn("Dropping client-published record update")
		return
	}

	if client.sub != nil {
		client.sub.Publish(event)
	}
}
