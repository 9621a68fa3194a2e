package realtime

import (
	"sync"

	"lifeline/pkg/logger"
)

// Broker fans ephemeral broadcasts out to every subscriber of a request's
// channel. Delivery is fire-and-forget: a handler that fails or a subscriber
// that left mid-publish is simply skipped; liveness self-heals on the next
// keep-alive tick. There is exactly one logical channel per request id, and
// any number of participants (the two agents plus passive observers) may
// join it.
type Broker struct {
	mu       sync.RWMutex
	channels map[string]map[*Subscription]struct{}
	log      *logger.Logger
}

// Subscription is one participant's membership of a request channel. The
// handler is invoked for every envelope published by the other participants;
// a participant never receives its own publishes.
type Subscription struct {
	broker    *Broker
	requestID string
	role      Role
	handler   func(Envelope)

	mu     sync.Mutex
	closed bool
}

func NewBroker(log *logger.Logger) *Broker {
	return &Broker{
		channels: make(map[string]map[*Subscription]struct{}),
		log:      log,
	}
}

// Join subscribes to the channel for requestID. Join is synchronous: once it
// returns, the subscription is live and the caller may immediately publish
// its "where are you" pull.
func (b *Broker) Join(requestID string, role Role, handler func(Envelope)) *Subscription {
	sub := &Subscription{
		broker:    b,
		requestID: requestID,
		role:      role,
		handler:   handler,
	}

	b.mu.Lock()
	channel, ok := b.channels[requestID]
	if !ok {
		channel = make(map[*Subscription]struct{})
		b.channels[requestID] = channel
	}
	channel[sub] = struct{}{}
	b.mu.Unlock()

	if b.log != nil {
		b.log.WithFields(map[string]interface{}{
			"request_id": requestID,
			"role":       string(role),
		}).Debug("Channel joined")
	}

	return sub
}

// Publish broadcasts an event to every other subscriber of the channel.
// Errors building the envelope are logged and swallowed: broadcasts are best
// effort by contract.
func (s *Subscription) Publish(event Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	env, err := NewEnvelope(s.requestID, s.role, event)
	if err != nil {
		if s.broker.log != nil {
			s.broker.log.WithError(err).Warn("Dropping unencodable broadcast")
		}
		return
	}

	s.broker.dispatch(s, env)
}

// Leave tears the subscription down. Safe to call more than once; always
// called on every exit path so a dead participant does not linger in the
// channel.
func (s *Subscription) Leave() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	b := s.broker
	b.mu.Lock()
	if channel, ok := b.channels[s.requestID]; ok {
		delete(channel, s)
		if len(channel) == 0 {
			delete(b.channels, s.requestID)
		}
	}
	b.mu.Unlock()
}

func (s *Subscription) RequestID() string { return s.requestID }

func (s *Subscription) Role() Role { return s.role }

// dispatch copies the subscriber set before invoking handlers so a handler
// that publishes a reply (pull -> location) does not deadlock on the broker
// lock.
func (b *Broker) dispatch(sender *Subscription, env Envelope) {
	b.mu.RLock()
	channel := b.channels[env.RequestID]
	targets := make([]*Subscription, 0, len(channel))
	for sub := range channel {
		if sub != sender && sub.handler != nil {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		sub.mu.Lock()
		closed := sub.closed
		sub.mu.Unlock()
		if closed {
			continue
		}
		sub.handler(env)
	}
}

// Announce publishes a server-originated event to every subscriber of a
// request's channel. Used for status changes, which only the service layer
// may emit; client frames carrying the same kind are rejected at the edge.
func (b *Broker) Announce(requestID string, event Event) {
	env, err := NewEnvelope(requestID, RoleObserver, event)
	if err != nil {
		if b.log != nil {
			b.log.WithError(err).Warn("Dropping unencodable announcement")
		}
		return
	}

	b.dispatch(nil, env)
}

// SubscriberCount reports how many participants are currently joined to a
// request's channel.
func (b *Broker) SubscriberCount(requestID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels[requestID])
}
