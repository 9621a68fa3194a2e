package tracking

import "time"

// The timing contract of the tracking protocol. These match the deployed
// clients, so they stay fixed named constants rather than config surface.
const (
	// KeepAliveInterval is how often an agent re-broadcasts its position even
	// when it has not moved, so a stationary sender is still provably live.
	KeepAliveInterval = 1 * time.Second

	// LivenessPollInterval is how often each side re-evaluates the peer's
	// online/offline classification.
	LivenessPollInterval = 2 * time.Second

	// OfflineThreshold is the silence after which a peer is shown offline.
	// Purely advisory: it never tears down the channel.
	OfflineThreshold = 5 * time.Second

	// RouteDebounceDelay is the quiet period required before a route lookup
	// fires; every new position pair restarts it.
	RouteDebounceDelay = 1 * time.Second

	// WatchErrorTimeout bounds how long a continuous position watch may stay
	// silent before its error callback fires.
	WatchErrorTimeout = 20 * time.Second

	// PositionOnceTimeout bounds the one-shot position fetch used as a
	// fallback at dispatch time.
	PositionOnceTimeout = 3 * time.Second
)
