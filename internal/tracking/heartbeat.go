package tracking

import (
	"context"
	"sync"
	"time"

	"lifeline/internal/realtime"
)

// LivenessTracker classifies peers as online or offline from the timestamps
// of their received location broadcasts. The classification is advisory: it
// drives a UI indicator and nothing else. A peer that has never been seen is
// offline.
type LivenessTracker struct {
	mu       sync.RWMutex
	lastSeen map[realtime.Role]time.Time

	now func() time.Time
}

func NewLivenessTracker() *LivenessTracker {
	return &LivenessTracker{
		lastSeen: make(map[realtime.Role]time.Time),
		now:      time.Now,
	}
}

// Mark records that a broadcast from role was just received.
func (t *LivenessTracker) Mark(role realtime.Role) {
	t.mu.Lock()
	t.lastSeen[role] = t.now()
	t.mu.Unlock()
}

// Online reports whether role has been heard from within OfflineThreshold.
func (t *LivenessTracker) Online(role realtime.Role) bool {
	t.mu.RLock()
	seen, ok := t.lastSeen[role]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	return t.now().Sub(seen) < OfflineThreshold
}

// LastSeen returns when role was last heard from.
func (t *LivenessTracker) LastSeen(role realtime.Role) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	seen, ok := t.lastSeen[role]
	return seen, ok
}

// Run polls the classification for the given roles every
// LivenessPollInterval and invokes onChange when a role flips between online
// and offline. Blocks until ctx is cancelled.
func (t *LivenessTracker) Run(ctx context.Context, roles []realtime.Role, onChange func(role realtime.Role, online bool)) {
	state := make(map[realtime.Role]bool, len(roles))
	for _, role := range roles {
		state[role] = t.Online(role)
	}

	ticker := time.NewTicker(LivenessPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, role := range roles {
				online := t.Online(role)
				if online != state[role] {
					state[role] = online
					if onChange != nil {
						onChange(role, online)
					}
				}
			}
		}
	}
}
