package scheduler

import "sync"

// NetworkMonitor reports the connectivity properties that drive the
// heartbeat cadence.
type NetworkMonitor interface {
	// Metered reports whether the active network meters traffic.
	Metered() bool

	// Foregrounded reports whether the application is in the foreground.
	Foregrounded() bool
}

// StaticNetwork is a NetworkMonitor whose state is set by the embedder.
// The zero value is unmetered and foregrounded, which is what a desktop
// process wants.
type StaticNetwork struct {
	mu         sync.Mutex
	metered    bool
	background bool
}

// NewStaticNetwork returns an unmetered, foregrounded monitor.
func NewStaticNetwork() *StaticNetwork {
	return &StaticNetwork{}
}

// SetMetered marks the active network as metered or not.
func (n *StaticNetwork) SetMetered(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.metered = v
}

// SetBackground marks the application as backgrounded or not.
func (n *StaticNetwork) SetBackground(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.background = v
}

func (n *StaticNetwork) Metered() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.metered
}

func (n *StaticNetwork) Foregrounded() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.background
}
