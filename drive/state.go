package drive

import "sync"

// UnknownTray is the tray value used while the position is not trusted.
const UnknownTray = -1

// Position is a read-only snapshot of the tracked robot state.
type Position struct {
	CurrentTray int  `json:"current_tray"`
	AtHome      bool `json:"at_home"`
}

// Tracker records the actuator position the engine believes in. The
// dispatcher is the only writer; everyone else reads snapshots. The tracker
// never observes the device directly: it is advanced purely from command
// echoes, which is why sends mark the position unknown until the echo lands.
//
// Invariant: AtHome and CurrentTray >= 1 are mutually exclusive.
type Tracker struct {
	mu          sync.RWMutex
	currentTray int
	lastTray    int
	atHome      bool
}

// NewTracker starts with everything unknown.
func NewTracker() *Tracker {
	return &Tracker{currentTray: UnknownTray, lastTray: UnknownTray}
}

// BelievedPosition returns the tray the engine believes the camera faces,
// or UnknownTray.
func (t *Tracker) BelievedPosition() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentTray
}

// IsHome reports whether the actuator is believed to sit at the reference
// position.
func (t *Tracker) IsHome() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.atHome
}

// Snapshot returns the externally visible state.
func (t *Tracker) Snapshot() Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Position{CurrentTray: t.currentTray, AtHome: t.atHome}
}

// reset returns to the fully unknown state. Used by stop.
func (t *Tracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentTray = UnknownTray
	t.lastTray = UnknownTray
	t.atHome = false
}

// markSending records the transition bookkeeping at send time. A go_next
// parks the current tray in lastTray so the echo can compute the advance;
// every other wire command invalidates the position outright.
func (t *Tracker) markSending(cmd Command) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch cmd {
	case CmdGoNext:
		t.lastTray = t.currentTray
		t.currentTray = UnknownTray
	default:
		t.lastTray = UnknownTray
		t.currentTray = UnknownTray
	}
}

// applyEcho advances the state machine from a successful command echo.
// The echo is ground truth even when it differs from the sent command.
func (t *Tracker) applyEcho(echo Command, trayCount int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case echo == CmdGoHomeDirty:
		t.atHome = true
		t.currentTray = UnknownTray
		t.lastTray = UnknownTray
	case echo == CmdGoNext && t.atHome:
		// First advance after homing lands on tray 1.
		t.currentTray = 1
		t.lastTray = UnknownTray
		t.atHome = false
	case echo == CmdGoNext:
		t.currentTray = t.lastTray + 1
		if t.currentTray > trayCount {
			t.currentTray = 1
		}
		t.lastTray = UnknownTray
	case t.atHome:
		// Any other movement means we are no longer at home.
		t.atHome = false
	}
}
