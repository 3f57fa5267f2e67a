package drive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerStartsUnknown(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, UnknownTray, tr.BelievedPosition())
	assert.False(t, tr.IsHome())
}

func TestTrackerHomingThenAdvancing(t *testing.T) {
	tr := NewTracker()

	tr.markSending(CmdGoHomeDirty)
	tr.applyEcho(CmdGoHomeDirty, 3)
	require.True(t, tr.IsHome())
	assert.Equal(t, UnknownTray, tr.BelievedPosition())

	// First advance after homing lands on tray 1.
	tr.markSending(CmdGoNext)
	tr.applyEcho(CmdGoNext, 3)
	assert.False(t, tr.IsHome())
	assert.Equal(t, 1, tr.BelievedPosition())
}

func TestTrackerWrapsAfterLastTray(t *testing.T) {
	tr := NewTracker()
	tr.applyEcho(CmdGoHomeDirty, 3)

	want := []int{1, 2, 3, 1, 2}
	for _, tray := range want {
		tr.markSending(CmdGoNext)
		tr.applyEcho(CmdGoNext, 3)
		assert.Equal(t, tray, tr.BelievedPosition())
	}
}

func TestTrackerSendInvalidatesPosition(t *testing.T) {
	tr := NewTracker()
	tr.applyEcho(CmdGoHomeDirty, 3)
	tr.markSending(CmdGoNext)
	tr.applyEcho(CmdGoNext, 3)
	require.Equal(t, 1, tr.BelievedPosition())

	// While a command is on the wire the position is not trusted.
	tr.markSending(CmdGoNext)
	assert.Equal(t, UnknownTray, tr.BelievedPosition())
}

func TestTrackerNonAdvanceEchoLeavesHome(t *testing.T) {
	tr := NewTracker()
	tr.applyEcho(CmdGoHomeDirty, 3)
	require.True(t, tr.IsHome())

	tr.markSending(CmdStart)
	tr.applyEcho(CmdStart, 3)
	assert.False(t, tr.IsHome())
	assert.Equal(t, UnknownTray, tr.BelievedPosition())
}

func TestTrackerResetForgetsEverything(t *testing.T) {
	tr := NewTracker()
	tr.applyEcho(CmdGoHomeDirty, 3)
	tr.markSending(CmdGoNext)
	tr.applyEcho(CmdGoNext, 3)

	tr.reset()
	snap := tr.Snapshot()
	assert.Equal(t, Position{CurrentTray: UnknownTray, AtHome: false}, snap)
}
