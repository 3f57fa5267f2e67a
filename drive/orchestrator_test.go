package drive

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenobot/carousel/job"
	"github.com/phenobot/carousel/plant"
	"github.com/phenobot/carousel/status"
)

type commandLog struct {
	mu   sync.Mutex
	cmds []Command
}

func (c *commandLog) submit(cmd Command, _ status.Callback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cmds = append(c.cmds, cmd)
}

func (c *commandLog) list() []Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Command, len(c.cmds))
	copy(out, c.cmds)
	return out
}

type fakeSnapper struct {
	mu    sync.Mutex
	snaps []struct {
		tray      int
		jobActive bool
	}
}

func (f *fakeSnapper) Snap(tray int, jobActive bool, _ status.Callback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps = append(f.snaps, struct {
		tray      int
		jobActive bool
	}{tray, jobActive})
}

type fakeRecorder struct {
	mu   sync.Mutex
	runs []string
}

func (f *fakeRecorder) RecordRun(_, _ string, _, _ time.Time, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, outcome)
}

func (f *fakeRecorder) outcomes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.runs))
	copy(out, f.runs)
	return out
}

func testJob(name string) *job.Job {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.Local)
	j := job.New(name, job.Every(6), start, start.AddDate(0, 0, 7))
	j.Enabled = true
	return j
}

// Position 1 takes part in capture, position 2 is excluded, everything
// else is empty.
func testPlantRegistry() *plant.Registry {
	return plant.NewRegistry([]plant.Plant{
		{Experiment: "exp1", Name: "p1", Position: 1, AllowCapture: true},
		{Experiment: "exp1", Name: "p2", Position: 2, AllowCapture: false},
	})
}

func newTestOrchestrator(trayCount int) (*Orchestrator, *commandLog, *fakeSnapper, *fakeRecorder, *Tracker) {
	cmds := &commandLog{}
	snapper := &fakeSnapper{}
	recorder := &fakeRecorder{}
	tracker := NewTracker()
	o := NewOrchestrator(cmds.submit, tracker, testSettings(trayCount), testPlantRegistry(), snapper, recorder)
	return o, cmds, snapper, recorder, tracker
}

// advanceTrackerTo walks the tracker from home to the given tray.
func advanceTrackerTo(tracker *Tracker, trayCount, tray int) {
	tracker.applyEcho(CmdGoHomeDirty, trayCount)
	for i := 0; i < tray; i++ {
		tracker.markSending(CmdGoNext)
		tracker.applyEcho(CmdGoNext, trayCount)
	}
}

func TestExecuteEnqueuesOneFullPass(t *testing.T) {
	o, cmds, _, _, _ := newTestOrchestrator(5)
	j := testJob("morning")

	require.NoError(t, o.Execute(j, nil))

	want := []Command{CmdGoHomeDirty,
		CmdGoNext, CmdGoNext, CmdGoNext, CmdGoNext, CmdGoNext,
		CmdJobEnded}
	assert.Equal(t, want, cmds.list())
	assert.Equal(t, job.StateWaitingHome, j.State)
	assert.True(t, o.Busy())
}

func TestExecuteRefusesConcurrentRuns(t *testing.T) {
	o, _, _, _, _ := newTestOrchestrator(3)
	require.NoError(t, o.Execute(testJob("first"), nil))

	err := o.Execute(testJob("second"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBusy)
}

func TestExecuteRefusesDisabledJobs(t *testing.T) {
	o, cmds, _, _, _ := newTestOrchestrator(3)
	j := testJob("paused")
	j.Enabled = false

	err := o.Execute(j, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Empty(t, cmds.list())
}

func TestHomingEchoPromotesWaitingJob(t *testing.T) {
	o, _, _, _, _ := newTestOrchestrator(3)
	j := testJob("morning")
	require.NoError(t, o.Execute(j, nil))

	sink := &reportSink{}
	o.OnCommandSuccess(CmdGoHomeDirty, sink.callback)

	assert.Equal(t, job.StateInProgress, j.State)
	require.NotEmpty(t, sink.bySeverity(status.SeverityInfo))
	assert.Contains(t, sink.bySeverity(status.SeverityInfo)[0].Message, "in progress")
}

func TestMidRunHomingEndsTheJob(t *testing.T) {
	o, _, _, recorder, _ := newTestOrchestrator(3)
	j := testJob("morning")
	require.NoError(t, o.Execute(j, nil))
	o.OnCommandSuccess(CmdGoHomeDirty, nil)
	require.Equal(t, job.StateInProgress, j.State)

	// The carousel came back around: a second homing echo during the run
	// finishes it even though advances may still be queued.
	sink := &reportSink{}
	o.OnCommandSuccess(CmdGoHomeDirty, sink.callback)

	assert.False(t, o.Busy())
	assert.Equal(t, job.StateInactive, j.State)
	assert.Equal(t, []string{RunOutcomeRehomed}, recorder.outcomes())
	require.NotEmpty(t, sink.bySeverity(status.SeverityInfo))
	assert.Contains(t, sink.bySeverity(status.SeverityInfo)[0].Message, "ended")
}

func TestAdvanceOverAllowedPlantTriggersCapture(t *testing.T) {
	o, _, snapper, _, tracker := newTestOrchestrator(3)
	j := testJob("morning")
	require.NoError(t, o.Execute(j, nil))
	o.OnCommandSuccess(CmdGoHomeDirty, nil)

	advanceTrackerTo(tracker, 3, 1)
	sink := &reportSink{}
	o.OnCommandSuccess(CmdGoNext, sink.callback)

	require.Len(t, snapper.snaps, 1)
	assert.Equal(t, 1, snapper.snaps[0].tray)
	assert.True(t, snapper.snaps[0].jobActive)
	assert.Contains(t, sink.bySeverity(status.SeverityInfo)[0].Message, "Tray 1")
}

func TestAdvanceOverEmptyTraySkipsCapture(t *testing.T) {
	o, _, snapper, _, tracker := newTestOrchestrator(3)
	j := testJob("morning")
	require.NoError(t, o.Execute(j, nil))
	o.OnCommandSuccess(CmdGoHomeDirty, nil)

	advanceTrackerTo(tracker, 3, 3)
	sink := &reportSink{}
	o.OnCommandSuccess(CmdGoNext, sink.callback)

	assert.Empty(t, snapper.snaps)
	require.NotEmpty(t, sink.bySeverity(status.SeverityInfo))
	assert.Contains(t, sink.bySeverity(status.SeverityInfo)[0].Message, "Tray 3 empty, moving to next")
}

func TestAdvanceOverExcludedPlantSkipsCapture(t *testing.T) {
	o, _, snapper, _, tracker := newTestOrchestrator(3)
	j := testJob("morning")
	require.NoError(t, o.Execute(j, nil))
	o.OnCommandSuccess(CmdGoHomeDirty, nil)

	advanceTrackerTo(tracker, 3, 2)
	sink := &reportSink{}
	o.OnCommandSuccess(CmdGoNext, sink.callback)

	assert.Empty(t, snapper.snaps)
	require.NotEmpty(t, sink.bySeverity(status.SeverityWarning))
	assert.Contains(t, sink.bySeverity(status.SeverityWarning)[0].Message, "excluded from image capture")
}

func TestManualAdvanceMovesWithoutCapture(t *testing.T) {
	o, _, snapper, _, tracker := newTestOrchestrator(3)
	advanceTrackerTo(tracker, 3, 1)

	sink := &reportSink{}
	o.OnCommandSuccess(CmdGoNext, sink.callback)

	assert.Empty(t, snapper.snaps)
	require.NotEmpty(t, sink.bySeverity(status.SeverityInfo))
	assert.Contains(t, sink.bySeverity(status.SeverityInfo)[0].Message, "Tray 1 camera ready")
}

func TestAdvanceWithUnknownPositionSkipsCapture(t *testing.T) {
	o, _, snapper, _, _ := newTestOrchestrator(3)

	sink := &reportSink{}
	o.OnCommandSuccess(CmdGoNext, sink.callback)

	assert.Empty(t, snapper.snaps)
	require.NotEmpty(t, sink.bySeverity(status.SeverityWarning))
}

func TestStopCancelsTheRun(t *testing.T) {
	o, _, _, recorder, _ := newTestOrchestrator(3)
	j := testJob("morning")
	require.NoError(t, o.Execute(j, nil))

	sink := &reportSink{}
	o.OnStop(sink.callback)

	assert.False(t, o.Busy())
	assert.Equal(t, job.StateInactive, j.State)
	assert.Equal(t, []string{RunOutcomeAborted}, recorder.outcomes())
	require.NotEmpty(t, sink.bySeverity(status.SeverityInfo))
	cancelled := sink.bySeverity(status.SeverityInfo)[0]
	assert.Contains(t, cancelled.Message, "Cancelled")
	assert.Equal(t, 5, cancelled.WipeAfter)
}

func TestStopWithoutJobIsQuiet(t *testing.T) {
	o, _, _, recorder, _ := newTestOrchestrator(3)

	sink := &reportSink{}
	o.OnStop(sink.callback)

	assert.Empty(t, recorder.outcomes())
	assert.Empty(t, sink.bySeverity(status.SeverityInfo))
	assert.Empty(t, sink.bySeverity(status.SeverityWarning))
}

func TestJobEndedSentinelCompletesTheRun(t *testing.T) {
	o, _, _, recorder, _ := newTestOrchestrator(3)
	j := testJob("morning")
	require.NoError(t, o.Execute(j, nil))
	o.OnCommandSuccess(CmdGoHomeDirty, nil)

	sink := &reportSink{}
	o.OnJobEnded(sink.callback)

	assert.False(t, o.Busy())
	assert.Equal(t, job.StateInactive, j.State)
	assert.Equal(t, []string{RunOutcomeCompleted}, recorder.outcomes())
	require.NotEmpty(t, sink.bySeverity(status.SeverityInfo))
	assert.Contains(t, sink.bySeverity(status.SeverityInfo)[0].Message, "ended")
}
