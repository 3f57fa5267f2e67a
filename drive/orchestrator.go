package drive

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/phenobot/carousel/capture"
	"github.com/phenobot/carousel/errors"
	"github.com/phenobot/carousel/job"
	"github.com/phenobot/carousel/logger"
	"github.com/phenobot/carousel/plant"
	"github.com/phenobot/carousel/settings"
	"github.com/phenobot/carousel/status"
)

// ErrBusy is returned when a job run is requested while another run is
// still underway.
var ErrBusy = errors.New("a job is already running")

// ErrDisabled is returned when a disabled job is asked to run.
var ErrDisabled = errors.New("job is disabled")

// Snapper performs the camera capture for a tray position. Snap blocks
// until the frame is filed, which keeps the carousel parked for the
// exposure; the orchestrator decides which positions get a frame.
type Snapper interface {
	Snap(tray int, jobActive bool, cb status.Callback)
}

// RunRecorder persists finished job runs.
type RunRecorder interface {
	RecordRun(jobGUID, jobName string, startedAt, endedAt time.Time, outcome string)
}

// Run outcomes as persisted by the recorder.
const (
	RunOutcomeCompleted = "completed"
	RunOutcomeAborted   = "aborted"
	RunOutcomeRehomed   = "rehomed"
)

// cancelledWipeSeconds is how long the cancellation notice stays on screen.
const cancelledWipeSeconds = 5

// Orchestrator turns a job into a command sequence and reacts to the
// echoes coming back: it owns the job lifecycle
// (inactive -> waiting home -> in progress -> ended -> inactive) and
// triggers the capture after every advance.
type Orchestrator struct {
	submit   func(Command, status.Callback)
	tracker  *Tracker
	cfg      func() *settings.Settings
	registry *plant.Registry
	snapper  Snapper
	recorder RunRecorder
	logger   *zap.SugaredLogger

	mu        sync.RWMutex
	active    *job.Job
	startedAt time.Time
}

// NewOrchestrator builds an orchestrator; attach it to the dispatcher as
// its reactor.
func NewOrchestrator(submit func(Command, status.Callback), tracker *Tracker, cfg func() *settings.Settings, registry *plant.Registry, snapper Snapper, recorder RunRecorder) *Orchestrator {
	return &Orchestrator{
		submit:   submit,
		tracker:  tracker,
		cfg:      cfg,
		registry: registry,
		snapper:  snapper,
		recorder: recorder,
		logger:   logger.ComponentLogger("drive.orchestrator"),
	}
}

// Busy reports whether a job run is underway.
func (o *Orchestrator) Busy() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.active != nil
}

// ActiveJob returns the running job, or nil.
func (o *Orchestrator) ActiveJob() *job.Job {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.active
}

// Execute starts a full carousel pass for the job: home first, then one
// advance per tray, then the completion sentinel. The whole sequence is
// enqueued up front; the dispatcher feeds it to the controller one command
// at a time.
func (o *Orchestrator) Execute(j *job.Job, cb status.Callback) error {
	if !j.Enabled {
		return errors.Wrapf(ErrDisabled, "cannot start %q", j.Name)
	}
	o.mu.Lock()
	if o.active != nil {
		o.mu.Unlock()
		return errors.Wrapf(ErrBusy, "cannot start %q", j.Name)
	}
	o.active = j
	o.startedAt = time.Now()
	j.State = job.StateWaitingHome
	o.mu.Unlock()

	trayCount := o.cfg().TrayCount
	o.logger.Infow("Starting job",
		logger.FieldJobGUID, j.GUID, logger.FieldJobName, j.Name, logger.FieldTray, trayCount)

	o.submit(CmdGoHomeDirty, cb)
	for i := 0; i < trayCount; i++ {
		o.submit(CmdGoNext, cb)
	}
	o.submit(CmdJobEnded, cb)
	return nil
}

// OnCommandSuccess reacts to a command echo after the position tracker has
// been advanced.
func (o *Orchestrator) OnCommandSuccess(echo Command, cb status.Callback) {
	switch echo {
	case CmdGoHomeDirty:
		o.onHomed(cb)
	case CmdGoNext:
		o.onAdvanced(cb)
	case CmdStop:
		o.report(cb, status.Info("Stopped", status.KeepUntilReplaced))
	case CmdStart:
		o.report(cb, status.Info("Free run started", status.KeepUntilReplaced))
	}
}

// OnStop aborts any running job. The dispatcher has already cleared its
// queue by the time this runs.
func (o *Orchestrator) OnStop(cb status.Callback) {
	o.mu.Lock()
	j := o.active
	started := o.startedAt
	o.active = nil
	o.mu.Unlock()

	if j == nil {
		return
	}
	j.State = job.StateEnded
	o.logger.Infow("Job cancelled by stop", logger.FieldJobGUID, j.GUID, logger.FieldJobName, j.Name)
	o.record(j, started, RunOutcomeAborted)
	o.report(cb, status.Info(fmt.Sprintf("Job %s - Cancelled", j.Name), cancelledWipeSeconds))
	j.State = job.StateInactive
}

// OnJobEnded finishes the run when the completion sentinel reaches the
// front of the queue.
func (o *Orchestrator) OnJobEnded(cb status.Callback) {
	o.mu.Lock()
	j := o.active
	started := o.startedAt
	o.active = nil
	o.mu.Unlock()

	if j == nil {
		return
	}
	j.State = job.StateEnded
	o.logger.Infow("Job completed", logger.FieldJobGUID, j.GUID, logger.FieldJobName, j.Name,
		logger.FieldDurationMS, time.Since(started).Milliseconds())
	o.record(j, started, RunOutcomeCompleted)
	o.report(cb, status.Info(fmt.Sprintf("Job %s ended", j.Name), status.KeepUntilReplaced))
	j.State = job.StateInactive
}

func (o *Orchestrator) onHomed(cb status.Callback) {
	o.mu.Lock()
	j := o.active
	started := o.startedAt
	var finished *job.Job
	if j != nil && j.State == job.StateInProgress {
		// A homing echo in the middle of a run means the carousel went
		// around; the run is over even though go_next commands may still
		// be queued.
		finished = j
		o.active = nil
	}
	o.mu.Unlock()

	if finished != nil {
		finished.State = job.StateEnded
		o.logger.Infow("Job ended by mid-run homing",
			logger.FieldJobGUID, finished.GUID, logger.FieldJobName, finished.Name)
		o.record(finished, started, RunOutcomeRehomed)
		o.report(cb, status.Info(fmt.Sprintf("Job %s ended", finished.Name), status.KeepUntilReplaced))
		finished.State = job.StateInactive
		return
	}

	if j != nil && j.State == job.StateWaitingHome {
		j.State = job.StateInProgress
		o.report(cb, status.Info(fmt.Sprintf("Job %s in progress - Home position", j.Name), status.KeepUntilReplaced))
		return
	}
	o.report(cb, status.Info("Home position", status.KeepUntilReplaced))
}

// onAdvanced reacts to one carousel step. During a run the plant registry
// decides what happens at the new position: only plants taking part in
// image capture get a frame, empty trays just pass by and excluded plants
// are announced. Manual advances move the carousel without the camera.
func (o *Orchestrator) onAdvanced(cb status.Callback) {
	tray := o.tracker.BelievedPosition()
	o.mu.RLock()
	j := o.active
	jobActive := j != nil && j.State == job.StateInProgress
	name := ""
	if j != nil {
		name = j.Name
	}
	o.mu.RUnlock()

	if tray < 1 {
		o.report(cb, status.Warning("Unknown position", status.KeepUntilReplaced))
		return
	}
	if !jobActive {
		o.report(cb, status.Info(fmt.Sprintf("Tray %d camera ready", tray), status.KeepUntilReplaced))
		return
	}

	outcome, p := capture.Classify(tray, o.registry)
	switch outcome {
	case capture.OutcomeAllowed:
		o.report(cb, status.Info(fmt.Sprintf("Job %s in progress - Tray %d camera ready", name, tray), status.KeepUntilReplaced))
		if o.snapper != nil {
			o.snapper.Snap(tray, true, cb)
		}
	case capture.OutcomeDisabled:
		o.report(cb, status.Warning(fmt.Sprintf("%s excluded from image capture", p.Desc()), status.KeepUntilReplaced))
	default:
		o.report(cb, status.Info(fmt.Sprintf("Tray %d empty, moving to next", tray), status.KeepUntilReplaced))
	}
}

func (o *Orchestrator) record(j *job.Job, started time.Time, outcome string) {
	if o.recorder == nil {
		return
	}
	o.recorder.RecordRun(j.GUID, j.Name, started, time.Now(), outcome)
}

func (o *Orchestrator) report(cb status.Callback, r status.Report) {
	if cb != nil {
		cb(r)
	}
}
