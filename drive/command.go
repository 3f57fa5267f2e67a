package drive

// Command is one entry of the fixed vocabulary accepted by the dispatcher.
type Command string

const (
	// CmdGoHomeDirty homes the actuator without assuming prior calibration.
	CmdGoHomeDirty Command = "go_home_dirty"
	// CmdGoNext advances the carousel by one tray.
	CmdGoNext Command = "go_next"
	// CmdStop preempts everything: clears the queue, cancels the in-flight
	// request and resets position tracking.
	CmdStop Command = "stop"
	// CmdStart starts the actuator's free-run mode.
	CmdStart Command = "start"
	// CmdJobEnded is a queue sentinel marking job completion. It is never
	// sent over the wire.
	CmdJobEnded Command = "job_ended"
)

// echoGoHomeTimeout is the controller's way of saying a homing move timed
// out on its side; the dispatcher retries the homing handshake in place.
const echoGoHomeTimeout = "go_home_timeout"

// Dispatchable reports whether the command may be submitted from outside
// the engine. The job-ended sentinel is internal to job runs.
func (c Command) Dispatchable() bool {
	return c.known() && c != CmdJobEnded
}

// known reports whether the command belongs to the dispatch vocabulary.
func (c Command) known() bool {
	switch c {
	case CmdGoHomeDirty, CmdGoNext, CmdStop, CmdStart, CmdJobEnded:
		return true
	default:
		return false
	}
}
