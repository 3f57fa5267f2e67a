package drive

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/phenobot/carousel/logger"
	"github.com/phenobot/carousel/settings"
	"github.com/phenobot/carousel/status"
)

// maxHomeRetries bounds the in-place homing retry loop. After this many
// consecutive timeouts the homing command is reported as failed and the
// queue moves on.
const maxHomeRetries = 10

// Reactor receives dispatch outcomes. The orchestrator implements it to
// advance job state and trigger captures. Reactions run on the dispatcher
// goroutine and hold the queue until they return, so a capture finishes
// before the next command reaches the controller.
type Reactor interface {
	// OnCommandSuccess is invoked with the echoed command after the tracker
	// has been advanced. The echo, not the sent command, is ground truth.
	OnCommandSuccess(echo Command, cb status.Callback)
	// OnStop is invoked when a stop preempts the engine, before the stop
	// command itself goes out.
	OnStop(cb status.Callback)
	// OnJobEnded is invoked when the job-ended queue sentinel reaches the
	// front of the queue.
	OnJobEnded(cb status.Callback)
}

// Stats is a point-in-time view of the dispatcher internals, exposed for
// the control surface and for tests.
type Stats struct {
	QueueLen    int     `json:"queue_len"`
	InFlight    Command `json:"in_flight,omitempty"`
	HomeRetries int     `json:"home_retries"`
}

type queued struct {
	cmd Command
	cb  status.Callback
}

type completion struct {
	gen  uint64
	item queued
	echo string
	err  error
}

type event struct {
	submit   *queued
	complete *completion
	stats    chan Stats
}

// Dispatcher serialises commands to the motion controller: at most one
// request is in flight, everything else waits in a FIFO queue. A stop
// submission preempts the lot. All state lives on a single goroutine;
// Submit and Stats are the only entry points.
type Dispatcher struct {
	transport Transport
	tracker   *Tracker
	cfg       func() *settings.Settings
	reactor   Reactor
	logger    *zap.SugaredLogger

	events chan event
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Owned by the run loop.
	queue       []queued
	inFlight    *queued
	generation  uint64
	homeRetries int
}

// NewDispatcher wires a dispatcher; call Start before submitting.
func NewDispatcher(transport Transport, tracker *Tracker, cfg func() *settings.Settings, reactor Reactor) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		tracker:   tracker,
		cfg:       cfg,
		reactor:   reactor,
		logger:    logger.ComponentLogger("drive.dispatcher"),
		events:    make(chan event, 64),
	}
}

// Start launches the event loop.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go d.run(ctx)
}

// Stop shuts the event loop down and aborts any in-flight request.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.transport.CancelInFlight()
	d.wg.Wait()
}

// Submit hands a command to the engine. It never blocks; when the event
// buffer is saturated the command is dropped with an error report.
func (d *Dispatcher) Submit(cmd Command, cb status.Callback) {
	select {
	case d.events <- event{submit: &queued{cmd: cmd, cb: cb}}:
	default:
		d.logger.Errorw("Event buffer full, dropping command", logger.FieldCommand, string(cmd))
		if cb != nil {
			cb(status.Error("Command "+string(cmd)+" dropped, engine overloaded", status.KeepUntilReplaced))
		}
	}
}

// Stats blocks briefly for a consistent snapshot of the queue. The loop
// may be busy filing a frame; after a second an empty snapshot is returned
// instead.
func (d *Dispatcher) Stats() Stats {
	reply := make(chan Stats, 1)
	select {
	case d.events <- event{stats: reply}:
	default:
		return Stats{}
	}
	select {
	case s := <-reply:
		return s
	case <-time.After(time.Second):
		return Stats{}
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.events:
			switch {
			case ev.submit != nil:
				d.handleSubmit(ctx, *ev.submit)
			case ev.complete != nil:
				d.handleComplete(ctx, *ev.complete)
			case ev.stats != nil:
				s := Stats{QueueLen: len(d.queue), HomeRetries: d.homeRetries}
				if d.inFlight != nil {
					s.InFlight = d.inFlight.cmd
				}
				ev.stats <- s
			}
		}
	}
}

func (d *Dispatcher) handleSubmit(ctx context.Context, q queued) {
	if !q.cmd.known() {
		d.logger.Warnw("Ignoring unknown command", logger.FieldCommand, string(q.cmd))
		return
	}

	if q.cmd == CmdStop {
		d.preempt(ctx, q)
		return
	}

	d.queue = append(d.queue, q)
	d.advance(ctx)
}

// preempt implements the stop path: drop everything queued, invalidate the
// in-flight exchange, forget the tracked position and push the stop out
// ahead of anything else.
func (d *Dispatcher) preempt(ctx context.Context, q queued) {
	if n := len(d.queue); n > 0 {
		d.logger.Infow("Stop preemption, clearing queue", logger.FieldCount, n)
	}
	d.queue = nil
	d.generation++
	d.homeRetries = 0
	d.transport.CancelInFlight()
	d.tracker.reset()
	d.reactor.OnStop(q.cb)
	d.inFlight = nil
	d.dispatch(ctx, q)
}

// advance moves the next queued command into the in-flight slot when it
// is free.
func (d *Dispatcher) advance(ctx context.Context) {
	for d.inFlight == nil && len(d.queue) > 0 {
		next := d.queue[0]
		d.queue = d.queue[1:]
		d.dispatch(ctx, next)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, q queued) {
	if q.cmd == CmdJobEnded {
		// Queue sentinel, resolved locally.
		d.reactor.OnJobEnded(q.cb)
		return
	}

	d.inFlight = &q
	d.tracker.markSending(q.cmd)
	gen := d.generation
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		echo, err := d.transport.Send(ctx, q.cmd)
		select {
		case d.events <- event{complete: &completion{gen: gen, item: q, echo: echo, err: err}}:
		case <-ctx.Done():
		}
	}()
}

func (d *Dispatcher) handleComplete(ctx context.Context, c completion) {
	if c.gen != d.generation {
		d.logger.Debugw("Dropping completion from before preemption",
			logger.FieldCommand, string(c.item.cmd))
		return
	}
	d.inFlight = nil

	switch {
	case c.err != nil && IsTimeout(c.err):
		d.rehome(ctx, c.item, "no response from controller")
	case c.err != nil:
		if c.item.cmd == CmdGoHomeDirty {
			d.homeRetries = 0
		}
		d.logger.Errorw("Command failed",
			logger.FieldCommand, string(c.item.cmd), logger.FieldError, c.err)
		d.report(c.item.cb, status.Error("Command "+string(c.item.cmd)+" failed", status.KeepUntilReplaced))
		d.advance(ctx)
	case c.echo == echoGoHomeTimeout:
		d.rehome(ctx, c.item, "controller reported homing timeout")
	default:
		d.succeed(ctx, c)
	}
}

func (d *Dispatcher) succeed(ctx context.Context, c completion) {
	echo := Command(c.echo)
	if !echo.known() {
		d.logger.Errorw("Unexpected echo from controller",
			logger.FieldCommand, string(c.item.cmd), logger.FieldEcho, c.echo)
		d.report(c.item.cb, status.Error("Unexpected controller response: "+c.echo, status.KeepUntilReplaced))
		d.advance(ctx)
		return
	}

	if c.item.cmd == CmdGoHomeDirty {
		d.homeRetries = 0
	}
	if echo != c.item.cmd {
		// The echo is ground truth; the mismatch is only recorded.
		d.logger.Warnw("Echo differs from sent command",
			logger.FieldCommand, string(c.item.cmd), logger.FieldEcho, c.echo)
	}
	d.logger.Infow("Command acknowledged",
		logger.FieldCommand, string(c.item.cmd), logger.FieldEcho, c.echo)

	d.tracker.applyEcho(echo, d.cfg().TrayCount)
	d.reactor.OnCommandSuccess(echo, c.item.cb)
	d.advance(ctx)
}

// rehome answers a timeout, on any command, by issuing go_home_dirty in
// place, bounded by maxHomeRetries. The queue behind the failed command is
// untouched until the retry budget is spent.
func (d *Dispatcher) rehome(ctx context.Context, q queued, reason string) {
	if d.homeRetries < maxHomeRetries {
		d.homeRetries++
		d.logger.Warnw("Controller timed out, homing",
			logger.FieldCommand, string(q.cmd),
			logger.FieldCount, d.homeRetries,
			"reason", reason)
		d.report(q.cb, status.Warning("Controller not responding, homing", status.KeepUntilReplaced))
		d.dispatch(ctx, queued{cmd: CmdGoHomeDirty, cb: q.cb})
		return
	}

	d.logger.Errorw("Homing failed after retries", logger.FieldCount, d.homeRetries)
	d.homeRetries = 0
	d.report(q.cb, status.Error("Homing failed, check the carousel", status.KeepUntilReplaced))
	d.advance(ctx)
}

func (d *Dispatcher) report(cb status.Callback, r status.Report) {
	if cb != nil {
		cb(r)
	}
}
