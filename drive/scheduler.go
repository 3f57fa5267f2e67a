package drive

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/phenobot/carousel/job"
	"github.com/phenobot/carousel/logger"
	"github.com/phenobot/carousel/settings"
	"github.com/phenobot/carousel/status"
)

// fireWindow is how far back a tick still honours a due time point. A
// point older than this (the engine was busy or the process was down) is
// skipped rather than fired late.
const fireWindow = time.Minute

// memLogEvery spaces out the memory usage log lines.
const memLogEvery = 300

// Scheduler wakes up on a fixed tick, finds job time points that have
// come due and hands the job to the orchestrator. While a run is underway
// every tick is a no-op, so due points of other jobs are skipped, not
// queued.
type Scheduler struct {
	jobs   *job.List
	orch   *Orchestrator
	cfg    func() *settings.Settings
	cb     status.Callback
	logger *zap.SugaredLogger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	now       func() time.Time
	lastFired map[string]time.Time
	ticks     uint64
}

// NewScheduler builds a scheduler over the live job list. The callback
// receives run status reports.
func NewScheduler(jobs *job.List, orch *Orchestrator, cfg func() *settings.Settings, cb status.Callback) *Scheduler {
	return &Scheduler{
		jobs:      jobs,
		orch:      orch,
		cfg:       cfg,
		cb:        cb,
		logger:    logger.ComponentLogger("drive.scheduler"),
		now:       time.Now,
		lastFired: make(map[string]time.Time),
	}
}

// Start launches the tick loop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	interval := time.Duration(s.cfg().TickSeconds) * time.Second
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
	s.logger.Infow("Scheduler started", logger.FieldDurationMS, interval.Milliseconds())
}

// Stop halts the tick loop. Any running job keeps going.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// tick fires at most one due job.
func (s *Scheduler) tick() {
	s.ticks++
	if s.ticks%memLogEvery == 0 {
		s.logMemory()
	}

	if s.orch.Busy() {
		return
	}

	now := s.now()
	var pick *job.Job
	var pickAt time.Time
	for _, j := range s.jobs.Snapshot() {
		tp, ok := s.duePoint(j, now)
		if !ok {
			continue
		}
		// Of all due candidates the earliest time point wins; list order
		// only breaks exact ties.
		if pick == nil || tp.Before(pickAt) {
			pick, pickAt = j, tp
		}
	}
	if pick == nil {
		return
	}

	s.logger.Infow("Time point due, starting job",
		logger.FieldJobGUID, pick.GUID, logger.FieldJobName, pick.Name,
		logger.FieldNextRunAt, pickAt.Format(job.TimeLayout))
	if err := s.orch.Execute(pick, s.cb); err != nil {
		s.logger.Warnw("Could not start due job",
			logger.FieldJobGUID, pick.GUID, logger.FieldError, err)
		return
	}
	s.lastFired[pick.GUID] = pickAt
}

// duePoint returns the most recent time point of j that falls inside the
// fire window and has not been fired yet.
func (s *Scheduler) duePoint(j *job.Job, now time.Time) (time.Time, bool) {
	if !j.Eligible(now) {
		return time.Time{}, false
	}
	var due time.Time
	for _, tp := range j.TimePoints() {
		if tp.After(now) {
			break
		}
		if now.Sub(tp) <= fireWindow {
			due = tp
		}
	}
	if due.IsZero() || s.lastFired[j.GUID].Equal(due) {
		return time.Time{}, false
	}
	return due, true
}

func (s *Scheduler) logMemory() {
	v, err := mem.VirtualMemory()
	if err != nil {
		return
	}
	s.logger.Infow("Memory usage",
		"used_mb", v.Used/1024/1024,
		"used_percent", int(v.UsedPercent))
}
