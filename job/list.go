package job

import (
	"sync"
	"time"
)

// List is the in-memory job collection shared by the scheduler, the control
// server and the job editor. The orchestrator takes exclusive ownership of a
// job's State while it runs; the list only guards membership.
type List struct {
	mu   sync.RWMutex
	jobs []*Job
}

// NewList builds a list from loaded jobs, keeping file order. File order is
// also the scheduler's tie-break between equal next time points.
func NewList(jobs []*Job) *List {
	return &List{jobs: jobs}
}

// Snapshot returns the jobs in stable order.
func (l *List) Snapshot() []*Job {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Job, len(l.jobs))
	copy(out, l.jobs)
	return out
}

// Replace swaps the whole collection, e.g. after an external file edit.
func (l *List) Replace(jobs []*Job) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jobs = jobs
}

// Add appends a job.
func (l *List) Add(j *Job) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jobs = append(l.jobs, j)
}

// Remove deletes the job with the given GUID and reports whether it existed.
func (l *List) Remove(guid string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, j := range l.jobs {
		if j.GUID == guid {
			l.jobs = append(l.jobs[:i], l.jobs[i+1:]...)
			return true
		}
	}
	return false
}

// Find returns the job with the given GUID.
func (l *List) Find(guid string) (*Job, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, j := range l.jobs {
		if j.GUID == guid {
			return j, true
		}
	}
	return nil, false
}

// NextEligible returns the eligible job whose next time point is earliest.
// Jobs without an upcoming time point are skipped.
func (l *List) NextEligible(now time.Time) (*Job, time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var best *Job
	var bestAt time.Time
	for _, j := range l.jobs {
		if !j.Eligible(now) {
			continue
		}
		tp, ok := j.NextTimePoint(now)
		if !ok {
			continue
		}
		if best == nil || tp.Before(bestAt) {
			best = j
			bestAt = tp
		}
	}
	if best == nil {
		return nil, time.Time{}, false
	}
	return best, bestAt, true
}
