// Package job provides the recurring capture-job model: job identity,
// repetition rules, time-point computation and the on-disk job list.
package job

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/phenobot/carousel/errors"
)

// TimeLayout is the timestamp format used in the jobs file.
const TimeLayout = "2006/01/02 15:04:05"

// State tracks a job's lifecycle while the orchestrator owns it.
type State int

const (
	StateInactive State = iota
	StateWaitingHome
	StateInProgress
	StateEnded
)

// String returns the operator-facing description of the state.
func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateWaitingHome:
		return "waiting home position"
	case StateInProgress:
		return "in progress"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Job is one recurring capture job. Owner and MailTo are opaque contact
// metadata carried for the job editor; the engine never interprets them.
type Job struct {
	GUID        string
	Name        string
	Enabled     bool
	Description string
	Owner       string
	MailTo      string
	Plants      []string

	Repetition Repetition
	Start      time.Time
	End        time.Time

	// State is owned by the orchestrator while != StateInactive.
	State State

	timePoints []time.Time
}

// New creates a job with a fresh GUID and computed time points.
func New(name string, rep Repetition, start, end time.Time) *Job {
	j := &Job{
		GUID:       uuid.NewString(),
		Name:       name,
		Repetition: rep,
		Start:      start,
		End:        end,
	}
	j.recomputeTimePoints()
	return j
}

// UpdateTimeBoundaries replaces the schedule inputs and recomputes the time
// points once. This is the only way to change them; time points are never
// edited directly.
func (j *Job) UpdateTimeBoundaries(start, end time.Time, rep Repetition) {
	j.Start = start
	j.End = end
	j.Repetition = rep
	j.recomputeTimePoints()
}

// TimePoints returns the computed occurrence instants, strictly increasing.
func (j *Job) TimePoints() []time.Time {
	out := make([]time.Time, len(j.timePoints))
	copy(out, j.timePoints)
	return out
}

// NextTimePoint returns the earliest time point >= now. Disabled jobs never
// fire, even when time points exist.
func (j *Job) NextTimePoint(now time.Time) (time.Time, bool) {
	if !j.Enabled {
		return time.Time{}, false
	}
	for _, tp := range j.timePoints {
		if !tp.Before(now) {
			return tp, true
		}
	}
	return time.Time{}, false
}

// Eligible reports whether the scheduler may consider this job at all.
func (j *Job) Eligible(now time.Time) bool {
	return j.Enabled && !now.Before(j.Start) && !now.After(j.End)
}

func (j *Job) recomputeTimePoints() {
	j.timePoints = j.timePoints[:0]
	switch j.Repetition.Mode {
	case ModeEvery:
		if j.Repetition.IntervalHours <= 0 {
			return
		}
		step := time.Duration(j.Repetition.IntervalHours) * time.Hour
		for current := j.Start; current.Before(j.End); current = current.Add(step) {
			j.timePoints = append(j.timePoints, current)
		}
	case ModeAt:
		firstDay := time.Date(j.Start.Year(), j.Start.Month(), j.Start.Day(), 0, 0, 0, 0, j.Start.Location())
		lastDay := time.Date(j.End.Year(), j.End.Month(), j.End.Day(), 0, 0, 0, 0, j.End.Location())
		for day := firstDay; day.Before(lastDay); day = day.AddDate(0, 0, 1) {
			for _, h := range j.Repetition.Hours {
				j.timePoints = append(j.timePoints, day.Add(time.Duration(h)*time.Hour))
			}
		}
	default:
		// Unknown mode yields an empty schedule.
	}
}

// jobJSON is the wire/file representation of a job.
type jobJSON struct {
	Name            string          `json:"name"`
	Enabled         bool            `json:"enabled"`
	GUID            string          `json:"guid"`
	Description     string          `json:"description"`
	Owner           string          `json:"owner"`
	MailTo          string          `json:"mail_to"`
	Plants          []string        `json:"plants"`
	RepetitionMode  string          `json:"repetition_mode"`
	RepetitionValue json.RawMessage `json:"repetition_value"`
	TimestampStart  string          `json:"timestamp_start"`
	TimestampEnd    string          `json:"timestamp_end"`
}

// MarshalJSON writes the canonical file form: interval hours as an integer
// for "every" jobs, an hour list for "at" jobs.
func (j *Job) MarshalJSON() ([]byte, error) {
	value, err := j.Repetition.valueJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(jobJSON{
		Name:            j.Name,
		Enabled:         j.Enabled,
		GUID:            j.GUID,
		Description:     j.Description,
		Owner:           j.Owner,
		MailTo:          j.MailTo,
		Plants:          j.Plants,
		RepetitionMode:  string(j.Repetition.Mode),
		RepetitionValue: value,
		TimestampStart:  j.Start.Format(TimeLayout),
		TimestampEnd:    j.End.Format(TimeLayout),
	})
}

// UnmarshalJSON resolves the repetition value variant once at decode time and
// recomputes the time points. Jobs without a GUID get one minted.
func (j *Job) UnmarshalJSON(data []byte) error {
	var raw jobJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "failed to decode job record")
	}

	start, err := time.ParseInLocation(TimeLayout, raw.TimestampStart, time.Local)
	if err != nil {
		return errors.Wrapf(err, "job %q: bad timestamp_start", raw.Name)
	}
	end, err := time.ParseInLocation(TimeLayout, raw.TimestampEnd, time.Local)
	if err != nil {
		return errors.Wrapf(err, "job %q: bad timestamp_end", raw.Name)
	}

	rep, err := ParseRepetition(raw.RepetitionMode, raw.RepetitionValue)
	if err != nil {
		return errors.Wrapf(err, "job %q: bad repetition", raw.Name)
	}

	j.Name = raw.Name
	j.Enabled = raw.Enabled
	j.GUID = raw.GUID
	if j.GUID == "" {
		j.GUID = uuid.NewString()
	}
	j.Description = raw.Description
	j.Owner = raw.Owner
	j.MailTo = raw.MailTo
	j.Plants = raw.Plants
	j.Repetition = rep
	j.Start = start
	j.End = end
	j.State = StateInactive
	j.recomputeTimePoints()
	return nil
}
