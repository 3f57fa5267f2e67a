package history

import (
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/phenobot/carousel/errors"
	"github.com/phenobot/carousel/logger"
)

// JobRun is one finished carousel pass.
type JobRun struct {
	ID        int64     `json:"id"`
	JobGUID   string    `json:"job_guid"`
	JobName   string    `json:"job_name"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Outcome   string    `json:"outcome"`
}

// Capture is one filed frame.
type Capture struct {
	ID         int64     `json:"id"`
	Experiment string    `json:"experiment"`
	PlantName  string    `json:"plant_name"`
	Tray       int       `json:"tray"`
	File       string    `json:"file"`
	TakenAt    time.Time `json:"taken_at"`
}

// Store records engine activity. The write methods satisfy the engine's
// recorder interfaces, which carry no error returns; write failures are
// logged and dropped rather than fed back into the command path.
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewStore wraps an open, migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, logger: logger.ComponentLogger("history")}
}

// RecordRun persists one finished job run.
func (s *Store) RecordRun(jobGUID, jobName string, startedAt, endedAt time.Time, outcome string) {
	_, err := s.db.Exec(
		`INSERT INTO job_runs (job_guid, job_name, started_at, ended_at, outcome) VALUES (?, ?, ?, ?, ?)`,
		jobGUID, jobName, startedAt.UTC(), endedAt.UTC(), outcome)
	if err != nil {
		s.logger.Errorw("Failed to record job run",
			logger.FieldJobGUID, jobGUID, logger.FieldError, err)
	}
}

// RecordCapture persists one filed frame.
func (s *Store) RecordCapture(experiment, plantName string, tray int, file string, takenAt time.Time) {
	_, err := s.db.Exec(
		`INSERT INTO captures (experiment, plant_name, tray, file, taken_at) VALUES (?, ?, ?, ?, ?)`,
		experiment, plantName, tray, file, takenAt.UTC())
	if err != nil {
		s.logger.Errorw("Failed to record capture",
			logger.FieldFile, file, logger.FieldError, err)
	}
}

// RecentRuns returns the newest runs, most recent first.
func (s *Store) RecentRuns(limit int) ([]JobRun, error) {
	rows, err := s.db.Query(
		`SELECT id, job_guid, job_name, started_at, ended_at, outcome
		 FROM job_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query job runs")
	}
	defer rows.Close()

	var runs []JobRun
	for rows.Next() {
		var r JobRun
		if err := rows.Scan(&r.ID, &r.JobGUID, &r.JobName, &r.StartedAt, &r.EndedAt, &r.Outcome); err != nil {
			return nil, errors.Wrap(err, "failed to scan job run")
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunsForJob returns the newest runs of one job, most recent first.
func (s *Store) RunsForJob(jobGUID string, limit int) ([]JobRun, error) {
	rows, err := s.db.Query(
		`SELECT id, job_guid, job_name, started_at, ended_at, outcome
		 FROM job_runs WHERE job_guid = ? ORDER BY started_at DESC LIMIT ?`, jobGUID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query runs for job %s", jobGUID)
	}
	defer rows.Close()

	var runs []JobRun
	for rows.Next() {
		var r JobRun
		if err := rows.Scan(&r.ID, &r.JobGUID, &r.JobName, &r.StartedAt, &r.EndedAt, &r.Outcome); err != nil {
			return nil, errors.Wrap(err, "failed to scan job run")
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RecentCaptures returns the newest captures, most recent first.
func (s *Store) RecentCaptures(limit int) ([]Capture, error) {
	rows, err := s.db.Query(
		`SELECT id, experiment, plant_name, tray, file, taken_at
		 FROM captures ORDER BY taken_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query captures")
	}
	defer rows.Close()

	var captures []Capture
	for rows.Next() {
		var c Capture
		if err := rows.Scan(&c.ID, &c.Experiment, &c.PlantName, &c.Tray, &c.File, &c.TakenAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan capture")
		}
		captures = append(captures, c)
	}
	return captures, rows.Err()
}
