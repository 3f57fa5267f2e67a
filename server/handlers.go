package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/phenobot/carousel/drive"
	"github.com/phenobot/carousel/job"
	"github.com/phenobot/carousel/logger"
	"github.com/phenobot/carousel/plant"
)

// staleBacklog is the queue age past which the status endpoint flags the
// image backlog; it means the sender has not managed a pass in a while.
const staleBacklog = 2 * time.Hour

type statusResponse struct {
	Position     drive.Position `json:"position"`
	Queue        drive.Stats    `json:"queue"`
	JobName      string         `json:"job_name,omitempty"`
	JobState     string         `json:"job_state"`
	NextRunAt    string         `json:"next_run_at,omitempty"`
	BacklogStale bool           `json:"backlog_stale"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	resp := statusResponse{
		Position: s.tracker.Snapshot(),
		Queue:    s.engine.Stats(),
		JobState: job.StateInactive.String(),
	}
	if j := s.runner.ActiveJob(); j != nil {
		resp.JobName = j.Name
		resp.JobState = j.State.String()
	}
	if _, at, ok := s.jobs.NextEligible(time.Now()); ok {
		resp.NextRunAt = at.Format(job.TimeLayout)
	}
	if s.backlog != nil {
		resp.BacklogStale = s.backlog.OldestQueuedAge() > staleBacklog
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCommand accepts POST /api/command/{name} for the manual buttons on
// the control page.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/command/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, http.StatusNotFound, "Unknown command")
		return
	}
	cmd := drive.Command(name)
	if !cmd.Dispatchable() {
		writeError(w, http.StatusBadRequest, "Unknown command: "+name)
		return
	}
	if !s.commandLimit.Allow() {
		writeError(w, http.StatusTooManyRequests, "Too many commands, slow down")
		return
	}

	s.logger.Infow("Manual command", logger.FieldCommand, name, logger.FieldAddress, r.RemoteAddr)
	s.engine.Submit(cmd, s.Publish)
	writeJSON(w, http.StatusAccepted, map[string]string{"command": name})
}

// handleSnap takes a one-off frame at the current position without moving
// the carousel. The response waits for the frame to be filed.
func (s *Server) handleSnap(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if s.snapper == nil {
		writeError(w, http.StatusServiceUnavailable, "No camera available")
		return
	}
	if !s.commandLimit.Allow() {
		writeError(w, http.StatusTooManyRequests, "Too many commands, slow down")
		return
	}

	tray := s.tracker.BelievedPosition()
	s.logger.Infow("Manual capture", logger.FieldTray, tray, logger.FieldAddress, r.RemoteAddr)
	s.snapper.Snap(tray, false, s.Publish)
	writeJSON(w, http.StatusOK, map[string]int{"tray": tray})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.jobs.Snapshot())
	case http.MethodPost:
		var j job.Job
		if err := readJSON(w, r, &j); err != nil {
			return
		}
		s.jobs.Add(&j)
		s.persistJobs(w)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleJob serves /api/jobs/{guid} and /api/jobs/{guid}/run.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	guid, action, _ := strings.Cut(rest, "/")
	j, ok := s.jobs.Find(guid)
	if !ok {
		writeError(w, http.StatusNotFound, "No such job")
		return
	}

	if action == "run" {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		if err := s.runner.Execute(j, s.Publish); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"job": j.Name})
		return
	}
	if action != "" {
		writeError(w, http.StatusNotFound, "Unknown action")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, j)
	case http.MethodPut:
		var updated job.Job
		if err := readJSON(w, r, &updated); err != nil {
			return
		}
		updated.GUID = guid
		s.jobs.Remove(guid)
		s.jobs.Add(&updated)
		s.persistJobs(w)
	case http.MethodDelete:
		s.jobs.Remove(guid)
		s.persistJobs(w)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) persistJobs(w http.ResponseWriter) {
	if err := s.jobStore.Save(s.jobs.Snapshot()); err != nil {
		s.logger.Errorw("Failed to persist jobs", logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Failed to save jobs")
		return
	}
	writeJSON(w, http.StatusOK, s.jobs.Snapshot())
}

func (s *Server) handlePlants(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.plants.Snapshot())
	case http.MethodPut:
		var plants []plant.Plant
		if err := readJSON(w, r, &plants); err != nil {
			return
		}
		if err := s.plantSt.Save(plants); err != nil {
			s.logger.Errorw("Failed to persist plants", logger.FieldError, err)
			writeError(w, http.StatusInternalServerError, "Failed to save plants")
			return
		}
		s.plants.Replace(plants)
		writeJSON(w, http.StatusOK, plants)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	runs, err := s.hist.RecentRuns(limitParam(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleCaptures(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	captures, err := s.hist.RecentCaptures(limitParam(r, 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, captures)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.manager.Current())
}

func (s *Server) handleLastImage(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	http.ServeFile(w, r, s.manager.Current().LastImagePath())
}

func limitParam(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}
