package server

import (
	"time"

	"github.com/phenobot/carousel/drive"
	"github.com/phenobot/carousel/job"
	"github.com/phenobot/carousel/status"
)

// StatusMessage is the WebSocket frame sent on every status report and to
// every freshly connected client.
type StatusMessage struct {
	Type      string         `json:"type"`
	Report    *status.Report `json:"report,omitempty"`
	Position  drive.Position `json:"position"`
	JobName   string         `json:"job_name,omitempty"`
	JobState  string         `json:"job_state"`
	Queue     drive.Stats    `json:"queue"`
	Timestamp int64          `json:"timestamp"`
}

// Publish delivers a status report to every connected client. It is the
// status callback handed to the engine, so it must never block.
func (s *Server) Publish(r status.Report) {
	s.mu.Lock()
	s.lastReport = &r
	s.mu.Unlock()

	msg := s.statusMessage(&r)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		select {
		case c.sendMsg <- msg:
		default:
			// Slow client, drop the frame.
		}
	}
}

func (s *Server) statusMessage(r *status.Report) StatusMessage {
	jobName := ""
	jobState := job.StateInactive.String()
	if j := s.runner.ActiveJob(); j != nil {
		jobName = j.Name
		jobState = j.State.String()
	}
	return StatusMessage{
		Type:      "status",
		Report:    r,
		Position:  s.tracker.Snapshot(),
		JobName:   jobName,
		JobState:  jobState,
		Queue:     s.engine.Stats(),
		Timestamp: time.Now().Unix(),
	}
}
