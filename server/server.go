// Package server exposes the carousel over HTTP: a JSON API for jobs,
// plants, settings and history, and a WebSocket feed of live status
// reports for the control page.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/phenobot/carousel/drive"
	"github.com/phenobot/carousel/errors"
	"github.com/phenobot/carousel/history"
	"github.com/phenobot/carousel/job"
	"github.com/phenobot/carousel/logger"
	"github.com/phenobot/carousel/plant"
	"github.com/phenobot/carousel/settings"
	"github.com/phenobot/carousel/status"
)

// Engine is the slice of the drive machinery the server needs.
type Engine interface {
	Submit(cmd drive.Command, cb status.Callback)
	Stats() drive.Stats
}

// Runner starts job runs and answers busy queries.
type Runner interface {
	Execute(j *job.Job, cb status.Callback) error
	Busy() bool
	ActiveJob() *job.Job
}

// BacklogReporter reports how long captures have been waiting for
// relocation.
type BacklogReporter interface {
	OldestQueuedAge() time.Duration
}

// Server is the HTTP control surface.
type Server struct {
	engine   Engine
	runner   Runner
	snapper  drive.Snapper
	tracker  *drive.Tracker
	jobs     *job.List
	jobStore *job.FileStore
	plants   *plant.Registry
	plantSt  *plant.FileStore
	hist     *history.Store
	backlog  BacklogReporter
	manager  *settings.Manager
	logger   *zap.SugaredLogger

	// Manual commands from the page are throttled; the physical carousel
	// cannot usefully absorb more than one per second anyway.
	commandLimit *rate.Limiter

	mu         sync.RWMutex
	clients    map[*client]bool
	lastReport *status.Report

	httpServer *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// Deps bundles the server's collaborators.
type Deps struct {
	Engine   Engine
	Runner   Runner
	Snapper  drive.Snapper
	Tracker  *drive.Tracker
	Jobs     *job.List
	JobStore *job.FileStore
	Plants   *plant.Registry
	PlantSt  *plant.FileStore
	History  *history.Store
	Backlog  BacklogReporter
	Manager  *settings.Manager
}

// New builds the server.
func New(deps Deps) *Server {
	return &Server{
		engine:       deps.Engine,
		runner:       deps.Runner,
		snapper:      deps.Snapper,
		tracker:      deps.Tracker,
		jobs:         deps.Jobs,
		jobStore:     deps.JobStore,
		plants:       deps.Plants,
		plantSt:      deps.PlantSt,
		hist:         deps.History,
		backlog:      deps.Backlog,
		manager:      deps.Manager,
		logger:       logger.ComponentLogger("server"),
		commandLimit: rate.NewLimiter(rate.Every(time.Second), 2),
		clients:      make(map[*client]bool),
	}
}

// Start begins serving on the configured listen address.
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	mux := http.NewServeMux()
	s.routes(mux)

	addr := s.manager.Current().ListenAddr
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Infow("Control server listening", logger.FieldAddress, addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("Control server failed", logger.FieldError, err)
		}
	}()
	return nil
}

// Stop shuts the server down, closing client connections.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}

	s.mu.Lock()
	for c := range s.clients {
		c.close()
	}
	s.clients = make(map[*client]bool)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/command/", s.handleCommand)
	mux.HandleFunc("/api/snap", s.handleSnap)
	mux.HandleFunc("/api/jobs", s.handleJobs)
	mux.HandleFunc("/api/jobs/", s.handleJob)
	mux.HandleFunc("/api/plants", s.handlePlants)
	mux.HandleFunc("/api/history/runs", s.handleRuns)
	mux.HandleFunc("/api/history/captures", s.handleCaptures)
	mux.HandleFunc("/api/settings", s.handleSettings)
	mux.HandleFunc("/api/last-image", s.handleLastImage)
}
