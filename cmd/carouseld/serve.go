package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/phenobot/carousel/capture"
	"github.com/phenobot/carousel/drive"
	"github.com/phenobot/carousel/errors"
	"github.com/phenobot/carousel/history"
	"github.com/phenobot/carousel/job"
	"github.com/phenobot/carousel/logger"
	"github.com/phenobot/carousel/plant"
	"github.com/phenobot/carousel/sender"
	"github.com/phenobot/carousel/server"
	"github.com/phenobot/carousel/settings"
	"github.com/phenobot/carousel/status"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the carousel controller",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	log := logger.ComponentLogger("carouseld")

	manager, err := settings.Load(configPath)
	if err != nil {
		return err
	}
	cfg := manager.Current
	if err := os.MkdirAll(cfg().DataDir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create data directory")
	}

	db, err := history.Open(cfg().HistoryPath(), log)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := history.Migrate(db, log); err != nil {
		return err
	}
	hist := history.NewStore(db)

	jobStore := job.NewFileStore(cfg().JobsPath())
	jobRecords, err := jobStore.Load()
	if err != nil {
		return err
	}
	jobs := job.NewList(jobRecords)
	log.Infow("Jobs loaded", logger.FieldCount, len(jobRecords))

	plantStore := plant.NewFileStore(cfg().PlantsPath())
	plantRecords, err := plantStore.Load()
	if err != nil {
		return err
	}
	plants := plant.NewRegistry(plantRecords)
	log.Infow("Plants loaded", logger.FieldCount, len(plantRecords))

	camera := capture.NewStillCamera(cfg().CameraBinary)
	if err := configureCamera(camera, cfg()); err != nil {
		return err
	}

	// The orchestrator and dispatcher reference each other: commands flow
	// down through Submit, echoes flow back up through the reactor.
	snapper := capture.NewSnapper(camera, plants, cfg, hist)
	tracker := drive.NewTracker()
	transport := drive.NewHTTPTransport(cfg)
	var dispatcher *drive.Dispatcher
	submit := func(c drive.Command, cb status.Callback) { dispatcher.Submit(c, cb) }
	orch := drive.NewOrchestrator(submit, tracker, cfg, plants, snapper, hist)
	dispatcher = drive.NewDispatcher(transport, tracker, cfg, orch)

	relocator := sender.New(cfg)

	srv := server.New(server.Deps{
		Engine:   dispatcher,
		Runner:   orch,
		Snapper:  snapper,
		Tracker:  tracker,
		Jobs:     jobs,
		JobStore: jobStore,
		Plants:   plants,
		PlantSt:  plantStore,
		History:  hist,
		Backlog:  relocator,
		Manager:  manager,
	})

	scheduler := drive.NewScheduler(jobs, orch, cfg, srv.Publish)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcher.Start(ctx)
	scheduler.Start(ctx)
	relocator.Start(ctx)
	if err := srv.Start(ctx); err != nil {
		return err
	}

	// Jobs edited on disk (scp'd from the lab) are picked up live.
	if err := jobStore.Watch(ctx, func(loaded []*job.Job) {
		jobs.Replace(loaded)
		log.Infow("Jobs reloaded from disk", logger.FieldCount, len(loaded))
	}); err != nil {
		log.Warnw("Job file watching unavailable", logger.FieldError, err)
	}

	manager.Watch(func(s *settings.Settings) {
		log.Infow("Settings changed, reconfiguring camera")
		if err := configureCamera(camera, s); err != nil {
			log.Errorw("Camera reconfiguration failed", logger.FieldError, err)
		}
	})

	log.Infow("Carousel controller running",
		logger.FieldAddress, cfg().ListenAddr, logger.FieldTray, cfg().TrayCount)

	<-ctx.Done()
	log.Infow("Shutting down")

	srv.Stop()
	relocator.Stop()
	scheduler.Stop()
	dispatcher.Stop()
	return nil
}

func configureCamera(camera *capture.StillCamera, s *settings.Settings) error {
	width, height, err := s.Resolution()
	if err != nil {
		return err
	}
	return camera.Configure(width, height)
}
