package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/phenobot/carousel/errors"
	"github.com/phenobot/carousel/logger"
	"github.com/phenobot/carousel/plant"
	"github.com/phenobot/carousel/settings"
	"github.com/phenobot/carousel/status"
)

// CaptureRecorder persists taken frames for the history view.
type CaptureRecorder interface {
	RecordCapture(experiment, plantName string, tray int, file string, takenAt time.Time)
}

// Snapper takes and files frames. Snap blocks until the frame is filed;
// the camera itself is held under a mutex so frames never interleave.
type Snapper struct {
	camera   Camera
	registry *plant.Registry
	cfg      func() *settings.Settings
	recorder CaptureRecorder
	logger   *zap.SugaredLogger

	cameraMu sync.Mutex
	now      func() time.Time
}

// NewSnapper wires a snapper over the camera and plant registry.
func NewSnapper(camera Camera, registry *plant.Registry, cfg func() *settings.Settings, recorder CaptureRecorder) *Snapper {
	return &Snapper{
		camera:   camera,
		registry: registry,
		cfg:      cfg,
		recorder: recorder,
		logger:   logger.ComponentLogger("capture.snapper"),
		now:      time.Now,
	}
}

// Snap takes a frame of the tray and files it, whatever the registry says
// about the position. Callers decide whether a position deserves a frame;
// Snap returns only once the frame is filed, so the carousel stays still
// for the exposure.
func (s *Snapper) Snap(tray int, jobActive bool, cb status.Callback) {
	outcome, p := Classify(tray, s.registry)
	s.capture(tray, jobActive, outcome, p, cb)
}

func (s *Snapper) capture(tray int, jobActive bool, outcome Outcome, p plant.Plant, cb status.Callback) {
	s.cameraMu.Lock()
	defer s.cameraMu.Unlock()

	cfg := s.cfg()
	takenAt := s.now()
	last := cfg.LastImagePath()
	if err := os.MkdirAll(filepath.Dir(last), 0o755); err != nil {
		s.fail(cb, err)
		return
	}
	if err := s.camera.Capture(context.Background(), last); err != nil {
		s.fail(cb, err)
		return
	}

	destDir := cfg.ToKeepDir()
	if jobActive && outcome == OutcomeAllowed {
		destDir = cfg.ToSendDir()
	}
	name := FileName(outcome, p, takenAt)
	dest := filepath.Join(destDir, name)
	if err := copyFile(last, dest); err != nil {
		s.fail(cb, err)
		return
	}

	s.logger.Infow("Frame captured",
		logger.FieldTray, tray, logger.FieldFile, name, logger.FieldPath, destDir)
	if s.recorder != nil {
		s.recorder.RecordCapture(p.Experiment, p.Name, tray, name, takenAt)
	}

	r := status.Info(fmt.Sprintf("Captured tray %d", tray), status.KeepUntilReplaced)
	r.UpdateImage = true
	s.report(cb, r)
}

func (s *Snapper) fail(cb status.Callback, err error) {
	s.logger.Errorw("Capture failed", logger.FieldError, err)
	s.report(cb, status.Error(fmt.Sprintf("Failed to capture image: %v", err), status.KeepUntilReplaced))
}

func (s *Snapper) report(cb status.Callback, r status.Report) {
	if cb != nil {
		cb(r)
	}
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrap(err, "failed to create image directory")
	}
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "failed to open captured frame")
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "failed to create filed frame")
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return errors.Wrap(err, "failed to file frame")
	}
	return out.Close()
}
