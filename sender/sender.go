// Package sender relocates job captures from the to_send directory to the
// lab server over SFTP, or to a mounted USB drive when no server is
// configured.
package sender

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/phenobot/carousel/logger"
	"github.com/phenobot/carousel/settings"
)

// Uploader moves one local file to its destination. Implementations verify
// the transfer before reporting success; a nil error means the local copy
// can be deleted.
type Uploader interface {
	Upload(localPath, experiment, name string) error
	Close() error
}

// uploadPace spaces uploads out so a large backlog does not saturate the
// device's uplink while a job is capturing.
var uploadPace = rate.Every(500 * time.Millisecond)

// Sender drains the to_send directory on a fixed cadence. Each pass is
// bounded by the same duration as the cadence so a slow transfer never
// overlaps the next pass.
type Sender struct {
	cfg         func() *settings.Settings
	logger      *zap.SugaredLogger
	newUploader func(*settings.Settings) (Uploader, error)

	cancel context.CancelFunc
	wg     sync.WaitGroup
	limit  *rate.Limiter
}

// New builds a sender. The uploader is chosen per pass: SFTP when a host
// is configured, the mounted-drive fallback otherwise.
func New(cfg func() *settings.Settings) *Sender {
	return &Sender{
		cfg:         cfg,
		logger:      logger.ComponentLogger("sender"),
		newUploader: defaultUploader,
		limit:       rate.NewLimiter(uploadPace, 1),
	}
}

func defaultUploader(s *settings.Settings) (Uploader, error) {
	if s.SFTPHost != "" {
		return newSFTPUploader(s)
	}
	return newDriveUploader(s)
}

// Start launches the relocation loop.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	interval := time.Duration(s.cfg().SendWorkSeconds) * time.Second
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
				s.RunPass(ctx)
			}
		}
	}()
	s.logger.Infow("Sender started", logger.FieldDurationMS, interval.Milliseconds())
}

// Stop halts the loop; an in-progress pass finishes its current file.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// RunPass relocates queued captures until the directory is empty or the
// work budget runs out.
func (s *Sender) RunPass(ctx context.Context) {
	cfg := s.cfg()
	names, err := listFiles(cfg.ToSendDir())
	if err != nil {
		s.logger.Errorw("Cannot list outgoing captures", logger.FieldError, err)
		return
	}
	if len(names) == 0 {
		return
	}

	up, err := s.newUploader(cfg)
	if err != nil {
		s.logger.Errorw("Cannot reach capture destination, images stay queued",
			logger.FieldError, err)
		return
	}
	defer up.Close()

	budget := time.Duration(cfg.SendWorkSeconds) * time.Second
	deadline := time.Now().Add(budget)
	moved := 0
	for _, name := range names {
		if time.Now().After(deadline) {
			s.logger.Infow("Stopping image relocation to avoid job conflicts",
				logger.FieldCount, moved)
			break
		}
		if err := s.limit.Wait(ctx); err != nil {
			return
		}

		local := filepath.Join(cfg.ToSendDir(), name)
		if err := up.Upload(local, experimentOf(name), name); err != nil {
			s.logger.Errorw("Unable to relocate capture",
				logger.FieldFile, name, logger.FieldError, err)
			continue
		}
		if err := os.Remove(local); err != nil {
			s.logger.Errorw("Relocated capture could not be deleted locally",
				logger.FieldFile, name, logger.FieldError, err)
			continue
		}
		moved++
		s.logger.Infow("Relocated capture", logger.FieldFile, name)
	}
	s.logger.Infow("Relocation pass done", logger.FieldCount, moved)
}

// OldestQueuedAge reports how long the oldest queued capture has been
// waiting. Zero when the queue is empty. The control surface flags a
// backlog older than two hours.
func (s *Sender) OldestQueuedAge() time.Duration {
	dir := s.cfg().ToSendDir()
	names, err := listFiles(dir)
	if err != nil || len(names) == 0 {
		return 0
	}
	oldest := time.Now()
	for _, name := range names {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if info.ModTime().Before(oldest) {
			oldest = info.ModTime()
		}
	}
	return time.Since(oldest)
}

// experimentOf extracts the experiment segment of a capture file name.
func experimentOf(name string) string {
	parts := strings.Split(name, "#")
	if len(parts) < 2 || parts[1] == "" {
		return "unsorted"
	}
	return parts[1]
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
