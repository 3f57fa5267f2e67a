package job

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/phenobot/carousel/errors"
	"github.com/phenobot/carousel/logger"
)

// FileStore persists the job list as a JSON array under a "jobs" key,
// the format owned by the job editor.
type FileStore struct {
	path   string
	logger *zap.SugaredLogger
}

// NewFileStore creates a store for the given jobs file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger.ComponentLogger("job.store"),
	}
}

type jobsFile struct {
	Jobs []*Job `json:"jobs"`
}

// Load reads all jobs. A missing file yields an empty list.
func (s *FileStore) Load() ([]*Job, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to read jobs file %s", s.path)
	}

	var f jobsFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrapf(err, "failed to decode jobs file %s", s.path)
	}

	s.logger.Infow("Loaded jobs", logger.FieldCount, len(f.Jobs), logger.FieldFile, s.path)
	return f.Jobs, nil
}

// Save writes the job list back to disk.
func (s *FileStore) Save(jobs []*Job) error {
	data, err := json.MarshalIndent(jobsFile{Jobs: jobs}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode jobs")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create jobs directory")
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write jobs file %s", s.path)
	}
	s.logger.Infow("Saved jobs", logger.FieldCount, len(jobs), logger.FieldFile, s.path)
	return nil
}

// Watch reloads the jobs file whenever it changes on disk and calls onChange
// with the new list. Runs until the context is cancelled. Edits are debounced
// briefly so editors that write in several steps trigger one reload.
func (s *FileStore) Watch(ctx context.Context, onChange func([]*Job)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create jobs watcher")
	}

	// Watch the directory, not the file: editors replace files by rename.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return errors.Wrapf(err, "failed to watch %s", filepath.Dir(s.path))
	}

	go func() {
		defer watcher.Close()

		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				pending = time.After(200 * time.Millisecond)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warnw("Jobs watcher error", logger.FieldError, err)
			case <-pending:
				pending = nil
				jobs, err := s.Load()
				if err != nil {
					s.logger.Errorw("Failed to reload jobs after file change", logger.FieldError, err)
					continue
				}
				onChange(jobs)
			}
		}
	}()

	return nil
}
