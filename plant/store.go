package plant

import (
	"encoding/csv"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/phenobot/carousel/errors"
	"github.com/phenobot/carousel/logger"
)

// csvHeader is the column order of the plant registry file, owned by the
// plant editor.
var csvHeader = []string{"experiment", "plant_name", "position", "allow_capture"}

// FileStore persists the registry as a flat CSV file.
type FileStore struct {
	path   string
	logger *zap.SugaredLogger
}

// NewFileStore creates a store for the given registry file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger.ComponentLogger("plant.store"),
	}
}

// Load reads all rows. A missing file yields an empty registry.
func (s *FileStore) Load() ([]Plant, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to open plant registry %s", s.path)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse plant registry %s", s.path)
	}
	if len(records) == 0 {
		return nil, nil
	}

	plants := make([]Plant, 0, len(records)-1)
	for i, rec := range records[1:] { // skip header
		if len(rec) < 4 {
			return nil, errors.Newf("plant registry %s: row %d has %d columns, want 4", s.path, i+2, len(rec))
		}
		pos, err := strconv.Atoi(rec[2])
		if err != nil {
			return nil, errors.Wrapf(err, "plant registry %s: row %d: bad position", s.path, i+2)
		}
		allow, err := strconv.ParseBool(rec[3])
		if err != nil {
			return nil, errors.Wrapf(err, "plant registry %s: row %d: bad allow_capture", s.path, i+2)
		}
		plants = append(plants, Plant{
			Experiment:   rec[0],
			Name:         rec[1],
			Position:     pos,
			AllowCapture: allow,
		})
	}

	s.logger.Infow("Loaded plant registry", logger.FieldCount, len(plants), logger.FieldFile, s.path)
	return plants, nil
}

// Save writes the registry back to disk.
func (s *FileStore) Save(plants []Plant) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create registry directory")
	}

	f, err := os.Create(s.path)
	if err != nil {
		return errors.Wrapf(err, "failed to create plant registry %s", s.path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return errors.Wrap(err, "failed to write registry header")
	}
	for _, p := range plants {
		rec := []string{p.Experiment, p.Name, strconv.Itoa(p.Position), strconv.FormatBool(p.AllowCapture)}
		if err := w.Write(rec); err != nil {
			return errors.Wrap(err, "failed to write registry row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, "failed to flush registry")
	}

	s.logger.Infow("Saved plant registry", logger.FieldCount, len(plants), logger.FieldFile, s.path)
	return nil
}
