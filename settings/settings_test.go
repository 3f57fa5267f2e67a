package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)

	s := m.Current()
	assert.Equal(t, "127.0.0.1", s.TargetIP)
	assert.Equal(t, 8000, s.TargetPort)
	assert.Equal(t, 2390, s.TargetStopPort)
	assert.Equal(t, 56, s.TrayCount)
	assert.Equal(t, "1024x768", s.ImageResolution)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	content := `{"target_ip": "192.168.1.40", "target_port": 9000, "tray_count": 12}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m, err := Load(path)
	require.NoError(t, err)

	s := m.Current()
	assert.Equal(t, "192.168.1.40", s.TargetIP)
	assert.Equal(t, 12, s.TrayCount)
	assert.Equal(t, "http://192.168.1.40:9000", s.BaseURL())
	// untouched keys keep their defaults
	assert.Equal(t, 2390, s.TargetStopPort)
}

func TestResolution(t *testing.T) {
	s := &Settings{ImageResolution: "1024x768"}
	w, h, err := s.Resolution()
	require.NoError(t, err)
	assert.Equal(t, 1024, w)
	assert.Equal(t, 768, h)

	s.ImageResolution = "garbage"
	_, _, err = s.Resolution()
	assert.Error(t, err)
}

func TestDataPaths(t *testing.T) {
	s := &Settings{DataDir: "data"}
	assert.Equal(t, filepath.Join("data", "jobs_data.json"), s.JobsPath())
	assert.Equal(t, filepath.Join("data", "plants_data.csv"), s.PlantsPath())
	assert.Equal(t, filepath.Join("data", "images", "to_send"), s.ToSendDir())
	assert.Equal(t, filepath.Join("data", "images", "to_keep"), s.ToKeepDir())
}
