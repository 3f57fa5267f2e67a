// Package settings loads and watches the carousel settings file.
//
// Settings live in a flat JSON object (settings.json) and can be overridden
// through CAROUSEL_-prefixed environment variables. Defaults match a bench
// setup with the motion controller on localhost.
package settings

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/phenobot/carousel/errors"
)

// Settings is the flat configuration object shared by every component.
type Settings struct {
	TargetIP        string `mapstructure:"target_ip" json:"target_ip"`
	TargetPort      int    `mapstructure:"target_port" json:"target_port"`
	TargetStopPort  int    `mapstructure:"target_stop_port" json:"target_stop_port"`
	TrayCount       int    `mapstructure:"tray_count" json:"tray_count"`
	ImageResolution string `mapstructure:"image_resolution" json:"image_resolution"`
	ShowImages      bool   `mapstructure:"show_images" json:"show_images"`
	CameraBinary    string `mapstructure:"camera_binary" json:"camera_binary"`

	// UseUDPStop switches the stop path to a raw UDP datagram on
	// TargetStopPort instead of the HTTP stop request.
	UseUDPStop bool `mapstructure:"use_udp_stop" json:"use_udp_stop"`

	DataDir            string `mapstructure:"data_dir" json:"data_dir"`
	ListenAddr         string `mapstructure:"listen_addr" json:"listen_addr"`
	HTTPTimeoutSeconds int    `mapstructure:"http_timeout_seconds" json:"http_timeout_seconds"`
	TickSeconds        int    `mapstructure:"tick_seconds" json:"tick_seconds"`

	// Image relocation (sender) settings. Host empty means "mounted drive
	// fallback only".
	SendWorkSeconds int    `mapstructure:"send_work_seconds" json:"send_work_seconds"`
	SFTPHost        string `mapstructure:"sftp_host" json:"sftp_host"`
	SFTPPort        int    `mapstructure:"sftp_port" json:"sftp_port"`
	SFTPUser        string `mapstructure:"sftp_user" json:"sftp_user"`
	SFTPPassword    string `mapstructure:"sftp_password" json:"sftp_password"`
	SFTPBaseDir     string `mapstructure:"sftp_base_dir" json:"sftp_base_dir"`
	DriveGlob       string `mapstructure:"drive_glob" json:"drive_glob"`
}

// BaseURL returns the motion controller's HTTP endpoint.
func (s *Settings) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", s.TargetIP, s.TargetPort)
}

// Resolution parses ImageResolution ("1024x768") into width and height.
func (s *Settings) Resolution() (width, height int, err error) {
	parts := strings.SplitN(s.ImageResolution, "x", 2)
	if len(parts) != 2 {
		return 0, 0, errors.Newf("malformed image_resolution %q", s.ImageResolution)
	}
	width, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, errors.Wrapf(err, "malformed image_resolution %q", s.ImageResolution)
	}
	height, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, errors.Wrapf(err, "malformed image_resolution %q", s.ImageResolution)
	}
	return width, height, nil
}

// JobsPath returns the location of the jobs JSON file.
func (s *Settings) JobsPath() string { return filepath.Join(s.DataDir, "jobs_data.json") }

// PlantsPath returns the location of the plant registry CSV.
func (s *Settings) PlantsPath() string { return filepath.Join(s.DataDir, "plants_data.csv") }

// HistoryPath returns the location of the sqlite history database.
func (s *Settings) HistoryPath() string { return filepath.Join(s.DataDir, "history.db") }

// ImagesDir returns the root directory for captured frames.
func (s *Settings) ImagesDir() string { return filepath.Join(s.DataDir, "images") }

// ToSendDir holds job captures awaiting relocation to the server.
func (s *Settings) ToSendDir() string { return filepath.Join(s.ImagesDir(), "to_send") }

// ToKeepDir holds manual captures that stay on the device.
func (s *Settings) ToKeepDir() string { return filepath.Join(s.ImagesDir(), "to_keep") }

// LastImagePath is where the camera writes each frame before filing.
func (s *Settings) LastImagePath() string { return filepath.Join(s.ImagesDir(), "last_picture.png") }

// Manager owns the viper instance so settings can be reloaded and saved.
type Manager struct {
	mu      sync.RWMutex
	v       *viper.Viper
	current *Settings
}

// Load reads settings from the given file. A missing file is not an error;
// defaults apply and Save will create it.
func Load(path string) (*Manager, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetEnvPrefix("CAROUSEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isNotExist(err) {
			return nil, errors.Wrapf(err, "failed to read settings file %s", path)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal settings")
	}

	return &Manager{v: v, current: &s}, nil
}

// Current returns the active settings snapshot.
func (m *Manager) Current() *Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Watch re-reads the settings file when it changes on disk and invokes
// onChange with the fresh snapshot.
func (m *Manager) Watch(onChange func(*Settings)) {
	m.v.OnConfigChange(func(_ fsnotify.Event) {
		var s Settings
		if err := m.v.Unmarshal(&s); err != nil {
			return
		}
		m.mu.Lock()
		m.current = &s
		m.mu.Unlock()
		if onChange != nil {
			onChange(&s)
		}
	})
	m.v.WatchConfig()
}

// Save writes the current settings back to the settings file.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.v.WriteConfig(); err != nil {
		return errors.Wrap(err, "failed to save settings")
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
