package settings

import "github.com/spf13/viper"

// SetDefaults configures default values for all settings.
func SetDefaults(v *viper.Viper) {
	// Motion controller endpoint
	v.SetDefault("target_ip", "127.0.0.1")
	v.SetDefault("target_port", 8000)
	v.SetDefault("target_stop_port", 2390)
	v.SetDefault("use_udp_stop", false)

	// Carousel geometry and camera
	v.SetDefault("tray_count", 56)
	v.SetDefault("image_resolution", "1024x768")
	v.SetDefault("show_images", false)
	v.SetDefault("camera_binary", "libcamera-still")

	// Engine
	v.SetDefault("data_dir", "data")
	v.SetDefault("listen_addr", ":8077")
	v.SetDefault("http_timeout_seconds", 30)
	v.SetDefault("tick_seconds", 1)

	// Image relocation
	v.SetDefault("send_work_seconds", 600) // stop relocating well before the next job window
	v.SetDefault("sftp_port", 22)
	v.SetDefault("sftp_base_dir", "Carousel")
	v.SetDefault("drive_glob", "/media/pi/*")
}
