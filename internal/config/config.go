// Package config loads and persists pycastblaster's YAML configuration.
//
// Loading goes through Viper (defaults + file + environment overrides).
// Rewriting a single field back to disk, required by the duration_update
// command, does not go through Viper at all, since Viper discards
// comments on any round trip; it goes through the yaml.v3 Node tree in
// rewrite.go instead, which is the only representation in this package
// that preserves the file's original formatting.
package config

import "fmt"

// Config is the complete configuration for one run.
type Config struct {
	ImagesPath                    string  `mapstructure:"images_path"`
	TempPath                      string  `mapstructure:"temp_path"`
	HTTPServerPort                int     `mapstructure:"http_server_port"`
	ChromecastName                string  `mapstructure:"chromecast_name"`
	SlideshowDurationSeconds      float64 `mapstructure:"slideshow_duration_seconds"`
	MaxImageHeightPixels          int     `mapstructure:"max_image_height_pixels"`
	InterruptionIdleSeconds       int     `mapstructure:"interruption_idle_seconds"`
	ImageScanningFrequencyMinutes int     `mapstructure:"image_scanning_frequency_minutes"`
}

// ImageScanningFrequencySeconds converts the configured minutes into the
// seconds unit the Image Scanner actually sleeps in.
func (c *Config) ImageScanningFrequencySeconds() int {
	return c.ImageScanningFrequencyMinutes * 60
}

// String returns a short debug representation.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{images_path=%s, temp_path=%s, port=%d, chromecast=%q, duration=%.2fs}",
		c.ImagesPath, c.TempPath, c.HTTPServerPort, c.ChromecastName, c.SlideshowDurationSeconds,
	)
}

func defaultConfig() *Config {
	return &Config{
		ImagesPath:                    "images/",
		TempPath:                      "temp/",
		HTTPServerPort:                8000,
		ChromecastName:                "Family Room TV",
		SlideshowDurationSeconds:      5,
		MaxImageHeightPixels:          720,
		InterruptionIdleSeconds:       20,
		ImageScanningFrequencyMinutes: 10,
	}
}
