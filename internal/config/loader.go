package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// ConfigLoader handles configuration loading using Viper.
type ConfigLoader struct {
	viper  *viper.Viper
	logger *logrus.Logger
}

// NewConfigLoader creates a new configuration loader.
func NewConfigLoader() *ConfigLoader {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix("PYCASTBLASTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &ConfigLoader{
		viper:  v,
		logger: logrus.New(),
	}
}

// LoadConfig loads configuration from the specified file path. A missing
// file is not an error: defaults are used, with only a log line.
func (cl *ConfigLoader) LoadConfig(configPath string) (*Config, error) {
	cl.viper.SetConfigFile(configPath)
	cl.setDefaults()

	if err := cl.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
			cl.logger.WithField("config_path", configPath).Warn("No config file, using default values")
		} else {
			return nil, fmt.Errorf("failed to read config file %q: %w", configPath, err)
		}
	}

	var cfg Config
	if err := cl.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cl.logger.Info("Configuration loaded successfully")
	return &cfg, nil
}

func (cl *ConfigLoader) setDefaults() {
	d := defaultConfig()
	cl.viper.SetDefault("images_path", d.ImagesPath)
	cl.viper.SetDefault("temp_path", d.TempPath)
	cl.viper.SetDefault("http_server_port", d.HTTPServerPort)
	cl.viper.SetDefault("chromecast_name", d.ChromecastName)
	cl.viper.SetDefault("slideshow_duration_seconds", d.SlideshowDurationSeconds)
	cl.viper.SetDefault("max_image_height_pixels", d.MaxImageHeightPixels)
	cl.viper.SetDefault("interruption_idle_seconds", d.InterruptionIdleSeconds)
	cl.viper.SetDefault("image_scanning_frequency_minutes", d.ImageScanningFrequencyMinutes)
}

// GetViper returns the underlying Viper instance for advanced usage.
func (cl *ConfigLoader) GetViper() *viper.Viper {
	return cl.viper
}
