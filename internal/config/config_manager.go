package config

import (
	"fmt"
	"sync"

	"github.com/e-roder/pycastblaster-go/internal/logging"
)

// ConfigManager owns the current Config and the on-disk path it was loaded
// from, and serializes reads/writes against concurrent access from the
// HTTP command handler and the rest of the service.
type ConfigManager struct {
	lock       sync.RWMutex
	config     *Config
	configPath string
	logger     *logging.Logger
}

// CreateConfigManager creates a configuration manager with defaults applied
// but nothing loaded yet.
func CreateConfigManager() *ConfigManager {
	return &ConfigManager{
		config: defaultConfig(),
		logger: logging.GetLogger("config-manager"),
	}
}

// LoadConfig loads the YAML file at configPath, falling back to defaults
// when it does not exist.
func (cm *ConfigManager) LoadConfig(configPath string) error {
	cm.lock.Lock()
	defer cm.lock.Unlock()

	loader := NewConfigLoader()
	cfg, err := loader.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config %q: %w", configPath, err)
	}

	cm.config = cfg
	cm.configPath = configPath
	return nil
}

// GetConfig returns the current configuration. Callers must not mutate the
// returned value; use UpdateSlideshowDuration for the one field that can
// change at runtime.
func (cm *ConfigManager) GetConfig() *Config {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	cfg := *cm.config
	return &cfg
}

// ConfigPath returns the path the configuration was (or would be) loaded
// from.
func (cm *ConfigManager) ConfigPath() string {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	return cm.configPath
}

// UpdateSlideshowDuration updates the in-memory slideshow duration and
// attempts to persist it back to the config file, preserving comments. A
// persistence failure is logged and does not roll back the in-memory
// value: the service keeps running with the new value even if the
// rewrite failed.
func (cm *ConfigManager) UpdateSlideshowDuration(seconds float64) error {
	if seconds <= 0 {
		return fmt.Errorf("duration_update requires a positive number of seconds, got %v", seconds)
	}

	cm.lock.Lock()
	defer cm.lock.Unlock()

	cm.config.SlideshowDurationSeconds = seconds

	if cm.configPath == "" {
		return nil
	}

	if err := RewriteSlideshowDuration(cm.configPath, seconds); err != nil {
		cm.logger.WithError(err).WithField("config_path", cm.configPath).
			Warn("Failed to persist slideshow_duration_seconds, keeping in-memory value")
	}
	return nil
}
