package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggerFactory hands out one shared Logger per component and applies
// the global logging configuration to all of them, including loggers
// handed out before SetupLogging ran.
type LoggerFactory struct {
	mu        sync.Mutex
	config    *LoggingConfig
	instances map[string]*Logger
}

var (
	factory     *LoggerFactory
	factoryOnce sync.Once
)

// GetLoggerFactory returns the process-wide factory.
func GetLoggerFactory() *LoggerFactory {
	factoryOnce.Do(func() {
		factory = &LoggerFactory{
			config:    defaultLoggingConfig(),
			instances: make(map[string]*Logger),
		}
	})
	return factory
}

func defaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		Level:          "info",
		Format:         "text",
		ConsoleEnabled: true,
	}
}

// GetLogger returns the shared logger for component, creating it under
// the current global configuration on first use. Repeated calls with the
// same component return loggers backed by the same underlying
// logrus.Logger, so a later SetupLogging reconfigures them all at once.
func GetLogger(component string) *Logger {
	return GetLoggerFactory().CreateLogger(component)
}

// CreateLogger returns the cached logger for component, creating and
// configuring one if this is the component's first request.
func (f *LoggerFactory) CreateLogger(component string) *Logger {
	f.mu.Lock()
	defer f.mu.Unlock()

	if l, ok := f.instances[component]; ok {
		return l
	}

	l := newComponentLogger(component, logrus.New())
	if err := applyConfig(l, f.config); err != nil {
		// Misconfigured file output must not lose the logger entirely.
		l.SetOutput(os.Stdout)
	}
	f.instances[component] = l
	return l
}

// SetupLogging makes config the global logging configuration, applying
// it to every logger the factory has handed out and to all loggers
// created afterwards.
func SetupLogging(config *LoggingConfig) error {
	f := GetLoggerFactory()
	f.mu.Lock()
	defer f.mu.Unlock()

	if config == nil {
		config = defaultLoggingConfig()
	}
	f.config = config

	for _, l := range f.instances {
		if err := applyConfig(l, config); err != nil {
			return err
		}
	}
	return nil
}

func applyConfig(l *Logger, config *LoggingConfig) error {
	level, err := logrus.ParseLevel(strings.ToLower(config.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	l.SetFormatter(formatterFor(config.Format))

	out, err := outputFor(config)
	if err != nil {
		return err
	}
	l.SetOutput(out)
	return nil
}

func formatterFor(format string) logrus.Formatter {
	if strings.EqualFold(format, "json") {
		return &logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05",
		}
	}
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	}
}

func outputFor(config *LoggingConfig) (io.Writer, error) {
	var writers []io.Writer
	if config.ConsoleEnabled {
		writers = append(writers, os.Stdout)
	}
	if config.FileEnabled && config.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxFileSize,
			MaxBackups: config.BackupCount,
			MaxAge:     30,
			Compress:   true,
		})
	}

	switch len(writers) {
	case 0:
		return io.Discard, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}
