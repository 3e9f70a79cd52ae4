package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// CreateTestLogger returns a standalone logger at the given level so a
// test can capture output without touching the shared factory.
func CreateTestLogger(t *testing.T, component string, level logrus.Level) *Logger {
	t.Helper()

	logger := NewLogger(component)
	logger.SetLevel(level)
	return logger
}

// CreateTestLoggingConfig builds a LoggingConfig for SetupLogging tests.
func CreateTestLoggingConfig(level, format string, consoleEnabled, fileEnabled bool, filePath string) *LoggingConfig {
	return &LoggingConfig{
		Level:          level,
		Format:         format,
		ConsoleEnabled: consoleEnabled,
		FileEnabled:    fileEnabled,
		FilePath:       filePath,
		MaxFileSize:    10,
		BackupCount:    3,
	}
}

// CreateTempLogFile creates an empty log file under a per-test temp dir.
func CreateTempLogFile(t *testing.T) string {
	t.Helper()

	logFilePath := filepath.Join(t.TempDir(), "test.log")
	file, err := os.Create(logFilePath)
	require.NoError(t, err)
	file.Close()

	return logFilePath
}
