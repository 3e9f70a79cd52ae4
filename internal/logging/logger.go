package logging

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Logger is a component-tagged logger. It wraps a *logrus.Entry carrying
// the component field, so every line records which activity emitted it.
// WithField, WithFields, WithError, and WithCorrelationID return derived
// loggers rather than mutating the receiver; level, formatter, and
// output live on the underlying logrus.Logger shared by all loggers
// derived from the same component.
type Logger struct {
	*logrus.Entry
	component string
}

// Fields mirrors logrus.Fields so callers don't import logrus directly.
type Fields = logrus.Fields

// LoggingConfig is the logging section of the service configuration.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`           // debug, info, warn, error, fatal
	Format         string `mapstructure:"format"`          // text or json
	FileEnabled    bool   `mapstructure:"file_enabled"`    // write to a rotated file
	FilePath       string `mapstructure:"file_path"`       // log file path
	MaxFileSize    int    `mapstructure:"max_file_size"`   // MB per file before rotation
	BackupCount    int    `mapstructure:"backup_count"`    // rotated files to keep
	ConsoleEnabled bool   `mapstructure:"console_enabled"` // write to stdout
}

// NewLogger creates a standalone logger for component, unattached to the
// factory's shared configuration. Most callers want GetLogger instead;
// this exists for tests and one-off tools that configure their own
// output.
func NewLogger(component string) *Logger {
	base := logrus.New()
	base.SetFormatter(formatterFor("text"))
	return newComponentLogger(component, base)
}

func newComponentLogger(component string, base *logrus.Logger) *Logger {
	return &Logger{
		Entry:     base.WithField("component", component),
		component: component,
	}
}

// Component returns the component tag this logger was created for.
func (l *Logger) Component() string { return l.component }

func (l *Logger) derive(entry *logrus.Entry) *Logger {
	return &Logger{Entry: entry, component: l.component}
}

// WithField returns a derived logger that logs key=value on every line.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.derive(l.Entry.WithField(key, value))
}

// WithFields returns a derived logger carrying all of fields.
func (l *Logger) WithFields(fields Fields) *Logger {
	return l.derive(l.Entry.WithFields(fields))
}

// WithError returns a derived logger carrying err in the error field.
func (l *Logger) WithError(err error) *Logger {
	return l.derive(l.Entry.WithError(err))
}

// WithCorrelationID returns a derived logger tagged with a request's
// correlation ID.
func (l *Logger) WithCorrelationID(id string) *Logger {
	return l.derive(l.Entry.WithField("correlation_id", id))
}

// SetLevel sets the severity threshold for this component's loggers.
func (l *Logger) SetLevel(level logrus.Level) { l.Entry.Logger.SetLevel(level) }

// GetLevel returns the current severity threshold.
func (l *Logger) GetLevel() logrus.Level { return l.Entry.Logger.GetLevel() }

// SetOutput redirects this component's log output.
func (l *Logger) SetOutput(w io.Writer) { l.Entry.Logger.SetOutput(w) }

// SetFormatter replaces this component's log formatter.
func (l *Logger) SetFormatter(f logrus.Formatter) { l.Entry.Logger.SetFormatter(f) }

type correlationIDContextKey struct{}

// GenerateCorrelationID returns a fresh correlation ID for tracing one
// request through log output.
func GenerateCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelationID stores a correlation ID in ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDContextKey{}, id)
}

// GetCorrelationIDFromContext returns the correlation ID stored in ctx,
// or "" when there is none.
func GetCorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(correlationIDContextKey{}).(string); ok {
		return id
	}
	return ""
}
