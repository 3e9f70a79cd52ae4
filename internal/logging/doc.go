// Package logging provides structured, component-tagged logging for
// pycastblaster, built on logrus.
//
// Loggers are created per component through the package-level factory
// (GetLogger("scanner"), GetLogger("slideshow"), ...) so every instance
// shares the same level/format/output configuration set by SetupLogging.
// WithField/WithFields/WithError/WithCorrelationID return derived loggers
// rather than mutating the receiver, so a handler can attach a request's
// correlation ID without affecting the shared component logger. File
// output rotates through lumberjack when file logging is enabled;
// otherwise log lines go to the console.
package logging
