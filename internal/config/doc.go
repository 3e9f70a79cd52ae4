// Package config loads and persists pycastblaster's YAML configuration.
// Loaded values are not range-checked.
//
// Loading goes through Viper: defaults are set first, the YAML file is
// decoded over them, then environment variables prefixed PYCASTBLASTER_
// take final precedence. A missing config file is not an error — the
// service falls back to defaults and logs a warning.
//
// Only one field is ever rewritten at runtime: slideshow_duration_seconds,
// in response to the duration_update HTTP command. That rewrite goes
// through a separate yaml.v3 Node-tree path in rewrite.go so the file's
// comments and formatting survive, and is written crash-safe via a
// write-new/rename-old/rename-new/remove-old sequence.
package config
