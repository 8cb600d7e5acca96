// Package logger configures log/slog for kvgate.
//
// Loggers are built once at startup and passed to components explicitly.
// All of them share one level variable so a configuration reload can
// change verbosity at runtime. Attributes whose keys look like passwords
// or secrets are redacted by the handler.
package logger
