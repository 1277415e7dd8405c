// Package logger builds the *slog.Logger used across relaygate.
//
// Loggers from New share one level, so a config reload can raise or lower
// verbosity at runtime. Their handler masks JWTs, rgs_ secrets and values
// under sensitive keys, and stamps records logged with a context carrying
// a request ID, relay connection ID or token subject.
package logger
