// Package logger builds the service's slog.Logger from environment
// configuration: JSON output in production, text for local development,
// with a static service attribute on every record.
package logger
