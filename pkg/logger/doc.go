// Package logger provides the structured logging interface used across twarchive.
//
// It wraps zerolog behind a small Logger interface so components receive a
// logger explicitly and tests can substitute TestLogger or NewNopLogger.
//
//	log, err := logger.New(&cfg.Logging)
//	log.WithField("account", "alice").Info("Sync started")
//
// The helpers in this package (LogRequest, LogDownload, LogRateLimit,
// LogSyncProgress) keep field names consistent between components.
package logger
