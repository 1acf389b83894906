// Package logging provides structured logging built on uber/zap.
//
// Production loggers emit JSON at info level; development loggers emit
// colored console output at debug level with stacktraces. Subsystems that
// accept a nil logger fall back to NewDefault.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("port", "8000"))
//	logger.WithApp("prompts").Warn("Hook failed", zap.Error(err))
package logging
