// Package log provides secure logging built on top of the standard slog
// package.
//
// Records pass through SecureHandler, which masks request cookies,
// authorization headers, session identifiers and similar values before
// they reach the underlying handler. Terminal output is rendered by
// charmbracelet/log. NewSecureFileLogger additionally appends one JSON
// object per record to a log file.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Debug("request headers", "cookie", cfg.Cookie) // cookie=***REDACTED***
//	slog.SetDefault(logger)
package log
