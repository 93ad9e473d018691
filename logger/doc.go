// Package logger provides adapters for popular logger libraries to work with
// perchdb's Logger interface.
//
// The adapters allow you to use your existing logger with perchdb without
// writing boilerplate. Note that the standard library's slog.Logger already
// implements perchdb.Logger directly.
//
// Example with zap:
//
//	zapLogger, _ := zap.NewProduction()
//	db, err := perchdb.Open("data.db", perchdb.WithLogger(logger.NewZap(zapLogger)))
package logger
