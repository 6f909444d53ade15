// Package log provides Courier's structured logging facade.
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. It is backed by log/slog through a
// custom handler that feeds the package's own formatter and output pipeline.
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("subscriptions"), log.Str("topic", "/xmtp/0/a/proto"))
//	l.Info("subscription registered", log.Int("buffer", 1024))
//
// # Configuration
//
// ApplyConfig builds a logger from a declarative Config (json or text
// format, console/file/null outputs, key redaction and message sampling) and
// installs it as the default returned by GetDefaultLogger.
//
// # Interop
//
// RedirectStdLog routes the standard library logger (used by grpc and
// net/http internals) through a Logger. ToStdLogger wraps a Logger for APIs
// that need a *log.Logger, such as http.Server.ErrorLog.
package log
