package log

import (
	"fmt"
	stdlog "log"
	"log/slog"
	"strings"
	"sync"
)

// Config declares a logger: level, format, outputs and hook policies.
type Config struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // json|text

	// Outputs are "console", "null" or "file:<path>". Empty means console.
	Outputs []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`

	// Redact replaces the values of these keys with [REDACTED].
	Redact []string `json:"redact,omitempty" yaml:"redact,omitempty"`

	// SampleInitial/SampleThereafter keep the first N repeats of a message then
	// every Mth. SampleThereafter<=0 disables sampling.
	SampleInitial    int `json:"sampleInitial,omitempty" yaml:"sampleInitial,omitempty"`
	SampleThereafter int `json:"sampleThereafter,omitempty" yaml:"sampleThereafter,omitempty"`
}

var (
	defaultMu     sync.RWMutex
	defaultLogger Logger = NewLogger()
)

// GetDefaultLogger returns the process-wide logger.
func GetDefaultLogger() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefaultLogger replaces the process-wide logger.
func SetDefaultLogger(l Logger) {
	if l == nil {
		return
	}
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// Build constructs a Logger from cfg without installing it.
func Build(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := []LoggerOption{WithLevel(level)}
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		opts = append(opts, WithFormatter(&JSONFormatter{}))
	case "text":
		opts = append(opts, WithFormatter(&TextFormatter{}))
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	for _, o := range cfg.Outputs {
		switch {
		case o == "console":
			opts = append(opts, WithOutput(NewConsoleOutput()))
		case o == "null":
			opts = append(opts, WithOutput(NullOutput{}))
		case strings.HasPrefix(o, "file:"):
			fo, err := NewFileOutput(strings.TrimPrefix(o, "file:"))
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithOutput(fo))
		default:
			return nil, fmt.Errorf("unknown log output %q", o)
		}
	}
	l := NewLogger(opts...).(*BaseLogger)
	h := newBridgeHandler(l.state).
		withRedactions(cfg.Redact).
		withSampler(cfg.SampleInitial, cfg.SampleThereafter)
	l.slogLogger = slog.New(h)
	return l, nil
}

// ApplyConfig builds a logger from cfg and installs it as the default.
func ApplyConfig(cfg *Config) (Logger, error) {
	l, err := Build(cfg)
	if err != nil {
		return nil, err
	}
	SetDefaultLogger(l)
	return l, nil
}

// stdWriter adapts Logger to io.Writer for the standard library logger.
type stdWriter struct {
	l     Logger
	level Level
}

func (w stdWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	switch w.level {
	case DebugLevel:
		w.l.Debug(msg)
	case WarnLevel:
		w.l.Warn(msg)
	case ErrorLevel, FatalLevel:
		w.l.Error(msg)
	default:
		w.l.Info(msg)
	}
	return len(p), nil
}

// ToStdLogger returns a *log.Logger that writes through l at level.
func ToStdLogger(l Logger, level Level) *stdlog.Logger {
	return stdlog.New(stdWriter{l: l, level: level}, "", 0)
}

// RedirectStdLog sends output of the standard library's global logger to l.
func RedirectStdLog(l Logger) {
	stdlog.SetFlags(0)
	stdlog.SetPrefix("")
	stdlog.SetOutput(stdWriter{l: l.WithComponent("stdlog"), level: InfoLevel})
}
