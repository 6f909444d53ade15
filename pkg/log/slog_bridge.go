package log

import (
	"context"
	"log/slog"
	"maps"
	"runtime"
	"slices"
	"strconv"
	"sync"
)

// bridgeHandler is a slog.Handler that renders records with the logger's
// formatter and fans them out to its outputs.
type bridgeHandler struct {
	state *loggerState
	// attrs are pre-qualified with any enclosing groups.
	attrs      []slog.Attr
	prefix     string
	redactions map[string]struct{}
	sampler    *sampler
}

func newBridgeHandler(state *loggerState) *bridgeHandler {
	return &bridgeHandler{state: state}
}

func (h *bridgeHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.state.getLevel() <= fromSlogLevel(level)
}

// Handle renders r. Request id and operation carried by ctx are added as
// fields unless the record already sets them.
func (h *bridgeHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.sampler != nil && !h.sampler.allow(r.Level, r.Message) {
		return nil
	}

	fields := ContextExtractor(ctx)
	for _, a := range h.attrs {
		h.put(fields, a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.put(fields, h.prefix+a.Key, a.Value)
		return true
	})

	entry := &Entry{
		Level:     fromSlogLevel(r.Level),
		Message:   r.Message,
		Fields:    fields,
		Timestamp: r.Time,
	}
	if r.PC != 0 {
		f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if f.File != "" {
			entry.Caller = f.File + ":" + strconv.Itoa(f.Line)
		}
	}
	if e, ok := fields["error"].(error); ok {
		entry.Error = e
	}

	h.state.mu.RLock()
	formatter := h.state.formatter
	outputs := h.state.outputs
	h.state.mu.RUnlock()

	formatted, err := formatter.Format(entry)
	if err != nil {
		return err
	}
	for _, out := range outputs {
		_ = out.Write(entry, formatted)
	}
	return nil
}

func (h *bridgeHandler) put(fields Fields, key string, v slog.Value) {
	if _, ok := h.redactions[key]; ok {
		fields[key] = "[REDACTED]"
		return
	}
	if v.Kind() == slog.KindGroup {
		for _, a := range v.Group() {
			h.put(fields, key+"."+a.Key, a.Value)
		}
		return
	}
	fields[key] = v.Resolve().Any()
}

func (h *bridgeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	nh := *h
	nh.attrs = slices.Clip(h.attrs)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		nh.attrs = append(nh.attrs, a)
	}
	return &nh
}

// WithGroup qualifies the keys of later attributes as "group.key".
func (h *bridgeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.prefix = h.prefix + name + "."
	return &nh
}

func (h *bridgeHandler) withRedactions(keys []string) *bridgeHandler {
	if len(keys) == 0 {
		return h
	}
	nh := *h
	nh.redactions = make(map[string]struct{}, len(keys))
	for _, k := range keys {
		nh.redactions[k] = struct{}{}
	}
	return &nh
}

func (h *bridgeHandler) withSampler(initial, thereafter int) *bridgeHandler {
	if thereafter <= 0 {
		return h
	}
	nh := *h
	nh.sampler = newSampler(initial, thereafter)
	return &nh
}

// sampler thins repeated debug and info messages. Warnings and errors always
// pass.
type sampler struct {
	mu         sync.Mutex
	initial    uint64
	thereafter uint64
	counts     map[string]uint64
}

func newSampler(initial, thereafter int) *sampler {
	return &sampler{
		initial:    uint64(max(initial, 0)),
		thereafter: uint64(max(thereafter, 1)),
		counts:     make(map[string]uint64),
	}
}

func (s *sampler) allow(level slog.Level, message string) bool {
	if level >= slog.LevelWarn {
		return true
	}
	s.mu.Lock()
	n := s.counts[message]
	s.counts[message] = n + 1
	s.mu.Unlock()
	if n < s.initial {
		return true
	}
	return (n-s.initial)%s.thereafter == 0
}

func toSlogLevel(level Level) slog.Level {
	switch level {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel, FatalLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func fromSlogLevel(level slog.Level) Level {
	switch {
	case level < slog.LevelInfo:
		return DebugLevel
	case level < slog.LevelWarn:
		return InfoLevel
	case level < slog.LevelError:
		return WarnLevel
	default:
		return ErrorLevel
	}
}

// attrsFromMap converts m to attrs in key order.
func attrsFromMap(m Fields) []any {
	out := make([]any, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, slog.Any(k, m[k]))
	}
	return out
}

func attrsFromFields(fields []Field) []slog.Attr {
	if len(fields) == 0 {
		return nil
	}
	attrs := make([]slog.Attr, len(fields))
	for i, f := range fields {
		attrs[i] = slog.Any(f.Key, f.Value)
	}
	return attrs
}

// fieldArgs converts fields to arguments for slog.Logger.With.
func fieldArgs(fields []Field) []any {
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = slog.Any(f.Key, f.Value)
	}
	return out
}
