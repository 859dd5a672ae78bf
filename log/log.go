package log

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"
)

type loggerKey struct{}

type traceKey struct{}

// CloudHandler is a slog.Handler emitting Google Cloud structured log
// entries on stdout, the format Cloud Functions ingests natively.
type CloudHandler struct {
	level slog.Level
	attrs []slog.Attr
}

// NewCloudHandler creates a handler that drops records below level.
func NewCloudHandler(level slog.Level) *CloudHandler {
	return &CloudHandler{level: level}
}

func (h *CloudHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *CloudHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := map[string]any{
		"severity": severity(r.Level),
		"time":     time.Now().Format(time.RFC3339),
		"message":  r.Message,
	}
	if trace := TraceFromContext(ctx); trace != "" {
		entry["logging.googleapis.com/trace"] = trace
	}
	for _, attr := range h.attrs {
		entry[attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(attr slog.Attr) bool {
		entry[attr.Key] = attr.Value.Any()
		return true
	})

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	os.Stdout.Write(jsonData)
	os.Stdout.Write([]byte("\n"))
	return nil
}

func (h *CloudHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &CloudHandler{level: h.level, attrs: merged}
}

// WithGroup is a no-op, flat entries are enough for our log volume.
func (h *CloudHandler) WithGroup(_ string) slog.Handler {
	return h
}

// severity maps slog levels to Cloud Logging severity names.
func severity(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARNING"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

// WithLogger stores the logger in the context for downstream handlers.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFromContext returns the request logger, or a default one.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.New(NewCloudHandler(slog.LevelInfo))
}

// WithTrace attaches the Cloud Trace resource name to the context.
func WithTrace(ctx context.Context, trace string) context.Context {
	return context.WithValue(ctx, traceKey{}, trace)
}

// TraceFromContext returns the trace attached by WithTrace, if any.
func TraceFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	trace, _ := ctx.Value(traceKey{}).(string)
	return trace
}
