package logging

import (
	"context"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	sugar *zap.SugaredLogger
	once  sync.Once
	level = zap.NewAtomicLevelAt(zap.InfoLevel)
)

// Logger is the structured logging surface used across the listener. Every
// call takes a message followed by alternating key/value pairs.
type Logger interface {
	Infow(msg string, keysAndValues ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Fatalw(msg string, keysAndValues ...interface{})
	Sync() error
}

type noopLogger struct{}

func (noopLogger) Infow(string, ...interface{})  {}
func (noopLogger) Debugw(string, ...interface{}) {}
func (noopLogger) Warnw(string, ...interface{})  {}
func (noopLogger) Errorw(string, ...interface{}) {}
func (noopLogger) Fatalw(string, ...interface{}) {}
func (noopLogger) Sync() error                   { return nil }

// current starts as a no-op so packages can log before Init runs (tests).
var current Logger = noopLogger{}

// ParseLevel maps LOG_LEVEL values onto zap levels. Unknown values fall back
// to info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// Init builds the process logger from LOG_LEVEL and redirects the standard
// library logger into zap. Output goes to stderr so stdout stays free for
// the console status lines. Safe to call more than once.
func Init() *zap.SugaredLogger {
	once.Do(func() {
		cfg := zap.Config{
			Encoding:         "json",
			EncoderConfig:    zap.NewProductionEncoderConfig(),
			OutputPaths:      []string{"stderr"},
			ErrorOutputPaths: []string{"stderr"},
		}
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.CallerKey = "caller"
		level.SetLevel(ParseLevel(os.Getenv("LOG_LEVEL")))
		cfg.Level = level

		logger, err := cfg.Build(zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zap.ErrorLevel))
		if err != nil {
			logger = zap.NewNop()
		}
		_ = zap.RedirectStdLog(logger)
		sugar = logger.Sugar()
		current = sugar
	})
	return sugar
}

// SetLogger replaces the package logger. nil restores the logger built by
// Init, or the no-op logger when Init was never called.
func SetLogger(l Logger) {
	if l != nil {
		current = l
		return
	}
	if sugar != nil {
		current = sugar
		return
	}
	current = noopLogger{}
}

// SetLevel changes the level of the logger built by Init.
func SetLevel(s string) { level.SetLevel(ParseLevel(s)) }

func Infow(msg string, keysAndValues ...interface{})  { current.Infow(msg, keysAndValues...) }
func Debugw(msg string, keysAndValues ...interface{}) { current.Debugw(msg, keysAndValues...) }
func Warnw(msg string, keysAndValues ...interface{})  { current.Warnw(msg, keysAndValues...) }
func Errorw(msg string, keysAndValues ...interface{}) { current.Errorw(msg, keysAndValues...) }
func Fatalw(msg string, keysAndValues ...interface{}) { current.Fatalw(msg, keysAndValues...) }

// FatalExitf logs at error level and exits with code. Unlike Fatalw it lets
// the caller pick the exit status (2 for configuration problems).
func FatalExitf(code int, msg string, keysAndValues ...interface{}) {
	current.Errorw(msg, keysAndValues...)
	_ = current.Sync()
	os.Exit(code)
}

// Sync flushes any buffered entries.
func Sync() error { return current.Sync() }

type ctxKeyType struct{}

// WithFields returns a context carrying kv in addition to any fields already
// attached to ctx.
func WithFields(ctx context.Context, kv ...interface{}) context.Context {
	if len(kv) == 0 {
		return ctx
	}
	prev, _ := ctx.Value(ctxKeyType{}).([]interface{})
	merged := make([]interface{}, 0, len(prev)+len(kv))
	merged = append(merged, prev...)
	merged = append(merged, kv...)
	return context.WithValue(ctx, ctxKeyType{}, merged)
}

// FromContext returns the fields attached with WithFields.
func FromContext(ctx context.Context) []interface{} {
	if ctx == nil {
		return nil
	}
	v, _ := ctx.Value(ctxKeyType{}).([]interface{})
	return v
}

func merge(ctx context.Context, kv []interface{}) []interface{} {
	ctxFields := FromContext(ctx)
	if len(ctxFields) == 0 {
		return kv
	}
	out := make([]interface{}, 0, len(ctxFields)+len(kv))
	out = append(out, ctxFields...)
	return append(out, kv...)
}

func InfowCtx(ctx context.Context, msg string, kv ...interface{})  { Infow(msg, merge(ctx, kv)...) }
func DebugwCtx(ctx context.Context, msg string, kv ...interface{}) { Debugw(msg, merge(ctx, kv)...) }
func WarnwCtx(ctx context.Context, msg string, kv ...interface{})  { Warnw(msg, merge(ctx, kv)...) }
func ErrorwCtx(ctx context.Context, msg string, kv ...interface{}) { Errorw(msg, merge(ctx, kv)...) }

// ScoreFields describes the winning wake-word label for one chunk.
func ScoreFields(label string, score float64) []interface{} {
	return []interface{}{"wake.label", label, "wake.score", score}
}

// ClipFields describes a recorded command clip. durationMs is derived from
// samples and rate.
func ClipFields(samples, rate int) []interface{} {
	durationMs := 0
	if rate > 0 {
		durationMs = samples * 1000 / rate
	}
	return []interface{}{"clip.samples", samples, "clip.rate", rate, "clip.duration_ms", durationMs}
}

func QueueFields(length, capacity int, dropped uint64) []interface{} {
	return []interface{}{"queue.len", length, "queue.cap", capacity, "queue.dropped", dropped}
}
