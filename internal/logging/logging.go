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
	mu    sync.RWMutex
)

// Logger is the structured logging surface used across the project. It is
// satisfied by *zap.SugaredLogger.
type Logger interface {
	Infow(msg string, keysAndValues ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Fatalw(msg string, keysAndValues ...interface{})
	Sync() error
}

type noopLogger struct{}

func (n noopLogger) Infow(msg string, keysAndValues ...interface{})  {}
func (n noopLogger) Debugw(msg string, keysAndValues ...interface{}) {}
func (n noopLogger) Warnw(msg string, keysAndValues ...interface{})  {}
func (n noopLogger) Errorw(msg string, keysAndValues ...interface{}) {}
func (n noopLogger) Fatalw(msg string, keysAndValues ...interface{}) {}
func (n noopLogger) Sync() error                                     { return nil }

// current starts as a noop so packages can log before main calls Init.
var current Logger = noopLogger{}

// Init builds the JSON zap logger from LOG_LEVEL and redirects the standard
// library logger into it. Safe to call more than once.
func Init() *zap.SugaredLogger {
	once.Do(func() {
		cfg := zap.Config{
			Encoding:         "json",
			EncoderConfig:    zap.NewProductionEncoderConfig(),
			OutputPaths:      []string{"stdout"},
			ErrorOutputPaths: []string{"stderr"},
		}
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.CallerKey = "caller"
		cfg.Level = zap.NewAtomicLevelAt(levelFromEnv(os.Getenv("LOG_LEVEL")))

		logger, err := cfg.Build(zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zap.ErrorLevel))
		if err != nil {
			logger = zap.NewNop()
		}
		_ = zap.RedirectStdLog(logger)
		sugar = logger.Sugar()
		SetLogger(sugar)
	})
	return sugar
}

func levelFromEnv(v string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// Sugar returns the sugared logger built by Init, or nil before Init.
func Sugar() *zap.SugaredLogger { return sugar }

// SetLogger replaces the package-level logger. Passing nil restores the Init
// logger, or the noop logger if Init has not run. Tests use this to capture
// output.
func SetLogger(l Logger) {
	mu.Lock()
	defer mu.Unlock()
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

// GetLogger returns the current Logger.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func Infow(msg string, keysAndValues ...interface{})  { GetLogger().Infow(msg, keysAndValues...) }
func Debugw(msg string, keysAndValues ...interface{}) { GetLogger().Debugw(msg, keysAndValues...) }
func Warnw(msg string, keysAndValues ...interface{})  { GetLogger().Warnw(msg, keysAndValues...) }
func Errorw(msg string, keysAndValues ...interface{}) { GetLogger().Errorw(msg, keysAndValues...) }

// FatalExitf logs at fatal level and exits with status 1. The exit happens
// even when a test logger is installed.
func FatalExitf(msg string, keysAndValues ...interface{}) {
	GetLogger().Fatalw(msg, keysAndValues...)
	os.Exit(1)
}

// Sync flushes any buffered log entries.
func Sync() error { return GetLogger().Sync() }

type ctxKeyType struct{}

// WithFields returns a context carrying the given key/value pairs, appended
// to any already present.
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

func mergeCtx(ctx context.Context, kv []interface{}) []interface{} {
	ctxFields := FromContext(ctx)
	if len(ctxFields) == 0 {
		return kv
	}
	merged := make([]interface{}, 0, len(ctxFields)+len(kv))
	merged = append(merged, ctxFields...)
	return append(merged, kv...)
}

// InfowCtx logs at info level with the fields attached to ctx prepended.
func InfowCtx(ctx context.Context, msg string, kv ...interface{}) {
	Infow(msg, mergeCtx(ctx, kv)...)
}

// DebugwCtx logs at debug level with the fields attached to ctx prepended.
func DebugwCtx(ctx context.Context, msg string, kv ...interface{}) {
	Debugw(msg, mergeCtx(ctx, kv)...)
}

// WarnwCtx logs at warn level with the fields attached to ctx prepended.
func WarnwCtx(ctx context.Context, msg string, kv ...interface{}) {
	Warnw(msg, mergeCtx(ctx, kv)...)
}

// UserFields returns canonical fields for an account. The email is never
// logged in full; only its domain is kept.
func UserFields(userID, email string) []interface{} {
	if email == "" {
		return []interface{}{"user.id", userID}
	}
	domain := ""
	if i := strings.LastIndex(email, "@"); i >= 0 {
		domain = email[i+1:]
	}
	return []interface{}{"user.id", userID, "user.email_domain", domain}
}

// TurnFields returns canonical fields for one conversation turn.
func TurnFields(correlationID, language string) []interface{} {
	return []interface{}{"correlation_id", correlationID, "language", language}
}

// AudioFields describes a PCM16 buffer: its byte size and the duration it
// represents at the given sample rate and channel count.
func AudioFields(bytes, sampleRate, channels int) []interface{} {
	durationMs := 0
	if sampleRate > 0 && channels > 0 {
		durationMs = (bytes / 2 / channels) * 1000 / sampleRate
	}
	return []interface{}{"bytes", bytes, "duration_ms", durationMs}
}
