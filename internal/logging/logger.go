// Package logging owns the process-wide zap logger. The edge emits one line
// per failed or notable request plus lifecycle events, all JSON on stderr so
// log shippers need no parsing rules.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	global *zap.Logger
)

func init() {
	// Until main installs a configured logger, log at info.
	global, _ = New("")
}

// New builds a JSON logger at the given level. The accepted names match what
// configuration validation allows; the empty string means info.
func New(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("logging: unknown level %q", level)
		}
		lvl = parsed
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	// Request failures are expected traffic here; stacktraces on every warn
	// would drown the useful fields.
	cfg.DisableStacktrace = true

	return cfg.Build(
		zap.AddCallerSkip(1), // report the caller of the package helpers, not the helpers
		zap.Fields(zap.String("service", "cmux-edge")),
	)
}

// Global returns the installed logger.
func Global() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// SetGlobal installs the logger the package helpers dispatch to.
func SetGlobal(l *zap.Logger) {
	mu.Lock()
	global = l
	mu.Unlock()
}

// Info logs at info level using the installed logger.
func Info(msg string, fields ...zap.Field) {
	Global().Info(msg, fields...)
}

// Warn logs at warn level using the installed logger.
func Warn(msg string, fields ...zap.Field) {
	Global().Warn(msg, fields...)
}

// Error logs at error level using the installed logger.
func Error(msg string, fields ...zap.Field) {
	Global().Error(msg, fields...)
}

// Debug logs at debug level using the installed logger.
func Debug(msg string, fields ...zap.Field) {
	Global().Debug(msg, fields...)
}

// With creates a child logger carrying additional fields.
func With(fields ...zap.Field) *zap.Logger {
	return Global().With(fields...)
}

// Sync flushes any buffered entries.
func Sync() {
	Global().Sync()
}
