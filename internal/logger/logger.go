// Package logger provides the process-wide structured logger used by all
// components. It is a thin package-level wrapper around zap so call sites
// stay terse (logger.Infof, logger.Errorf) while output remains structured.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log *zap.SugaredLogger
)

func init() {
	// Safe default so packages can log before Initialize runs (tests).
	log = newLogger("info", false).Sugar()
}

// Initialize configures the global logger. level is one of debug, info,
// warn, error. When unstructured is true a human-readable console encoder
// is used instead of JSON.
func Initialize(level string, unstructured bool) {
	mu.Lock()
	defer mu.Unlock()
	log = newLogger(level, unstructured).Sugar()
}

func newLogger(level string, unstructured bool) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if unstructured {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	// Log to stderr to keep stdout clean for command output.
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), lvl)
	return zap.New(core)
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Debug logs a message at debug level.
func Debug(args ...any) { current().Debug(args...) }

// Info logs a message at info level.
func Info(args ...any) { current().Info(args...) }

// Warn logs a message at warn level.
func Warn(args ...any) { current().Warn(args...) }

// Error logs a message at error level.
func Error(args ...any) { current().Error(args...) }

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) { current().Debugf(format, args...) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) { current().Infof(format, args...) }

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) { current().Warnf(format, args...) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { current().Errorf(format, args...) }

// Infow logs a message with structured key-value pairs at info level.
func Infow(msg string, keysAndValues ...any) { current().Infow(msg, keysAndValues...) }

// Errorw logs a message with structured key-value pairs at error level.
func Errorw(msg string, keysAndValues ...any) { current().Errorw(msg, keysAndValues...) }
