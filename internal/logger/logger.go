// Package logger owns the process-wide zap logger.  Components receive a
// *zap.Logger through their options and fall back to GetLogger().Named(...)
// when none is supplied.
package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	// Logger is the global logger for the application.
	Logger *zap.Logger
	mu     sync.RWMutex
)

// InitLogger builds the global logger for the given environment.  "dev" and
// "test" get a human-readable development config; anything else gets the
// JSON production config.  Calling it again is a no-op.
func InitLogger(env string) {
	mu.Lock()
	defer mu.Unlock()

	if Logger != nil {
		return
	}
	var err error
	switch env {
	case "dev", "development", "test":
		Logger, err = zap.NewDevelopment()
	default:
		Logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
}

// GetLogger returns the global logger, initializing a production logger if
// InitLogger has not been called yet.
func GetLogger() *zap.Logger {
	mu.RLock()
	l := Logger
	mu.RUnlock()
	if l != nil {
		return l
	}
	InitLogger("")
	mu.RLock()
	defer mu.RUnlock()
	return Logger
}

// ResetLogger flushes and drops the global logger.  Tests only.
func ResetLogger() {
	mu.Lock()
	defer mu.Unlock()
	if Logger != nil {
		_ = Logger.Sync()
	}
	Logger = nil
}

// Named is shorthand for GetLogger().Named(name), or l.Named(name) when l
// is non-nil.
func Named(l *zap.Logger, name string) *zap.Logger {
	if l == nil {
		l = GetLogger()
	}
	return l.Named(name)
}
