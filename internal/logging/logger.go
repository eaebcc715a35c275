// Package logging provides the structured logger used across grizzly-ls.
// The LSP stdio channel carries protocol traffic only, so all logging goes
// to stderr and, optionally, to a workspace-relative log file.
package logging

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	global *zap.Logger = zap.NewNop()
)

// Options configures the process-wide logger.
type Options struct {
	// Verbose enables debug-level logging (--verbose).
	Verbose bool
	// Workspace, when non-empty, causes a plain-text mirror to be written to
	// <Workspace>/grizzly-ls.log.
	Workspace string
}

// Init builds and installs the global logger. It is safe to call more than
// once (e.g. on config reload); the previous logger is replaced, not leaked
// (callers are expected to have flushed it via Sync beforehand).
func Init(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var consoleEncoder zapcore.Encoder
	if isatty.IsTerminal(os.Stderr.Fd()) {
		cfg := zap.NewDevelopmentEncoderConfig()
		consoleEncoder = zapcore.NewConsoleEncoder(cfg)
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), level),
	}

	if opts.Workspace != "" {
		logPath := filepath.Join(opts.Workspace, "grizzly-ls.log")
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			fileEncoder := zapcore.NewJSONEncoder(encoderCfg)
			cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(f), level))
		}
	}

	logger := zap.New(zapcore.NewTee(cores...))

	mu.Lock()
	global = logger
	mu.Unlock()

	return logger, nil
}

// L returns the current global logger. Safe for concurrent use.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Sync flushes the global logger's sinks.
func Sync() {
	_ = L().Sync()
}

// Named returns a child logger scoped to a subsystem, e.g. logging.Named("inventory").
func Named(name string) *zap.Logger {
	return L().Named(name)
}
