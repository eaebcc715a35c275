// Package telemetry reports Internal-kind errors to Sentry when
// the workspace has opted in. It is deliberately inert by default: an editor
// plugin must never phone home without explicit configuration.
package telemetry

import (
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/Biometria-se/grizzly-lsp/internal/errs"
)

var (
	mu      sync.RWMutex
	enabled bool
)

// Options configures crash reporting.
type Options struct {
	Enabled bool
	DSN     string
	Release string
}

// Init configures (or disables) Sentry reporting. Safe to call more than
// once, e.g. on config reload.
func Init(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	if !opts.Enabled || opts.DSN == "" {
		enabled = false
		return nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:     opts.DSN,
		Release: opts.Release,
	}); err != nil {
		return err
	}
	enabled = true
	return nil
}

// Capture reports an Internal-kind error. No-op when telemetry is disabled.
func Capture(err *errs.Error) {
	mu.RLock()
	on := enabled
	mu.RUnlock()

	if !on || err == nil || err.Kind != errs.Internal {
		return
	}
	sentry.CaptureException(err)
}

// Flush waits up to the given budget for queued events to send.
func Flush() {
	mu.RLock()
	on := enabled
	mu.RUnlock()
	if on {
		sentry.Flush(2 * time.Second)
	}
}
