package gpucount

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/gpucount/internal/gpu"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	l := newNopLogger()
	loggerPtr.Store(l)
}

// SetLogger configures the logger for gpucount and its GPU layer.
// By default, gpucount produces no log output. Pass nil to restore the
// silent default.
//
// Log levels used by gpucount:
//   - [slog.LevelDebug]: kernel parameters, buffer sizes, dispatch grids
//   - [slog.LevelInfo]: device selection, phase timings
//   - [slog.LevelWarn]: GPU and CPU counts disagree beyond tolerance
//
// Example:
//
//	gpucount.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	gpu.SetLogger(l)
}

// Logger returns the current logger used by gpucount.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
