package parallax

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/parallax/kernelcache"
	"github.com/gogpu/parallax/spirv"
)

// nopHandler is a slog.Handler that silently discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

func logger() *slog.Logger { return loggerPtr.Load() }

// SetLogger configures the logger for parallax and all its sub-packages.
// By default, parallax produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by parallax:
//   - [slog.LevelDebug]: section sizes, id bounds, cache hits and misses
//   - [slog.LevelWarn]: fallback representations for unsupported types
//
// Example:
//
//	parallax.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
	spirv.SetLogger(l)
	kernelcache.SetLogger(l)
}

// Logger returns the current logger.
func Logger() *slog.Logger { return logger() }
