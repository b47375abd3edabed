//go:build !nogpu

package gpu

import (
	"log/slog"
	"sync/atomic"
)

// logger receives offloader diagnostics. It discards everything until
// normalmap.SetLogger reaches ReflectOffloader.SetLogger.
var logger atomic.Pointer[slog.Logger]

func init() { setLogger(nil) }

func slogger() *slog.Logger { return logger.Load() }

func setLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	logger.Store(l)
}
