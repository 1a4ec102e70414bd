// Package logging sets up the process-wide slog logger. SCREENPUMP_DEBUG=1
// lowers the level to debug and SCREENPUMP_DEBUG_FILE sends every line to an
// append-only file instead of stderr.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	EnvDebug     = "SCREENPUMP_DEBUG"
	EnvDebugFile = "SCREENPUMP_DEBUG_FILE"
)

var (
	outputOnce sync.Once
	output     io.Writer = os.Stderr
)

// DebugEnabled reports whether SCREENPUMP_DEBUG is set to 1.
func DebugEnabled() bool {
	return strings.TrimSpace(os.Getenv(EnvDebug)) == "1"
}

// Output returns the writer log lines go to. The debug file is opened at most
// once per process; if it cannot be opened the logger stays on stderr.
func Output() io.Writer {
	outputOnce.Do(func() {
		p := strings.TrimSpace(os.Getenv(EnvDebugFile))
		if p == "" {
			return
		}
		f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "screenpump debug log open failed: %v\n", err)
			return
		}
		output = f
	})
	return output
}

// New builds a text logger writing to w. debug forces the debug level.
func New(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Setup installs the default logger from the environment. verbose forces the
// debug level even when SCREENPUMP_DEBUG is unset.
func Setup(verbose bool) *slog.Logger {
	log := New(Output(), verbose || DebugEnabled())
	slog.SetDefault(log)
	return log
}

// Component returns the default logger tagged with a component name.
func Component(name string) *slog.Logger {
	return slog.Default().With("component", name)
}

// Discard is a logger that drops everything, for tests and library callers
// that pass no logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ShouldLog rate-limits a repeating log line to one per period. last holds
// the unix-nano time of the previous accepted call and is shared by every
// caller that logs the same event.
func ShouldLog(last *atomic.Int64, period time.Duration) bool {
	if last == nil || period <= 0 {
		return true
	}

	now := time.Now().UnixNano()
	for {
		prev := last.Load()
		if prev != 0 && time.Duration(now-prev) < period {
			return false
		}
		if last.CompareAndSwap(prev, now) {
			return true
		}
	}
}
