package capture

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	captureDebugOutputOnce sync.Once
	captureDebugOutput     io.Writer = os.Stderr
)

func captureDebugEnabled() bool {
	return strings.TrimSpace(os.Getenv("AMBILIGHT_DEBUG")) == "1" ||
		strings.TrimSpace(os.Getenv("AMBILIGHT_CAPTURE_DEBUG")) == "1"
}

func captureDebugWriter() io.Writer {
	captureDebugOutputOnce.Do(func() {
		p := strings.TrimSpace(os.Getenv("AMBILIGHT_CAPTURE_DEBUG_FILE"))
		if p == "" {
			return
		}
		f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "ambilight capture debug log open failed: %v\n", err)
			return
		}
		captureDebugOutput = f
	})
	return captureDebugOutput
}

// captureDebugLogger is used when Options.Logger is nil.
func captureDebugLogger() zerolog.Logger {
	if !captureDebugEnabled() {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: captureDebugWriter(), TimeFormat: time.StampMicro}).
		Level(zerolog.DebugLevel).
		With().Timestamp().Str("component", "capture").Logger()
}

// captureShouldLog rate-limits repeated warnings to one per period.
func captureShouldLog(last *atomic.Int64, period time.Duration) bool {
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
