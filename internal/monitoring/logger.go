// Package monitoring provides the process-wide diagnostic logger and a
// throttled variant for conditions that recur every poll cycle.
package monitoring

import (
	"log"
	"sync"
	"time"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Throttle rate-limits repeated log messages keyed by format string. A
// not-ready pipeline polls many times per second; without throttling the same
// warning would flood the log.
type Throttle struct {
	interval time.Duration

	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

// NewThrottle returns a Throttle that emits each distinct format string at
// most once per interval. A zero interval defaults to one second.
func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		interval = time.Second
	}
	return &Throttle{
		interval: interval,
		last:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Logf logs through the package logger unless the same format string was
// logged within the throttle interval.
func (t *Throttle) Logf(format string, v ...interface{}) {
	t.mu.Lock()
	now := t.now()
	if prev, ok := t.last[format]; ok && now.Sub(prev) < t.interval {
		t.mu.Unlock()
		return
	}
	t.last[format] = now
	t.mu.Unlock()

	Logf(format, v...)
}
