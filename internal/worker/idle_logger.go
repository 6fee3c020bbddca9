package worker

import (
	"time"

	"go.uber.org/zap"
)

// idleLogger throttles the "still alive, nothing to do" line so an idle fleet
// doesn't flood the log collector. Not safe for concurrent use; the loop is
// single-threaded.
type idleLogger struct {
	logger   *zap.Logger
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

func newIdleLogger(logger *zap.Logger, interval time.Duration) *idleLogger {
	return &idleLogger{logger: logger, interval: interval, now: time.Now}
}

// Log emits msg at most once per interval; suppressed calls are dropped.
func (l *idleLogger) Log(msg string) {
	now := l.now()
	if !l.last.IsZero() && now.Sub(l.last) < l.interval {
		return
	}
	l.last = now
	l.logger.Info(msg)
}
