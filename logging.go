//go:build linux || darwin

package reactor

import (
	"github.com/joeycumines/logiface"
)

// logDebug/logInfo/logWarn/logError form a tiny nil-safe wrapper around
// the optional structured logger,
// so the rest of the package can call l.logDebug(...) without guarding
// against a nil Logger at every call site (mirrors the teacher's
// no-op-logger-by-default convention).

func (l *Loop) logDebug(msg string, fields ...any) {
	l.logAt(logiface.LevelDebug, msg, fields...)
}

func (l *Loop) logInfo(msg string, fields ...any) {
	l.logAt(logiface.LevelInformational, msg, fields...)
}

func (l *Loop) logWarn(msg string, fields ...any) {
	l.logAt(logiface.LevelWarning, msg, fields...)
}

func (l *Loop) logError(msg string, fields ...any) {
	l.logAt(logiface.LevelError, msg, fields...)
}

// logAt builds and emits one event at the given level. fields is a flat
// key, value, key, value... sequence; malformed trailing keys are
// dropped rather than panicking, since logging must never be able to
// crash the loop.
func (l *Loop) logAt(level logiface.Level, msg string, fields ...any) {
	if l.logger == nil {
		return
	}
	b := l.logger.Build(level)
	if b == nil || !b.Enabled() {
		return
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		b = b.Any(key, fields[i+1])
	}
	b.Log(msg)
}
