// Package log provides the leveled logging sink used throughout the tracer.
// The process-wide logger implementation is an external collaborator: this
// package only defines the contract (the Logger interface) and a reasonable
// standard-library default so the module is usable stand-alone.
package log

import (
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Level represents a log severity.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Logger is the contract the tracer uses to emit diagnostics. Callers may
// supply their own implementation via UseLogger.
type Logger interface {
	Log(msg string)
}

type stdLogger struct{ l *log.Logger }

func (s *stdLogger) Log(msg string) { s.l.Print(msg) }

var (
	mu      sync.RWMutex
	logger  Logger = &stdLogger{l: log.New(os.Stderr, "", log.LstdFlags)}
	level   atomic.Int32
	onceMap sync.Map // key -> *sync.Once, used by the *Once variants
)

func init() { level.Store(int32(LevelWarn)) }

// UseLogger sets l as the process-wide logger; a nil l is ignored. The
// assignment is guarded by a lock, so it is safe to call concurrently with
// logging calls.
func UseLogger(l Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		return
	}
	logger = l
}

// SetLevel adjusts the minimum level that will be emitted.
func SetLevel(lvl Level) { level.Store(int32(lvl)) }

// CurrentLevel returns the minimum level currently being emitted.
func CurrentLevel() Level { return Level(level.Load()) }

func logf(lvl Level, format string, args ...interface{}) {
	if lvl < CurrentLevel() {
		return
	}
	mu.RLock()
	l := logger
	mu.RUnlock()
	msg := fmt.Sprintf("%s [%s] %s", time.Now().Format(time.RFC3339), lvl, fmt.Sprintf(format, args...))
	l.Log(msg)
}

func Debug(format string, args ...interface{}) { logf(LevelDebug, format, args...) }
func Info(format string, args ...interface{})  { logf(LevelInfo, format, args...) }
func Warn(format string, args ...interface{})  { logf(LevelWarn, format, args...) }
func Error(format string, args ...interface{}) { logf(LevelError, format, args...) }

// WarnOnce logs the given message under key only the first time key is seen,
// preventing log floods from a hot path (e.g. a propagation error on every
// request). Mirrors the legacy tracer's error-summarization behavior.
func WarnOnce(key, format string, args ...interface{}) {
	onceIface, _ := onceMap.LoadOrStore(key, &sync.Once{})
	once := onceIface.(*sync.Once)
	once.Do(func() {
		logf(LevelWarn, format, args...)
	})
}
