// internal/evlog/evlog.go

package evlog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Level is the severity of an event, most severe first.
type Level int

const (
	Emerg Level = iota
	Alert
	Crit
	Err
	Warning
	Notice
	Info
	Debug
)

func (l Level) String() string {
	switch l {
	case Emerg:
		return "EMERG"
	case Alert:
		return "ALERT"
	case Crit:
		return "CRIT"
	case Err:
		return "ERR"
	case Warning:
		return "WARNING"
	case Notice:
		return "NOTICE"
	case Info:
		return "INFO"
	case Debug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a level name (case-insensitive) to a Level.
func ParseLevel(s string) (Level, bool) {
	for l := Emerg; l <= Debug; l++ {
		if strings.EqualFold(s, l.String()) {
			return l, true
		}
	}
	return Info, false
}

// Logger writes one line per event at or above its threshold.
type Logger struct {
	mu    sync.Mutex
	w     io.Writer
	level Level
}

// New creates a logger writing to w. A nil w discards everything.
func New(w io.Writer, level Level) *Logger {
	if w == nil {
		w = io.Discard
	}
	return &Logger{w: w, level: level}
}

var std = New(os.Stderr, Info)

// Default returns the process-wide logger.
func Default() *Logger { return std }

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) {
	if l != nil {
		std = l
	}
}

// SetLevel changes the threshold.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// Enabled reports whether events at level would be written.
func (l *Logger) Enabled(level Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level <= l.level
}

// Logf writes a formatted event at level.
func (l *Logger) Logf(level Level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level > l.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(l.w, "%-7s %s\n", level, strings.TrimRight(msg, "\n"))
}

func (l *Logger) Emergf(format string, args ...any)   { l.Logf(Emerg, format, args...) }
func (l *Logger) Errorf(format string, args ...any)   { l.Logf(Err, format, args...) }
func (l *Logger) Warningf(format string, args ...any) { l.Logf(Warning, format, args...) }
func (l *Logger) Noticef(format string, args ...any)  { l.Logf(Notice, format, args...) }
func (l *Logger) Infof(format string, args ...any)    { l.Logf(Info, format, args...) }
func (l *Logger) Debugf(format string, args ...any)   { l.Logf(Debug, format, args...) }
