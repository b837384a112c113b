package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

type LogLevel int

const (
	TRACE LogLevel = 5
	DEBUG LogLevel = 10
	INFO  LogLevel = 20
	WARN  LogLevel = 30
	ERROR LogLevel = 40
)

var levelPrefixes = map[LogLevel]string{
	TRACE: "TRACE ",
	DEBUG: "DEBUG ",
	INFO:  "INFO  ",
	WARN:  "WARN  ",
	ERROR: "ERROR ",
}

var (
	mu       sync.RWMutex
	outputs  map[LogLevel]*log.Logger
	minLevel LogLevel = TRACE
	closer   io.Closer
)

// Init directs every log level at or above level to w. A nil writer
// disables logging. If w is also an io.Closer other than stdout/stderr, it
// is closed on the next Init.
func Init(w io.Writer, level LogLevel) error {
	mu.Lock()
	defer mu.Unlock()

	if closer != nil {
		if err := closer.Close(); err != nil {
			return err
		}
		closer = nil
	}
	outputs = nil
	minLevel = level
	if w == nil {
		return nil
	}
	if c, ok := w.(io.Closer); ok && w != os.Stdout && w != os.Stderr {
		closer = c
	}
	flags := log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile
	outputs = make(map[LogLevel]*log.Logger, len(levelPrefixes))
	for lvl, prefix := range levelPrefixes {
		outputs[lvl] = log.New(w, prefix, flags)
	}
	return nil
}

// InitFile opens (appending) the given path and logs to it
func InitFile(path string, level LogLevel) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	return Init(f, level)
}

func ParseLevel(value string) (LogLevel, error) {
	switch strings.ToLower(value) {
	case "trace":
		return TRACE, nil
	case "debug":
		return DEBUG, nil
	case "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "err", "error":
		return ERROR, nil
	}
	return 0, fmt.Errorf("%s: invalid log level", value)
}

// ErrorLogger returns a *log.Logger for libraries which want one
func ErrorLogger() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if l, ok := outputs[ERROR]; ok {
		return l
	}
	return log.New(io.Discard, "", log.LstdFlags)
}

type Logger interface {
	Tracef(string, ...any)
	Debugf(string, ...any)
	Infof(string, ...any)
	Warnf(string, ...any)
	Errorf(string, ...any)
}

type logger struct {
	name      string
	calldepth int
}

// NewLogger returns a logger prefixing every message with [name]
func NewLogger(name string, calldepth int) Logger {
	return &logger{name: name, calldepth: calldepth}
}

func (l *logger) output(level LogLevel, message string, args ...any) {
	mu.RLock()
	out, ok := outputs[level]
	enabled := ok && level >= minLevel
	mu.RUnlock()
	if !enabled {
		return
	}
	if len(args) > 0 {
		message = fmt.Sprintf(message, args...)
	}
	if l.name != "" {
		message = fmt.Sprintf("[%s] %s", l.name, message)
	}
	out.Output(l.calldepth, message) //nolint:errcheck // we can't do anything with what we log
}

func (l *logger) Tracef(message string, args ...any) {
	l.output(TRACE, message, args...)
}

func (l *logger) Debugf(message string, args ...any) {
	l.output(DEBUG, message, args...)
}

func (l *logger) Infof(message string, args ...any) {
	l.output(INFO, message, args...)
}

func (l *logger) Warnf(message string, args ...any) {
	l.output(WARN, message, args...)
}

func (l *logger) Errorf(message string, args ...any) {
	l.output(ERROR, message, args...)
}

var root = logger{calldepth: 4}

func Tracef(message string, args ...any) {
	root.Tracef(message, args...)
}

func Debugf(message string, args ...any) {
	root.Debugf(message, args...)
}

func Infof(message string, args ...any) {
	root.Infof(message, args...)
}

func Warnf(message string, args ...any) {
	root.Warnf(message, args...)
}

func Errorf(message string, args ...any) {
	root.Errorf(message, args...)
}
