// Package logging provides global logging functions for voicenav.
// Use dot import to access L_info, L_error, etc. directly.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Log levels
const (
	LevelFatal = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

var (
	logger *log.Logger
	mu     sync.Mutex
	trace  bool
)

// Options holds logging configuration
type Options struct {
	Level      int
	Format     string // text, json, logfmt
	TimeFormat string
	ShowCaller bool
	Output     io.Writer
}

// DefaultOptions returns sensible defaults
func DefaultOptions() *Options {
	return &Options{
		Level:      LevelInfo,
		Format:     "text",
		TimeFormat: "15:04:05",
		ShowCaller: false,
	}
}

// ParseLevel maps a level name to one of the Level constants.
// Unknown names map to LevelInfo.
func ParseLevel(name string) int {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Init (re)initializes the global logger.
func Init(cfg *Options) {
	if cfg == nil {
		cfg = DefaultOptions()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	l := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		TimeFormat:      cfg.TimeFormat,
		ReportCaller:    cfg.ShowCaller,
		CallerOffset:    2, // logMsg -> L_* -> caller
	})

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(log.JSONFormatter)
	case "logfmt":
		l.SetFormatter(log.LogfmtFormatter)
	default:
		l.SetFormatter(log.TextFormatter)
	}

	mu.Lock()
	logger = l
	mu.Unlock()
	SetLevel(cfg.Level)
}

func current() *log.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		mu.Unlock()
		Init(nil)
		mu.Lock()
	}
	return logger
}

// hasFmtVerb checks if a string contains printf-style format verbs
func hasFmtVerb(s string) bool {
	for i := 0; i < len(s)-1; i++ {
		if s[i] == '%' {
			next := s[i+1]
			if next != '%' && strings.ContainsRune("vsdtfgeopqxXbcUT+#", rune(next)) {
				return true
			}
		}
	}
	return false
}

// logMsg handles the flexible logging format:
// - logMsg(level, "message") -> simple
// - logMsg(level, "value is %d", 42) -> printf
// - logMsg(level, "loaded", "key", val, ...) -> structured
func logMsg(level log.Level, msg string, args ...interface{}) {
	l := current()

	var keyvals []interface{}
	if len(args) > 0 {
		if hasFmtVerb(msg) {
			msg = fmt.Sprintf(msg, args...)
		} else {
			keyvals = args
		}
	}

	switch level {
	case log.DebugLevel:
		l.Debug(msg, keyvals...)
	case log.InfoLevel:
		l.Info(msg, keyvals...)
	case log.WarnLevel:
		l.Warn(msg, keyvals...)
	case log.ErrorLevel:
		l.Error(msg, keyvals...)
	case log.FatalLevel:
		l.Fatal(msg, keyvals...)
	}
}

// L_trace logs at trace level. Only emitted when the level is LevelTrace.
func L_trace(msg string, args ...interface{}) {
	mu.Lock()
	on := trace
	mu.Unlock()
	if on {
		logMsg(log.DebugLevel, msg, args...)
	}
}

// L_debug logs at debug level
func L_debug(msg string, args ...interface{}) {
	logMsg(log.DebugLevel, msg, args...)
}

// L_info logs at info level
func L_info(msg string, args ...interface{}) {
	logMsg(log.InfoLevel, msg, args...)
}

// L_warn logs at warn level
func L_warn(msg string, args ...interface{}) {
	logMsg(log.WarnLevel, msg, args...)
}

// L_error logs at error level
func L_error(msg string, args ...interface{}) {
	logMsg(log.ErrorLevel, msg, args...)
}

// L_fatal logs at fatal level and exits
func L_fatal(msg string, args ...interface{}) {
	logMsg(log.FatalLevel, msg, args...)
}

// L_object logs a value as indented JSON at debug level
func L_object(msg string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logMsg(log.DebugLevel, msg, "object", fmt.Sprintf("%+v", v))
		return
	}
	logMsg(log.DebugLevel, msg+"\n"+string(data))
}

// L_elapsed logs with elapsed time since start
func L_elapsed(start time.Time, msg string, args ...interface{}) {
	args = append(args, "elapsed", time.Since(start).String())
	logMsg(log.InfoLevel, msg, args...)
}

// SetLevel changes the log level at runtime
func SetLevel(level int) {
	l := current()
	mu.Lock()
	trace = level == LevelTrace
	mu.Unlock()
	switch level {
	case LevelTrace, LevelDebug:
		l.SetLevel(log.DebugLevel)
	case LevelInfo:
		l.SetLevel(log.InfoLevel)
	case LevelWarn:
		l.SetLevel(log.WarnLevel)
	case LevelError, LevelFatal:
		l.SetLevel(log.ErrorLevel)
	}
}
