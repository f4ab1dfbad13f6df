package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Leveled logger shared by the collab service.
// - thin facade over logrus so call sites stay printf-style
// - provides Debug/Info/Warn/Error/Fatal variants, Init(level) and WithFields

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// Fields is a set of structured key/value pairs attached to a log line.
type Fields = logrus.Fields

var (
	mu     sync.RWMutex
	logger = newBase()
	level  = LevelInfo
)

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02T15:04:05Z07:00"})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Init sets the global log level (case-insensitive: debug, info, warn, error, fatal).
// Call early during startup. Default level is Info.
func Init(l string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		level = LevelDebug
		logger.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		level = LevelWarn
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		level = LevelError
		logger.SetLevel(logrus.ErrorLevel)
	case "fatal":
		level = LevelFatal
		logger.SetLevel(logrus.FatalLevel)
	default:
		level = LevelInfo
		logger.SetLevel(logrus.InfoLevel)
	}
}

// SetJSON switches the output to JSON lines (used outside development).
func SetJSON(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	if enabled {
		logger.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

func base() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// WithFields returns an entry carrying the given fields, e.g.
// logger.WithFields(logger.Fields{"doc": id}).Infof("committed v%d", n)
func WithFields(f Fields) *logrus.Entry {
	return base().WithFields(f)
}

func Debugf(format string, v ...interface{}) { base().Debugf(format, v...) }
func Infof(format string, v ...interface{})  { base().Infof(format, v...) }
func Warnf(format string, v ...interface{})  { base().Warnf(format, v...) }
func Errorf(format string, v ...interface{}) { base().Errorf(format, v...) }

func Fatalf(format string, v ...interface{}) {
	base().Errorf(format, v...)
	os.Exit(1)
}

// Println kept for brief messages (maps to Info)
func Println(v ...interface{}) {
	base().Info(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func Debug(v string) { Debugf("%s", v) }
func Info(v string)  { Infof("%s", v) }
func Warn(v string)  { Warnf("%s", v) }
func Error(v string) { Errorf("%s", v) }

// LevelString returns the current level as text.
func LevelString() string {
	mu.RLock()
	defer mu.RUnlock()
	switch level {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	}
	return "info"
}
