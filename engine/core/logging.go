package core

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var once sync.Once

type logger struct {
	*log.Logger
	file *lumberjack.Logger
}

var singleton *logger

func getLogger() *logger {
	once.Do(func() {
		singleton = &logger{Logger: newLogger(os.Stderr)}
		singleton.SetLevel(log.DebugLevel)
	})
	return singleton
}

func newLogger(w io.Writer) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		CallerOffset:    1,
		Prefix:          "Anima 🎨 ",
	})
}

// LogFileOptions configures the rotating file sink.
type LogFileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// ConfigureLogging sets the level (debug, info, warn, error) and, when
// file.Path is set, mirrors every record into a rotating log file.
func ConfigureLogging(level string, file LogFileOptions) error {
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}
	l := getLogger()
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
	if file.Path != "" {
		l.file = &lumberjack.Logger{
			Filename:   file.Path,
			MaxSize:    file.MaxSizeMB,
			MaxBackups: file.MaxBackups,
			MaxAge:     file.MaxAgeDays,
			Compress:   file.Compress,
			LocalTime:  true,
		}
		l.Logger = newLogger(io.MultiWriter(os.Stderr, l.file))
	} else {
		l.Logger = newLogger(os.Stderr)
	}
	l.SetLevel(lvl)
	return nil
}

// SetLogOutput redirects the logger, mostly useful in tests.
func SetLogOutput(w io.Writer) {
	l := getLogger()
	lvl := l.GetLevel()
	l.Logger = newLogger(w)
	l.SetLevel(lvl)
}

// CloseLogging flushes and closes the file sink if any.
func CloseLogging() error {
	l := getLogger()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func LogDebug(msg string, args ...interface{}) {
	getLogger().Debugf(msg, args...)
}

func LogInfo(msg string, args ...interface{}) {
	getLogger().Infof(msg, args...)
}

func LogWarn(msg string, args ...interface{}) {
	getLogger().Warnf(msg, args...)
}

func LogError(msg string, args ...interface{}) {
	getLogger().Errorf(msg, args...)
}

func LogFatal(msg string, args ...interface{}) {
	getLogger().Fatalf(msg, args...)
}
