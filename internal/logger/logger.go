// Package logger provides leveled logging for the daemon. Messages go to
// stdout by default, or to a rotating log file after Init.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/chupacca/pcmatrix/internal/config"
)

const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	// LevelOff is above every level that is ever logged.
	LevelOff = slog.Level(12)
)

var (
	mu                   sync.Mutex
	defaultLoggerFactory *loggerFactory
	defaultLogger        *slog.Logger
)

type loggerFactory struct {
	// If nil, log to stdout. Otherwise, log to this file.
	file            io.WriteCloser
	format          string
	level           config.LogSeverity
	logRotateConfig config.LogRotateConfig
}

func init() {
	defaultLoggerFactory = &loggerFactory{
		format:          "text",
		level:           config.INFO,
		logRotateConfig: config.DefaultLogRotateConfig(),
	}
	defaultLogger = defaultLoggerFactory.newLogger()
}

// Init points the default logger at the configured output, format and
// severity. An empty file path keeps logging on stdout.
func Init(c config.LoggingConfig) error {
	f := &loggerFactory{
		format:          c.Format,
		level:           c.Severity,
		logRotateConfig: c.LogRotate,
	}
	if c.FilePath != "" {
		// Fail now rather than on the first write.
		probe, err := os.OpenFile(c.FilePath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		probe.Close()

		f.file = f.rotatingFile(c.FilePath)
	}

	mu.Lock()
	defer mu.Unlock()
	closeLocked()
	defaultLoggerFactory = f
	defaultLogger = f.newLogger()
	return nil
}

func (f *loggerFactory) rotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    f.logRotateConfig.MaxFileSizeMB,
		MaxBackups: f.logRotateConfig.BackupFileCount,
		Compress:   f.logRotateConfig.Compress,
	}
}

// Close closes the log file when necessary.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
}

func closeLocked() {
	if f := defaultLoggerFactory.file; f != nil {
		f.Close()
		defaultLoggerFactory.file = nil
		defaultLogger = defaultLoggerFactory.newLogger()
	}
}

func (f *loggerFactory) writer() io.Writer {
	if f.file != nil {
		return f.file
	}
	return os.Stdout
}

func (f *loggerFactory) newLogger() *slog.Logger {
	programLevel := new(slog.LevelVar)
	setLoggingLevel(f.level, programLevel)
	return slog.New(f.createJsonOrTextHandler(f.writer(), programLevel))
}

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, programLevel *slog.LevelVar) slog.Handler {
	if f.format == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       programLevel,
			ReplaceAttr: jsonReplaceAttr,
		})
	}
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       programLevel,
		ReplaceAttr: textReplaceAttr,
	})
}

func log(level slog.Level, format string, v ...interface{}) {
	mu.Lock()
	l := defaultLogger
	mu.Unlock()
	if !l.Enabled(context.Background(), level) {
		return
	}
	l.Log(context.Background(), level, fmt.Sprintf(format, v...))
}

// Tracef prints the message with TRACE severity in the specified format.
func Tracef(format string, v ...interface{}) {
	log(LevelTrace, format, v...)
}

// Debugf prints the message with DEBUG severity in the specified format.
func Debugf(format string, v ...interface{}) {
	log(LevelDebug, format, v...)
}

// Infof prints the message with INFO severity in the specified format.
func Infof(format string, v ...interface{}) {
	log(LevelInfo, format, v...)
}

// Warnf prints the message with WARNING severity in the specified format.
func Warnf(format string, v ...interface{}) {
	log(LevelWarn, format, v...)
}

// Errorf prints the message with ERROR severity in the specified format.
func Errorf(format string, v ...interface{}) {
	log(LevelError, format, v...)
}

func setLoggingLevel(level config.LogSeverity, programLevel *slog.LevelVar) {
	// logs having severity >= the configured value will be logged.
	switch level {
	case config.TRACE:
		programLevel.Set(LevelTrace)
	case config.DEBUG:
		programLevel.Set(LevelDebug)
	case config.INFO:
		programLevel.Set(LevelInfo)
	case config.WARNING:
		programLevel.Set(LevelWarn)
	case config.ERROR:
		programLevel.Set(LevelError)
	case config.OFF:
		programLevel.Set(LevelOff)
	}
}

func severityName(l slog.Level) string {
	switch {
	case l < LevelDebug:
		return config.TRACE
	case l < LevelInfo:
		return config.DEBUG
	case l < LevelWarn:
		return config.INFO
	case l < LevelError:
		return config.WARNING
	default:
		return config.ERROR
	}
}

func textReplaceAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.TimeKey:
		return slog.String("time", a.Value.Time().Format("02/01/2006 15:04:05.000000"))
	case slog.LevelKey:
		return slog.String("severity", severityName(a.Value.Any().(slog.Level)))
	case slog.MessageKey:
		a.Key = "message"
	}
	return a
}

func jsonReplaceAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.TimeKey:
		t := a.Value.Time()
		return slog.Group("timestamp", slog.Int64("seconds", t.Unix()), slog.Int("nanos", t.Nanosecond()))
	case slog.LevelKey:
		return slog.String("severity", severityName(a.Value.Any().(slog.Level)))
	case slog.MessageKey:
		a.Key = "message"
	}
	return a
}
