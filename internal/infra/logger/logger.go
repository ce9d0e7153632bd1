// internal/infra/logger/logger.go
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"password_expiry_notifier/internal/infra/config"
)

// Log is the global logger instance
var Log = logrus.New()

// Init initializes the global logger based on application configuration.
// It returns a closer for the optional log file; callers defer it.
func Init(cfg *config.AppConfig) (func() error, error) {
	Log.SetOutput(os.Stdout) // Default output

	// Set Log Level
	level, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		Log.Warnf("Invalid log level '%s', defaulting to 'info'. Error: %v", cfg.LogLevel, err)
		Log.SetLevel(logrus.InfoLevel)
	} else {
		Log.SetLevel(level)
	}

	// Set Log Formatter
	if cfg.Environment == "production" || cfg.Environment == "staging" {
		Log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00", // ISO8601
		})
	} else {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	closer := func() error { return nil }
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return closer, fmt.Errorf("failed to open log file %s: %w", cfg.LogFile, err)
		}
		Log.AddHook(NewFileHook(f, filepath.Base(os.Args[0])))
		closer = f.Close
	}

	Log.Info("Logger initialized successfully.")
	Log.Debugf("Log level set to: %s", Log.GetLevel().String())
	Log.Debugf("Log format set for environment: %s", cfg.Environment)
	return closer, nil
}

// Get returns the configured global logger.
func Get() *logrus.Logger {
	return Log
}

// FileHook mirrors every entry to w in CMTrace format.
type FileHook struct {
	w         io.Writer
	formatter *CMTraceFormatter
}

func NewFileHook(w io.Writer, component string) *FileHook {
	return &FileHook{w: w, formatter: &CMTraceFormatter{Component: component}}
}

func (h *FileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *FileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.w.Write(line)
	return err
}

// CMTraceFormatter renders entries the way the Configuration Manager log viewer parses them.
type CMTraceFormatter struct {
	Component string
}

func (f *CMTraceFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	msg := entry.Message
	if len(entry.Data) > 0 {
		var fields []string
		for k, v := range entry.Data {
			fields = append(fields, fmt.Sprintf("%s=%v", k, v))
		}
		sort.Strings(fields)
		msg += " " + strings.Join(fields, " ")
	}

	t := entry.Time
	_, offset := t.Zone()
	line := fmt.Sprintf(`<![LOG[%s]LOG]!><time="%s%+04d" date="%s" component="%s" context="" type="%d" thread="%d" file="">`+"\n",
		msg,
		t.Format("15:04:05.000"),
		-offset/60, // bias in minutes, sign inverted as in the Windows time zone API
		t.Format("01-02-2006"),
		f.Component,
		severity(entry.Level),
		os.Getpid(),
	)
	return []byte(line), nil
}

func severity(l logrus.Level) int {
	switch l {
	case logrus.WarnLevel:
		return 2
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return 3
	default:
		return 1
	}
}
