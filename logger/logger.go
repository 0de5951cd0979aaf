package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
)

type Logger struct {
	entry *logrus.Entry
	base  *logrus.Logger
	file  *os.File
	mu    sync.Mutex
}

// Options control where and how much the logger writes
type Options struct {
	Level string
	File  string
	Out   io.Writer
}

// New builds a logger. When File is set, output goes to both Out
// (stderr by default) and the file, which is created along with its directory.
func New(opts Options) (*Logger, error) {
	base := logrus.New()
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "02-01-06:15:04:05",
	})

	level := opts.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	base.SetLevel(lvl)

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	l := &Logger{base: base}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = file
		out = io.MultiWriter(out, file)
	}
	base.SetOutput(out)
	l.entry = logrus.NewEntry(base)

	return l, nil
}

// Close releases the log file, if any
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// With returns a child logger that always carries the given fields
func (l *Logger) With(props map[string]interface{}) *Logger {
	return &Logger{
		entry: l.entry.WithFields(logrus.Fields(props)),
		base:  l.base,
	}
}

func (l *Logger) fields(props []map[string]interface{}) *logrus.Entry {
	entry := l.entry
	// Skip logger frames so location points at the caller
	if pc, file, line, ok := runtime.Caller(2); ok {
		fn := "unknown"
		if f := runtime.FuncForPC(pc); f != nil {
			fn = filepath.Base(f.Name())
		}
		entry = entry.WithFields(logrus.Fields{
			"location": fmt.Sprintf("%s:%d", filepath.Base(file), line),
			"function": fn,
		})
	}
	if len(props) > 0 && props[0] != nil {
		entry = entry.WithFields(logrus.Fields(props[0]))
	}
	return entry
}

func (l *Logger) Info(msg string, props ...map[string]interface{}) {
	l.fields(props).Info(msg)
}

func (l *Logger) Warn(msg string, props ...map[string]interface{}) {
	l.fields(props).Warn(msg)
}

func (l *Logger) Error(msg string, props ...map[string]interface{}) {
	l.fields(props).Error(msg)
}

func (l *Logger) Debug(msg string, props ...map[string]interface{}) {
	l.fields(props).Debug(msg)
}
