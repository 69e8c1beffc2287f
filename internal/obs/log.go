package obs

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	loggerOnce sync.Once
	logger     *logrus.Logger
)

// LogConfig selects level and an optional rotating log file. Stdout is
// always written.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger returns the shared structured logger used across the service.
func Logger() *logrus.Logger {
	loggerOnce.Do(func() {
		logger = logrus.New()
		logger.SetOutput(os.Stdout)
		logger.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{logrus.FieldKeyTime: "ts", logrus.FieldKeyMsg: "msg"},
		})
	})
	return logger
}

// ConfigureLogger applies cfg to the shared logger. The returned closer
// flushes the log file, if any.
func ConfigureLogger(cfg LogConfig) (io.Closer, error) {
	l := Logger()
	level := logrus.InfoLevel
	if strings.TrimSpace(cfg.Level) != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		level = parsed
	}
	l.SetLevel(level)

	if strings.TrimSpace(cfg.File) == "" {
		l.SetOutput(os.Stdout)
		return nopCloser{}, nil
	}
	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    orDefault(cfg.MaxSizeMB, 10),
		MaxBackups: orDefault(cfg.MaxBackups, 3),
		MaxAge:     orDefault(cfg.MaxAgeDays, 28),
		Compress:   true,
	}
	l.SetOutput(io.MultiWriter(os.Stdout, file))
	return file, nil
}

// LogRequest emits one structured line with common HTTP fields.
func LogRequest(fields logrus.Fields) {
	Logger().WithFields(fields).Info("http request")
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
