// Package logger builds the logrus logger shared by the postura commands.
package logger

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config sets the log level and optional rotating log file
type Config struct {
	// Level is a logrus level name such as "info" or "debug"
	Level string `yaml:"level" validate:"required,oneof=trace debug info warn warning error fatal panic"`
	// File is the path of a rotating log file, empty logs to stderr only
	File string `yaml:"file"`
	// MaxSizeMB is the size of the log file before it is rotated
	MaxSizeMB int `yaml:"max_size_mb" validate:"min=0"`
	// MaxBackups is the number of rotated files kept
	MaxBackups int `yaml:"max_backups" validate:"min=0"`
	// MaxAgeDays is the number of days rotated files are kept
	MaxAgeDays int  `yaml:"max_age_days" validate:"min=0"`
	Compress   bool `yaml:"compress"`
	// Caller adds the calling file and function to each entry
	Caller bool `yaml:"caller"`
}

// DefaultConfig logs at info level to stderr
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 7,
		Compress:   true,
	}
}

// New returns a logger writing to stderr and, when a file is configured, to
// a rotating log file.  The returned closer releases the log file.
func New(cfg Config) (*logrus.Logger, io.Closer, error) {
	return build(cfg, os.Stderr)
}

func build(cfg Config, stderr io.Writer) (*logrus.Logger, io.Closer, error) {

	level, err := logrus.ParseLevel(cfg.Level)

	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}

	log := logrus.New()
	log.SetLevel(level)
	log.SetReportCaller(cfg.Caller)

	log.SetFormatter(&formatter.Formatter{
		NoColors:        cfg.File != "",
		TimestampFormat: "2006-01-02 15:04:05.000",
		CallerFirst:     true,
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			return fmt.Sprintf(" [%s:%d][%s()]", path.Base(f.File), f.Line, s[len(s)-1])
		},
	})

	writers := []io.Writer{stderr}
	var closer io.Closer = nopCloser{}

	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			LocalTime:  true,
			Compress:   cfg.Compress,
			MaxSize:    cfg.MaxSizeMB,
			MaxAge:     cfg.MaxAgeDays,
			MaxBackups: cfg.MaxBackups,
		}

		writers = append(writers, file)
		closer = file
	}

	log.SetOutput(io.MultiWriter(writers...))

	return log, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
