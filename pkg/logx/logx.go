// Package logx configures process-wide logging: a human-readable console
// writer on stdout plus an optional JSON daily log file. Each UTC day gets
// its own file (<dir>/2006-01-02.log); the file sink reopens itself when
// the date rolls over.
package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Dir     string
}

// Service owns the file sink so the process can close it on shutdown.
type Service struct {
	daily *dailyWriter
}

// New builds the root logger from cfg.
//
// With both sinks disabled the logger falls back to console-only, so a
// misconfigured logging section never silences the process entirely.
func New(cfg Config) (*Service, zerolog.Logger, error) {
	zerolog.TimeFieldFormat = consoleTimeFormat
	zerolog.ErrorFieldName = "err"

	svc := &Service{}
	var sinks []io.Writer

	if cfg.Console {
		sinks = append(sinks, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: consoleTimeFormat})
	}
	if cfg.File.Enabled {
		dir := strings.TrimSpace(cfg.File.Dir)
		if dir == "" {
			dir = "./log"
		}
		dw, err := newDailyWriter(dir)
		if err != nil {
			return nil, zerolog.Nop(), fmt.Errorf("open log dir: %w", err)
		}
		svc.daily = dw
		sinks = append(sinks, dw)
	}
	if len(sinks) == 0 {
		sinks = append(sinks, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: consoleTimeFormat})
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(ParseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	return svc, zl, nil
}

// Console returns a standalone console logger. Used during bootstrap,
// before the configured logger exists.
func Console(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = consoleTimeFormat
	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: consoleTimeFormat}
	return zerolog.New(cw).Level(ParseLevel(level, zerolog.InfoLevel)).With().Timestamp().Logger()
}

func (s *Service) Close() error {
	if s == nil || s.daily == nil {
		return nil
	}
	return s.daily.Close()
}

func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "":
		return def
	default:
		return def
	}
}

// dayStamp is the file-name date, always UTC so the rollover boundary does
// not move with the host timezone.
func dayStamp(t time.Time) string { return t.UTC().Format("2006-01-02") }
