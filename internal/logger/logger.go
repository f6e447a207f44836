// Package logger provides the structured logger used across veil.
//
// Call sites log a message plus alternating key/value pairs:
//
//	log.Info("rule applied", "path", path, "kind", kind)
//	log.Err(err, "apply failed", "path", path)
package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the logging surface consumed by veil packages.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	Err(err error, msg string, kv ...any)
	With(kv ...any) Logger

	// Close flushes and closes file outputs. Loggers derived through With
	// share those outputs, so closing any of them closes all.
	Close() error
}

// Options configures New.
type Options struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level"`

	// Writer lists outputs: "console" and/or "file".
	Writer []string `yaml:"writer"`

	// File is the log file path used by the "file" writer.
	File string `yaml:"file"`

	// MaxSizeMB, MaxBackups and MaxAgeDays control file rotation.
	MaxSizeMB  int `yaml:"max_size_mb"`
	MaxBackups int `yaml:"max_backups"`
	MaxAgeDays int `yaml:"max_age_days"`

	// Console overrides the console destination (stderr by default).
	Console io.Writer `yaml:"-"`
}

type zlogger struct {
	z     zerolog.Logger
	files []io.Closer
}

// New builds a zerolog-backed Logger from opts.
func New(opts Options) (Logger, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	writers := opts.Writer
	if len(writers) == 0 {
		writers = []string{"console"}
	}

	var outs []io.Writer
	var files []io.Closer
	for _, w := range writers {
		switch w {
		case "console":
			dst := opts.Console
			if dst == nil {
				dst = os.Stderr
			}
			outs = append(outs, zerolog.ConsoleWriter{Out: dst, TimeFormat: "15:04:05.000", NoColor: true})
		case "file":
			if opts.File == "" {
				return nil, fmt.Errorf("logger: file writer requires a file path")
			}
			lj := &lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    orDefault(opts.MaxSizeMB, 10),
				MaxBackups: orDefault(opts.MaxBackups, 3),
				MaxAge:     orDefault(opts.MaxAgeDays, 7),
			}
			outs = append(outs, lj)
			files = append(files, lj)
		default:
			return nil, fmt.Errorf("logger: unknown writer %q", w)
		}
	}

	var out io.Writer = outs[0]
	if len(outs) > 1 {
		out = zerolog.MultiLevelWriter(outs...)
	}

	z := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &zlogger{z: z, files: files}, nil
}

// NewWriter returns a JSON logger writing to w at the given level. Intended
// for tests and embedding.
func NewWriter(w io.Writer, level string) Logger {
	lvl, err := parseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return &zlogger{z: zerolog.New(w).Level(lvl)}
}

// NewNop returns a Logger that discards everything.
func NewNop() Logger {
	return &zlogger{z: zerolog.Nop()}
}

func parseLevel(s string) (zerolog.Level, error) {
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("logger: invalid level %q: %w", s, err)
	}
	return lvl, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (l *zlogger) Debug(msg string, kv ...any) { l.emit(l.z.Debug(), msg, kv) }
func (l *zlogger) Info(msg string, kv ...any)  { l.emit(l.z.Info(), msg, kv) }
func (l *zlogger) Warn(msg string, kv ...any)  { l.emit(l.z.Warn(), msg, kv) }
func (l *zlogger) Error(msg string, kv ...any) { l.emit(l.z.Error(), msg, kv) }

func (l *zlogger) Err(err error, msg string, kv ...any) {
	l.emit(l.z.Error().Err(err), msg, kv)
}

func (l *zlogger) With(kv ...any) Logger {
	ctx := l.z.With()
	for i := 0; i < len(kv); i += 2 {
		ctx = ctx.Interface(key(kv, i), value(kv, i))
	}
	return &zlogger{z: ctx.Logger(), files: l.files}
}

func (l *zlogger) Close() error {
	var errs []error
	for _, f := range l.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *zlogger) emit(ev *zerolog.Event, msg string, kv []any) {
	if ev == nil {
		return
	}
	for i := 0; i < len(kv); i += 2 {
		ev = ev.Interface(key(kv, i), value(kv, i))
	}
	ev.Msg(msg)
}

func key(kv []any, i int) string {
	if s, ok := kv[i].(string); ok {
		return s
	}
	return fmt.Sprint(kv[i])
}

func value(kv []any, i int) any {
	if i+1 < len(kv) {
		return kv[i+1]
	}
	return "(MISSING)"
}
