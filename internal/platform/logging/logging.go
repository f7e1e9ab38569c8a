// Package logging builds the zerolog loggers used by the server: the
// application log and the separate audit trail.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level      string
	Dev        bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	Service    string
	Version    string
}

// New returns the application logger. Output goes to stdout (console format in
// development) and, when File is set, to a size-rotated file.
func New(opts Options) zerolog.Logger {
	return newWithStdout(opts, os.Stdout)
}

func newWithStdout(opts Options, stdout io.Writer) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(opts.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = stdout
	if opts.Dev {
		out = zerolog.ConsoleWriter{Out: stdout, TimeFormat: "15:04:05"}
	}

	writers := []io.Writer{out}
	if opts.File != "" {
		writers = append(writers, rotating(opts.File, opts.MaxSizeMB, opts.MaxBackups))
	}

	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp()
	if opts.Service != "" {
		ctx = ctx.Str("service", opts.Service)
	}
	if opts.Version != "" {
		ctx = ctx.Str("version", opts.Version)
	}
	return ctx.Logger()
}

// NewAudit returns a JSON logger dedicated to the access audit trail. An empty
// path disables it.
func NewAudit(path string, maxSizeMB, maxBackups int) zerolog.Logger {
	if path == "" {
		return zerolog.Nop()
	}
	return zerolog.New(rotating(path, maxSizeMB, maxBackups)).With().
		Timestamp().
		Str("log_type", "audit").
		Logger()
}

func rotating(path string, maxSizeMB, maxBackups int) *lumberjack.Logger {
	if maxSizeMB <= 0 {
		maxSizeMB = 5
	}
	if maxBackups < 0 {
		maxBackups = 0
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
}

func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
