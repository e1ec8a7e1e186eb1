// Package logging wires logrus with request-scoped fields and optional
// file rotation, matching the ambient logging setup the rest of the proxy
// relies on.
package logging

import (
	"context"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

type requestIDContextKey struct{}

// Options configures the shared logger.
type Options struct {
	Level    string
	FilePath string
	MaxSizeMB int
	MaxBackups int
	MaxAgeDays int
}

// Configure installs the formatter/level/output on the package-level logrus
// logger. Call once at startup.
func Configure(opts Options) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	level, err := log.ParseLevel(opts.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	var out io.Writer = os.Stdout
	if opts.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    firstNonZero(opts.MaxSizeMB, 100),
			MaxBackups: firstNonZero(opts.MaxBackups, 7),
			MaxAge:     firstNonZero(opts.MaxAgeDays, 28),
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
	}
	log.SetOutput(out)
}

func firstNonZero(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// WithRequestID returns a context carrying the given request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// RequestIDFromContext extracts the request id stashed by WithRequestID, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDContextKey{}).(string)
	return v
}

// Entry returns a logrus entry pre-populated with the request id field, if
// the context carries one.
func Entry(ctx context.Context) *log.Entry {
	id := RequestIDFromContext(ctx)
	if id == "" {
		return log.NewEntry(log.StandardLogger())
	}
	return log.WithField("request_id", id)
}
