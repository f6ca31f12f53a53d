// Package logger builds the service's slog loggers and provides typed
// attribute helpers so log keys stay consistent across packages.
package logger

import (
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Format selects the slog handler.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Options configures a logger.
type Options struct {
	Output    io.Writer
	Level     slog.Level
	Format    Format
	AddSource bool
}

// DefaultOptions returns JSON logging at info level to stdout.
func DefaultOptions() Options {
	return Options{
		Output: os.Stdout,
		Level:  slog.LevelInfo,
		Format: FormatJSON,
	}
}

// New creates a logger with the given options.
func New(opts Options) *slog.Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	hopts := &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: opts.AddSource,
	}

	var handler slog.Handler
	if opts.Format == FormatText {
		handler = slog.NewTextHandler(opts.Output, hopts)
	} else {
		handler = slog.NewJSONHandler(opts.Output, hopts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ParseLevel parses a level name, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTRIBUTES
// ══════════════════════════════════════════════════════════════════════════════

func String(key, value string) slog.Attr          { return slog.String(key, value) }
func Int(key string, value int) slog.Attr         { return slog.Int(key, value) }
func Float64(key string, value float64) slog.Attr { return slog.Float64(key, value) }
func Bool(key string, value bool) slog.Attr       { return slog.Bool(key, value) }
func Any(key string, value any) slog.Attr         { return slog.Any(key, value) }

// Err creates an error attribute.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// Duration creates a duration attribute rendered as a string.
func Duration(key string, value time.Duration) slog.Attr {
	return slog.String(key, value.String())
}

// RequestIDKey is the attribute key for request tracing.
const RequestIDKey = "request_id"

func RequestID(id string) slog.Attr     { return slog.String(RequestIDKey, id) }
func Component(name string) slog.Attr   { return slog.String("component", name) }
func Operation(name string) slog.Attr   { return slog.String("operation", name) }
func Latency(d time.Duration) slog.Attr { return Duration("latency", d) }
func PaperCode(code string) slog.Attr   { return slog.String("paper_code", code) }
func Semester(n int) slog.Attr          { return slog.Int("semester", n) }
func Count(key string, n int) slog.Attr { return slog.Int(key, n) }

// Enrollment logs a short BLAKE2b digest of an enrollment number. The raw
// number is never written.
func Enrollment(number string) slog.Attr {
	if number == "" {
		return slog.String("enrollment", "")
	}
	sum := blake2b.Sum256([]byte(number))
	return slog.String("enrollment", hex.EncodeToString(sum[:6]))
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

type ctxKey struct{}

// WithContext returns a new context with the logger attached.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext retrieves the logger from context, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
