package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation enables a rotating log file next to stdout output.
type Rotation struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func (r *Rotation) writer() io.WriteCloser {
	if r == nil || strings.TrimSpace(r.File) == "" {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   r.File,
		MaxSize:    r.MaxSizeMB,
		MaxBackups: r.MaxBackups,
		MaxAge:     r.MaxAgeDays,
		Compress:   true,
	}
}

// NewHandler returns the JSON handler used by every service. Records carry
// timestamp, severity and message keys.
func NewHandler(w io.Writer, level slog.Leveler) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})
}

// Setup configures the standard library logger to emit structured JSON and
// returns the underlying slog.Logger. When rotation names a file the output
// is mirrored there; the returned closer releases it and is never nil.
func Setup(service, env string, rotation *Rotation) (*slog.Logger, io.Closer) {
	var out io.Writer = os.Stdout
	closer := io.Closer(nopCloser{})
	if file := rotation.writer(); file != nil {
		out = io.MultiWriter(os.Stdout, file)
		closer = file
	}
	handler := NewHandler(out, slog.LevelInfo)

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	handler = handler.WithAttrs(attrs)

	base := slog.New(handler)
	slog.SetDefault(base)

	// Bridge the standard library logger so existing packages continue to work.
	stdBridge := slog.NewLogLogger(handler, slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
