package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rowanhart/aircloud/internal/infrastructure/config"
)

// Logger is the daemon-wide structured logger: a slog.Logger that carries
// the service and version fields on every entry, with helpers for deriving
// subsystem-scoped children.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// levels maps config level names onto slog levels. Unknown names fall back
// to info so a typo in config.yaml loosens filtering instead of silencing
// the daemon.
var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// New builds the root logger from config: level filter, json or text
// encoding, stdout or stderr destination, and the service/version fields.
//
// Parameters:
//   - cfg: Logging section of config.yaml
//   - version: Build version stamped on every entry
//
// Returns:
//   - *Logger: Root logger; derive subsystem loggers with Component
func New(cfg config.LoggingConfig, version string) *Logger {
	handler := newHandler(cfg, writerFor(cfg.Output)).WithAttrs([]slog.Attr{
		slog.String("service", "aircloud"),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(handler)}
}

// newHandler picks the encoding. JSON is the default; text is for terminals.
func newHandler(cfg config.LoggingConfig, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// writerFor resolves the configured destination. Anything unrecognized
// writes to stdout.
func writerFor(output string) io.Writer {
	if strings.EqualFold(output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// parseLevel maps a config level name onto its slog level, defaulting to
// info for unrecognized names.
func parseLevel(level string) slog.Level {
	if l, ok := levels[strings.ToLower(level)]; ok {
		return l
	}
	return slog.LevelInfo
}

// With returns a child logger with additional default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a child logger scoped to one subsystem.
//
// The daemon hands each major component (shadow session, mqtt transport,
// api server) its own scoped logger so one process' interleaved output can
// be filtered per subsystem:
//
//	session := log.Component("shadow")
//	session.Info("connected") // includes component=shadow
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default returns a stdout/json/info logger for use before the config file
// has been loaded.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
