package logging

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/TheGojiOG/notion-backup/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger    *slog.Logger
	initOnce  sync.Once
	logCloser io.Closer
)

// Init configures the global logger. Only the first call has an effect.
//
// Structured output goes to stderr, and to a rotating file when
// cfg.File is set; stdout is left to the backup progress lines. Lines from
// the std log package are bridged in, see bridge.
func Init(cfg config.LoggingConfig) (*slog.Logger, error) {
	initOnce.Do(func() {
		output := io.Writer(os.Stderr)
		if strings.TrimSpace(cfg.File) != "" {
			rotating := &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			}
			logCloser = rotating
			output = io.MultiWriter(os.Stderr, rotating)
		}

		logger = slog.New(newHandler(output, cfg)).With("app", "notion-backup")
		slog.SetDefault(logger)
		log.SetFlags(0)
		log.SetOutput(bridge{logger: logger})
	})

	return logger, nil
}

func newHandler(w io.Writer, cfg config.LoggingConfig) slog.Handler {
	options := &slog.HandlerOptions{Level: parseLevel(cfg.Level), AddSource: cfg.AddSource}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(w, options)
	}
	return slog.NewJSONHandler(w, options)
}

// L returns the configured logger, or a discarding logger before Init.
func L() *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return logger
}

// Close flushes the rotating log file, if any.
func Close() error {
	if logCloser != nil {
		return logCloser.Close()
	}
	return nil
}

// bridge turns std log lines of the form "[Component] message" into
// structured records with a component attribute. Messages starting with
// "Warning:" are logged at warn level.
type bridge struct {
	logger *slog.Logger
}

func (b bridge) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return len(p), nil
	}

	var attrs []any
	if strings.HasPrefix(msg, "[") {
		if end := strings.Index(msg, "]"); end > 1 {
			attrs = append(attrs, "component", msg[1:end])
			msg = strings.TrimSpace(msg[end+1:])
		}
	}

	level := slog.LevelInfo
	if rest, ok := strings.CutPrefix(msg, "Warning:"); ok {
		level = slog.LevelWarn
		msg = strings.TrimSpace(rest)
	}

	b.logger.Log(context.Background(), level, msg, attrs...)
	return len(p), nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
