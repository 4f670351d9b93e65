// Package obs wires up the quoter's structured logger: JSON output, rotated
// daily to ./log/quoter.log, one handler shared by every component via
// logger.With("component", "...").
package obs

import (
	"log/slog"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the logger's minimum level. Output destination and
// rotation are fixed: ./log/quoter.log, rotated daily.
type Config struct {
	Level string
}

// New builds the root logger.
func New(cfg Config) *slog.Logger {
	rotator := &lumberjack.Logger{
		Filename: "./log/quoter.log",
		MaxSize:  100, // megabytes
		Compress: false,
	}

	// lumberjack only rotates by size on its own; force a rotation at each
	// local midnight so every day starts a fresh file.
	go func() {
		for {
			now := time.Now()
			midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
			time.Sleep(time.Until(midnight))
			_ = rotator.Rotate()
		}
	}()

	handler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
