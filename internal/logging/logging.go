package logging

import (
	"io"
	log "log/slog"
	"time"

	"github.com/lmittmann/tint"
)

var levelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

// Level maps a level name to its slog level. Unknown names fall back to info.
func Level(name string) log.Level {
	if lvl, ok := levelMap[name]; ok {
		return lvl
	}
	return log.LevelInfo
}

// Setup installs a tint handler writing to w as the default logger.
func Setup(w io.Writer, level string, noColor bool) *log.Logger {
	logger := log.New(tint.NewHandler(w, &tint.Options{
		Level:      Level(level),
		TimeFormat: time.TimeOnly,
		NoColor:    noColor,
	}))
	log.SetDefault(logger)
	return logger
}
