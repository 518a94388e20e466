package logging

import (
	"os"

	"github.com/phuslu/log"

	"cvrag/internal/config"
)

// Setup configures the process-wide logger. Logs go to stderr so the
// chat and mcp commands keep stdout for their own output.
func Setup(cfg config.LoggingConfig) {
	logger := log.Logger{
		Level:      log.ParseLevel(cfg.Level),
		TimeFormat: "15:04:05",
	}
	switch cfg.Format {
	case "json":
		logger.TimeFormat = ""
		logger.Writer = &log.IOWriter{Writer: os.Stderr}
	default:
		logger.Writer = &log.ConsoleWriter{
			ColorOutput:    log.IsTerminal(os.Stderr.Fd()),
			EndWithMessage: true,
			Writer:         os.Stderr,
		}
	}
	log.DefaultLogger = logger
}

// Truncate shortens s to n runes for log context.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
