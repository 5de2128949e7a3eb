package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/edvin/dokku-installer/internal/config"
)

// ServiceName is attached to every log line.
const ServiceName = "dokku-installer"

// NewLogger creates a structured zerolog.Logger writing JSON to stdout.
// mode is the CLI mode ("serve", "selfdestruct", "onboot") and is omitted when empty.
func NewLogger(cfg *config.Config, mode string) zerolog.Logger {
	return newLogger(os.Stdout, cfg, mode)
}

func newLogger(w io.Writer, cfg *config.Config, mode string) zerolog.Logger {
	ctx := zerolog.New(w).With().Timestamp().Str("service", ServiceName)

	if mode != "" {
		ctx = ctx.Str("mode", mode)
	}

	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
