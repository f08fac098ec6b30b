// Package observability wires structured logging and Prometheus metrics.
package observability

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/JonMunkholm/nlq/internal/config"
)

// SetupLogger configures the global zerolog logger. Console output goes to stderr
// so the CLI can keep stdout for answers.
func SetupLogger(cfg config.Config, writer io.Writer) zerolog.Logger {
	if writer == nil {
		writer = os.Stderr
	}
	zerolog.SetGlobalLevel(cfg.Log.Level)
	if !cfg.Log.JSON {
		writer = zerolog.ConsoleWriter{Out: writer, NoColor: true}
	}
	log.Logger = zerolog.New(writer).With().
		Timestamp().
		Str("backend", string(cfg.Backend)).
		Logger()
	return log.Logger
}
