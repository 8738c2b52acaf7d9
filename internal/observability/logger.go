package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger derives a component logger from the process logger.
func Logger(app, node string) zerolog.Logger {
	ctx := log.Logger.With().Str("app", app)
	if node != "" {
		ctx = ctx.Str("node", node)
	}
	return ctx.Logger()
}
