// Package log builds the agent's zerolog logger. The agent runs beside
// the UI shell, so all log output goes to stderr; stdout stays free for
// tools like orphanscrub that print machine-readable lists.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const serviceName = "fieldnote-agent"

// New returns the root logger. Production emits raw JSON for log
// shippers; everything else gets the human console format with debug
// enabled. Component loggers derive from this one via With().
func New(environment string) zerolog.Logger {
	level := zerolog.DebugLevel
	var out io.Writer = zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	if environment == "production" {
		level = zerolog.InfoLevel
		out = os.Stderr
	}

	return zerolog.New(out).Level(level).With().
		Timestamp().
		Str("service", serviceName).
		Str("env", environment).
		Logger()
}
