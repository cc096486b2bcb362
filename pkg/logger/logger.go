package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

func New(environment string) zerolog.Logger {
	return NewWithWriter(environment, os.Stdout)
}

// NewWithWriter builds the service logger on top of w. Development builds get a
// human readable console writer at debug level.
func NewWithWriter(environment string, w io.Writer) zerolog.Logger {
	output := zerolog.New(w).With().Timestamp().Logger()

	if environment == "development" || environment == "" {
		output = output.Level(zerolog.DebugLevel).Output(zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		})
	} else {
		output = output.Level(zerolog.InfoLevel)
	}

	return output
}
