package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Console logging until the configured logger is installed.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	app := newApp()
	if err := app.root().ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("piholesync failed")
		if app.exitCode == 0 {
			app.exitCode = 1
		}
	}
	os.Exit(app.exitCode)
}
