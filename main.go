package main

import (
	"errors"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ProgramArgs struct {
	Verbose bool `short:"v" long:"verbose" description:"Log debug messages"`
}

var (
	args ProgramArgs

	serveCmd     ServeCommand
	interpretCmd InterpretCommand
)

func setupLogging(verbose bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func newParser() *flags.Parser {
	argParser := flags.NewParser(&args, flags.Default)
	argParser.CommandHandler = func(cmd flags.Commander, cmdArgs []string) error {
		setupLogging(args.Verbose)
		return cmd.Execute(cmdArgs)
	}

	_, err := argParser.AddCommand("serve",
		"Serve BME280 readings over HTTP",
		"Reads the BME280 continuously and serves the latest reading, the calibration and a compensation endpoint.",
		&serveCmd)
	if err != nil {
		log.Fatal().Err(err).Msg("add serve command")
	}
	_, err = argParser.AddCommand("interpret",
		"Compensate a recorded raw data log",
		"Calculates temperature (and pressure and humidity with full coefficients) from raw sensor data.",
		&interpretCmd)
	if err != nil {
		log.Fatal().Err(err).Msg("add interpret command")
	}
	return argParser
}

func main() {
	argParser := newParser()
	if _, err := argParser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
