package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/raine/hotpotato/internal/cli"
	"github.com/raine/hotpotato/internal/config"
)

const logFileName = "hotpotato.log"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	closeLog := setupLogging()
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx)
	stop()
	if err != nil {
		closeLog()
		config.WaitOnWindows()
		os.Exit(1)
	}
}

// setupLogging writes logs to stderr and, outside systemd, to a file in the
// config directory.
func setupLogging() func() {
	console := zerolog.ConsoleWriter{Out: os.Stderr}

	// JOURNAL_STREAM is set by systemd, which collects stderr itself.
	if _, underSystemd := os.LookupEnv("JOURNAL_STREAM"); underSystemd {
		log.Logger = log.Output(console)
		return func() {}
	}

	dir, err := config.Dir()
	if err == nil {
		err = os.MkdirAll(dir, 0700)
	}
	if err != nil {
		log.Logger = log.Output(console)
		log.Warn().Err(err).Msg("logging to stderr only")
		return func() {}
	}

	path := filepath.Join(dir, logFileName)
	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		log.Logger = log.Output(console)
		log.Warn().Err(err).Str("logFile", path).Msg("failed to open log file")
		return func() {}
	}

	fileWriter := zerolog.ConsoleWriter{Out: logFile, NoColor: true}
	log.Logger = log.Output(io.MultiWriter(console, fileWriter))
	log.Debug().Str("logFile", path).Msg("logging to file")
	return func() { logFile.Close() }
}
