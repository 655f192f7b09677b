// Package logger provides the process-wide structured logger for fenixd.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the process-wide logger, configured by Initialize.
var Log zerolog.Logger

// Initialize configures the global logger. level is a zerolog level name
// ("debug", "info", "warn", "error"); pretty switches to a human-readable
// console writer instead of JSON.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().Str("service", "fenixd").Logger()
	Log.Info().Str("level", logLevel.String()).Bool("pretty", pretty).Msg("logger initialized")
}

func component(name string) *zerolog.Logger {
	l := Log.With().Str("component", name).Logger()
	return &l
}

// Store returns the Session Store (C1) component logger.
func Store() *zerolog.Logger { return component("store") }

// Compute returns the Compute Adapter (C2) component logger.
func Compute() *zerolog.Logger { return component("compute") }

// Notify returns the Notifier (C3) component logger.
func Notify() *zerolog.Logger { return component("notify") }

// Timer returns the Timer Registry (C4) component logger.
func Timer() *zerolog.Logger { return component("timer") }

// Reply returns the Project Reply Gateway (C5) component logger.
func Reply() *zerolog.Logger { return component("reply") }

// Workflow returns the workflow engine (C7) component logger.
func Workflow() *zerolog.Logger { return component("workflow") }

// Manager returns the Session Manager (C8) component logger.
func Manager() *zerolog.Logger { return component("manager") }

// HTTP returns the HTTP frontend component logger.
func HTTP() *zerolog.Logger { return component("http") }

// Housekeeping returns the background reaper component logger.
func Housekeeping() *zerolog.Logger { return component("housekeeping") }
