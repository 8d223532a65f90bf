// Command live loads a saved model and answers predictions over stdin/stdout.
//
// Each request is a uint64 little-endian element count followed by that many
// little-endian float64 values; each response uses the same framing.
package main

import (
	"flag"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/FlavioCFOliveira/plainnn/internal/net"
	"github.com/FlavioCFOliveira/plainnn/internal/serve"
	"github.com/FlavioCFOliveira/plainnn/internal/telemetry"
)

var (
	modelPath = flag.String("model", "model", "Base path of the saved model")
	debug     = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	// stdout carries the protocol.
	telemetry.SetupLogging(os.Stderr, level)

	model, err := net.Load(*modelPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *modelPath).Msg("Failed to load model")
	}
	log.Info().
		Str("path", *modelPath).
		Int("inputs", model.InputSize()).
		Int("outputs", model.OutputSize()).
		Msg("Model loaded, waiting for input")

	if err := serve.Loop(os.Stdin, os.Stdout, model); err != nil {
		log.Fatal().Err(err).Msg("Live loop failed")
	}
}
