// Command serve exposes a saved model over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/FlavioCFOliveira/plainnn/internal/net"
	"github.com/FlavioCFOliveira/plainnn/internal/serve"
	"github.com/FlavioCFOliveira/plainnn/internal/telemetry"
)

var (
	modelPath  = flag.String("model", "model", "Base path of the saved model")
	listenAddr = flag.String("listen", ":8080", "Address to listen on")
	enableOTel = flag.Bool("otel", false, "Enable OpenTelemetry tracing (stdout)")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	telemetry.SetupLogging(os.Stderr, level)

	if *enableOTel {
		shutdown, err := telemetry.InitTracer("plainnn-serve", os.Stdout)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer shutdown(context.Background())
	}

	model, err := net.Load(*modelPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *modelPath).Msg("Failed to load model")
	}

	srv := &http.Server{
		Addr:              *listenAddr,
		Handler:           serve.NewServer(model).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", *listenAddr).Int("inputs", model.InputSize()).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
