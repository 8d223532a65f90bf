// Command train fits an Input -> Dense -> Dense classifier on MNIST IDX files.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/FlavioCFOliveira/plainnn/internal/activations"
	"github.com/FlavioCFOliveira/plainnn/internal/data"
	"github.com/FlavioCFOliveira/plainnn/internal/layer"
	"github.com/FlavioCFOliveira/plainnn/internal/net"
	"github.com/FlavioCFOliveira/plainnn/internal/opt"
	"github.com/FlavioCFOliveira/plainnn/internal/telemetry"
)

var (
	trainImages = flag.String("train-images", "train-images-idx3-ubyte.gz", "Training images (IDX, optionally gzip/zstd)")
	trainLabels = flag.String("train-labels", "train-labels-idx1-ubyte.gz", "Training labels (IDX)")
	testImages  = flag.String("test-images", "", "Test images (IDX); empty disables evaluation")
	testLabels  = flag.String("test-labels", "", "Test labels (IDX)")
	hidden      = flag.Int("hidden", 128, "Hidden layer width")
	hiddenAct   = flag.String("hidden-act", "ReLU", "Hidden layer activation")
	outputAct   = flag.String("output-act", "Sigmoid", "Output layer activation")
	resume      = flag.String("resume", "", "Continue from a saved model base path instead of building a new one")
	lr          = flag.Float64("lr", 0.01, "Learning rate")
	epochs      = flag.Int("epochs", 1, "Number of epochs")
	batchSize   = flag.Int("batch", 64, "Batch size")
	gamma       = flag.Float64("gamma", 0, "StepLR decay factor; 0 disables the scheduler")
	stepSize    = flag.Int("step-size", 1, "StepLR period in epochs")
	ckptPath    = flag.String("checkpoints", "", "Checkpoint base path; writes <path>_epoch_<n> every epoch")
	savePath    = flag.String("save", "model", "Base path for the final model")
	seed        = flag.Uint64("seed", 42, "Seed for weight init and shuffling")
	noShuffle   = flag.Bool("no-shuffle", false, "Keep dataset order between epochs")
	dropLast    = flag.Bool("drop-last", false, "Skip the trailing partial batch")
	patience    = flag.Int("patience", 0, "Stop after this many epochs without improvement; 0 disables")
	csvLog      = flag.String("csv-log", "", "Append per-epoch statistics to this CSV file")
	logEvery    = flag.Int("log-every", 100, "Log batch progress every N steps; 0 disables")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	enableOTel  = flag.Bool("otel", false, "Enable OpenTelemetry tracing (stdout)")
)

func main() {
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	telemetry.SetupLogging(os.Stderr, level)

	if *enableOTel {
		shutdown, err := telemetry.InitTracer("plainnn-train", os.Stdout)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer shutdown(context.Background())
	}

	loaderOpts := []data.Option{
		data.WithShuffle(!*noShuffle),
		data.WithDropLast(*dropLast),
		data.WithSeed(*seed),
	}

	train := data.NewMNISTLoader(*trainImages, *trainLabels, loaderOpts...)
	if err := train.Load(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load training set")
	}
	log.Info().Int("samples", train.Len()).Msg("Training set loaded")

	var test data.Loader
	if *testImages != "" {
		t := data.NewMNISTLoader(*testImages, *testLabels, data.WithSeed(*seed))
		if err := t.Load(); err != nil {
			log.Fatal().Err(err).Msg("Failed to load test set")
		}
		log.Info().Int("samples", t.Len()).Msg("Test set loaded")
		test = t
	}

	model, err := buildModel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build model")
	}

	if *gamma > 0 {
		sched, err := opt.NewStepLR(*gamma, *stepSize)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid scheduler")
		}
		model.SetScheduler(sched)
	}
	if *logEvery > 0 {
		model.AddCallback(net.LogCallback{Interval: *logEvery})
	}
	if *patience > 0 {
		model.AddCallback(net.NewEarlyStopping(*patience, 0))
	}
	if *csvLog != "" {
		model.AddCallback(net.NewCSVLogger(*csvLog, true))
	}

	model.Summary(os.Stdout)

	cfg := net.TrainConfig{
		LearningRate:   *lr,
		Epochs:         *epochs,
		BatchSize:      *batchSize,
		SaveCheckpoint: *ckptPath != "",
		CheckpointPath: *ckptPath,
	}

	history, err := model.Train(context.Background(), train, test, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Training failed")
	}
	if n := len(history); n > 0 {
		last := history[n-1]
		ev := log.Info().Int("epochs", n).Float64("loss", last.Loss).Float64("accuracy", last.Accuracy)
		if last.Test != nil {
			ev = ev.Float64("test_accuracy", last.Test.Accuracy)
		}
		ev.Msg("Training finished")
	}

	if *savePath != "" {
		if err := model.Save(*savePath, false); err != nil {
			log.Fatal().Err(err).Str("path", *savePath).Msg("Failed to save model")
		}
		log.Info().Str("path", *savePath).Msg("Model saved")
	}
}

func buildModel() (*net.Model, error) {
	opts := []net.Option{net.WithSeed(*seed)}
	if *resume != "" {
		log.Info().Str("path", *resume).Msg("Resuming from saved model")
		return net.Load(*resume, opts...)
	}

	hAct, err := activations.Lookup(*hiddenAct)
	if err != nil {
		return nil, err
	}
	oAct, err := activations.Lookup(*outputAct)
	if err != nil {
		return nil, err
	}

	in, err := layer.NewInput(784)
	if err != nil {
		return nil, err
	}
	h, err := layer.NewLazyDense(*hidden, hAct)
	if err != nil {
		return nil, err
	}
	out, err := layer.NewLazyDense(data.MNISTClasses, oAct)
	if err != nil {
		return nil, err
	}
	return net.NewSequential([]layer.Layer{in, h, out}, opts...)
}
