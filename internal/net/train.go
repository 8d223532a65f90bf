package net

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/floats"

	"github.com/FlavioCFOliveira/plainnn/internal/data"
	"github.com/FlavioCFOliveira/plainnn/internal/layer"
	"github.com/FlavioCFOliveira/plainnn/internal/loss"
	"github.com/FlavioCFOliveira/plainnn/internal/storage"
	"github.com/FlavioCFOliveira/plainnn/internal/tensor"
)

var tracer = otel.Tracer("plainnn/net")

// EvaluationResult is the outcome of one pass over a test loader.
type EvaluationResult struct {
	Correct  int
	Total    int
	Accuracy float64
	Loss     float64

	// LossPerClass[i] is the mean loss contributed by output i.
	LossPerClass []float64
}

// EpochStats summarizes one training epoch.
type EpochStats struct {
	// Epoch is 1-based.
	Epoch        int
	Loss         float64
	Accuracy     float64
	LearningRate float64
	Samples      int
	Duration     time.Duration

	// Test is set when Train was given a test loader.
	Test *EvaluationResult
}

// Train runs cfg.Epochs passes over train with mini-batch gradient descent.
//
// Every sample is forwarded and back-propagated; gradients accumulate until
// the end of the batch, when each trainable layer takes one step scaled by
// cfg.BatchSize. After each epoch the loader is rewound, test (if not nil) is
// evaluated, the scheduler adjusts the learning rate and a checkpoint is
// written when enabled. A checkpoint that fails to save is logged and
// training continues.
//
// ctx carries tracing only; training is not cancellable.
func (m *Model) Train(ctx context.Context, train, test data.Loader, cfg TrainConfig) ([]EpochStats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(m.layers) < 2 {
		return nil, ErrEmptyModel
	}

	ctx, span := tracer.Start(ctx, "Model.Train", trace.WithAttributes(
		attribute.Int("epochs", cfg.Epochs),
		attribute.Int("batch_size", cfg.BatchSize),
		attribute.Float64("learning_rate", cfg.LearningRate),
	))
	defer span.End()

	lr := cfg.LearningRate
	steps := train.StepsPerEpoch(cfg.BatchSize)
	history := make([]EpochStats, 0, cfg.Epochs)
	m.stop = false

	for _, cb := range m.callbacks {
		cb.OnTrainBegin(m)
	}
	defer func() {
		for _, cb := range m.callbacks {
			cb.OnTrainEnd(m)
		}
	}()

	for epoch := 0; epoch < cfg.Epochs && !m.stop; epoch++ {
		stats, err := m.trainEpoch(ctx, train, epoch, steps, lr, cfg.BatchSize)
		if err != nil {
			span.RecordError(err)
			return history, err
		}

		train.NewEpoch()

		if test != nil {
			res, err := m.Evaluate(ctx, test)
			if err != nil {
				span.RecordError(err)
				return history, fmt.Errorf("evaluate epoch %d: %w", stats.Epoch, err)
			}
			stats.Test = &res
		}

		if m.scheduler != nil {
			lr = m.scheduler.Step(lr, epoch)
		}
		learningRate.Set(lr)

		if cfg.SaveCheckpoint {
			m.checkpoint(cfg.CheckpointPath, stats.Epoch)
		}

		m.logEpoch(stats, cfg.Epochs)
		history = append(history, stats)
		for _, cb := range m.callbacks {
			cb.OnEpochEnd(epoch, stats, m)
		}
	}

	return history, nil
}

func (m *Model) trainEpoch(ctx context.Context, train data.Loader, epoch, steps int, lr float64, batchSize int) (EpochStats, error) {
	_, span := tracer.Start(ctx, "Model.trainEpoch", trace.WithAttributes(
		attribute.Int("epoch", epoch+1),
		attribute.Int("steps", steps),
	))
	defer span.End()

	for _, cb := range m.callbacks {
		cb.OnEpochBegin(epoch, m)
	}

	start := time.Now()
	stats := EpochStats{Epoch: epoch + 1, LearningRate: lr}
	var lossSum float64
	var correct int

	for step := 0; step < steps; step++ {
		batch := train.Batch(batchSize)
		if batch.Empty() {
			emptyBatches.Inc()
			continue
		}

		batchStart := time.Now()
		batchLoss, batchCorrect, err := m.trainBatch(batch, lr, batchSize)
		if err != nil {
			return stats, fmt.Errorf("epoch %d step %d: %w", epoch+1, step, err)
		}
		batchDuration.Observe(time.Since(batchStart).Seconds())
		batchesTrained.Inc()
		samplesTrained.Add(float64(batch.Len()))

		lossSum += batchLoss
		correct += batchCorrect
		stats.Samples += batch.Len()

		for _, cb := range m.callbacks {
			cb.OnBatchEnd(step, BatchStats{
				Steps:    steps,
				Loss:     batchLoss / float64(batchSize),
				Accuracy: float64(batchCorrect) / float64(batchSize),
			}, m)
		}
	}

	if stats.Samples > 0 {
		stats.Loss = lossSum / float64(stats.Samples)
		stats.Accuracy = float64(correct) / float64(stats.Samples)
	}
	stats.Duration = time.Since(start)

	epochLoss.Set(stats.Loss)
	epochAccuracy.Set(stats.Accuracy)
	span.SetAttributes(
		attribute.Float64("loss", stats.Loss),
		attribute.Float64("accuracy", stats.Accuracy),
	)
	return stats, nil
}

// trainBatch back-propagates every sample of batch and then applies one step
// per trainable layer. It returns the summed loss and the number of correct
// predictions. On error the gradients accumulated so far are discarded.
func (m *Model) trainBatch(batch data.BatchData, lr float64, batchSize int) (sumLoss float64, correct int, err error) {
	defer func() {
		if err != nil {
			m.zeroGrads()
		}
	}()
	lowest := m.lowestTrainable()

	for i, input := range batch.Inputs {
		target := batch.Targets[i]
		out, err := m.Forward(input)
		if err != nil {
			return 0, 0, err
		}
		if err := checkTarget(out, target); err != nil {
			return 0, 0, err
		}
		sumLoss += loss.HalfSquared{}.Forward(out.Data(), target.Data())
		if floats.MaxIdx(out.Data()) == batch.Labels[i] {
			correct++
		}
		if err := m.backward(input, target, lowest); err != nil {
			return 0, 0, err
		}
	}

	for i := 1; i < len(m.layers); i++ {
		if m.layers[i].Frozen() {
			continue
		}
		if err := m.layers[i].Step(lr, batchSize); err != nil {
			return 0, 0, fmt.Errorf("step layer %d: %w", i, err)
		}
	}
	return sumLoss, correct, nil
}

// backward runs the chain rule from the last layer down to layer lowest.
// Frozen layers only pass the error through.
func (m *Model) backward(input, target *tensor.Tensor, lowest int) error {
	grad := target
	var nextWeights *tensor.Tensor

	for i := len(m.layers) - 1; i >= lowest; i-- {
		l := m.layers[i]
		var err error
		if l.Frozen() {
			grad, err = l.Delta(nextWeights, grad)
		} else {
			prev := input
			if i > 1 {
				prev = m.layers[i-1].Output()
			}
			grad, err = l.Backward(prev, nextWeights, grad)
		}
		if err != nil {
			return fmt.Errorf("backward layer %d: %w", i, err)
		}
		nextWeights = l.Params()
	}
	return nil
}

func checkTarget(out, target *tensor.Tensor) error {
	if out.Size() != target.Size() {
		return fmt.Errorf("%w: model outputs %d values, target has %d", layer.ErrShapeMismatch, out.Size(), target.Size())
	}
	return nil
}

func (m *Model) zeroGrads() {
	for _, l := range m.layers {
		l.ZeroGrad()
	}
}

// lowestTrainable returns the smallest index of a non-frozen layer, or
// len(layers) when every layer is frozen.
func (m *Model) lowestTrainable() int {
	for i := 1; i < len(m.layers); i++ {
		if !m.layers[i].Frozen() {
			return i
		}
	}
	return len(m.layers)
}

func (m *Model) checkpoint(path string, epoch int) {
	base := storage.CheckpointBase(path, epoch)
	if err := m.Save(base, false); err != nil {
		checkpointFailures.Inc()
		m.logger.Error().Err(err).Str("path", base).Int("epoch", epoch).Msg("checkpoint failed")
		return
	}
	m.logger.Info().Str("path", base).Int("epoch", epoch).Msg("checkpoint saved")
}

func (m *Model) logEpoch(s EpochStats, epochs int) {
	ev := m.logger.Info().
		Int("epoch", s.Epoch).
		Int("epochs", epochs).
		Float64("loss", s.Loss).
		Float64("accuracy", s.Accuracy).
		Float64("lr", s.LearningRate).
		Dur("elapsed", s.Duration)
	if s.Test != nil {
		ev = ev.Float64("test_loss", s.Test.Loss).Float64("test_accuracy", s.Test.Accuracy)
	}
	ev.Msg("epoch complete")
}

// Evaluate forwards every sample of loader once, in batches of one.
//
// Accuracy and the losses are divided by the number of steps, including any
// empty batches the loader returned. LossPerClass is indexed by output
// position. The loader is rewound before returning.
func (m *Model) Evaluate(ctx context.Context, loader data.Loader) (EvaluationResult, error) {
	_, span := tracer.Start(ctx, "Model.Evaluate")
	defer span.End()

	if len(m.layers) < 2 {
		return EvaluationResult{}, ErrEmptyModel
	}

	steps := loader.StepsPerEpoch(1)
	res := EvaluationResult{
		Total:        steps,
		LossPerClass: make([]float64, loader.NumClasses()),
	}

	for step := 0; step < steps; step++ {
		batch := loader.Batch(1)
		if batch.Empty() {
			continue
		}
		out, err := m.Forward(batch.Inputs[0])
		if err == nil {
			err = checkTarget(out, batch.Targets[0])
		}
		if err == nil && out.Size() != len(res.LossPerClass) {
			err = fmt.Errorf("%w: model outputs %d values, loader has %d classes", layer.ErrShapeMismatch, out.Size(), len(res.LossPerClass))
		}
		if err != nil {
			loader.NewEpoch()
			span.RecordError(err)
			return EvaluationResult{}, fmt.Errorf("evaluate step %d: %w", step, err)
		}
		if floats.MaxIdx(out.Data()) == batch.Labels[0] {
			res.Correct++
		}
		res.Loss += loss.HalfSquared{}.AccumulateElements(res.LossPerClass, out.Data(), batch.Targets[0].Data())
	}

	if steps > 0 {
		n := float64(steps)
		res.Accuracy = float64(res.Correct) / n
		res.Loss /= n
		floats.Scale(1/n, res.LossPerClass)
	}
	loader.NewEpoch()

	evalAccuracy.Set(res.Accuracy)
	span.SetAttributes(
		attribute.Int("samples", steps),
		attribute.Float64("accuracy", res.Accuracy),
	)
	m.logger.Debug().Int("correct", res.Correct).Int("total", res.Total).Float64("loss", res.Loss).Msg("evaluation complete")
	return res, nil
}
