package net

import "math"

// BatchStats describes one completed mini-batch. Loss and Accuracy are
// divided by the configured batch size.
type BatchStats struct {
	Steps    int
	Loss     float64
	Accuracy float64
}

// Callback defines the interface for training callbacks. Epochs and steps
// are 0-based.
type Callback interface {
	OnTrainBegin(m *Model)
	OnTrainEnd(m *Model)
	OnEpochBegin(epoch int, m *Model)
	OnEpochEnd(epoch int, stats EpochStats, m *Model)
	OnBatchEnd(step int, stats BatchStats, m *Model)
}

// BaseCallback provides default empty implementations for Callback.
type BaseCallback struct{}

func (BaseCallback) OnTrainBegin(*Model)                {}
func (BaseCallback) OnTrainEnd(*Model)                  {}
func (BaseCallback) OnEpochBegin(int, *Model)           {}
func (BaseCallback) OnEpochEnd(int, EpochStats, *Model) {}
func (BaseCallback) OnBatchEnd(int, BatchStats, *Model) {}

// EarlyStopping stops training when the monitored loss has stopped improving.
// The test loss is monitored when present, the training loss otherwise.
type EarlyStopping struct {
	BaseCallback
	Patience  int
	Threshold float64

	bestLoss     float64
	numBadEpochs int
	Stopped      bool
}

func NewEarlyStopping(patience int, threshold float64) *EarlyStopping {
	return &EarlyStopping{
		Patience:  patience,
		Threshold: threshold,
		bestLoss:  math.Inf(1),
	}
}

func (c *EarlyStopping) OnTrainBegin(*Model) {
	c.bestLoss = math.Inf(1)
	c.numBadEpochs = 0
	c.Stopped = false
}

func (c *EarlyStopping) OnEpochEnd(epoch int, stats EpochStats, m *Model) {
	loss := stats.Loss
	if stats.Test != nil {
		loss = stats.Test.Loss
	}

	if loss < c.bestLoss-c.Threshold {
		c.bestLoss = loss
		c.numBadEpochs = 0
		return
	}
	c.numBadEpochs++

	if c.numBadEpochs >= c.Patience {
		m.logger.Info().
			Int("epoch", epoch+1).
			Float64("loss", loss).
			Int("patience", c.Patience).
			Msg("early stopping")
		c.Stopped = true
		m.StopTraining()
	}
}

// LogCallback logs batch progress every Interval steps.
type LogCallback struct {
	BaseCallback
	Interval int
}

func (c LogCallback) OnBatchEnd(step int, stats BatchStats, m *Model) {
	if c.Interval <= 0 || (step+1)%c.Interval != 0 {
		return
	}
	m.logger.Info().
		Int("step", step+1).
		Int("steps", stats.Steps).
		Float64("loss", stats.Loss).
		Float64("accuracy", stats.Accuracy).
		Msg("batch")
}
