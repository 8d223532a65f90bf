package net

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig is returned by Train for an unusable TrainConfig.
var ErrInvalidConfig = errors.New("net: invalid training config")

// TrainConfig holds the hyperparameters of a training run.
type TrainConfig struct {
	LearningRate float64
	Epochs       int
	BatchSize    int

	// SaveCheckpoint writes <CheckpointPath>_epoch_<n> after every epoch n.
	SaveCheckpoint bool
	CheckpointPath string
}

// DefaultTrainConfig returns one epoch of batches of 64 at learning rate 0.01.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		LearningRate: 0.01,
		Epochs:       1,
		BatchSize:    64,
	}
}

// Validate reports the first problem with c.
func (c TrainConfig) Validate() error {
	switch {
	case c.LearningRate <= 0 || math.IsNaN(c.LearningRate) || math.IsInf(c.LearningRate, 0):
		return fmt.Errorf("%w: learning rate %v", ErrInvalidConfig, c.LearningRate)
	case c.Epochs < 0:
		return fmt.Errorf("%w: epochs %d", ErrInvalidConfig, c.Epochs)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size %d", ErrInvalidConfig, c.BatchSize)
	case c.SaveCheckpoint && c.CheckpointPath == "":
		return fmt.Errorf("%w: checkpointing without a path", ErrInvalidConfig)
	}
	return nil
}
