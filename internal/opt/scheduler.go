package opt

import (
	"errors"
	"fmt"
)

// ErrInvalidSchedule is returned for scheduler parameters that can never decay.
var ErrInvalidSchedule = errors.New("opt: invalid schedule")

// Scheduler adjusts the learning rate at the end of an epoch.
type Scheduler interface {
	// Step returns the learning rate to use after the given zero-based epoch.
	Step(lr float64, epoch int) float64
}

// StepLR decays the learning rate by Gamma every StepSize epochs.
type StepLR struct {
	gamma    float64
	stepSize int
}

// NewStepLR creates a StepLR. stepSize must be positive.
func NewStepLR(gamma float64, stepSize int) (*StepLR, error) {
	if stepSize <= 0 {
		return nil, fmt.Errorf("%w: step size %d", ErrInvalidSchedule, stepSize)
	}
	return &StepLR{gamma: gamma, stepSize: stepSize}, nil
}

// Step multiplies lr by gamma when epoch is a multiple of the step size.
func (s *StepLR) Step(lr float64, epoch int) float64 {
	if epoch%s.stepSize == 0 {
		return lr * s.gamma
	}
	return lr
}

// Gamma returns the decay factor.
func (s *StepLR) Gamma() float64 { return s.gamma }

// StepSize returns the decay period in epochs.
func (s *StepLR) StepSize() int { return s.stepSize }
