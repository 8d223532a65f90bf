// Package opt provides the parameter update rule and learning-rate schedules.
package opt

import "gonum.org/v1/gonum/floats"

// SGD is plain mini-batch gradient descent.
//
// Gradients handed to SGD are accumulated as (target - prediction) terms,
// so the update adds them: params += lr * grads / batchSize.
type SGD struct {
	LearningRate float64
}

// StepInPlace applies one update averaged over batchSize samples.
func (s SGD) StepInPlace(params, grads []float64, batchSize int) {
	floats.AddScaled(params, s.LearningRate/float64(batchSize), grads)
}
