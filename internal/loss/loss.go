// Package loss provides the error measure reported during training.
package loss

import "fmt"

// HalfSquared is 0.5 * sum((y_pred - y_true)^2). Its gradient with respect
// to the prediction is y_pred - y_true, the negated error the output layer
// back-propagates.
type HalfSquared struct{}

// Forward computes the loss of one sample.
func (HalfSquared) Forward(yPred, yTrue []float64) float64 {
	checkLen(yPred, yTrue)

	var sum float64
	for i := range yPred {
		diff := yPred[i] - yTrue[i]
		sum += 0.5 * diff * diff
	}
	return sum
}

// AccumulateElements adds each output's contribution to dst and returns
// their sum, the same value Forward computes.
func (HalfSquared) AccumulateElements(dst, yPred, yTrue []float64) float64 {
	checkLen(yPred, yTrue)
	if len(dst) < len(yPred) {
		panic(fmt.Sprintf("HalfSquared: dst has %d slots for %d outputs", len(dst), len(yPred)))
	}

	var sum float64
	for i := range yPred {
		diff := yPred[i] - yTrue[i]
		l := 0.5 * diff * diff
		dst[i] += l
		sum += l
	}
	return sum
}

func checkLen(a, b []float64) {
	if len(a) != len(b) {
		panic(fmt.Sprintf("HalfSquared: length mismatch %d != %d", len(a), len(b)))
	}
}
