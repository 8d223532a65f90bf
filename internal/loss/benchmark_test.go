// Package loss provides benchmarks for loss functions.
package loss

import (
	"math/rand/v2"
	"testing"
)

// fillRandom fills a slice with random values.
func fillRandom(slice []float64) {
	for i := range slice {
		slice[i] = rand.Float64()
	}
}

// BenchmarkHalfSquaredForward benchmarks the loss of one 1000-wide sample.
func BenchmarkHalfSquaredForward(b *testing.B) {
	hs := HalfSquared{}
	yPred := make([]float64, 1000)
	yTrue := make([]float64, 1000)
	fillRandom(yPred)
	fillRandom(yTrue)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = hs.Forward(yPred, yTrue)
	}
}

// BenchmarkHalfSquaredAccumulateElements benchmarks per-class accumulation.
func BenchmarkHalfSquaredAccumulateElements(b *testing.B) {
	hs := HalfSquared{}
	yPred := make([]float64, 1000)
	yTrue := make([]float64, 1000)
	dst := make([]float64, 1000)
	fillRandom(yPred)
	fillRandom(yTrue)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = hs.AccumulateElements(dst, yPred, yTrue)
	}
}
