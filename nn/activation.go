package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Sigmoid is the logistic activation used at every layer.
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// SigmoidPrime is the derivative of Sigmoid.
func SigmoidPrime(x float64) float64 {
	s := Sigmoid(x)
	return s * (1 - s)
}

// applyVec writes f(src[i]) into dst. dst and src may alias.
func applyVec(dst, src *mat.VecDense, f func(float64) float64) {
	for i := 0; i < src.Len(); i++ {
		dst.SetVec(i, f(src.AtVec(i)))
	}
}

// Argmax returns the index of the largest value in a.
func Argmax(a []float64) int {
	best := 0
	for i := range a {
		if a[i] > a[best] {
			best = i
		}
	}
	return best
}
