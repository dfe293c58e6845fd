// Package nn holds the weight and bias matrices of a fully-connected
// feedforward network and computes forward activations and backpropagated
// gradients on them with sigmoid activations and a quadratic cost.
package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidArchitecture is returned when the requested layer sizes cannot
// form a network (fewer than two layers, or a non-positive layer size).
var ErrInvalidArchitecture = errors.New("invalid network architecture")

// Network is a fully-connected feedforward network. Weights[i] has shape
// Sizes[i+1] x Sizes[i] and Biases[i] has length Sizes[i+1].
type Network struct {
	Sizes   []int
	Weights []*mat.Dense
	Biases  []*mat.VecDense
}

// New creates a network with the given layer sizes. Weights are drawn
// uniformly from (-1, 1) scaled by 1/sqrt(fan-in), biases from the standard
// normal distribution. A nil rng falls back to a time-seeded source.
func New(sizes []int, rng *rand.Rand) (*Network, error) {
	if err := validateSizes(sizes); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	n := &Network{
		Sizes:   append([]int(nil), sizes...),
		Weights: make([]*mat.Dense, len(sizes)-1),
		Biases:  make([]*mat.VecDense, len(sizes)-1),
	}
	for i := 0; i < len(sizes)-1; i++ {
		in, out := sizes[i], sizes[i+1]
		n.Weights[i] = mat.NewDense(out, in, weightsInit(out*in, float64(in), rng))
		b := make([]float64, out)
		for j := range b {
			b[j] = rng.NormFloat64()
		}
		n.Biases[i] = mat.NewVecDense(out, b)
	}
	return n, nil
}

// FromParams builds a network from existing parameters, verifying every
// shape against the layer sizes.
func FromParams(sizes []int, weights []*mat.Dense, biases []*mat.VecDense) (*Network, error) {
	if err := validateSizes(sizes); err != nil {
		return nil, err
	}
	if len(weights) != len(sizes)-1 || len(biases) != len(sizes)-1 {
		return nil, fmt.Errorf("%w: %d layer transitions need %d weight and bias sets, got %d and %d",
			ErrInvalidArchitecture, len(sizes)-1, len(sizes)-1, len(weights), len(biases))
	}
	for i := 0; i < len(sizes)-1; i++ {
		r, c := weights[i].Dims()
		if r != sizes[i+1] || c != sizes[i] {
			return nil, fmt.Errorf("%w: weight %d is %dx%d, want %dx%d",
				ErrInvalidArchitecture, i, r, c, sizes[i+1], sizes[i])
		}
		if biases[i].Len() != sizes[i+1] {
			return nil, fmt.Errorf("%w: bias %d has length %d, want %d",
				ErrInvalidArchitecture, i, biases[i].Len(), sizes[i+1])
		}
	}
	return &Network{Sizes: append([]int(nil), sizes...), Weights: weights, Biases: biases}, nil
}

func validateSizes(sizes []int) error {
	if len(sizes) < 2 {
		return fmt.Errorf("%w: need at least 2 layers, got %d", ErrInvalidArchitecture, len(sizes))
	}
	for i, s := range sizes {
		if s <= 0 {
			return fmt.Errorf("%w: layer %d has size %d", ErrInvalidArchitecture, i, s)
		}
	}
	return nil
}

func weightsInit(length int, inputs float64, rng *rand.Rand) []float64 {
	a := make([]float64, length)
	for i := range a {
		a[i] = (2*rng.Float64() - 1) / math.Sqrt(inputs)
	}
	return a
}

// Feedforward returns the output-layer activations for a single input.
func (n *Network) Feedforward(input []float64) ([]float64, error) {
	if len(input) != n.Sizes[0] {
		return nil, fmt.Errorf("input has %d features, network expects %d", len(input), n.Sizes[0])
	}
	a := mat.NewVecDense(len(input), append([]float64(nil), input...))
	for i := range n.Weights {
		z := mat.NewVecDense(n.Sizes[i+1], nil)
		z.MulVec(n.Weights[i], a)
		z.AddVec(z, n.Biases[i])
		applyVec(z, z, Sigmoid)
		a = z
	}
	out := make([]float64, a.Len())
	copy(out, a.RawVector().Data)
	return out, nil
}

// Predict returns the arg-max class of the output activations.
func (n *Network) Predict(input []float64) (int, error) {
	out, err := n.Feedforward(input)
	if err != nil {
		return 0, err
	}
	return Argmax(out), nil
}
