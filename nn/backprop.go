package nn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Gradients holds the cost gradient with respect to every weight and bias,
// summed over the samples of one mini-batch. Shapes mirror Network.
type Gradients struct {
	W []*mat.Dense
	B []*mat.VecDense
}

// NewGradients returns zeroed gradients shaped like n's parameters.
func NewGradients(n *Network) *Gradients {
	g := &Gradients{
		W: make([]*mat.Dense, len(n.Weights)),
		B: make([]*mat.VecDense, len(n.Biases)),
	}
	for i := range n.Weights {
		r, c := n.Weights[i].Dims()
		g.W[i] = mat.NewDense(r, c, nil)
		g.B[i] = mat.NewVecDense(r, nil)
	}
	return g
}

// Backprop runs the forward and backward pass over one mini-batch and
// returns the summed gradients. Labels index the output layer one-hot
// encoding, so every label must be in [0, output size).
func (n *Network) Backprop(inputs [][]float64, labels []int) (*Gradients, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("empty mini-batch")
	}
	if len(inputs) != len(labels) {
		return nil, fmt.Errorf("%d inputs but %d labels", len(inputs), len(labels))
	}

	grad := NewGradients(n)
	last := len(n.Weights) - 1
	outSize := n.Sizes[len(n.Sizes)-1]

	for s := range inputs {
		if len(inputs[s]) != n.Sizes[0] {
			return nil, fmt.Errorf("sample %d has %d features, network expects %d", s, len(inputs[s]), n.Sizes[0])
		}
		if labels[s] < 0 || labels[s] >= outSize {
			return nil, fmt.Errorf("sample %d has label %d, output layer has %d units", s, labels[s], outSize)
		}

		// forward pass, keeping pre-activations and activations per layer
		zs := make([]*mat.VecDense, len(n.Weights))
		as := make([]*mat.VecDense, len(n.Weights)+1)
		as[0] = mat.NewVecDense(n.Sizes[0], append([]float64(nil), inputs[s]...))
		for l := range n.Weights {
			z := mat.NewVecDense(n.Sizes[l+1], nil)
			z.MulVec(n.Weights[l], as[l])
			z.AddVec(z, n.Biases[l])
			zs[l] = z
			a := mat.NewVecDense(z.Len(), nil)
			applyVec(a, z, Sigmoid)
			as[l+1] = a
		}

		// output error: (a_L - y) ⊙ σ'(z_L) for the quadratic cost
		target := mat.NewVecDense(outSize, nil)
		target.SetVec(labels[s], 1)
		delta := mat.NewVecDense(outSize, nil)
		delta.SubVec(as[last+1], target)
		sp := mat.NewVecDense(outSize, nil)
		applyVec(sp, zs[last], SigmoidPrime)
		delta.MulElemVec(delta, sp)

		grad.W[last].RankOne(grad.W[last], 1, delta, as[last])
		grad.B[last].AddVec(grad.B[last], delta)

		// propagate the error backwards through the earlier layers
		for l := last - 1; l >= 0; l-- {
			next := mat.NewVecDense(n.Sizes[l+1], nil)
			next.MulVec(n.Weights[l+1].T(), delta)
			sp := mat.NewVecDense(n.Sizes[l+1], nil)
			applyVec(sp, zs[l], SigmoidPrime)
			next.MulElemVec(next, sp)
			delta = next

			grad.W[l].RankOne(grad.W[l], 1, delta, as[l])
			grad.B[l].AddVec(grad.B[l], delta)
		}
	}
	return grad, nil
}
