package trainer

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/kafargo/neural-network-intro/dataset"
	"github.com/kafargo/neural-network-intro/nn"
)

func newNet(t *testing.T, sizes []int, seed int64) *nn.Network {
	t.Helper()
	net, err := nn.New(sizes, rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	return net
}

func TestSGDValidation(t *testing.T) {
	net := newNet(t, []int{3, 4, 2}, 1)
	train := dataset.Synthetic(10, 3, 2, rand.New(rand.NewSource(1)))

	cases := []Options{
		{Epochs: 0, MiniBatchSize: 2, LearningRate: 1},
		{Epochs: 1, MiniBatchSize: 0, LearningRate: 1},
		{Epochs: 1, MiniBatchSize: 2, LearningRate: 0},
	}
	for _, opts := range cases {
		require.Error(t, SGD(net, train, nil, opts, nil))
	}
	require.Error(t, SGD(net, nil, nil, Options{Epochs: 1, MiniBatchSize: 2, LearningRate: 1}, nil))
}

func TestSGDProgressOrderingAndAccuracy(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	train := dataset.Synthetic(40, 4, 2, rng)
	eval := dataset.Synthetic(20, 4, 2, rng)
	net := newNet(t, []int{4, 8, 2}, 2)

	var seen []Metrics
	opts := Options{Epochs: 5, MiniBatchSize: 4, LearningRate: 3, Rng: rand.New(rand.NewSource(3))}
	require.NoError(t, SGD(net, train, eval, opts, func(m Metrics) {
		seen = append(seen, m)
	}))

	require.Len(t, seen, 5)
	for i, m := range seen {
		require.Equal(t, i+1, m.Epoch, "epochs must arrive in strictly increasing order")
		require.Equal(t, 5, m.TotalEpochs)
		require.GreaterOrEqual(t, m.Accuracy, 0.0)
		require.LessOrEqual(t, m.Accuracy, 1.0)
		require.Equal(t, 20, m.Total)
	}
}

func TestSGDLearnsSeparableData(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	train := dataset.Synthetic(200, 6, 3, rng)
	eval := dataset.Synthetic(60, 6, 3, rng)
	net := newNet(t, []int{6, 12, 3}, 4)

	before, err := Evaluate(net, eval)
	require.NoError(t, err)

	var last Metrics
	opts := Options{Epochs: 30, MiniBatchSize: 10, LearningRate: 3, Rng: rand.New(rand.NewSource(5))}
	require.NoError(t, SGD(net, train, eval, opts, func(m Metrics) { last = m }))

	require.Greater(t, last.Correct, before, "training should improve on the initial network")
	require.Greater(t, last.Accuracy, 0.5)
}

// training-set size not divisible by the batch size exercises the short
// final batch
func TestSGDShortFinalBatch(t *testing.T) {
	train := dataset.Synthetic(7, 3, 2, rand.New(rand.NewSource(6)))
	net := newNet(t, []int{3, 4, 2}, 6)
	opts := Options{Epochs: 2, MiniBatchSize: 3, LearningRate: 1, Rng: rand.New(rand.NewSource(7))}
	require.NoError(t, SGD(net, train, nil, opts, nil))
}

func TestSGDDeterministicWithSeed(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	train := dataset.Synthetic(30, 4, 2, rng)

	run := func() *nn.Network {
		net := newNet(t, []int{4, 5, 2}, 9)
		opts := Options{Epochs: 3, MiniBatchSize: 5, LearningRate: 2, Rng: rand.New(rand.NewSource(10))}
		require.NoError(t, SGD(net, train, nil, opts, nil))
		return net
	}

	a, b := run(), run()
	for i := range a.Weights {
		require.True(t, mat.Equal(a.Weights[i], b.Weights[i]), "weight trajectories must be identical")
		require.True(t, mat.Equal(a.Biases[i], b.Biases[i]))
	}
}

func TestSGDFailsOnMalformedSample(t *testing.T) {
	net := newNet(t, []int{3, 4, 2}, 11)
	train := []dataset.Sample{{Input: []float64{0.1, 0.2}, Label: 0}} // wrong width
	opts := Options{Epochs: 1, MiniBatchSize: 1, LearningRate: 1}
	err := SGD(net, train, nil, opts, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "features")
}
