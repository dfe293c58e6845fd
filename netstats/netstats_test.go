package netstats

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/kafargo/neural-network-intro/nn"
)

func TestStatsOnKnownParameters(t *testing.T) {
	weights := []*mat.Dense{mat.NewDense(2, 2, []float64{1, 2, 3, 4})}
	biases := []*mat.VecDense{mat.NewVecDense(2, []float64{-1, 1})}
	net, err := nn.FromParams([]int{2, 2}, weights, biases)
	require.NoError(t, err)

	ws, err := WeightStats(net)
	require.NoError(t, err)
	require.Len(t, ws, 1)
	require.Equal(t, 1, ws[0].Layer)
	require.InDelta(t, 2.5, ws[0].Mean, 1e-12)
	require.InDelta(t, 1.0, ws[0].Min, 1e-12)
	require.InDelta(t, 4.0, ws[0].Max, 1e-12)
	require.Equal(t, []int{2, 2}, ws[0].Shape)

	bs, err := BiasStats(net)
	require.NoError(t, err)
	require.Len(t, bs, 1)
	require.InDelta(t, 0.0, bs[0].Mean, 1e-12)
	require.InDelta(t, -1.0, bs[0].Min, 1e-12)
	require.InDelta(t, 1.0, bs[0].Max, 1e-12)
	require.Equal(t, []int{2, 1}, bs[0].Shape)
}
