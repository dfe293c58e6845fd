// Package netstats summarizes the parameter distributions of a network,
// layer by layer.
package netstats

import (
	"fmt"

	"github.com/montanaflynn/stats"

	"github.com/kafargo/neural-network-intro/nn"
)

// LayerStats describes the value distribution of one parameter matrix.
type LayerStats struct {
	Layer int     `json:"layer"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Std   float64 `json:"std"`
	Shape []int   `json:"shape"`
}

// WeightStats returns per-transition statistics over the weight matrices.
func WeightStats(net *nn.Network) ([]LayerStats, error) {
	out := make([]LayerStats, len(net.Weights))
	for i, w := range net.Weights {
		r, c := w.Dims()
		s, err := summarize(w.RawMatrix().Data)
		if err != nil {
			return nil, fmt.Errorf("weights %d: %w", i, err)
		}
		s.Layer = i + 1
		s.Shape = []int{r, c}
		out[i] = s
	}
	return out, nil
}

// BiasStats returns per-transition statistics over the bias vectors.
func BiasStats(net *nn.Network) ([]LayerStats, error) {
	out := make([]LayerStats, len(net.Biases))
	for i, b := range net.Biases {
		s, err := summarize(b.RawVector().Data)
		if err != nil {
			return nil, fmt.Errorf("biases %d: %w", i, err)
		}
		s.Layer = i + 1
		s.Shape = []int{b.Len(), 1}
		out[i] = s
	}
	return out, nil
}

func summarize(data []float64) (LayerStats, error) {
	var s LayerStats
	var err error
	if s.Mean, err = stats.Mean(data); err != nil {
		return s, err
	}
	if s.Min, err = stats.Min(data); err != nil {
		return s, err
	}
	if s.Max, err = stats.Max(data); err != nil {
		return s, err
	}
	if s.Std, err = stats.StandardDeviation(data); err != nil {
		return s, err
	}
	return s, nil
}
