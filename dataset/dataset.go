// Package dataset supplies the immutable training and evaluation samples a
// trainer runs against, either the MNIST digit files or a synthetic set.
package dataset

import "math/rand"

// Sample pairs one fixed-length feature vector with its class label.
type Sample struct {
	Input []float64
	Label int
}

// Data bundles disjoint training and held-out evaluation sets.
type Data struct {
	Train []Sample
	Test  []Sample
}

// Synthetic generates n clustered samples of the given dimension spread over
// classes. Each class has a fixed center, samples are the center plus
// uniform noise, so a small network can separate them. The same rng yields
// the same set.
func Synthetic(n, dim, classes int, rng *rand.Rand) []Sample {
	samples := make([]Sample, n)
	for i := range samples {
		label := i % classes
		in := make([]float64, dim)
		for d := range in {
			center := 0.1
			if d%classes == label {
				center = 0.9
			}
			in[d] = center + 0.1*(2*rng.Float64()-1)
		}
		samples[i] = Sample{Input: in, Label: label}
	}
	return samples
}
