// Package trainer drives stochastic gradient descent over a network: it
// shuffles the training set each epoch, partitions it into mini-batches,
// applies the backpropagated updates and reports per-epoch metrics.
package trainer

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.dedis.ch/onet/v3/log"

	"github.com/kafargo/neural-network-intro/dataset"
	"github.com/kafargo/neural-network-intro/nn"
)

// Metrics describes one completed epoch.
type Metrics struct {
	Epoch       int
	TotalEpochs int
	Accuracy    float64 // fraction in [0,1], 0 when no evaluation set
	Correct     int
	Total       int
	Elapsed     time.Duration
}

// ProgressFunc receives Metrics after every epoch. It is called
// synchronously, in epoch order.
type ProgressFunc func(Metrics)

// Options are the hyperparameters of one SGD run.
type Options struct {
	Epochs        int
	MiniBatchSize int
	LearningRate  float64
	// Rng drives the per-epoch shuffle. Runs with the same Rng seed, network
	// and data produce identical parameter trajectories. Nil means
	// time-seeded.
	Rng *rand.Rand
}

func (o Options) validate() error {
	if o.Epochs <= 0 {
		return fmt.Errorf("epochs must be > 0, got %d", o.Epochs)
	}
	if o.MiniBatchSize <= 0 {
		return fmt.Errorf("mini-batch size must be > 0, got %d", o.MiniBatchSize)
	}
	if o.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be > 0, got %g", o.LearningRate)
	}
	return nil
}

// SGD trains net in place. The training set is reshuffled every epoch; the
// final mini-batch of an epoch may be short. After each epoch the network is
// scored on eval (when non-empty) and progress is invoked. Any numeric or
// dimension error aborts the run; the network may then hold a partial
// update, which is why a failed job is terminal for its network state.
func SGD(net *nn.Network, train, eval []dataset.Sample, opts Options, progress ProgressFunc) error {
	if err := opts.validate(); err != nil {
		return err
	}
	if len(train) == 0 {
		return errors.New("empty training set")
	}
	rng := opts.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	// shuffle a copy, the caller's slice stays in order
	shuffled := append([]dataset.Sample(nil), train...)

	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		start := time.Now()
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		for lo := 0; lo < len(shuffled); lo += opts.MiniBatchSize {
			hi := lo + opts.MiniBatchSize
			if hi > len(shuffled) {
				hi = len(shuffled)
			}
			if err := step(net, shuffled[lo:hi], opts.LearningRate); err != nil {
				return fmt.Errorf("epoch %d: %w", epoch, err)
			}
		}

		m := Metrics{Epoch: epoch, TotalEpochs: opts.Epochs, Elapsed: time.Since(start)}
		if len(eval) > 0 {
			correct, err := Evaluate(net, eval)
			if err != nil {
				return fmt.Errorf("epoch %d: evaluate: %w", epoch, err)
			}
			m.Correct = correct
			m.Total = len(eval)
			m.Accuracy = float64(correct) / float64(len(eval))
		}
		log.Lvlf2("epoch %d/%d: accuracy %.4f (%d/%d) in %s",
			m.Epoch, m.TotalEpochs, m.Accuracy, m.Correct, m.Total, m.Elapsed)
		if progress != nil {
			progress(m)
		}
	}
	return nil
}

// step updates every parameter by -(lr/|batch|) * summed gradient.
func step(net *nn.Network, batch []dataset.Sample, lr float64) error {
	inputs := make([][]float64, len(batch))
	labels := make([]int, len(batch))
	for i, s := range batch {
		inputs[i] = s.Input
		labels[i] = s.Label
	}
	grad, err := net.Backprop(inputs, labels)
	if err != nil {
		return err
	}
	scale := lr / float64(len(batch))
	for l := range net.Weights {
		grad.W[l].Scale(scale, grad.W[l])
		net.Weights[l].Sub(net.Weights[l], grad.W[l])
		grad.B[l].ScaleVec(scale, grad.B[l])
		net.Biases[l].SubVec(net.Biases[l], grad.B[l])
	}
	return nil
}

// Evaluate counts the samples whose arg-max output matches the label.
func Evaluate(net *nn.Network, samples []dataset.Sample) (int, error) {
	correct := 0
	for i := range samples {
		pred, err := net.Predict(samples[i].Input)
		if err != nil {
			return 0, err
		}
		if pred == samples[i].Label {
			correct++
		}
	}
	return correct, nil
}
