// Package jobs runs training off the request path. A submitted job gets its
// own goroutine; the manager tracks the job lifecycle, guards each network
// against concurrent mutation and republishes per-epoch progress.
package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.dedis.ch/onet/v3/log"

	"github.com/kafargo/neural-network-intro/dataset"
	"github.com/kafargo/neural-network-intro/nn"
	"github.com/kafargo/neural-network-intro/pubsub"
	"github.com/kafargo/neural-network-intro/registry"
	"github.com/kafargo/neural-network-intro/trainer"
)

var (
	// ErrNotFound is returned for an unknown job id.
	ErrNotFound = errors.New("training job not found")
	// ErrNetworkBusy rejects a train request while another run holds
	// mutation rights over the same network.
	ErrNetworkBusy = errors.New("network already has a training job running")
)

// Status is the lifecycle state of a job. Transitions are one-directional:
// pending -> training -> completed | failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusTraining  Status = "training"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is a point-in-time snapshot of one training job.
type Job struct {
	ID            string    `json:"job_id"`
	NetworkID     string    `json:"network_id"`
	Status        Status    `json:"status"`
	Epochs        int       `json:"epochs"`
	MiniBatchSize int       `json:"mini_batch_size"`
	LearningRate  float64   `json:"learning_rate"`
	Epoch         int       `json:"epoch"`
	Progress      float64   `json:"progress"`
	Accuracy      float64   `json:"accuracy"`
	History       []float64 `json:"accuracy_history,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Manager owns all job records. Jobs are kept in memory for later status
// queries; terminal jobs are never evicted automatically.
type Manager struct {
	mu   sync.Mutex
	jobs map[string]*Job
	busy map[string]struct{} // network ids with an active run

	reg    *registry.Registry
	broker *pubsub.Broker
	train  []dataset.Sample
	eval   []dataset.Sample

	wg sync.WaitGroup
}

// NewManager wires the manager to its registry, progress broker and the
// immutable training/evaluation sets. broker may be nil when nobody
// subscribes.
func NewManager(reg *registry.Registry, broker *pubsub.Broker, train, eval []dataset.Sample) *Manager {
	return &Manager{
		jobs:   make(map[string]*Job),
		busy:   make(map[string]struct{}),
		reg:    reg,
		broker: broker,
		train:  train,
		eval:   eval,
	}
}

// Submit accepts a train request against networkID and returns immediately
// with the new job id; the run proceeds on its own goroutine. A request for
// a network that is already training is rejected with ErrNetworkBusy rather
// than queued, so a second mutator can never interleave with the first.
func (m *Manager) Submit(networkID string, epochs, miniBatchSize int, learningRate float64) (string, error) {
	net, err := m.reg.Get(networkID)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	if _, running := m.busy[networkID]; running {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrNetworkBusy, networkID)
	}
	job := &Job{
		ID:            uuid.NewString(),
		NetworkID:     networkID,
		Status:        StatusPending,
		Epochs:        epochs,
		MiniBatchSize: miniBatchSize,
		LearningRate:  learningRate,
		CreatedAt:     time.Now(),
	}
	m.jobs[job.ID] = job
	m.busy[networkID] = struct{}{}
	m.mu.Unlock()

	log.Lvlf1("job %s: training network %s for %d epochs (batch %d, rate %g)",
		job.ID, networkID, epochs, miniBatchSize, learningRate)

	m.wg.Add(1)
	go m.run(job.ID, networkID, net, epochs, miniBatchSize, learningRate)
	return job.ID, nil
}

// Status returns a consistent snapshot of the job.
func (m *Manager) Status(jobID string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	snap := *job
	snap.History = append([]float64(nil), job.History...)
	return snap, nil
}

// Count returns the number of job records held in memory.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// Wait blocks until every submitted run has finished. Intended for tests and
// orderly shutdown.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) run(jobID, networkID string, net *nn.Network, epochs, miniBatchSize int, learningRate float64) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		delete(m.busy, networkID)
		m.mu.Unlock()
	}()

	m.transition(jobID, func(job *Job) {
		job.Status = StatusTraining
	})

	opts := trainer.Options{
		Epochs:        epochs,
		MiniBatchSize: miniBatchSize,
		LearningRate:  learningRate,
	}
	err := trainer.SGD(net, m.train, m.eval, opts, func(tm trainer.Metrics) {
		m.transition(jobID, func(job *Job) {
			job.Epoch = tm.Epoch
			job.Progress = 100 * float64(tm.Epoch) / float64(tm.TotalEpochs)
			job.Accuracy = tm.Accuracy
			job.History = append(job.History, tm.Accuracy)
		})
		m.publish(jobID, networkID, tm, StatusTraining, "")
	})

	if err != nil {
		// the failure stays on the job; the submitter already returned
		log.Error("job", jobID, "failed:", err)
		var last trainer.Metrics
		m.transition(jobID, func(job *Job) {
			job.Status = StatusFailed
			job.Error = err.Error()
			last = trainer.Metrics{Epoch: job.Epoch, TotalEpochs: job.Epochs,
				Accuracy: job.Accuracy}
		})
		m.publish(jobID, networkID, last, StatusFailed, err.Error())
		return
	}

	var final trainer.Metrics
	m.transition(jobID, func(job *Job) {
		job.Status = StatusCompleted
		job.Progress = 100
		final = trainer.Metrics{Epoch: job.Epoch, TotalEpochs: job.Epochs,
			Accuracy: job.Accuracy}
	})
	m.reg.MarkTrained(networkID, final.Accuracy)
	m.publish(jobID, networkID, final, StatusCompleted, "")
	log.Lvlf1("job %s: completed with accuracy %.4f", jobID, final.Accuracy)

	// training success and durable-save success are independent outcomes
	if err := m.reg.Persist(networkID); err != nil {
		log.Warn("job", jobID, ": persisting network", networkID, "failed:", err)
	}
}

func (m *Manager) transition(jobID string, mutate func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[jobID]; ok && !job.Status.Terminal() {
		mutate(job)
	}
}

func (m *Manager) publish(jobID, networkID string, tm trainer.Metrics, status Status, errMsg string) {
	if m.broker == nil {
		return
	}
	progress := float64(0)
	if tm.TotalEpochs > 0 {
		progress = 100 * float64(tm.Epoch) / float64(tm.TotalEpochs)
	}
	if status == StatusCompleted {
		progress = 100
	}
	m.broker.Publish(pubsub.Event{
		JobID:          jobID,
		NetworkID:      networkID,
		Epoch:          tm.Epoch,
		TotalEpochs:    tm.TotalEpochs,
		Accuracy:       tm.Accuracy,
		Correct:        tm.Correct,
		Total:          tm.Total,
		ElapsedSeconds: tm.Elapsed.Seconds(),
		Progress:       progress,
		Status:         string(status),
		Error:          errMsg,
	})
}
