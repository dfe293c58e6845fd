package jobs

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kafargo/neural-network-intro/dataset"
	"github.com/kafargo/neural-network-intro/persist"
	"github.com/kafargo/neural-network-intro/pubsub"
	"github.com/kafargo/neural-network-intro/registry"
)

type fixture struct {
	store  *persist.Store
	reg    *registry.Registry
	broker *pubsub.Broker
	mgr    *Manager
}

func newFixture(t *testing.T, trainSize int) *fixture {
	t.Helper()
	store, err := persist.NewStore(t.TempDir())
	require.NoError(t, err)
	reg := registry.New(store, []int{3, 4, 2}, 1)
	broker := pubsub.NewBroker()
	rng := rand.New(rand.NewSource(2))
	train := dataset.Synthetic(trainSize, 3, 2, rng)
	eval := dataset.Synthetic(10, 3, 2, rng)
	return &fixture{
		store:  store,
		reg:    reg,
		broker: broker,
		mgr:    NewManager(reg, broker, train, eval),
	}
}

func collect(ch <-chan pubsub.Event, n int, timeout time.Duration) []pubsub.Event {
	var events []pubsub.Event
	deadline := time.After(timeout)
	for len(events) < n {
		select {
		case ev := <-ch:
			events = append(events, ev)
		case <-deadline:
			return events
		}
	}
	return events
}

// create a [3,4,2] network, train 1 epoch with mini-batch 2 on 10 samples:
// the job completes with one epoch progress event and a terminal event
func TestSubmitCompletesSmallRun(t *testing.T) {
	f := newFixture(t, 10)
	info, err := f.reg.Create(nil)
	require.NoError(t, err)

	events, cancel := f.broker.Subscribe("", 16)
	defer cancel()

	jobID, err := f.mgr.Submit(info.ID, 1, 2, 3.0)
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	f.mgr.Wait()

	job, err := f.mgr.Status(jobID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, job.Status)
	require.Equal(t, 1, job.Epoch)
	require.InDelta(t, 100, job.Progress, 1e-9)
	require.GreaterOrEqual(t, job.Accuracy, 0.0)
	require.LessOrEqual(t, job.Accuracy, 1.0)

	got := collect(events, 2, 5*time.Second)
	require.Len(t, got, 2)
	require.Equal(t, string(StatusTraining), got[0].Status)
	require.Equal(t, 1, got[0].Epoch, "exactly one progress event for one epoch")
	require.Equal(t, string(StatusCompleted), got[1].Status, "the terminal event is last")
	require.Equal(t, jobID, got[0].JobID)
	require.Equal(t, info.ID, got[0].NetworkID)

	// completion persists the trained network
	require.True(t, f.store.Exists(info.ID))
	desc, err := f.reg.Describe(info.ID)
	require.NoError(t, err)
	require.True(t, desc.Trained)
}

func TestProgressEventsStrictlyOrdered(t *testing.T) {
	f := newFixture(t, 20)
	info, err := f.reg.Create(nil)
	require.NoError(t, err)

	events, cancel := f.broker.Subscribe("", 64)
	defer cancel()

	const epochs = 7
	jobID, err := f.mgr.Submit(info.ID, epochs, 5, 2.0)
	require.NoError(t, err)
	f.mgr.Wait()

	got := collect(events, epochs+1, 5*time.Second)
	require.Len(t, got, epochs+1)
	for i := 0; i < epochs; i++ {
		require.Equal(t, i+1, got[i].Epoch)
		require.Equal(t, string(StatusTraining), got[i].Status)
		require.Equal(t, jobID, got[i].JobID)
	}
	require.Equal(t, string(StatusCompleted), got[epochs].Status)
	require.InDelta(t, 100, got[epochs].Progress, 1e-9)
}

func TestSubmitUnknownNetwork(t *testing.T) {
	f := newFixture(t, 10)
	_, err := f.mgr.Submit("missing", 1, 2, 3.0)
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestStatusUnknownJob(t *testing.T) {
	f := newFixture(t, 10)
	_, err := f.mgr.Status("never-submitted")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBusyNetworkRejected(t *testing.T) {
	f := newFixture(t, 10)
	info, err := f.reg.Create(nil)
	require.NoError(t, err)

	// hold the mutation right the way a running job would
	f.mgr.mu.Lock()
	f.mgr.busy[info.ID] = struct{}{}
	f.mgr.mu.Unlock()

	_, err = f.mgr.Submit(info.ID, 1, 2, 3.0)
	require.ErrorIs(t, err, ErrNetworkBusy)

	f.mgr.mu.Lock()
	delete(f.mgr.busy, info.ID)
	f.mgr.mu.Unlock()

	// released networks accept new jobs again
	jobID, err := f.mgr.Submit(info.ID, 1, 2, 3.0)
	require.NoError(t, err)
	f.mgr.Wait()
	job, err := f.mgr.Status(jobID)
	require.NoError(t, err)
	require.True(t, job.Status.Terminal())
}

func TestGuardReleasedAfterCompletion(t *testing.T) {
	f := newFixture(t, 10)
	info, err := f.reg.Create(nil)
	require.NoError(t, err)

	first, err := f.mgr.Submit(info.ID, 1, 2, 3.0)
	require.NoError(t, err)
	f.mgr.Wait()

	second, err := f.mgr.Submit(info.ID, 1, 2, 3.0)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	f.mgr.Wait()
}

func TestIndependentNetworksTrainConcurrently(t *testing.T) {
	f := newFixture(t, 20)
	a, err := f.reg.Create(nil)
	require.NoError(t, err)
	b, err := f.reg.Create(nil)
	require.NoError(t, err)

	jobA, err := f.mgr.Submit(a.ID, 3, 5, 2.0)
	require.NoError(t, err)
	jobB, err := f.mgr.Submit(b.ID, 3, 5, 2.0)
	require.NoError(t, err, "jobs on different networks must not conflict")
	f.mgr.Wait()

	for _, id := range []string{jobA, jobB} {
		job, err := f.mgr.Status(id)
		require.NoError(t, err)
		require.Equal(t, StatusCompleted, job.Status)
	}
}

func TestFailedRunRecordsError(t *testing.T) {
	store, err := persist.NewStore(t.TempDir())
	require.NoError(t, err)
	reg := registry.New(store, []int{3, 4, 2}, 1)
	broker := pubsub.NewBroker()
	// samples that do not match the network's input width
	bad := []dataset.Sample{{Input: []float64{0.1, 0.2}, Label: 0}}
	mgr := NewManager(reg, broker, bad, nil)

	info, err := reg.Create(nil)
	require.NoError(t, err)

	events, cancel := broker.Subscribe("", 16)
	defer cancel()

	jobID, err := mgr.Submit(info.ID, 1, 1, 3.0)
	require.NoError(t, err, "the failure must not surface at submission")
	mgr.Wait()

	job, err := mgr.Status(jobID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, job.Status)
	require.NotEmpty(t, job.Error)

	got := collect(events, 1, 5*time.Second)
	require.Len(t, got, 1)
	require.Equal(t, string(StatusFailed), got[0].Status)
	require.NotEmpty(t, got[0].Error)

	// nothing was persisted and the network accepts another job
	require.False(t, store.Exists(info.ID))
	_, err = mgr.Submit(info.ID, 1, 1, 3.0)
	require.NoError(t, err)
	mgr.Wait()
}

func TestTerminalStatusIsFinal(t *testing.T) {
	f := newFixture(t, 10)
	info, err := f.reg.Create(nil)
	require.NoError(t, err)

	jobID, err := f.mgr.Submit(info.ID, 1, 2, 3.0)
	require.NoError(t, err)
	f.mgr.Wait()

	// a transition attempted after the terminal state is ignored
	f.mgr.transition(jobID, func(j *Job) { j.Status = StatusTraining })
	job, err := f.mgr.Status(jobID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, job.Status)
}
