// Package pubsub fans training progress events out to subscribers. Delivery
// is best effort: publishing never blocks, and a slow or absent subscriber
// only loses its own events.
package pubsub

import "sync"

// Event is one progress record for a training job. Events for a job are
// published in strictly increasing epoch order, and an event with a terminal
// status is always the last one for that job.
type Event struct {
	JobID          string  `json:"job_id"`
	NetworkID      string  `json:"network_id"`
	Epoch          int     `json:"epoch"`
	TotalEpochs    int     `json:"total_epochs"`
	Accuracy       float64 `json:"accuracy"`
	Correct        int     `json:"correct"`
	Total          int     `json:"total"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Progress       float64 `json:"progress"`
	Status         string  `json:"status"`
	Error          string  `json:"error,omitempty"`
}

type subscriber struct {
	jobID string // empty subscribes to every job
	ch    chan Event
}

// Broker is a process-local publish/subscribe hub keyed by job id.
type Broker struct {
	mu   sync.Mutex
	next int
	subs map[int]subscriber
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]subscriber)}
}

// Subscribe registers interest in events for jobID (empty for all jobs) and
// returns the event channel plus a cancel function. The channel is closed by
// cancel; events that arrive while the buffer is full are dropped.
func (b *Broker) Subscribe(jobID string, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = subscriber{jobID: jobID, ch: ch}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to matching subscribers without ever blocking.
func (b *Broker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if sub.jobID != "" && sub.jobID != ev.JobID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}
