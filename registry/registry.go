// Package registry owns the in-memory mapping of network ids to networks
// and mediates creation, lookup, listing, deletion and durable saves.
package registry

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"go.dedis.ch/onet/v3/log"

	"github.com/kafargo/neural-network-intro/nn"
	"github.com/kafargo/neural-network-intro/persist"
)

// ErrNotFound is returned for an unknown network id.
var ErrNotFound = errors.New("network not found")

// Network status values reported by List.
const (
	StatusInMemory = "in_memory"
	StatusSaved    = "saved"
)

// Info is a caller-facing description of a network.
type Info struct {
	ID           string   `json:"network_id"`
	Architecture []int    `json:"architecture"`
	Trained      bool     `json:"trained"`
	Accuracy     *float64 `json:"accuracy"`
	Status       string   `json:"status"`
}

type record struct {
	net      *nn.Network
	trained  bool
	accuracy *float64
}

// Registry starts empty; networks live in memory until deleted, with
// durability delegated to the persist store.
type Registry struct {
	mu    sync.RWMutex
	nets  map[string]*record
	store *persist.Store
	rng   *rand.Rand

	defaultSizes []int
}

// New builds an empty registry. defaultSizes is used when Create receives no
// architecture; seed drives parameter initialization (0 means
// nondeterministic).
func New(store *persist.Store, defaultSizes []int, seed int64) *Registry {
	var rng *rand.Rand
	if seed != 0 {
		rng = rand.New(rand.NewSource(seed))
	}
	return &Registry{
		nets:         make(map[string]*record),
		store:        store,
		rng:          rng,
		defaultSizes: append([]int(nil), defaultSizes...),
	}
}

// Create initializes a network with the given layer sizes (nil means the
// registry default) and returns its id. The network is fully populated
// before it becomes visible to any other caller.
func (r *Registry) Create(sizes []int) (Info, error) {
	if len(sizes) == 0 {
		sizes = r.defaultSizes
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	net, err := nn.New(sizes, r.rng)
	if err != nil {
		return Info{}, err
	}
	id := uuid.NewString()
	r.nets[id] = &record{net: net}
	log.Lvlf2("created network %s with architecture %v", id, sizes)
	return Info{ID: id, Architecture: net.Sizes, Status: StatusInMemory}, nil
}

// Get returns the live network for id. Mutation rights over the result are
// arbitrated by the job manager, not here.
func (r *Registry) Get(id string) (*nn.Network, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.nets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec.net, nil
}

// Describe returns the Info snapshot for an in-memory network.
func (r *Registry) Describe(id string) (Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.nets[id]
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return infoOf(id, rec), nil
}

func infoOf(id string, rec *record) Info {
	info := Info{
		ID:           id,
		Architecture: rec.net.Sizes,
		Trained:      rec.trained,
		Status:       StatusInMemory,
	}
	if rec.accuracy != nil {
		a := *rec.accuracy
		info.Accuracy = &a
	}
	return info
}

// List returns all in-memory networks plus saved snapshots that are not
// currently loaded.
func (r *Registry) List() ([]Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.nets))
	for id, rec := range r.nets {
		infos = append(infos, infoOf(id, rec))
	}
	saved, err := r.store.List()
	if err != nil {
		return nil, err
	}
	for _, meta := range saved {
		if _, loaded := r.nets[meta.NetworkID]; loaded {
			continue
		}
		infos = append(infos, Info{
			ID:           meta.NetworkID,
			Architecture: meta.Architecture,
			Trained:      true,
			Status:       StatusSaved,
		})
	}
	return infos, nil
}

// Count returns the number of in-memory networks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nets)
}

// Delete removes the network from memory and disk. Only when it is absent
// from both does it report ErrNotFound.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	_, inMemory := r.nets[id]
	delete(r.nets, id)
	r.mu.Unlock()

	err := r.store.Delete(id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persist.ErrNotFound) && inMemory:
		return nil
	case errors.Is(err, persist.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	default:
		return err
	}
}

// LoadSaved brings a saved snapshot into memory. Loading an id that is
// already in memory is a no-op.
func (r *Registry) LoadSaved(id string) (Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.nets[id]; ok {
		return infoOf(id, rec), nil
	}
	net, err := r.store.Load(id)
	if errors.Is(err, persist.ErrNotFound) {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Info{}, err
	}
	rec := &record{net: net, trained: true}
	r.nets[id] = rec
	log.Lvlf2("loaded saved network %s with architecture %v", id, net.Sizes)
	return infoOf(id, rec), nil
}

// Persist writes the network's current parameters to the store.
func (r *Registry) Persist(id string) error {
	net, err := r.Get(id)
	if err != nil {
		return err
	}
	return r.store.Save(net, id)
}

// MarkTrained records a completed training run's final accuracy.
func (r *Registry) MarkTrained(id string, accuracy float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.nets[id]; ok {
		rec.trained = true
		a := accuracy
		rec.accuracy = &a
	}
}

// SetAccuracy stores a freshly evaluated accuracy for a trained network.
func (r *Registry) SetAccuracy(id string, accuracy float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.nets[id]; ok {
		a := accuracy
		rec.accuracy = &a
	}
}
