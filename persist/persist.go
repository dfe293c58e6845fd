// Package persist writes network snapshots to disk and reads them back.
//
// A snapshot is a pair of files keyed by network id: <id>.json carries
// human-readable metadata and <id>.ffn the parameters. The binary layout is
// the magic "FFN1", a big-endian uint32 layer count, the layer sizes as
// uint32, then for each layer transition the weight matrix row-major
// followed by the bias vector, all IEEE-754 float64 big-endian. The
// round-trip is bit exact.
package persist

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/kafargo/neural-network-intro/nn"
)

var (
	// ErrNotFound is returned when no snapshot exists for the id.
	ErrNotFound = errors.New("saved network not found")
	// ErrCorruptData is returned when a snapshot cannot be parsed into a
	// network satisfying the shape invariants.
	ErrCorruptData = errors.New("corrupt network snapshot")
)

var magic = [4]byte{'F', 'F', 'N', '1'}

// sane upper bounds so a corrupt header cannot trigger huge allocations
const (
	maxLayers    = 1 << 10
	maxLayerSize = 1 << 20
)

// Metadata mirrors the <id>.json sidecar file.
type Metadata struct {
	NetworkID    string  `json:"network_id"`
	Architecture []int   `json:"architecture"`
	WeightShapes [][]int `json:"weights_shape"`
	BiasShapes   []int   `json:"biases_shape"`
}

// Store persists snapshots under a single directory.
type Store struct {
	dir string
}

// NewStore creates the directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) binPath(id string) string  { return filepath.Join(s.dir, id+".ffn") }
func (s *Store) metaPath(id string) string { return filepath.Join(s.dir, id+".json") }

// Save writes a complete snapshot of net under id, replacing any previous
// one.
func (s *Store) Save(net *nn.Network, id string) error {
	f, err := os.Create(s.binPath(id))
	if err != nil {
		return fmt.Errorf("save network %s: %w", id, err)
	}
	w := bufio.NewWriter(f)

	werr := writeParams(w, net)
	if werr == nil {
		werr = w.Flush()
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return fmt.Errorf("save network %s: %w", id, werr)
	}

	meta := Metadata{
		NetworkID:    id,
		Architecture: net.Sizes,
		WeightShapes: make([][]int, len(net.Weights)),
		BiasShapes:   make([]int, len(net.Biases)),
	}
	for i := range net.Weights {
		r, c := net.Weights[i].Dims()
		meta.WeightShapes[i] = []int{r, c}
		meta.BiasShapes[i] = net.Biases[i].Len()
	}
	buf, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("save network %s: %w", id, err)
	}
	if err := os.WriteFile(s.metaPath(id), buf, 0o644); err != nil {
		return fmt.Errorf("save network %s: %w", id, err)
	}
	return nil
}

func writeParams(w *bufio.Writer, net *nn.Network) error {
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(net.Sizes))); err != nil {
		return err
	}
	for _, s := range net.Sizes {
		if err := binary.Write(w, binary.BigEndian, uint32(s)); err != nil {
			return err
		}
	}
	for l := range net.Weights {
		r, c := net.Weights[l].Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				if err := writeFloat(w, net.Weights[l].At(i, j)); err != nil {
					return err
				}
			}
		}
		for i := 0; i < net.Biases[l].Len(); i++ {
			if err := writeFloat(w, net.Biases[l].AtVec(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeFloat(w *bufio.Writer, v float64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
	_, err := w.Write(buf[:])
	return err
}

// Load reads the snapshot for id. A missing snapshot yields ErrNotFound, an
// unreadable or shape-violating one ErrCorruptData.
func (s *Store) Load(id string) (*nn.Network, error) {
	f, err := os.Open(s.binPath(id))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("network %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load network %s: %w", id, err)
	}
	defer f.Close()

	net, err := readParams(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("load network %s: %w: %v", id, ErrCorruptData, err)
	}
	return net, nil
}

func readParams(r *bufio.Reader) (*nn.Network, error) {
	var m [4]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return nil, err
	}
	if m != magic {
		return nil, fmt.Errorf("bad magic %q", m)
	}
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, err
	}
	if count < 2 || count > maxLayers {
		return nil, fmt.Errorf("implausible layer count %d", count)
	}
	sizes := make([]int, count)
	for i := range sizes {
		var s uint32
		if err := binary.Read(r, binary.BigEndian, &s); err != nil {
			return nil, err
		}
		if s == 0 || s > maxLayerSize {
			return nil, fmt.Errorf("implausible layer size %d", s)
		}
		sizes[i] = int(s)
	}

	weights := make([]*mat.Dense, count-1)
	biases := make([]*mat.VecDense, count-1)
	for l := 0; l < int(count)-1; l++ {
		in, out := sizes[l], sizes[l+1]
		wdata := make([]float64, out*in)
		if err := readFloats(r, wdata); err != nil {
			return nil, err
		}
		bdata := make([]float64, out)
		if err := readFloats(r, bdata); err != nil {
			return nil, err
		}
		weights[l] = mat.NewDense(out, in, wdata)
		biases[l] = mat.NewVecDense(out, bdata)
	}
	if extra, _ := r.Peek(1); len(extra) > 0 {
		return nil, errors.New("trailing bytes after parameters")
	}
	return nn.FromParams(sizes, weights, biases)
}

func readFloats(r *bufio.Reader, dst []float64) error {
	var buf [8]byte
	for i := range dst {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		dst[i] = math.Float64frombits(binary.BigEndian.Uint64(buf[:]))
	}
	return nil
}

// List returns the metadata of every saved snapshot.
func (s *Store) List() ([]Metadata, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list saved networks: %w", err)
	}
	var all []Metadata
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		buf, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("list saved networks: %w", err)
		}
		var meta Metadata
		if err := json.Unmarshal(buf, &meta); err != nil {
			return nil, fmt.Errorf("list saved networks: %s: %w: %v", e.Name(), ErrCorruptData, err)
		}
		all = append(all, meta)
	}
	return all, nil
}

// Delete removes both snapshot files. It reports ErrNotFound when neither
// exists.
func (s *Store) Delete(id string) error {
	binErr := os.Remove(s.binPath(id))
	metaErr := os.Remove(s.metaPath(id))
	if os.IsNotExist(binErr) && os.IsNotExist(metaErr) {
		return fmt.Errorf("network %s: %w", id, ErrNotFound)
	}
	if binErr != nil && !os.IsNotExist(binErr) {
		return fmt.Errorf("delete network %s: %w", id, binErr)
	}
	if metaErr != nil && !os.IsNotExist(metaErr) {
		return fmt.Errorf("delete network %s: %w", id, metaErr)
	}
	return nil
}

// Exists reports whether a snapshot is present for id.
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(s.binPath(id))
	return err == nil
}
