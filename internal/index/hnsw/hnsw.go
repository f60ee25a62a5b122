package hnsw

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)
var _ driven.StagedRebuild = (*staged)(nil)

// Default graph parameters. M is the per-layer neighbour budget; layer 0
// uses double that to preserve connectivity at the base.
const (
	DefaultM              = 32
	DefaultEFConstruction = 200
)

// Config holds construction parameters for an index.
type Config struct {
	// Dimension is the vector length (required).
	Dimension int

	// M is the maximum neighbours per node per layer (layer 0 uses 2*M).
	M int

	// EFConstruction is the candidate-list width used during insertion.
	EFConstruction int

	// Seed seeds the layer-assignment randomness. Zero selects a fixed
	// default so index construction is reproducible.
	Seed int64
}

// node is one stored vector with its per-layer adjacency lists.
// neighbors[l] holds the edges at layer l; len(neighbors) is level+1.
type node struct {
	vector    []float32
	neighbors [][]int32
}

// Index is a multi-layer proximity graph over unit vectors.
type Index struct {
	mu sync.RWMutex

	dim            int
	m              int
	mMax0          int
	efConstruction int
	levelMult      float64

	nodes      []*node
	entry      int // entry point id; -1 while empty
	maxLevel   int
	generation uint64
	rng        *rand.Rand
	closed     bool
}

// New creates an empty index.
func New(cfg Config) (*Index, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", domain.ErrInvalidInput)
	}
	if cfg.M == 0 {
		cfg.M = DefaultM
	}
	if cfg.M < 2 {
		return nil, fmt.Errorf("%w: M must be at least 2", domain.ErrInvalidInput)
	}
	if cfg.EFConstruction == 0 {
		cfg.EFConstruction = DefaultEFConstruction
	}
	if cfg.EFConstruction < cfg.M {
		cfg.EFConstruction = cfg.M
	}
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}

	return &Index{
		dim:            cfg.Dimension,
		m:              cfg.M,
		mMax0:          cfg.M * 2,
		efConstruction: cfg.EFConstruction,
		levelMult:      1.0 / math.Log(float64(cfg.M)),
		entry:          -1,
		maxLevel:       -1,
		rng:            rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Len returns the number of stored vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.nodes)
}

// Dimension returns the vector length the index was built for.
func (ix *Index) Dimension() int {
	return ix.dim
}

// Generation counts committed rebuilds. Persisted alongside the graph so
// a reloaded index can be checked against the metadata store's record.
func (ix *Index) Generation() uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.generation
}

// Close marks the index closed. Subsequent operations fail.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.closed = true
	return nil
}

// Add inserts a vector and returns its id. Ids are assigned monotonically
// and equal the vector's insertion position. The vector is copied and
// normalised to unit length; the caller retains no ownership.
func (ix *Index) Add(vector []float32) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.closed {
		return 0, domain.ErrIndexClosed
	}
	if len(vector) != ix.dim {
		return 0, fmt.Errorf("%w: got %d, index is %d", domain.ErrDimensionMismatch, len(vector), ix.dim)
	}

	vec := make([]float32, ix.dim)
	copy(vec, vector)
	Normalise(vec)

	id := len(ix.nodes)
	level := ix.randomLevel()

	n := &node{
		vector:    vec,
		neighbors: make([][]int32, level+1),
	}
	ix.nodes = append(ix.nodes, n)

	// First vector becomes the entry point.
	if ix.entry < 0 {
		ix.entry = id
		ix.maxLevel = level
		return id, nil
	}

	ep := ix.entry

	// Greedy single-path descent through layers above the node's top layer.
	for layer := ix.maxLevel; layer > level; layer-- {
		ep = ix.greedyClosest(vec, ep, layer)
	}

	// Best-first insertion from min(level, maxLevel) down to layer 0.
	top := level
	if top > ix.maxLevel {
		top = ix.maxLevel
	}
	for layer := top; layer >= 0; layer-- {
		candidates := ix.searchLayer(vec, ep, ix.efConstruction, layer)
		selected := ix.selectNeighbours(vec, candidates, ix.maxNeighbours(layer))

		n.neighbors[layer] = make([]int32, 0, len(selected))
		for _, c := range selected {
			n.neighbors[layer] = append(n.neighbors[layer], int32(c.id))
			ix.link(c.id, id, layer)
		}

		if len(candidates) > 0 {
			ep = candidates[0].id
		}
	}

	// A node above every existing layer becomes the new entry point.
	if level > ix.maxLevel {
		ix.maxLevel = level
		ix.entry = id
	}

	return id, nil
}

// Search returns the k nearest vectors to query. The candidate-list width
// ef trades recall for latency and is clamped to at least k. A search on
// an empty index returns no hits, not an error.
func (ix *Index) Search(query []float32, k, ef int) ([]driven.VectorHit, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.closed {
		return nil, domain.ErrIndexClosed
	}
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: got %d, index is %d", domain.ErrDimensionMismatch, len(query), ix.dim)
	}
	if k <= 0 || len(ix.nodes) == 0 {
		return nil, nil
	}
	if ef < k {
		ef = k
	}

	q := make([]float32, ix.dim)
	copy(q, query)
	Normalise(q)

	ep := ix.entry
	for layer := ix.maxLevel; layer > 0; layer-- {
		ep = ix.greedyClosest(q, ep, layer)
	}

	candidates := ix.searchLayer(q, ep, ef, 0)
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	hits := make([]driven.VectorHit, len(candidates))
	for i, c := range candidates {
		hits[i] = driven.VectorHit{ID: c.id, Similarity: similarity(c.dist)}
	}
	return hits, nil
}

// staged is a rebuilt graph awaiting Commit.
type staged struct {
	ix         *Index
	fresh      *Index
	remap      map[int]int
	generation uint64
}

// Remap returns the old-id to new-id mapping of the staged graph.
func (s *staged) Remap() map[int]int { return s.remap }

// Generation returns the generation the index will carry after Commit.
func (s *staged) Generation() uint64 { return s.generation }

// Commit swaps the staged graph in under the write lock. Searches from
// that point on resolve against the new id space.
func (s *staged) Commit() {
	s.ix.mu.Lock()
	s.ix.nodes = s.fresh.nodes
	s.ix.entry = s.fresh.entry
	s.ix.maxLevel = s.fresh.maxLevel
	s.ix.rng = s.fresh.rng
	s.ix.generation = s.generation
	s.ix.mu.Unlock()
}

// StageRebuild constructs a replacement graph from the surviving vectors
// in original insertion order, discarding tombstoned entries. keep reports
// whether an id survives.
//
// The new graph is built without the write lock, against a snapshot of the
// vector set; concurrent searches are served by the old graph until the
// caller commits. Vectors appended after the snapshot would be lost, so
// the caller must hold off inserts until then (the engine serialises
// mutations above this level).
func (ix *Index) StageRebuild(keep func(id int) bool) (driven.StagedRebuild, error) {
	ix.mu.RLock()
	if ix.closed {
		ix.mu.RUnlock()
		return nil, domain.ErrIndexClosed
	}
	snapshot := ix.nodes
	generation := ix.generation + 1
	ix.mu.RUnlock()

	fresh, err := New(Config{
		Dimension:      ix.dim,
		M:              ix.m,
		EFConstruction: ix.efConstruction,
	})
	if err != nil {
		return nil, err
	}

	remap := make(map[int]int)
	for oldID, n := range snapshot {
		if !keep(oldID) {
			continue
		}
		newID, err := fresh.Add(n.vector)
		if err != nil {
			return nil, fmt.Errorf("rebuild insert %d: %w", oldID, err)
		}
		remap[oldID] = newID
	}

	return &staged{ix: ix, fresh: fresh, remap: remap, generation: generation}, nil
}

// Rebuild stages and immediately commits a rebuild. It returns the
// mapping from old ids to new ids.
func (ix *Index) Rebuild(keep func(id int) bool) (map[int]int, error) {
	st, err := ix.StageRebuild(keep)
	if err != nil {
		return nil, err
	}
	st.Commit()
	return st.Remap(), nil
}

// randomLevel draws a layer with exponentially decaying probability.
func (ix *Index) randomLevel() int {
	r := ix.rng.Float64()
	for r == 0 {
		r = ix.rng.Float64()
	}
	return int(math.Floor(-math.Log(r) * ix.levelMult))
}

func (ix *Index) maxNeighbours(layer int) int {
	if layer == 0 {
		return ix.mMax0
	}
	return ix.m
}

// greedyClosest walks a single layer greedily towards query, returning the
// locally closest node.
func (ix *Index) greedyClosest(query []float32, start, layer int) int {
	cur := start
	curDist := squaredDistance(query, ix.nodes[cur].vector)

	for {
		improved := false
		n := ix.nodes[cur]
		if layer < len(n.neighbors) {
			for _, nb := range n.neighbors[layer] {
				d := squaredDistance(query, ix.nodes[nb].vector)
				if d < curDist {
					cur = int(nb)
					curDist = d
					improved = true
				}
			}
		}
		if !improved {
			return cur
		}
	}
}

// searchLayer performs a best-first search at one layer with candidate-list
// width ef, returning up to ef results ordered by ascending distance.
func (ix *Index) searchLayer(query []float32, entry, ef, layer int) []scored {
	visited := make([]bool, len(ix.nodes))
	visited[entry] = true

	entryDist := squaredDistance(query, ix.nodes[entry].vector)
	candidates := &minHeap{{id: entry, dist: entryDist}}
	results := &maxHeap{{id: entry, dist: entryDist}}

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(scored)
		if c.dist > (*results)[0].dist && results.Len() >= ef {
			break
		}

		n := ix.nodes[c.id]
		if layer >= len(n.neighbors) {
			continue
		}
		for _, nb := range n.neighbors[layer] {
			if visited[nb] {
				continue
			}
			visited[nb] = true

			d := squaredDistance(query, ix.nodes[nb].vector)
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(candidates, scored{id: int(nb), dist: d})
				heap.Push(results, scored{id: int(nb), dist: d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]scored, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(scored)
	}
	return out
}

// selectNeighbours applies the diversity heuristic: a candidate is kept
// only if it is closer to the query than to every neighbour already kept,
// which favours edges that span distinct regions of the graph. Pruned
// candidates backfill the list when fewer than max survive.
func (ix *Index) selectNeighbours(query []float32, candidates []scored, max int) []scored {
	if len(candidates) <= max {
		return candidates
	}

	selected := make([]scored, 0, max)
	var pruned []scored

	for _, c := range candidates {
		if len(selected) >= max {
			break
		}
		diverse := true
		for _, s := range selected {
			if squaredDistance(ix.nodes[c.id].vector, ix.nodes[s.id].vector) < c.dist {
				diverse = false
				break
			}
		}
		if diverse {
			selected = append(selected, c)
		} else {
			pruned = append(pruned, c)
		}
	}

	for _, c := range pruned {
		if len(selected) >= max {
			break
		}
		selected = append(selected, c)
	}

	return selected
}

// link adds an edge from an existing node to the new node, pruning the
// neighbour list back to budget when it overflows. Pruning re-runs the
// diversity heuristic relative to the existing node's own vector, which
// mutates another node's edges; this is why inserts are exclusive.
func (ix *Index) link(from, to, layer int) {
	n := ix.nodes[from]
	n.neighbors[layer] = append(n.neighbors[layer], int32(to))

	budget := ix.maxNeighbours(layer)
	if len(n.neighbors[layer]) <= budget {
		return
	}

	candidates := make([]scored, len(n.neighbors[layer]))
	for i, nb := range n.neighbors[layer] {
		candidates[i] = scored{id: int(nb), dist: squaredDistance(n.vector, ix.nodes[nb].vector)}
	}
	sortScored(candidates)

	kept := ix.selectNeighbours(n.vector, candidates, budget)
	n.neighbors[layer] = n.neighbors[layer][:0]
	for _, c := range kept {
		n.neighbors[layer] = append(n.neighbors[layer], int32(c.id))
	}
}

// Normalise scales v to unit length in place. A zero vector is left as is.
// Normalising keeps inner-product and cosine rankings identical and makes
// squared Euclidean distance a monotone function of cosine similarity.
func Normalise(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1.0 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

// squaredDistance returns the squared Euclidean distance. On unit vectors
// d² = 2 − 2·cos(θ).
func squaredDistance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// similarity converts a squared distance between unit vectors to a cosine
// similarity clamped to [0, 1].
func similarity(d2 float32) float64 {
	s := 1.0 - float64(d2)/2.0
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
