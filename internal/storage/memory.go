package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/coder/hnsw"
	"github.com/google/uuid"

	"github.com/your-org/faceid/internal/models"
)

const (
	hnswMaxNeighbors = 16
	// candidates pulled from the graph before exact re-ranking
	hnswMinCandidates = 64
	hnswEfSearch      = 200

	// DefaultExactScanLimit is the sample count up to which queries scan
	// every sample instead of walking the graph.
	DefaultExactScanLimit = 20000
)

var (
	ErrDimensionMismatch = errors.New("signature dimension mismatch")
	ErrDuplicateSample   = errors.New("sample id already stored")
)

type memorySample struct {
	vector models.Signature
	meta   models.SampleMetadata
}

// MemoryStore is an in-process vector store. Small stores are searched
// exactly; above the exact scan limit an HNSW graph supplies candidates and
// the exact scan is the fallback when none of them is close enough.
// Contents are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[string]
	samples map[string]memorySample
	dim     int

	exactScanLimit int
	acceptDistance float64
}

type MemoryOption func(*MemoryStore)

// WithExactScanLimit sets the sample count up to which every query is an
// exact scan. 0 always walks the graph first.
func WithExactScanLimit(n int) MemoryOption {
	return func(s *MemoryStore) { s.exactScanLimit = n }
}

// WithAcceptDistance sets the cosine distance a graph hit must reach to be
// trusted without an exact scan. Callers pass 1 - recognition threshold.
func WithAcceptDistance(d float64) MemoryOption {
	return func(s *MemoryStore) { s.acceptDistance = d }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	g := hnsw.NewGraph[string]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.EfSearch = hnswEfSearch
	g.Distance = hnsw.CosineDistance
	s := &MemoryStore{
		graph:          g,
		samples:        make(map[string]memorySample),
		exactScanLimit: DefaultExactScanLimit,
		acceptDistance: 0.4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add validates the whole batch before touching the graph, so a rejected
// batch leaves the store unchanged.
func (s *MemoryStore) Add(ctx context.Context, ids []string, vectors []models.Signature, metas []models.SampleMetadata) error {
	if len(ids) != len(vectors) || len(ids) != len(metas) {
		return fmt.Errorf("add samples: %d ids, %d vectors, %d metadata entries", len(ids), len(vectors), len(metas))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dim
	seen := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		if len(vectors[i]) == 0 {
			return fmt.Errorf("add sample %s: %w: empty vector", id, ErrDimensionMismatch)
		}
		if dim == 0 {
			dim = len(vectors[i])
		}
		if len(vectors[i]) != dim {
			return fmt.Errorf("add sample %s: %w: want %d, got %d", id, ErrDimensionMismatch, dim, len(vectors[i]))
		}
		if _, ok := s.samples[id]; ok {
			return fmt.Errorf("add sample %s: %w", id, ErrDuplicateSample)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("add sample %s: %w", id, ErrDuplicateSample)
		}
		seen[id] = struct{}{}
	}

	for i, id := range ids {
		v := vectors[i].Clone()
		s.graph.Add(hnsw.MakeNode(id, []float32(v)))
		s.samples[id] = memorySample{vector: v, meta: metas[i]}
	}
	s.dim = dim
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, vector models.Signature, k int) ([]models.Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 1
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.samples) == 0 {
		return nil, nil
	}
	if len(vector) != s.dim {
		return nil, fmt.Errorf("query: %w: want %d, got %d", ErrDimensionMismatch, s.dim, len(vector))
	}

	if len(s.samples) <= s.exactScanLimit {
		return s.scanLocked(vector, k), nil
	}

	out := s.graphLocked(vector, k)
	if len(out) == 0 || out[0].Distance > s.acceptDistance {
		// the graph walk can miss the true neighbour; only the scan is exact
		return s.scanLocked(vector, k), nil
	}
	return out, nil
}

func (s *MemoryStore) graphLocked(vector models.Signature, k int) []models.Neighbor {
	nodes := s.graph.Search([]float32(vector), max(k, hnswMinCandidates))
	out := make([]models.Neighbor, 0, len(nodes))
	for _, n := range nodes {
		sample, ok := s.samples[n.Key]
		if !ok {
			continue
		}
		out = append(out, models.Neighbor{
			ID:       n.Key,
			Distance: cosineDistance(vector, sample.vector),
			Metadata: sample.meta,
		})
	}
	return nearest(out, k)
}

func (s *MemoryStore) scanLocked(vector models.Signature, k int) []models.Neighbor {
	out := make([]models.Neighbor, 0, len(s.samples))
	for id, sample := range s.samples {
		out = append(out, models.Neighbor{
			ID:       id,
			Distance: cosineDistance(vector, sample.vector),
			Metadata: sample.meta,
		})
	}
	return nearest(out, k)
}

// nearest sorts by distance, then id so equal distances order stably, and
// keeps the first k.
func nearest(out []models.Neighbor, k int) []models.Neighbor {
	slices.SortFunc(out, func(a, b models.Neighbor) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func (s *MemoryStore) ListPersons(ctx context.Context, limit, offset int) ([]models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID := make(map[uuid.UUID]*models.Person)
	for _, sample := range s.samples {
		m := sample.meta
		p, ok := byID[m.PersonID]
		if !ok {
			p = &models.Person{
				ID:              m.PersonID,
				DisplayName:     m.DisplayName,
				ProfileImageRef: m.ProfileImageRef,
				EnrolledAt:      m.EnrolledAt,
			}
			byID[m.PersonID] = p
		}
		p.SampleCount++
	}

	persons := make([]models.Person, 0, len(byID))
	for _, p := range byID {
		persons = append(persons, *p)
	}
	slices.SortFunc(persons, func(a, b models.Person) int {
		if c := b.EnrolledAt.Compare(a.EnrolledAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})

	if limit <= 0 {
		limit = 50
	}
	if offset >= len(persons) {
		return nil, nil
	}
	return persons[offset:min(offset+limit, len(persons))], nil
}

func (s *MemoryStore) GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p *models.Person
	for _, sample := range s.samples {
		if sample.meta.PersonID != id {
			continue
		}
		if p == nil {
			p = &models.Person{
				ID:              id,
				DisplayName:     sample.meta.DisplayName,
				ProfileImageRef: sample.meta.ProfileImageRef,
				EnrolledAt:      sample.meta.EnrolledAt,
			}
		}
		p.SampleCount++
	}
	if p == nil {
		return nil, ErrPersonNotFound
	}
	return p, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Len returns the number of stored samples.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

// cosineDistance matches pgvector's <=> operator: 1 - cos(a, b).
// Zero vectors are treated as maximally distant from everything.
func cosineDistance(a, b models.Signature) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
