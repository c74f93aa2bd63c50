package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"

	"github.com/your-org/faceid/internal/models"
)

type fakeVectorStore struct {
	ids       []string
	vectors   []models.Signature
	metas     []models.SampleMetadata
	addCalls  int
	neighbors []models.Neighbor
	addErr    error
	queryErr  error
}

func (f *fakeVectorStore) Add(ctx context.Context, ids []string, vectors []models.Signature, metas []models.SampleMetadata) error {
	f.addCalls++
	if f.addErr != nil {
		return f.addErr
	}
	f.ids = append(f.ids, ids...)
	f.vectors = append(f.vectors, vectors...)
	f.metas = append(f.metas, metas...)
	return nil
}

func (f *fakeVectorStore) Query(ctx context.Context, vector models.Signature, k int) ([]models.Neighbor, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if len(f.neighbors) > k {
		return f.neighbors[:k], nil
	}
	return f.neighbors, nil
}

func neighborAt(distance float64, id uuid.UUID, name string) models.Neighbor {
	return models.Neighbor{
		ID:       models.SampleID(id, 0),
		Distance: distance,
		Metadata: models.SampleMetadata{PersonID: id, DisplayName: name},
	}
}

func newTestStore(t *testing.T, vs VectorStore, threshold float64) *Store {
	t.Helper()
	s, err := NewStore(vs, threshold, nil)
	gt.NoError(t, err)
	return s
}

func TestNewStoreRejectsBadThreshold(t *testing.T) {
	for _, thr := range []float64{-0.1, 1.01} {
		_, err := NewStore(&fakeVectorStore{}, thr, nil)
		gt.True(t, errors.Is(err, ErrInvalidThreshold))
	}
}

func TestFindBestMatchThresholdBoundary(t *testing.T) {
	alice := uuid.New()
	tests := []struct {
		name     string
		distance float64
		matched  bool
	}{
		{"identical", 0, true},
		{"at threshold", 0.4, true},
		{"just below", 0.41, false},
		{"orthogonal", 1, false},
		{"opposite", 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs := &fakeVectorStore{neighbors: []models.Neighbor{neighborAt(tt.distance, alice, "Alice")}}
			s := newTestStore(t, vs, 0.6)

			res, err := s.FindBestMatch(context.Background(), models.Signature{1, 0})
			if !tt.matched {
				gt.True(t, errors.Is(err, ErrNoMatch))
				var nm *NoMatchError
				gt.True(t, errors.As(err, &nm))
				gt.Equal(t, nm.Reason, ReasonBelowThreshold)
				return
			}
			gt.NoError(t, err)
			gt.Equal(t, res.PersonID, alice)
			gt.Equal(t, res.DisplayName, "Alice")
			gt.True(t, res.Confidence >= 0.6)
		})
	}
}

func TestFindBestMatchEmptyStore(t *testing.T) {
	s := newTestStore(t, &fakeVectorStore{}, 0.6)

	_, err := s.FindBestMatch(context.Background(), models.Signature{1, 0})
	gt.True(t, errors.Is(err, ErrNoMatch))
	var nm *NoMatchError
	gt.True(t, errors.As(err, &nm))
	gt.Equal(t, nm.Reason, ReasonEmpty)
}

func TestFindBestMatchStoreFaultIsNoMatch(t *testing.T) {
	cause := errors.New("connection refused")
	s := newTestStore(t, &fakeVectorStore{queryErr: cause}, 0.6)

	_, err := s.FindBestMatch(context.Background(), models.Signature{1, 0})
	gt.True(t, errors.Is(err, ErrNoMatch))
	gt.True(t, errors.Is(err, cause))
	var nm *NoMatchError
	gt.True(t, errors.As(err, &nm))
	gt.Equal(t, nm.Reason, ReasonStoreFault)
}

func TestFindBestMatchIsIdempotent(t *testing.T) {
	vs := &fakeVectorStore{neighbors: []models.Neighbor{neighborAt(0.2, uuid.New(), "Bob")}}
	s := newTestStore(t, vs, 0.6)

	first, err := s.FindBestMatch(context.Background(), models.Signature{1, 0})
	gt.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := s.FindBestMatch(context.Background(), models.Signature{1, 0})
		gt.NoError(t, err)
		gt.Equal(t, again.PersonID, first.PersonID)
		gt.Equal(t, again.Confidence, first.Confidence)
	}
}

func TestSimilarityBoundsAndMonotonicity(t *testing.T) {
	prev := Similarity(0)
	gt.Equal(t, prev, 1.0)
	for d := 0.05; d <= 2.0; d += 0.05 {
		sim := Similarity(d)
		gt.True(t, sim >= 0 && sim <= 1)
		gt.True(t, sim <= prev)
		prev = sim
	}
	gt.Equal(t, Similarity(-0.5), 1.0)
	gt.Equal(t, Similarity(3), 0.0)
}

func TestDecide(t *testing.T) {
	gt.True(t, Decide(0.6, 0.6))
	gt.True(t, Decide(0.9, 0.6))
	gt.False(t, Decide(0.59, 0.6))
	gt.True(t, Decide(0, 0))
}

func TestEnrollWritesAllSamplesAtOnce(t *testing.T) {
	vs := &fakeVectorStore{}
	s := newTestStore(t, vs, 0.6)

	p := &models.Person{
		ID:              uuid.New(),
		DisplayName:     "Carol",
		ProfileImageRef: "profiles/carol.jpg",
		EnrolledAt:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	samples := []models.Signature{{1, 0}, {0, 1}, {0.6, 0.8}}

	gt.NoError(t, s.Enroll(context.Background(), p, samples))
	gt.Equal(t, vs.addCalls, 1)
	gt.A(t, vs.ids).Length(3)
	for i, id := range vs.ids {
		gt.Equal(t, id, models.SampleID(p.ID, i))
		gt.Equal(t, vs.metas[i].SampleIndex, i)
		gt.Equal(t, vs.metas[i].PersonID, p.ID)
		gt.Equal(t, vs.metas[i].DisplayName, "Carol")
		gt.Equal(t, vs.metas[i].ProfileImageRef, "profiles/carol.jpg")
	}
	gt.Equal(t, p.SampleCount, 3)
}

func TestEnrollRejectsEmptySamples(t *testing.T) {
	vs := &fakeVectorStore{}
	s := newTestStore(t, vs, 0.6)

	err := s.Enroll(context.Background(), &models.Person{ID: uuid.New()}, nil)
	gt.True(t, errors.Is(err, ErrNoSamples))
	gt.Equal(t, vs.addCalls, 0)
}

func TestEnrollPropagatesStoreFault(t *testing.T) {
	cause := errors.New("disk full")
	s := newTestStore(t, &fakeVectorStore{addErr: cause}, 0.6)

	err := s.Enroll(context.Background(), &models.Person{ID: uuid.New()}, []models.Signature{{1}})
	gt.True(t, errors.Is(err, cause))
}
