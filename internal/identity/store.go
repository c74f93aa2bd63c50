// Package identity maps face signatures to enrolled persons on top of a
// nearest-neighbour vector store.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/observability"
)

var (
	// ErrNoMatch is returned by FindBestMatch whenever no enrolled person is
	// accepted. Use errors.As with *NoMatchError to learn why.
	ErrNoMatch = errors.New("no matching identity")

	ErrNoSamples        = errors.New("at least one sample is required")
	ErrInvalidThreshold = errors.New("threshold must be in [0,1]")
)

type NoMatchReason string

const (
	ReasonBelowThreshold NoMatchReason = "below_threshold"
	ReasonEmpty          NoMatchReason = "empty"
	ReasonStoreFault     NoMatchReason = "store_fault"
)

// NoMatchError carries the cause behind ErrNoMatch.
type NoMatchError struct {
	Reason     NoMatchReason
	Similarity float64
	Cause      error
}

func (e *NoMatchError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("%s (%s): %v", ErrNoMatch, e.Reason, e.Cause)
	case e.Reason == ReasonBelowThreshold:
		return fmt.Sprintf("%s (%s, similarity %.4f)", ErrNoMatch, e.Reason, e.Similarity)
	default:
		return fmt.Sprintf("%s (%s)", ErrNoMatch, e.Reason)
	}
}

func (e *NoMatchError) Is(target error) bool { return target == ErrNoMatch }

func (e *NoMatchError) Unwrap() error { return e.Cause }

// VectorStore is the nearest-neighbour backend. Add must be atomic: either
// every entry is stored or none is. Query returns at most k neighbours
// ordered by ascending distance.
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors []models.Signature, metas []models.SampleMetadata) error
	Query(ctx context.Context, vector models.Signature, k int) ([]models.Neighbor, error)
}

type Store struct {
	vectors   VectorStore
	threshold float64
	logger    *slog.Logger
}

func NewStore(vectors VectorStore, threshold float64, logger *slog.Logger) (*Store, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidThreshold, threshold)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{vectors: vectors, threshold: threshold, logger: logger}, nil
}

func (s *Store) Threshold() float64 { return s.threshold }

// Enroll stores every sample of person under ids <person_id>_<i> in one
// Add call.
func (s *Store) Enroll(ctx context.Context, person *models.Person, samples []models.Signature) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}

	ids := make([]string, len(samples))
	metas := make([]models.SampleMetadata, len(samples))
	for i := range samples {
		ids[i] = models.SampleID(person.ID, i)
		metas[i] = models.SampleMetadata{
			PersonID:        person.ID,
			DisplayName:     person.DisplayName,
			ProfileImageRef: person.ProfileImageRef,
			EnrolledAt:      person.EnrolledAt,
			SampleIndex:     i,
		}
	}

	if err := s.vectors.Add(ctx, ids, samples, metas); err != nil {
		return fmt.Errorf("add samples: %w", err)
	}
	person.SampleCount = len(samples)
	s.logger.Info("person enrolled", "person_id", person.ID, "samples", len(samples))
	return nil
}

// FindBestMatch returns the nearest enrolled person if its similarity
// reaches the threshold. Every other outcome is a *NoMatchError.
func (s *Store) FindBestMatch(ctx context.Context, query models.Signature) (*models.MatchResult, error) {
	start := time.Now()
	defer func() {
		observability.StageDuration.WithLabelValues("match").Observe(time.Since(start).Seconds())
	}()

	neighbors, err := s.vectors.Query(ctx, query, 1)
	if err != nil {
		s.logger.Warn("vector store query failed", "error", err)
		return nil, &NoMatchError{Reason: ReasonStoreFault, Cause: err}
	}
	if len(neighbors) == 0 {
		return nil, &NoMatchError{Reason: ReasonEmpty}
	}

	best := neighbors[0]
	sim := Similarity(best.Distance)
	if !Decide(sim, s.threshold) {
		s.logger.Debug("best candidate below threshold",
			"person_id", best.Metadata.PersonID, "similarity", sim, "threshold", s.threshold)
		return nil, &NoMatchError{Reason: ReasonBelowThreshold, Similarity: sim}
	}

	return &models.MatchResult{
		PersonID:    best.Metadata.PersonID,
		DisplayName: best.Metadata.DisplayName,
		Confidence:  sim,
	}, nil
}

// Similarity converts cosine distance to a confidence in [0,1].
func Similarity(distance float64) float64 {
	return min(max(1-distance, 0), 1)
}

// Decide accepts a candidate when similarity >= threshold.
func Decide(similarity, threshold float64) bool {
	return similarity >= threshold
}
