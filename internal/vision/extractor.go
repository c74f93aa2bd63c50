package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/observability"
)

var (
	// ErrNoFaceDetected is returned when the capability finds no face in the image.
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrModelUnavailable is returned when the embedding models could not be loaded.
	ErrModelUnavailable = errors.New("face models unavailable")
	// ErrCapability wraps faults raised by the embedding capability itself.
	ErrCapability = errors.New("embedding capability failed")
)

// FaceCandidate is one face found by the capability.
type FaceCandidate struct {
	BBox       [4]float32 // x1, y1, x2, y2
	Confidence float32
	Embedding  []float32
}

// Area returns the bounding box area; inverted boxes count as zero.
func (c FaceCandidate) Area() float64 {
	w := float64(c.BBox[2] - c.BBox[0])
	h := float64(c.BBox[3] - c.BBox[1])
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Capability detects faces and embeds each of them.
type Capability interface {
	DetectAndEmbed(ctx context.Context, img image.Image) ([]FaceCandidate, error)
}

// SelectPrimary returns the index of the candidate with the largest box.
// Ties go to the earliest candidate. ok is false for an empty slice.
func SelectPrimary(candidates []FaceCandidate) (idx int, ok bool) {
	if len(candidates) == 0 {
		return 0, false
	}
	best, bestArea := 0, candidates[0].Area()
	for i := 1; i < len(candidates); i++ {
		if a := candidates[i].Area(); a > bestArea {
			best, bestArea = i, a
		}
	}
	return best, true
}

// Extractor turns an image into a single signature.
type Extractor struct {
	capability Capability
	logger     *slog.Logger
}

func NewExtractor(capability Capability, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{capability: capability, logger: logger}
}

// Extract runs detection and returns the primary face's embedding.
func (e *Extractor) Extract(ctx context.Context, img image.Image) (models.Signature, error) {
	start := time.Now()
	candidates, err := e.capability.DetectAndEmbed(ctx, img)
	observability.StageDuration.WithLabelValues("extract").Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, ErrModelUnavailable) || errors.Is(err, ErrCapability) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCapability, err)
	}

	idx, ok := SelectPrimary(candidates)
	if !ok {
		return nil, ErrNoFaceDetected
	}
	if len(candidates) > 1 {
		e.logger.Debug("multiple faces detected, using largest", "faces", len(candidates), "selected", idx)
	}

	primary := candidates[idx]
	if len(primary.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding for selected face", ErrCapability)
	}
	return models.Signature(primary.Embedding).Clone(), nil
}
