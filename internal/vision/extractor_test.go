package vision

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/m-mizutani/gt"
)

type stubCapability struct {
	candidates []FaceCandidate
	err        error
}

func (s *stubCapability) DetectAndEmbed(ctx context.Context, img image.Image) ([]FaceCandidate, error) {
	return s.candidates, s.err
}

func box(x1, y1, x2, y2 float32, emb ...float32) FaceCandidate {
	return FaceCandidate{BBox: [4]float32{x1, y1, x2, y2}, Confidence: 0.9, Embedding: emb}
}

var blank = image.NewRGBA(image.Rect(0, 0, 8, 8))

func TestSelectPrimary(t *testing.T) {
	tests := []struct {
		name       string
		candidates []FaceCandidate
		want       int
		ok         bool
	}{
		{"empty", nil, 0, false},
		{"single", []FaceCandidate{box(0, 0, 10, 10)}, 0, true},
		{"largest wins", []FaceCandidate{box(0, 0, 10, 10), box(0, 0, 30, 20), box(0, 0, 20, 20)}, 1, true},
		{"tie keeps first seen", []FaceCandidate{box(0, 0, 5, 5), box(0, 0, 20, 10), box(50, 50, 60, 70)}, 1, true},
		{"inverted box counts as zero", []FaceCandidate{box(10, 10, 0, 0), box(0, 0, 1, 1)}, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, ok := SelectPrimary(tt.candidates)
			gt.Equal(t, ok, tt.ok)
			if ok {
				gt.Equal(t, idx, tt.want)
			}
		})
	}
}

func TestSelectPrimaryIsStable(t *testing.T) {
	candidates := []FaceCandidate{box(0, 0, 10, 20), box(5, 5, 25, 15), box(0, 0, 4, 4)}
	first, _ := SelectPrimary(candidates)
	for i := 0; i < 100; i++ {
		idx, _ := SelectPrimary(candidates)
		gt.Equal(t, idx, first)
	}
	gt.Equal(t, first, 0)
}

func TestExtractNoFace(t *testing.T) {
	ex := NewExtractor(&stubCapability{}, nil)

	_, err := ex.Extract(context.Background(), blank)
	gt.True(t, errors.Is(err, ErrNoFaceDetected))
}

func TestExtractPicksLargestFace(t *testing.T) {
	ex := NewExtractor(&stubCapability{candidates: []FaceCandidate{
		box(0, 0, 10, 10, 1, 0),
		box(0, 0, 40, 40, 0, 1),
	}}, nil)

	sig, err := ex.Extract(context.Background(), blank)
	gt.NoError(t, err)
	gt.Equal(t, []float32(sig), []float32{0, 1})
}

func TestExtractReturnsCopy(t *testing.T) {
	emb := []float32{0.6, 0.8}
	ex := NewExtractor(&stubCapability{candidates: []FaceCandidate{box(0, 0, 1, 1, emb...)}}, nil)

	sig, err := ex.Extract(context.Background(), blank)
	gt.NoError(t, err)
	emb[0] = 42
	gt.Equal(t, sig[0], float32(0.6))
}

func TestExtractCapabilityFault(t *testing.T) {
	ex := NewExtractor(&stubCapability{err: errors.New("session crashed")}, nil)

	_, err := ex.Extract(context.Background(), blank)
	gt.True(t, errors.Is(err, ErrCapability))
	gt.False(t, errors.Is(err, ErrNoFaceDetected))
}

func TestExtractEmptyEmbedding(t *testing.T) {
	ex := NewExtractor(&stubCapability{candidates: []FaceCandidate{box(0, 0, 1, 1)}}, nil)

	_, err := ex.Extract(context.Background(), blank)
	gt.True(t, errors.Is(err, ErrCapability))
}

func TestExtractModelUnavailable(t *testing.T) {
	ex := NewExtractor(Unavailable{Err: errors.New("libonnxruntime.so not found")}, nil)

	_, err := ex.Extract(context.Background(), blank)
	gt.True(t, errors.Is(err, ErrModelUnavailable))
}
