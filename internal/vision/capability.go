package vision

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/your-org/faceid/internal/config"
)

// ONNXCapability detects faces with RetinaFace and embeds them with ArcFace.
// The ORT sessions reuse bound tensors, so calls are serialised.
type ONNXCapability struct {
	mu       sync.Mutex
	detector *Detector
	embedder *Embedder
}

// NewONNXCapability loads det_10g.onnx and w600k_r50.onnx from cfg.ModelsDir.
// The ONNX Runtime environment must already be initialised.
func NewONNXCapability(cfg config.VisionConfig) (*ONNXCapability, error) {
	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	embPath := filepath.Join(cfg.ModelsDir, "w600k_r50.onnx")

	slog.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath, float32(cfg.DetectionThreshold))
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := NewEmbedder(embPath)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &ONNXCapability{detector: det, embedder: emb}, nil
}

// DetectAndEmbed returns one candidate per detected face, in detector order.
func (c *ONNXCapability) DetectAndEmbed(ctx context.Context, img image.Image) ([]FaceCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	input := toCHW(img, detInputSize, detNorm)

	c.mu.Lock()
	defer c.mu.Unlock()

	dets, err := c.detector.Detect(input, b.Dx(), b.Dy())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapability, err)
	}

	candidates := make([]FaceCandidate, 0, len(dets))
	for _, d := range dets {
		box := [4]float32{
			d.BBox[0] + float32(b.Min.X), d.BBox[1] + float32(b.Min.Y),
			d.BBox[2] + float32(b.Min.X), d.BBox[3] + float32(b.Min.Y),
		}
		crop := cropFace(img, box)
		if crop == nil {
			continue
		}
		emb, err := c.embedder.Extract(toCHW(crop, embInputSize, embNorm))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCapability, err)
		}
		candidates = append(candidates, FaceCandidate{BBox: box, Confidence: d.Confidence, Embedding: emb})
	}
	return candidates, nil
}

func (c *ONNXCapability) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detector.Close()
	c.embedder.Close()
}

// Unavailable stands in for the capability when the models could not be loaded.
type Unavailable struct {
	Err error
}

func (u Unavailable) DetectAndEmbed(context.Context, image.Image) ([]FaceCandidate, error) {
	return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, u.Err)
}
