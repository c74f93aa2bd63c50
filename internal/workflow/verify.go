package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceid/internal/capture"
	"github.com/your-org/faceid/internal/identity"
	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/observability"
	"github.com/your-org/faceid/internal/vision"
)

type VerifierConfig struct {
	Source     ImageSource
	Extractor  SignatureExtractor
	Identities IdentityStore
	Events     EventPublisher // optional
	Logger     *slog.Logger
	Now        func() time.Time
	NewID      func() uuid.UUID
}

// Verifier answers "who is this" for one image per call. It keeps no state
// between calls.
type Verifier struct {
	cfg VerifierConfig
}

func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if cfg.Source == nil || cfg.Extractor == nil || cfg.Identities == nil {
		return nil, fmt.Errorf("new verifier: source, extractor and identities are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.New
	}
	return &Verifier{cfg: cfg}, nil
}

// Recognize acquires one image (encoded, or a live frame when empty),
// extracts its signature and looks up the best match. Errors are returned
// as-is from the failing stage.
func (v *Verifier) Recognize(ctx context.Context, encoded []byte) (*models.MatchResult, error) {
	img, err := v.cfg.Source.Acquire(ctx, encoded)
	if err != nil {
		return nil, v.failed("acquiring", err)
	}

	sig, err := v.cfg.Extractor.Extract(ctx, img.Pixels)
	if err != nil {
		return nil, v.failed("extracting", err)
	}

	res, err := v.cfg.Identities.FindBestMatch(ctx, sig)
	if err != nil {
		v.failed("matching", err)
		if errors.Is(err, identity.ErrNoMatch) {
			v.publish(ctx, &models.IdentityEvent{
				ID:        v.cfg.NewID(),
				Type:      models.EventRejected,
				Reason:    noMatchReason(err),
				Timestamp: v.cfg.Now().UTC(),
			})
		}
		return nil, err
	}

	res.QueryTime = v.cfg.Now().UTC()
	observability.Recognitions.WithLabelValues("recognized").Inc()
	v.cfg.Logger.Info("person recognized", "person_id", res.PersonID, "confidence", res.Confidence)

	v.publish(ctx, &models.IdentityEvent{
		ID:          v.cfg.NewID(),
		Type:        models.EventRecognized,
		PersonID:    &res.PersonID,
		DisplayName: res.DisplayName,
		Confidence:  res.Confidence,
		Timestamp:   res.QueryTime,
	})
	return res, nil
}

func (v *Verifier) failed(stage string, err error) error {
	outcome := Outcome(err)
	observability.Recognitions.WithLabelValues(outcome).Inc()
	v.cfg.Logger.Info("recognition failed", "stage", stage, "outcome", outcome, "error", err)
	return err
}

func (v *Verifier) publish(ctx context.Context, ev *models.IdentityEvent) {
	if v.cfg.Events == nil {
		return
	}
	if err := v.cfg.Events.PublishIdentityEvent(ctx, ev); err != nil {
		v.cfg.Logger.Warn("publish identity event", "type", ev.Type, "error", err)
	}
}

// Outcome names the failure kind of a verification error for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "recognized"
	case errors.Is(err, capture.ErrDecode):
		return "decode_error"
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return "device_unavailable"
	case errors.Is(err, vision.ErrNoFaceDetected):
		return "no_face"
	case errors.Is(err, vision.ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, identity.ErrNoMatch):
		return "not_recognized"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "error"
}

func noMatchReason(err error) string {
	var nm *identity.NoMatchError
	if errors.As(err, &nm) {
		return string(nm.Reason)
	}
	return ""
}
