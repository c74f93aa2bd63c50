package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceid/internal/capture"
	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/observability"
)

const profileJPEGQuality = 90

type EnrollState int

const (
	EnrollStart EnrollState = iota
	EnrollCapturing
	EnrollCommitting
	EnrollDone
	EnrollFailed
)

func (s EnrollState) String() string {
	switch s {
	case EnrollStart:
		return "start"
	case EnrollCapturing:
		return "capturing"
	case EnrollCommitting:
		return "committing"
	case EnrollDone:
		return "done"
	case EnrollFailed:
		return "failed"
	}
	return "unknown"
}

type EnrollerConfig struct {
	Source       ImageSource
	Extractor    SignatureExtractor
	Identities   IdentityStore
	Images       ImageStore
	Events       EventPublisher // optional
	Pacer        Pacer          // defaults to NoPause
	CaptureCount int
	Logger       *slog.Logger
	Now          func() time.Time
	NewID        func() uuid.UUID
}

// Enroller registers new persons from a fixed number of face captures.
// Sessions run concurrently; only device reads are serialised, by the source.
type Enroller struct {
	cfg EnrollerConfig
}

func NewEnroller(cfg EnrollerConfig) (*Enroller, error) {
	if cfg.Source == nil || cfg.Extractor == nil || cfg.Identities == nil || cfg.Images == nil {
		return nil, fmt.Errorf("new enroller: source, extractor, identities and images are required")
	}
	if cfg.CaptureCount < 1 {
		return nil, fmt.Errorf("new enroller: capture count must be >= 1, got %d", cfg.CaptureCount)
	}
	if cfg.Pacer == nil {
		cfg.Pacer = NoPause{}
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
	return &Enroller{cfg: cfg}, nil
}

func (e *Enroller) CaptureCount() int { return e.cfg.CaptureCount }

type session struct {
	state  EnrollState
	logger *slog.Logger
}

func (s *session) to(state EnrollState, args ...any) {
	s.state = state
	s.logger.Debug("enrollment state", append([]any{"state", state.String()}, args...)...)
}

// Register runs one enrollment session. With no images it captures
// CaptureCount live frames, pausing between them; otherwise images must
// hold exactly CaptureCount encoded pictures. Nothing is persisted unless
// every capture yields a signature.
func (e *Enroller) Register(ctx context.Context, displayName string, images [][]byte) (*models.Person, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		observability.Enrollments.WithLabelValues("invalid_input").Inc()
		return nil, fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}
	n := e.cfg.CaptureCount
	if len(images) != 0 && len(images) != n {
		observability.Enrollments.WithLabelValues("invalid_input").Inc()
		return nil, fmt.Errorf("%w: expected %d images, got %d", ErrInvalidInput, n, len(images))
	}
	live := len(images) == 0

	s := &session{state: EnrollStart, logger: e.cfg.Logger.With("display_name", displayName, "live", live)}
	s.to(EnrollStart)

	samples := make([]models.Signature, 0, n)
	var profile *capture.Image
	for i := 1; i <= n; i++ {
		if live && i > 1 {
			if err := e.cfg.Pacer.Pause(ctx, i); err != nil {
				return nil, e.fail(s, &EnrollmentError{Attempt: i, Reason: err})
			}
		}
		s.to(EnrollCapturing, "attempt", i)

		var encoded []byte
		if !live {
			encoded = images[i-1]
		}
		img, err := e.cfg.Source.Acquire(ctx, encoded)
		if err != nil {
			return nil, e.fail(s, &EnrollmentError{Attempt: i, Reason: err})
		}
		sig, err := e.cfg.Extractor.Extract(ctx, img.Pixels)
		if err != nil {
			return nil, e.fail(s, &EnrollmentError{Attempt: i, Reason: err})
		}

		if profile == nil {
			profile = img
		}
		samples = append(samples, sig)
	}

	s.to(EnrollCommitting)
	person, err := e.commit(ctx, displayName, profile, samples)
	if err != nil {
		s.to(EnrollFailed, "error", err)
		observability.Enrollments.WithLabelValues("commit_failed").Inc()
		return nil, err
	}

	s.to(EnrollDone, "person_id", person.ID)
	observability.Enrollments.WithLabelValues("success").Inc()
	e.publish(ctx, &models.IdentityEvent{
		ID:          e.cfg.NewID(),
		Type:        models.EventEnrolled,
		PersonID:    &person.ID,
		DisplayName: person.DisplayName,
		Timestamp:   person.EnrolledAt,
	})
	return person, nil
}

func (e *Enroller) fail(s *session, err *EnrollmentError) error {
	s.to(EnrollFailed, "attempt", err.Attempt, "error", err.Reason)
	observability.Enrollments.WithLabelValues("capture_failed").Inc()
	return err
}

// commit assigns the person id and writes the profile image, then the samples.
// A failed sample write removes the image again.
func (e *Enroller) commit(ctx context.Context, displayName string, profile *capture.Image, samples []models.Signature) (*models.Person, error) {
	person := &models.Person{
		ID:          e.cfg.NewID(),
		DisplayName: displayName,
		EnrolledAt:  e.cfg.Now().UTC(),
	}

	data, err := profile.JPEG(profileJPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}
	ref, err := e.cfg.Images.Save(ctx, "profiles/"+person.ID.String()+".jpg", data, "image/jpeg")
	if err != nil {
		return nil, fmt.Errorf("%w: save profile image: %w", ErrCommitFailed, err)
	}
	person.ProfileImageRef = ref

	if err := e.cfg.Identities.Enroll(ctx, person, samples); err != nil {
		if derr := e.cfg.Images.Delete(context.WithoutCancel(ctx), ref); derr != nil {
			e.cfg.Logger.Warn("remove orphaned profile image", "ref", ref, "error", derr)
		}
		return nil, fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}
	return person, nil
}

func (e *Enroller) publish(ctx context.Context, ev *models.IdentityEvent) {
	if e.cfg.Events == nil {
		return
	}
	if err := e.cfg.Events.PublishIdentityEvent(ctx, ev); err != nil {
		e.cfg.Logger.Warn("publish identity event", "type", ev.Type, "error", err)
	}
}
