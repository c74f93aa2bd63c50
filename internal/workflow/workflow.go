// Package workflow runs enrollment and verification sessions over the
// capture, extraction and identity components.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/your-org/faceid/internal/capture"
	"github.com/your-org/faceid/internal/models"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrEnrollmentFailed = errors.New("enrollment failed")
	ErrCommitFailed     = errors.New("enrollment commit failed")
)

// EnrollmentError reports the 1-based capture attempt that aborted a session.
type EnrollmentError struct {
	Attempt int
	Reason  error
}

func (e *EnrollmentError) Error() string {
	return fmt.Sprintf("%s at attempt %d: %v", ErrEnrollmentFailed, e.Attempt, e.Reason)
}

func (e *EnrollmentError) Is(target error) bool { return target == ErrEnrollmentFailed }

func (e *EnrollmentError) Unwrap() error { return e.Reason }

type ImageSource interface {
	Acquire(ctx context.Context, encoded []byte) (*capture.Image, error)
}

type SignatureExtractor interface {
	Extract(ctx context.Context, img image.Image) (models.Signature, error)
}

type IdentityStore interface {
	Enroll(ctx context.Context, person *models.Person, samples []models.Signature) error
	FindBestMatch(ctx context.Context, query models.Signature) (*models.MatchResult, error)
}

type ImageStore interface {
	Save(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, ref string) error
}

type EventPublisher interface {
	PublishIdentityEvent(ctx context.Context, ev *models.IdentityEvent) error
}

// Pacer delays the next live capture so the subject can reposition.
// attempt is the 1-based index of the capture about to run.
type Pacer interface {
	Pause(ctx context.Context, attempt int) error
}

// FixedPacer waits a constant interval.
type FixedPacer struct {
	Interval time.Duration
}

func (p FixedPacer) Pause(ctx context.Context, attempt int) error {
	if p.Interval <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.Interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoPause never waits.
type NoPause struct{}

func (NoPause) Pause(ctx context.Context, attempt int) error { return ctx.Err() }
