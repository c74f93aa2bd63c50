package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"sync"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/your-org/faceid/internal/observability"
)

// Image is one decoded picture, either caller-supplied or read from the device.
type Image struct {
	Pixels image.Image
	Format string
	Live   bool
}

// JPEG re-encodes the image for storage.
func (i *Image) JPEG(quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, i.Pixels, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses jpeg, png, gif, bmp, tiff or webp bytes.
func Decode(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &Image{Pixels: img, Format: format}, nil
}

// Source produces images for the workflows. It owns the process-wide capture
// device; at most one acquisition holds the device at a time.
type Source struct {
	opener   Opener
	deviceID string
	logger   *slog.Logger

	mu     sync.Mutex
	device Device
}

// NewSource creates a Source reading from deviceID through opener.
// A nil opener means no device is configured: live acquisition always fails
// with ErrDeviceUnavailable while decoding still works.
func NewSource(opener Opener, deviceID string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{opener: opener, deviceID: deviceID, logger: logger}
}

// Acquire decodes encoded when it is non-empty, otherwise reads one frame
// from the device.
func (s *Source) Acquire(ctx context.Context, encoded []byte) (*Image, error) {
	if len(encoded) > 0 {
		return Decode(encoded)
	}

	start := time.Now()
	frame, err := s.readFrame(ctx)
	observability.StageDuration.WithLabelValues("capture").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	img, err := Decode(frame)
	if err != nil {
		observability.DeviceErrors.WithLabelValues("decode").Inc()
		return nil, fmt.Errorf("%w: device returned undecodable frame: %v", ErrReadFailed, err)
	}
	img.Live = true
	return img, nil
}

func (s *Source) readFrame(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		if s.opener == nil {
			return nil, fmt.Errorf("%w: no capture device configured", ErrDeviceUnavailable)
		}
		dev, err := s.opener.Open(ctx, s.deviceID)
		if err != nil {
			observability.DeviceErrors.WithLabelValues("open").Inc()
			s.logger.Warn("open capture device", "device", s.deviceID, "error", err)
			if errors.Is(err, ErrDeviceUnavailable) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: open %s: %v", ErrDeviceUnavailable, s.deviceID, err)
		}
		s.device = dev
		s.logger.Info("capture device opened", "device", s.deviceID)
	}

	frame, err := s.device.ReadFrame(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		observability.DeviceErrors.WithLabelValues("read").Inc()
		s.logger.Warn("read frame", "device", s.deviceID, "error", err)
		s.releaseLocked()
		if errors.Is(err, ErrReadFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	if len(frame) == 0 {
		observability.DeviceErrors.WithLabelValues("read").Inc()
		return nil, fmt.Errorf("%w: empty frame", ErrReadFailed)
	}
	return frame, nil
}

// Status reports "disabled", "closed" or "open" for readiness checks.
func (s *Source) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.opener == nil:
		return "disabled"
	case s.device == nil:
		return "closed"
	default:
		return "open"
	}
}

// Close releases the device if it is open.
func (s *Source) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
}

func (s *Source) releaseLocked() {
	if s.device == nil {
		return
	}
	if err := s.device.Release(); err != nil {
		s.logger.Warn("release capture device", "device", s.deviceID, "error", err)
	}
	s.device = nil
}
