package capture

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDeviceUnavailable is returned when the capture device cannot be opened
	// or is not configured.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrReadFailed is returned when an open device times out or yields no frame.
	// It also matches ErrDeviceUnavailable.
	ErrReadFailed = fmt.Errorf("%w: frame read failed", ErrDeviceUnavailable)
	// ErrDecode is returned for bytes that are not a supported image encoding.
	ErrDecode = errors.New("invalid image encoding")
)

// Device is an open capture device handle.
type Device interface {
	// ReadFrame returns one encoded frame.
	ReadFrame(ctx context.Context) ([]byte, error)
	Release() error
}

// Opener opens capture devices by id.
type Opener interface {
	Open(ctx context.Context, deviceID string) (Device, error)
}
