package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	gt.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type stubDevice struct {
	frame    []byte
	err      error
	delay    time.Duration
	reads    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	released atomic.Bool
}

func (d *stubDevice) ReadFrame(ctx context.Context) ([]byte, error) {
	d.reads.Add(1)
	n := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		seen := d.maxSeen.Load()
		if n <= seen || d.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	return d.frame, d.err
}

func (d *stubDevice) Release() error {
	d.released.Store(true)
	return nil
}

type stubOpener struct {
	device *stubDevice
	err    error
	opens  atomic.Int32
}

func (o *stubOpener) Open(ctx context.Context, deviceID string) (Device, error) {
	o.opens.Add(1)
	if o.err != nil {
		return nil, o.err
	}
	return o.device, nil
}

func TestAcquireDecodesSuppliedBytes(t *testing.T) {
	src := NewSource(nil, "", nil)

	img, err := src.Acquire(context.Background(), pngBytes(t))
	gt.NoError(t, err)
	gt.Equal(t, img.Format, "png")
	gt.False(t, img.Live)
	gt.Equal(t, img.Pixels.Bounds().Dx(), 4)
}

func TestAcquireRejectsMalformedBytes(t *testing.T) {
	src := NewSource(nil, "", nil)

	_, err := src.Acquire(context.Background(), []byte("definitely not an image"))
	gt.True(t, errors.Is(err, ErrDecode))
}

func TestAcquireWithoutDeviceIsUnavailable(t *testing.T) {
	src := NewSource(nil, "/dev/video0", nil)

	_, err := src.Acquire(context.Background(), nil)
	gt.True(t, errors.Is(err, ErrDeviceUnavailable))
	gt.Equal(t, src.Status(), "disabled")
}

func TestAcquireOpenFailureIsUnavailable(t *testing.T) {
	opener := &stubOpener{err: errors.New("no such device")}
	src := NewSource(opener, "/dev/video9", nil)

	_, err := src.Acquire(context.Background(), nil)
	gt.True(t, errors.Is(err, ErrDeviceUnavailable))
	gt.False(t, errors.Is(err, ErrReadFailed))

	_, err = src.Acquire(context.Background(), nil)
	gt.Error(t, err)
	gt.Equal(t, opener.opens.Load(), int32(2))
}

func TestAcquireReadsLiveFrame(t *testing.T) {
	dev := &stubDevice{frame: pngBytes(t)}
	opener := &stubOpener{device: dev}
	src := NewSource(opener, "/dev/video0", nil)

	img, err := src.Acquire(context.Background(), nil)
	gt.NoError(t, err)
	gt.True(t, img.Live)

	_, err = src.Acquire(context.Background(), nil)
	gt.NoError(t, err)
	gt.Equal(t, opener.opens.Load(), int32(1))
	gt.Equal(t, src.Status(), "open")

	src.Close()
	gt.True(t, dev.released.Load())
	gt.Equal(t, src.Status(), "closed")
}

func TestAcquireReadFailureReleasesDevice(t *testing.T) {
	dev := &stubDevice{err: errors.New("timeout")}
	src := NewSource(&stubOpener{device: dev}, "/dev/video0", nil)

	_, err := src.Acquire(context.Background(), nil)
	gt.True(t, errors.Is(err, ErrReadFailed))
	gt.True(t, errors.Is(err, ErrDeviceUnavailable))
	gt.True(t, dev.released.Load())
}

func TestAcquireEmptyFrameIsReadFailure(t *testing.T) {
	src := NewSource(&stubOpener{device: &stubDevice{}}, "/dev/video0", nil)

	_, err := src.Acquire(context.Background(), nil)
	gt.True(t, errors.Is(err, ErrReadFailed))
}

func TestAcquireGarbageFrameIsReadFailure(t *testing.T) {
	src := NewSource(&stubOpener{device: &stubDevice{frame: []byte{0xFF, 0xD8, 0x00}}}, "/dev/video0", nil)

	_, err := src.Acquire(context.Background(), nil)
	gt.True(t, errors.Is(err, ErrReadFailed))
}

func TestAcquireSerialisesDeviceAccess(t *testing.T) {
	dev := &stubDevice{frame: pngBytes(t), delay: 5 * time.Millisecond}
	src := NewSource(&stubOpener{device: dev}, "/dev/video0", nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := src.Acquire(context.Background(), nil)
			if err != nil {
				t.Errorf("acquire: %v", err)
			}
		}()
	}
	wg.Wait()

	gt.Equal(t, dev.reads.Load(), int32(8))
	gt.Equal(t, dev.maxSeen.Load(), int32(1))
}

func TestImageJPEG(t *testing.T) {
	img, err := Decode(pngBytes(t))
	gt.NoError(t, err)

	data, err := img.JPEG(85)
	gt.NoError(t, err)

	again, err := Decode(data)
	gt.NoError(t, err)
	gt.Equal(t, again.Format, "jpeg")
}
