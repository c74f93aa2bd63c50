package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxFrameBytes = 10 * 1024 * 1024

// FFmpegOpener opens capture devices by running ffmpeg as an MJPEG pipe.
// deviceID is either a local device path (read with Format, e.g. v4l2)
// or an rtsp/http URL.
type FFmpegOpener struct {
	Binary      string
	Format      string
	FrameWidth  int
	ReadTimeout time.Duration
	Logger      *slog.Logger
}

// Open starts ffmpeg and waits for the first frame, so a device that cannot
// deliver video is reported as unavailable here rather than on first read.
func (o *FFmpegOpener) Open(ctx context.Context, deviceID string) (Device, error) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	binary := o.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	timeout := o.ReadTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	runCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(runCtx, binary, ffmpegArgs(deviceID, o.Format, o.FrameWidth)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: start ffmpeg: %v", ErrDeviceUnavailable, err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			logger.Warn("ffmpeg stderr", "device", deviceID, "output", scanner.Text())
		}
	}()

	d := newFFmpegDevice(cancel, timeout)
	d.cmd = cmd
	go func() {
		err := readJPEGFrames(runCtx, stdout, d.publish)
		if waitErr := cmd.Wait(); err == nil {
			err = waitErr
		}
		d.finish(err)
	}()

	if _, err := d.ReadFrame(ctx); err != nil {
		_ = d.Release()
		return nil, fmt.Errorf("%w: no video from %s: %v", ErrDeviceUnavailable, deviceID, err)
	}
	return d, nil
}

func ffmpegArgs(deviceID, format string, width int) []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}

	switch {
	case strings.HasPrefix(deviceID, "rtsp://") || strings.HasPrefix(deviceID, "rtsps://"):
		args = append(args, "-rtsp_transport", "tcp", "-timeout", "5000000")
	case strings.HasPrefix(deviceID, "http://") || strings.HasPrefix(deviceID, "https://"):
		args = append(args, "-reconnect", "1", "-reconnect_streamed", "1", "-timeout", "10000000")
	case format != "":
		args = append(args, "-f", format)
	}

	args = append(args, "-i", deviceID)
	if width > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:-1", width))
	}
	return append(args,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "3",
		"pipe:1",
	)
}

// FFmpegDevice keeps the most recent frame produced by a running ffmpeg process.
type FFmpegDevice struct {
	cancel  context.CancelFunc
	cmd     *exec.Cmd
	timeout time.Duration

	mu     sync.Mutex
	latest []byte
	notify chan struct{}
	done   chan struct{}
	err    error
}

func newFFmpegDevice(cancel context.CancelFunc, timeout time.Duration) *FFmpegDevice {
	return &FFmpegDevice{
		cancel:  cancel,
		timeout: timeout,
		notify:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (d *FFmpegDevice) publish(frame []byte) error {
	d.mu.Lock()
	d.latest = frame
	close(d.notify)
	d.notify = make(chan struct{})
	d.mu.Unlock()
	return nil
}

func (d *FFmpegDevice) finish(err error) {
	d.mu.Lock()
	if err == nil {
		err = io.EOF
	}
	d.err = err
	d.mu.Unlock()
	close(d.done)
}

// ReadFrame waits for the next frame produced after the call.
func (d *FFmpegDevice) ReadFrame(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	notify := d.notify
	d.mu.Unlock()

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case <-notify:
		d.mu.Lock()
		frame := d.latest
		d.mu.Unlock()
		return frame, nil
	case <-d.done:
		d.mu.Lock()
		err := d.err
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: ffmpeg exited: %v", ErrReadFailed, err)
	case <-timer.C:
		return nil, fmt.Errorf("%w: no frame within %s", ErrReadFailed, d.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release terminates ffmpeg.
func (d *FFmpegDevice) Release() error {
	d.cancel()
	if d.cmd != nil && d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	return nil
}

// readJPEGFrames splits a stream of concatenated JPEG images on SOI/EOI markers.
func readJPEGFrames(ctx context.Context, r io.Reader, callback func([]byte) error) error {
	reader := bufio.NewReaderSize(r, 512*1024)
	framesRead := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := findJPEGStart(reader); err != nil {
			if errors.Is(err, io.EOF) {
				if framesRead > 0 {
					return nil
				}
				return errors.New("no frames received from ffmpeg")
			}
			return err
		}

		frame, err := readUntilJPEGEnd(reader)
		if err != nil {
			if errors.Is(err, io.EOF) && framesRead > 0 {
				return nil
			}
			return err
		}

		framesRead++
		if err := callback(frame); err != nil {
			return err
		}
	}
}

func findJPEGStart(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return err
		}
		if b == 0xD8 {
			return nil
		}
	}
}

func readUntilJPEGEnd(r *bufio.Reader) ([]byte, error) {
	data := []byte{0xFF, 0xD8}

	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		data = append(data, b)

		if b == 0xFF {
			next, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			data = append(data, next)
			if next == 0xD9 {
				return data, nil
			}
		}

		if len(data) > maxFrameBytes {
			return nil, fmt.Errorf("jpeg frame too large: %s bytes", strconv.Itoa(len(data)))
		}
	}
}
